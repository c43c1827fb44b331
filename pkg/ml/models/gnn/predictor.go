package gnn

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Model is implemented by SAGE and GAT.
type Model interface {
	// Init creates the model variables for node features of width inputDim.
	Init(ctx *context.Context, inputDim int) error

	// IsInitialized returns whether Init has already been called.
	IsInitialized() bool

	// Apply builds the forward pass for the inputs: node features, edge index and, optionally, edge attributes.
	Apply(ctx *context.Context, inputs []*Node) *Node
}

// Apply implements Model: inputs must be the node features and the edge index.
func (m *SAGE) Apply(ctx *context.Context, inputs []*Node) *Node {
	if len(inputs) != 2 {
		Panicf("gnn.SAGE: expected 2 inputs (node features and edge index), got %d", len(inputs))
	}
	return m.Forward(ctx, inputs[0], inputs[1])
}

// Apply implements Model: inputs must be the node features, the edge index and, optionally, the edge attributes.
func (m *GAT) Apply(ctx *context.Context, inputs []*Node) *Node {
	var edgeAttr *Node
	switch len(inputs) {
	case 2:
	case 3:
		edgeAttr = inputs[2]
	default:
		Panicf("gnn.GAT: expected 2 or 3 inputs (node features, edge index and edge attributes), got %d", len(inputs))
	}
	return m.Forward(ctx, inputs[0], inputs[1], edgeAttr)
}

// Predictor compiles and executes the forward pass of a Model on a backend.
//
// Graphs are compiled on the first call for each combination of input shapes, and reused after that.
// By default, it runs in inference mode, so dropout is disabled.
type Predictor struct {
	backend  backends.Backend
	ctx      *context.Context
	model    Model
	training bool
	exec     *context.Exec
}

// NewPredictor returns a Predictor for the model, whose variables are in ctx.
// The model must already be initialized (see Model.Init).
func NewPredictor(backend backends.Backend, ctx *context.Context, model Model) (*Predictor, error) {
	if !model.IsInitialized() {
		return nil, errors.New("gnn.NewPredictor: model must be initialized with Init before it can be executed")
	}
	p := &Predictor{backend: backend, ctx: ctx, model: model}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Predictor) compile() error {
	if p.exec != nil {
		p.exec.Finalize()
	}
	var err error
	p.exec, err = context.NewExec(p.backend, p.ctx, func(ctx *context.Context, inputs []*Node) *Node {
		g := inputs[0].Graph()
		ctx.SetTraining(g, p.training)
		return p.model.Apply(ctx, inputs)
	})
	if err != nil {
		return errors.WithMessage(err, "gnn.Predictor: failed to create executor")
	}
	return nil
}

// SetTraining configures whether the forward pass runs in training mode, that is, with dropout enabled.
// Graphs compiled for the previous mode are discarded.
func (p *Predictor) SetTraining(training bool) error {
	if p.training == training {
		return nil
	}
	p.training = training
	return p.compile()
}

// IsTraining returns whether the forward pass runs in training mode.
func (p *Predictor) IsTraining() bool { return p.training }

// Predict runs the forward pass for the node features x (shaped `[num_nodes, input_dim]`) and the edges in
// edgeIndex (integer tensor shaped `[2, num_edges]`). edgeAttr is optional and only accepted by GAT models.
//
// It returns the model outputs shaped `[num_nodes, output_dim]`, or an error if an edge points outside
// of `[0, num_nodes)` or if building or executing the graph failed.
func (p *Predictor) Predict(x, edgeIndex, edgeAttr *tensors.Tensor) (output *tensors.Tensor, err error) {
	if x == nil || edgeIndex == nil {
		return nil, errors.New("gnn.Predictor.Predict: node features and edge index are required")
	}
	if x.Shape().Rank() != 2 {
		return nil, errors.Errorf("gnn.Predictor.Predict: node features must be shaped [num_nodes, features], got %s", x.Shape())
	}
	if err = checkEdgeIndex(edgeIndex, x.Shape().Dimensions[0]); err != nil {
		return nil, errors.WithMessage(err, "gnn.Predictor.Predict")
	}
	inputs := []any{x, edgeIndex}
	if edgeAttr != nil {
		inputs = append(inputs, edgeAttr)
	}
	err = TryCatch[error](func() {
		var execErr error
		output, execErr = p.exec.Exec1(inputs...)
		if execErr != nil {
			panic(execErr)
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "gnn.Predictor.Predict")
	}
	klog.V(2).Infof("gnn.Predictor: x.shape=%s, edgeIndex.shape=%s -> output.shape=%s", x.Shape(), edgeIndex.Shape(), output.Shape())
	return output, nil
}

// checkEdgeIndex returns an error if edgeIndex is not an integer tensor shaped `[2, num_edges]`, or if any
// of its node indices is outside of `[0, numNodes)`. Backends clamp out-of-range gathers and scatters, so
// these are checked on the host.
func checkEdgeIndex(edgeIndex *tensors.Tensor, numNodes int) error {
	shape := edgeIndex.Shape()
	if !shape.DType.IsInt() || shape.Rank() != 2 || shape.Dimensions[0] != 2 {
		return errors.Errorf("edge index must be an integer tensor shaped [2, num_edges], got %s", shape)
	}
	numEdges := shape.Dimensions[1]
	var err error
	accessErr := edgeIndex.ConstFlatData(func(flat any) {
		switch indices := flat.(type) {
		case []int32:
			err = checkEdgeIndices(indices, numEdges, numNodes)
		case []int64:
			err = checkEdgeIndices(indices, numEdges, numNodes)
		case []int16:
			err = checkEdgeIndices(indices, numEdges, numNodes)
		case []int8:
			err = checkEdgeIndices(indices, numEdges, numNodes)
		default:
			err = errors.Errorf("edge index dtype %s not supported, use Int32 or Int64", shape.DType)
		}
	})
	if accessErr != nil {
		return accessErr
	}
	return err
}

// checkEdgeIndices checks the flat `[2, numEdges]` indices: sources first, then targets.
func checkEdgeIndices[T int8 | int16 | int32 | int64](indices []T, numEdges, numNodes int) error {
	for edge := range numEdges {
		source, target := int64(indices[edge]), int64(indices[numEdges+edge])
		if source < 0 || source >= int64(numNodes) || target < 0 || target >= int64(numNodes) {
			return errors.Errorf("edge #%d (%d->%d) points outside of the %d nodes", edge, source, target, numNodes)
		}
	}
	return nil
}

// Finalize releases the compiled graphs. The Predictor can't be used after that.
func (p *Predictor) Finalize() {
	if p.exec != nil {
		p.exec.Finalize()
		p.exec = nil
	}
}
