package gnn

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/graphnets/gnn/pkg/ml/layers/graphconv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SAGEScope is the context scope where the variables of the SAGE model are created.
const SAGEScope = "graphsage"

// SAGE is a GraphSAGE node model: a stack of GraphSAGE convolutions followed by a linear output projection.
//
// With 1 layer the only convolution projects straight to the embedding width. With L > 1 layers the first
// convolution projects to the hidden width, followed by L-2 middle convolutions (hidden to hidden) and a last
// convolution to the embedding width. Every convolution but the last one is followed by a ReLU and dropout.
//
// It's created in two phases: NewSAGE builds the layer stack from the configuration, and Init creates the
// variables once the width of the node features is known.
type SAGE struct {
	config SAGEConfig
	convs  Topology[*graphconv.SAGE]
	out    *graphconv.Linear
}

// NewSAGE returns a GraphSAGE model for the given configuration, or an error if the configuration is invalid.
func NewSAGE(config SAGEConfig) (*SAGE, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &SAGE{config: config}
	m.convs = buildTopology(config.NumLayers, func(position int) *graphconv.SAGE {
		outputDim := config.HiddenDim
		if position == config.NumLayers-1 {
			outputDim = config.EmbeddingDim
		}
		return graphconv.NewSAGE(convScope(position), outputDim, config.Aggregation)
	})
	m.out = graphconv.NewLinear("output", config.OutputDim)
	klog.V(1).Infof("gnn.SAGE: %d layer(s) (%s), aggregation=%s, hidden=%d, embedding=%d, output=%d",
		config.NumLayers, m.convs.Kind(), config.Aggregation, config.HiddenDim, config.EmbeddingDim, config.OutputDim)
	return m, nil
}

// NewSAGEFromContext is like NewSAGE, but takes the configuration from the context hyperparameters.
// See SAGEConfigFromContext.
func NewSAGEFromContext(ctx *context.Context) (*SAGE, error) {
	config, err := SAGEConfigFromContext(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "gnn.NewSAGEFromContext")
	}
	return NewSAGE(config)
}

// Config returns the configuration of the model, with defaults filled in.
func (m *SAGE) Config() SAGEConfig { return m.config }

// Topology of the stack of convolutions.
func (m *SAGE) Topology() Topology[*graphconv.SAGE] { return m.convs }

// Output returns the final linear projection.
func (m *SAGE) Output() *graphconv.Linear { return m.out }

// IsInitialized returns whether Init has already been called.
func (m *SAGE) IsInitialized() bool { return m.out.IsInitialized() }

// Init creates the variables of the model in ctx.In(SAGEScope), for node features of width inputDim.
// It must be called once, before Forward.
func (m *SAGE) Init(ctx *context.Context, inputDim int) error {
	if m.IsInitialized() {
		return errors.New("gnn.SAGE: Init called twice")
	}
	if inputDim <= 0 {
		return errors.Errorf("gnn.SAGE: inputDim must be > 0, got %d", inputDim)
	}
	return TryCatch[error](func() {
		ctx = ctx.In(SAGEScope)
		width := inputDim
		for _, conv := range m.convs.Layers() {
			conv.Init(ctx, m.config.DType, width)
			width = conv.OutputDim()
		}
		m.out.Init(ctx, m.config.DType, width)
		klog.V(1).Infof("gnn.SAGE: initialized for %d input features", inputDim)
	})
}

// Forward builds the model graph for the node features x, shaped `[num_nodes, input_dim]`, and the edges
// edgeIndex, shaped `[2, num_edges]`. It returns the outputs shaped `[num_nodes, OutputDim]`, without any
// final activation.
//
// Node features are converted to the model dtype.
// Dropout is only applied if the context is in training mode (see context.Context.IsTraining).
// It panics (with an error) if the model is not initialized or if the inputs have invalid shapes.
func (m *SAGE) Forward(ctx *context.Context, x, edgeIndex *Node) *Node {
	if !m.IsInitialized() {
		Panicf("gnn.SAGE: Forward called before Init")
	}
	ctx = ctx.In(SAGEScope)
	if x.DType() != m.config.DType {
		x = ConvertDType(x, m.config.DType)
	}
	hiddenStep := func(conv *graphconv.SAGE, h *Node) *Node {
		h = activations.Relu(conv.Apply(ctx, h, edgeIndex))
		return dropout(ctx, h, m.config.DropoutRate)
	}

	var h *Node
	switch convs := m.convs.(type) {
	case SingleLayer[*graphconv.SAGE]:
		h = hiddenStep(convs.Only, x)
	case MultiLayer[*graphconv.SAGE]:
		h = hiddenStep(convs.First, x)
		for _, conv := range convs.Middle {
			h = hiddenStep(conv, h)
		}
		h = convs.Last.Apply(ctx, h, edgeIndex)
	}
	return m.out.Apply(ctx, h)
}

// dropout applies normalized dropout with the given rate, only in training mode.
// A rate of 1 drops everything.
func dropout(ctx *context.Context, x *Node, rate float64) *Node {
	switch {
	case rate <= 0:
		return x
	case rate >= 1:
		if ctx.IsTraining(x.Graph()) {
			return ZerosLike(x)
		}
		return x
	}
	return layers.DropoutNormalize(ctx, x, Scalar(x.Graph(), x.DType(), rate), true)
}

// convScope returns the scope of the graph layer at the given position of a stack.
func convScope(position int) string {
	return fmt.Sprintf("conv_%d", position)
}
