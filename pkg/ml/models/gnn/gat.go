package gnn

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/graphnets/gnn/pkg/ml/layers/graphconv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GATScope is the context scope where the variables of the GAT model are created.
const GATScope = "gat"

// GAT is a multi-head graph attention node model: a stack of attention layers, each one summed with a linear
// skip projection of its input, followed by a linear output projection.
//
// With 1 layer the only attention layer averages its heads into the embedding width. With L > 1 layers the
// first and L-2 middle attention layers concatenate their heads (`heads*hidden_dim` wide), and the last one
// averages its heads into the embedding width. Every layer but the last one is followed by a ReLU and dropout.
//
// Self-loops are never added, so a node without incoming edges only gets its skip projection (plus the
// attention bias). Edge attributes, when configured with EdgeDim > 0, are used by every attention layer,
// never by the skip projections.
//
// It's created in two phases: NewGAT builds the layer stack from the configuration, and Init creates the
// variables once the width of the node features is known.
type GAT struct {
	config    GATConfig
	attention Topology[*graphconv.GAT]
	skip      Topology[*graphconv.Linear]
	out       *graphconv.Linear
}

// NewGAT returns a GAT model for the given configuration, or an error if the configuration is invalid.
func NewGAT(config GATConfig) (*GAT, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &GAT{config: config}
	numLayers := config.NumLayers
	isLast := func(position int) bool { return position == numLayers-1 }
	m.attention = buildTopology(numLayers, func(position int) *graphconv.GAT {
		var conv *graphconv.GAT
		if isLast(position) {
			conv = graphconv.NewGAT(convScope(position), config.EmbeddingDim, config.Heads).Concat(false)
		} else {
			conv = graphconv.NewGAT(convScope(position), config.HiddenDim, config.Heads)
		}
		conv.AddSelfLoops(false).
			SeparateProjections(position == 0).
			NegativeSlope(config.NegativeSlope).
			AttentionDropout(config.AttentionDropoutRate).
			EdgeDim(config.EdgeDim)
		return conv
	})
	m.skip = buildTopology(numLayers, func(position int) *graphconv.Linear {
		outputDim := config.Heads * config.HiddenDim
		if isLast(position) {
			outputDim = config.EmbeddingDim
		}
		return graphconv.NewLinear(skipScope(position), outputDim)
	})
	if NumMiddle(m.attention) != NumMiddle(m.skip) {
		return nil, errors.Errorf("gnn.GAT: %d middle attention layers but %d middle skip projections",
			NumMiddle(m.attention), NumMiddle(m.skip))
	}
	m.out = graphconv.NewLinear("output", config.OutputDim)
	klog.V(1).Infof("gnn.GAT: %d layer(s) (%s), heads=%d, hidden=%d, embedding=%d, output=%d, edge_dim=%d",
		numLayers, m.attention.Kind(), config.Heads, config.HiddenDim, config.EmbeddingDim, config.OutputDim, config.EdgeDim)
	return m, nil
}

// NewGATFromContext is like NewGAT, but takes the configuration from the context hyperparameters.
// See GATConfigFromContext.
func NewGATFromContext(ctx *context.Context) (*GAT, error) {
	config, err := GATConfigFromContext(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "gnn.NewGATFromContext")
	}
	return NewGAT(config)
}

// Config returns the configuration of the model, with defaults filled in.
func (m *GAT) Config() GATConfig { return m.config }

// Attention returns the topology of the attention layers.
func (m *GAT) Attention() Topology[*graphconv.GAT] { return m.attention }

// Skip returns the topology of the linear skip projections, paired one-to-one with the attention layers.
func (m *GAT) Skip() Topology[*graphconv.Linear] { return m.skip }

// Output returns the final linear projection.
func (m *GAT) Output() *graphconv.Linear { return m.out }

// IsInitialized returns whether Init has already been called.
func (m *GAT) IsInitialized() bool { return m.out.IsInitialized() }

// Init creates the variables of the model in ctx.In(GATScope), for node features of width inputDim.
// It must be called once, before Forward.
func (m *GAT) Init(ctx *context.Context, inputDim int) error {
	if m.IsInitialized() {
		return errors.New("gnn.GAT: Init called twice")
	}
	if inputDim <= 0 {
		return errors.Errorf("gnn.GAT: inputDim must be > 0, got %d", inputDim)
	}
	return TryCatch[error](func() {
		ctx = ctx.In(GATScope)
		dtype := m.config.DType
		width := inputDim
		skips := m.skip.Layers()
		for ii, conv := range m.attention.Layers() {
			conv.Init(ctx, dtype, width)
			skips[ii].Init(ctx, dtype, width)
			if conv.DeclaredOutputDim() != skips[ii].OutputDim() {
				Panicf("gnn.GAT: layer #%d attention width %d doesn't match skip width %d",
					ii, conv.DeclaredOutputDim(), skips[ii].OutputDim())
			}
			width = conv.DeclaredOutputDim()
		}
		m.out.Init(ctx, dtype, width)
		klog.V(1).Infof("gnn.GAT: initialized for %d input features", inputDim)
	})
}

// Forward builds the model graph for the node features x, shaped `[num_nodes, input_dim]`, the edges
// edgeIndex, shaped `[2, num_edges]`, and the optional edge attributes edgeAttr (it can be nil), shaped
// `[num_edges, edge_dim]`. It returns the outputs shaped `[num_nodes, OutputDim]`, without any final activation.
//
// Node features and edge attributes are converted to the model dtype.
// Dropout is only applied if the context is in training mode (see context.Context.IsTraining).
// It panics (with an error) if the model is not initialized or if the inputs have invalid shapes.
func (m *GAT) Forward(ctx *context.Context, x, edgeIndex, edgeAttr *Node) *Node {
	if !m.IsInitialized() {
		Panicf("gnn.GAT: Forward called before Init")
	}
	ctx = ctx.In(GATScope)
	if x.DType() != m.config.DType {
		x = ConvertDType(x, m.config.DType)
	}
	if edgeAttr != nil && edgeAttr.DType() != m.config.DType {
		edgeAttr = ConvertDType(edgeAttr, m.config.DType)
	}
	layer := func(conv *graphconv.GAT, skip *graphconv.Linear, h *Node) *Node {
		return Add(conv.Apply(ctx, h, edgeIndex, edgeAttr), skip.Apply(ctx, h))
	}
	hiddenStep := func(conv *graphconv.GAT, skip *graphconv.Linear, h *Node) *Node {
		h = activations.Relu(layer(conv, skip, h))
		return dropout(ctx, h, m.config.DropoutRate)
	}

	var h *Node
	switch attention := m.attention.(type) {
	case SingleLayer[*graphconv.GAT]:
		skip := m.skip.(SingleLayer[*graphconv.Linear])
		h = hiddenStep(attention.Only, skip.Only, x)
	case MultiLayer[*graphconv.GAT]:
		skip := m.skip.(MultiLayer[*graphconv.Linear])
		h = hiddenStep(attention.First, skip.First, x)
		for ii, conv := range attention.Middle {
			h = hiddenStep(conv, skip.Middle[ii], h)
		}
		h = layer(attention.Last, skip.Last, h)
	}
	return m.out.Apply(ctx, h)
}

// skipScope returns the scope of the skip projection at the given position of a stack.
func skipScope(position int) string {
	return convScope(position) + "_skip"
}
