package graphconv

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// DefaultNegativeSlope of the LeakyReLU applied to the attention logits.
const DefaultNegativeSlope = 0.2

// GAT is a multi-head graph attention convolution.
//
// For each head, node features are projected (x' = W·x) and, for every edge j->i, an attention
// logit is computed as:
//
//	e_ji = LeakyReLU(a_source·x'_j + a_target·x'_i + a_edge·W_edge·edge_ji)
//
// The logits are normalized with a softmax over the edges arriving at i, and the output of node i
// is the attention weighted sum of x'_j. Heads are then concatenated (`[num_nodes, heads*outputDim]`)
// or averaged (`[num_nodes, outputDim]`), and a bias is added.
//
// Self-loops are only added if configured with AddSelfLoops(true): otherwise a node only attends to its
// in-neighbors, and a node without incoming edges outputs only the bias.
type GAT struct {
	scope                        string
	inputDim, outputDim, heads   int
	concat, addSelfLoops         bool
	separateProjections          bool
	negativeSlope                float64
	attentionDropoutRate         float64
	edgeDim                      int
	dtype                        dtypes.DType
	source, target, edgeFeatures *Linear
}

// NewGAT returns a GAT convolution with the given number of heads, each producing outputDim features, with its
// variables in the given scope.
//
// Defaults: heads are concatenated, no self-loops, a shared projection for source and target nodes,
// negative slope of DefaultNegativeSlope, no attention dropout and edge attributes are ignored.
func NewGAT(scope string, outputDim, heads int) *GAT {
	if outputDim <= 0 || heads <= 0 {
		Panicf("graphconv.NewGAT(%q): outputDim (%d) and heads (%d) must be > 0", scope, outputDim, heads)
	}
	return &GAT{
		scope:         scope,
		outputDim:     outputDim,
		heads:         heads,
		concat:        true,
		negativeSlope: DefaultNegativeSlope,
	}
}

// Concat configures whether the heads are concatenated (true, the default) or averaged.
func (c *GAT) Concat(concat bool) *GAT {
	c.concat = concat
	return c
}

// AddSelfLoops configures whether an edge i->i is appended for every node before computing attention.
// Default is false. The attributes of the appended edges are zeros.
func (c *GAT) AddSelfLoops(addSelfLoops bool) *GAT {
	c.addSelfLoops = addSelfLoops
	return c
}

// SeparateProjections configures whether source and target nodes are projected with different weights,
// as in bipartite graphs. Default is false, one projection shared by both.
func (c *GAT) SeparateProjections(separate bool) *GAT {
	c.separateProjections = separate
	return c
}

// NegativeSlope of the LeakyReLU applied to the attention logits.
func (c *GAT) NegativeSlope(slope float64) *GAT {
	c.negativeSlope = slope
	return c
}

// AttentionDropout sets the dropout rate applied to the normalized attention coefficients during training.
// Default is 0, no dropout.
func (c *GAT) AttentionDropout(rate float64) *GAT {
	if rate < 0 || rate >= 1.0 {
		Panicf("graphconv.GAT(%q): invalid attention dropout rate %f, it must be in [0, 1)", c.scope, rate)
	}
	c.attentionDropoutRate = rate
	return c
}

// EdgeDim configures the width of the edge attributes used to compute the attention logits.
// Default is 0, in which case edge attributes passed to Apply are ignored.
func (c *GAT) EdgeDim(edgeDim int) *GAT {
	if edgeDim < 0 {
		Panicf("graphconv.GAT(%q): edgeDim must be >= 0, got %d", c.scope, edgeDim)
	}
	c.edgeDim = edgeDim
	return c
}

// Scope in which the variables are created.
func (c *GAT) Scope() string { return c.scope }

// Heads is the number of attention heads.
func (c *GAT) Heads() int { return c.heads }

// IsConcat returns whether heads are concatenated (as opposed to averaged).
func (c *GAT) IsConcat() bool { return c.concat }

// HasSelfLoops returns whether self-loops are appended to the edges.
func (c *GAT) HasSelfLoops() bool { return c.addSelfLoops }

// InputDim is the expected width of the node features, 0 before Init is called.
func (c *GAT) InputDim() int { return c.inputDim }

// OutputDim is the width of each head.
func (c *GAT) OutputDim() int { return c.outputDim }

// DeclaredOutputDim is the width of the output of Apply: heads*OutputDim if heads are concatenated,
// OutputDim if they are averaged.
func (c *GAT) DeclaredOutputDim() int {
	if c.concat {
		return c.heads * c.outputDim
	}
	return c.outputDim
}

// IsInitialized returns whether Init has already been called.
func (c *GAT) IsInitialized() bool { return c.inputDim > 0 }

// Init creates the variables for node features of the given width and dtype.
func (c *GAT) Init(ctx *context.Context, dtype dtypes.DType, inputDim int) {
	if c.IsInitialized() {
		Panicf("graphconv.GAT(%q): Init called twice", c.scope)
	}
	ctx = ctx.In(c.scope)
	projectedDim := c.heads * c.outputDim
	if c.separateProjections {
		c.source = NewLinear("source", projectedDim).UseBias(false)
		c.target = NewLinear("target", projectedDim).UseBias(false)
		c.target.Init(ctx, dtype, inputDim)
	} else {
		c.source = NewLinear("projection", projectedDim).UseBias(false)
	}
	c.source.Init(ctx, dtype, inputDim)
	ctx.VariableWithShape("attention_source", shapes.Make(dtype, c.heads, c.outputDim))
	ctx.VariableWithShape("attention_target", shapes.Make(dtype, c.heads, c.outputDim))
	if c.edgeDim > 0 {
		c.edgeFeatures = NewLinear("edge", projectedDim).UseBias(false)
		c.edgeFeatures.Init(ctx, dtype, c.edgeDim)
		ctx.VariableWithShape("attention_edge", shapes.Make(dtype, c.heads, c.outputDim))
	}
	ctx.WithInitializer(initializers.Zero).VariableWithShape("biases", shapes.Make(dtype, c.DeclaredOutputDim()))
	c.inputDim = inputDim
	c.dtype = dtype
}

// Apply the attention convolution to x, shaped `[num_nodes, inputDim]`, over the edges in edgeIndex
// (shaped `[2, num_edges]`).
//
// edgeAttr is optional (can be nil) and is only used if the convolution was configured with EdgeDim > 0.
// It must be shaped `[num_edges, edgeDim]`, or `[num_edges]` if edgeDim is 1.
//
// It returns the updated node features shaped `[num_nodes, DeclaredOutputDim()]`.
func (c *GAT) Apply(ctx *context.Context, x, edgeIndex, edgeAttr *Node) *Node {
	if !c.IsInitialized() {
		Panicf("graphconv.GAT(%q): Apply called before Init", c.scope)
	}
	if x.Rank() != 2 {
		Panicf("graphconv.GAT(%q): node features must be shaped [num_nodes, features], got x.shape=%s", c.scope, x.Shape())
	}
	ctx = ctx.In(c.scope)
	g := x.Graph()
	numNodes := x.Shape().Dimensions[0]
	heads, headDim := c.heads, c.outputDim

	// Projected features, per head: [num_nodes, heads, headDim].
	xSource := Reshape(c.source.Apply(ctx, x), numNodes, heads, headDim)
	xTarget := xSource
	if c.separateProjections {
		xTarget = Reshape(c.target.Apply(ctx, x), numNodes, heads, headDim)
	}

	numEdges := NumEdges(edgeIndex)
	var sources, targets *Node
	if numEdges > 0 {
		sources, targets = SplitEdgeIndex(edgeIndex)
	}
	if c.addSelfLoops {
		if numEdges > 0 {
			sources, targets = appendSelfLoops(sources, targets, numNodes)
		} else {
			sources = Iota(g, shapes.Make(edgeIndex.DType(), numNodes, 1), 0)
			targets = sources
		}
	}

	var output *Node // [num_nodes, heads*headDim]
	if sources == nil {
		// No edges: nothing to attend to.
		output = Zeros(g, shapes.Make(c.dtype, numNodes, heads*headDim))
	} else {
		numAttended := sources.Shape().Dimensions[0]
		reuseCtx := ctx.Reuse()
		attentionSource := reuseCtx.VariableWithShape("attention_source", shapes.Make(c.dtype, heads, headDim)).ValueGraph(g)
		attentionTarget := reuseCtx.VariableWithShape("attention_target", shapes.Make(c.dtype, heads, headDim)).ValueGraph(g)
		logitsSource := ReduceSum(Mul(xSource, ExpandLeftToRank(attentionSource, 3)), -1) // [num_nodes, heads]
		logitsTarget := ReduceSum(Mul(xTarget, ExpandLeftToRank(attentionTarget, 3)), -1)
		logits := Add(Gather(logitsSource, sources), Gather(logitsTarget, targets)) // [num_attended, heads]
		if c.edgeDim > 0 && edgeAttr != nil {
			logits = Add(logits, c.edgeLogits(ctx, edgeAttr, numEdges, numAttended))
		}
		logits = activations.LeakyReluWithAlpha(logits, c.negativeSlope)
		attention := SegmentSoftmax(logits, targets, numNodes)
		if c.attentionDropoutRate > 0 {
			attention = layers.DropoutNormalize(ctx, attention, Scalar(g, attention.DType(), c.attentionDropoutRate), true)
		}

		// Weighted messages, flattened to [num_attended, heads*headDim] to be scattered to their targets.
		messages := Mul(Gather(xSource, sources), InsertAxes(attention, -1))
		messages = Reshape(messages, numAttended, heads*headDim)
		output = Scatter(targets, messages, shapes.Make(c.dtype, numNodes, heads*headDim), false, false)
	}

	if !c.concat {
		output = ReduceMean(Reshape(output, numNodes, heads, headDim), 1)
	}
	biases := ctx.Reuse().VariableWithShape("biases", shapes.Make(c.dtype, c.DeclaredOutputDim())).ValueGraph(g)
	return Add(output, ExpandLeftToRank(biases, 2))
}

// edgeLogits returns the attention logits contributed by the edge attributes, shaped `[numAttended, heads]`.
// Appended self-loops (numAttended > numEdges) get zero attributes.
func (c *GAT) edgeLogits(ctx *context.Context, edgeAttr *Node, numEdges, numAttended int) *Node {
	if edgeAttr.Rank() == 1 {
		edgeAttr = InsertAxes(edgeAttr, -1)
	}
	if edgeAttr.Rank() != 2 || edgeAttr.Shape().Dimensions[0] != numEdges || edgeAttr.Shape().Dimensions[1] != c.edgeDim {
		Panicf("graphconv.GAT(%q): edge attributes must be shaped [num_edges=%d, edge_dim=%d], got edgeAttr.shape=%s",
			c.scope, numEdges, c.edgeDim, edgeAttr.Shape())
	}
	g := edgeAttr.Graph()
	if numAttended > numEdges {
		loopsAttr := Zeros(g, shapes.Make(edgeAttr.DType(), numAttended-numEdges, c.edgeDim))
		if numEdges == 0 {
			edgeAttr = loopsAttr
		} else {
			edgeAttr = Concatenate([]*Node{edgeAttr, loopsAttr}, 0)
		}
	}
	projected := Reshape(c.edgeFeatures.Apply(ctx, edgeAttr), numAttended, c.heads, c.outputDim)
	attentionEdge := ctx.Reuse().VariableWithShape("attention_edge", shapes.Make(c.dtype, c.heads, c.outputDim)).ValueGraph(g)
	return ReduceSum(Mul(projected, ExpandLeftToRank(attentionEdge, 3)), -1)
}
