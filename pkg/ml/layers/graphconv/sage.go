package graphconv

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// SAGE is the GraphSAGE convolution:
//
//	out_i = W_neighbors · aggregate_{j->i}(x_j) + b + W_root · x_i
//
// where the aggregation (mean, sum, max or min) runs over the edges arriving at node i.
// Nodes without incoming edges get only their root projection (plus bias).
type SAGE struct {
	scope       string
	aggregation Aggregation
	neighbors   *Linear
	root        *Linear
}

// NewSAGE returns a SAGE convolution projecting to outputDim, with its variables in the given scope.
func NewSAGE(scope string, outputDim int, aggregation Aggregation) *SAGE {
	return &SAGE{
		scope:       scope,
		aggregation: aggregation,
		neighbors:   NewLinear("neighbors", outputDim),
		root:        NewLinear("root", outputDim).UseBias(false),
	}
}

// Scope in which the variables are created.
func (s *SAGE) Scope() string { return s.scope }

// Aggregation used to pool the incoming messages.
func (s *SAGE) Aggregation() Aggregation { return s.aggregation }

// InputDim is the expected width of the node features, 0 before Init is called.
func (s *SAGE) InputDim() int { return s.neighbors.InputDim() }

// OutputDim is the width of the updated node features.
func (s *SAGE) OutputDim() int { return s.neighbors.OutputDim() }

// IsInitialized returns whether Init has already been called.
func (s *SAGE) IsInitialized() bool { return s.neighbors.IsInitialized() }

// Init creates the variables for node features of the given width and dtype.
func (s *SAGE) Init(ctx *context.Context, dtype dtypes.DType, inputDim int) {
	ctx = ctx.In(s.scope)
	s.neighbors.Init(ctx, dtype, inputDim)
	s.root.Init(ctx, dtype, inputDim)
}

// Apply the convolution to the node features x, shaped `[num_nodes, inputDim]`, over the edges in edgeIndex
// (shaped `[2, num_edges]`). It returns the updated features shaped `[num_nodes, outputDim]`.
func (s *SAGE) Apply(ctx *context.Context, x, edgeIndex *Node) *Node {
	if x.Rank() != 2 {
		Panicf("graphconv.SAGE(%q): node features must be shaped [num_nodes, features], got x.shape=%s", s.scope, x.Shape())
	}
	ctx = ctx.In(s.scope)
	var aggregated *Node
	if NumEdges(edgeIndex) == 0 {
		// Nothing arrives at any node.
		aggregated = ZerosLike(x)
	} else {
		sources, targets := SplitEdgeIndex(edgeIndex)
		aggregated = Aggregate(s.aggregation, Gather(x, sources), targets, x.Shape().Dimensions[0])
	}
	return Add(s.neighbors.Apply(ctx, aggregated), s.root.Apply(ctx, x))
}
