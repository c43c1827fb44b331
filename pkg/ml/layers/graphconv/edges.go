// Package graphconv implements graph convolution primitives over an explicit edge list:
// a dense Linear projection, the GraphSAGE convolution (SAGE) and the multi-head graph
// attention convolution (GAT).
//
// All primitives follow the same two-phase life cycle:
//
//  1. New...(): records the static configuration (output width, heads, aggregation, etc.).
//  2. Init(ctx, dtype, inputDim): creates the variables in the context, once the input width is known.
//
// After that Apply can be called any number of times, in any number of graphs, and it only reuses
// the variables created by Init.
//
// Edges are given as an integer tensor shaped `[2, num_edges]`: the first row holds the source node
// of each edge, and the second row its target. Messages flow from source to target, so a node
// is updated from its incoming edges.
//
// Example:
//
//	conv := graphconv.NewSAGE("sage", 16, graphconv.AggregationMean)
//	conv.Init(ctx, dtypes.Float32, 4)
//	...
//	h := conv.Apply(ctx, x, edgeIndex) // x: [num_nodes, 4] -> h: [num_nodes, 16]
package graphconv

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// NumEdges returns the number of edges in edgeIndex, shaped `[2, num_edges]`.
func NumEdges(edgeIndex *Node) int {
	checkEdgeIndex(edgeIndex)
	return edgeIndex.Shape().Dimensions[1]
}

// SplitEdgeIndex returns the source and target node indices of edgeIndex, each shaped `[num_edges, 1]`,
// the shape expected by Gather and Scatter.
//
// edgeIndex must be an integer tensor shaped `[2, num_edges]`.
func SplitEdgeIndex(edgeIndex *Node) (sources, targets *Node) {
	checkEdgeIndex(edgeIndex)
	numEdges := edgeIndex.Shape().Dimensions[1]
	sources = Reshape(Slice(edgeIndex, AxisElem(0)), numEdges, 1)
	targets = Reshape(Slice(edgeIndex, AxisElem(1)), numEdges, 1)
	return
}

func checkEdgeIndex(edgeIndex *Node) {
	if edgeIndex == nil {
		Panicf("graphconv: edgeIndex is nil, use an empty [2, 0] tensor for a graph without edges")
	}
	if !edgeIndex.DType().IsInt() {
		Panicf("graphconv: edgeIndex must have an integer dtype, got edgeIndex.shape=%s", edgeIndex.Shape())
	}
	if edgeIndex.Rank() != 2 || edgeIndex.Shape().Dimensions[0] != 2 {
		Panicf("graphconv: edgeIndex must be shaped [2, num_edges], got edgeIndex.shape=%s", edgeIndex.Shape())
	}
}

// appendSelfLoops returns sources and targets (shaped `[num_edges, 1]`) with one extra edge `i -> i`
// appended for each of the numNodes nodes.
func appendSelfLoops(sources, targets *Node, numNodes int) (*Node, *Node) {
	g := sources.Graph()
	loops := Iota(g, shapes.Make(sources.DType(), numNodes, 1), 0)
	return Concatenate([]*Node{sources, loops}, 0), Concatenate([]*Node{targets, loops}, 0)
}
