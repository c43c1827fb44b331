package graphconv

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// SegmentSoftmax normalizes logits shaped `[num_edges, heads]` with a softmax over the edges that share the same
// target node (given by targets, shaped `[num_edges, 1]`), independently for each head.
//
// numNodes is the number of target nodes (segments). Nodes without incoming edges simply don't
// show up in the output, which has the same shape as logits.
func SegmentSoftmax(logits, targets *Node, numNodes int) *Node {
	if logits.Rank() != 2 {
		Panicf("graphconv.SegmentSoftmax(): logits must be shaped [num_edges, heads], got logits.shape=%s", logits.Shape())
	}
	g := logits.Graph()
	dtype := logits.DType()
	numHeads := logits.Shape().Dimensions[1]

	// Per-target max, for numerical stability: it doesn't change the result, so no gradient flows through it.
	lowest := BroadcastToDims(Infinity(g, dtype, -1), numNodes, numHeads)
	maxes := StopGradient(ScatterMax(lowest, targets, logits, false, false))
	exps := Exp(Sub(logits, Gather(maxes, targets)))

	sums := Scatter(targets, exps, shapes.Make(dtype, numNodes, numHeads), false, false)
	return Div(exps, AddScalar(Gather(sums, targets), 1e-16))
}
