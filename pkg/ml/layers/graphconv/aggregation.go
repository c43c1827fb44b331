package graphconv

import (
	"strings"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Aggregation is how the messages arriving at a node are reduced to a single vector.
type Aggregation int

//go:generate go tool enumer -type Aggregation -trimprefix=Aggregation -transform=snake -text -output=gen_aggregation_enumer.go aggregation.go

const (
	AggregationMean Aggregation = iota
	AggregationSum
	AggregationMax
	AggregationMin
)

// AggregationFromName converts "mean", "sum" (or "add"), "max" or "min" to the corresponding Aggregation.
// The name is case-insensitive.
func AggregationFromName(name string) (Aggregation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "add" {
		return AggregationSum, nil
	}
	aggregation, err := AggregationString(name)
	if err != nil {
		return AggregationMean, errors.Errorf("unknown aggregation %q, valid values are %q (or \"add\")", name, AggregationStrings())
	}
	return aggregation, nil
}

// Aggregate reduces the messages, shaped `[num_edges, dim]`, into numNodes rows, according to the targets indices
// (shaped `[num_edges, 1]`). It returns a tensor shaped `[numNodes, dim]`.
//
// Nodes that don't receive any message are set to 0, for every aggregation type.
func Aggregate(aggregation Aggregation, messages, targets *Node, numNodes int) *Node {
	if messages.Rank() != 2 {
		Panicf("graphconv.Aggregate(): messages must be shaped [num_edges, dim], got messages.shape=%s", messages.Shape())
	}
	g := messages.Graph()
	dtype := messages.DType()
	numEdges, dim := messages.Shape().Dimensions[0], messages.Shape().Dimensions[1]
	if targets.Rank() != 2 || targets.Shape().Dimensions[0] != numEdges || targets.Shape().Dimensions[1] != 1 {
		Panicf("graphconv.Aggregate(): targets must be shaped [num_edges=%d, 1], got targets.shape=%s", numEdges, targets.Shape())
	}
	if numEdges == 0 {
		return Zeros(g, shapes.Make(dtype, numNodes, dim))
	}

	dtypePool := dtype
	if dtype.IsFloat16() {
		// Up-precision to 32 bits for pooling.
		dtypePool = dtypes.Float32
		messages = ConvertDType(messages, dtypePool)
	}
	var pooled *Node
	switch aggregation {
	case AggregationSum:
		pooled = Scatter(targets, messages, shapes.Make(dtypePool, numNodes, dim), false, false)
	case AggregationMean:
		pooled = Scatter(targets, messages, shapes.Make(dtypePool, numNodes, dim), false, false)
		count := incomingCount(targets, numNodes, dtypePool)
		pooled = Div(pooled, MaxScalar(count, 1)) // Avoid division by 0.
	case AggregationMax, AggregationMin:
		count := incomingCount(targets, numNodes, dtypePool)
		if aggregation == AggregationMax {
			lowest := BroadcastToDims(Infinity(g, dtypePool, -1), numNodes, dim)
			pooled = ScatterMax(lowest, targets, messages, false, false)
		} else {
			highest := BroadcastToDims(Infinity(g, dtypePool, 1), numNodes, dim)
			pooled = ScatterMin(highest, targets, messages, false, false)
		}
		// Makes it 0 where no message arrived.
		hasMessages := BroadcastToDims(GreaterThan(count, ZerosLike(count)), numNodes, dim)
		pooled = Where(hasMessages, pooled, ZerosLike(pooled))
	default:
		Panicf("graphconv.Aggregate(): unknown aggregation %s", aggregation)
	}
	if dtypePool != dtype {
		pooled = ConvertDType(pooled, dtype)
	}
	return pooled
}

// incomingCount returns the number of edges arriving at each node, shaped `[numNodes, 1]`.
func incomingCount(targets *Node, numNodes int, dtype dtypes.DType) *Node {
	g := targets.Graph()
	numEdges := targets.Shape().Dimensions[0]
	ones := Ones(g, shapes.Make(dtype, numEdges, 1))
	return Scatter(targets, ones, shapes.Make(dtype, numNodes, 1), false, false)
}
