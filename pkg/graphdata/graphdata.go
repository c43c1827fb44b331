// Package graphdata holds graphs on the host side, to be fed to the GNN models.
//
// A Graph has a feature vector per node and a list of directed edges, messages flowing from source to
// target. It can be validated and converted to the tensors the models take: node features shaped
// `[num_nodes, feature_dim]`, edge index shaped `[2, num_edges]` (int32) and optional edge attributes
// shaped `[num_edges, edge_dim]`.
package graphdata

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Graph is a directed graph with node features and optional edge attributes.
type Graph struct {
	NumNodes int

	// Features of each node: NumNodes rows of the same width.
	Features [][]float32

	// Sources and Targets of each edge, with the same length.
	Sources, Targets []int32

	// EdgeAttributes is optional. If set, it must have one row per edge, all of the same width.
	EdgeAttributes [][]float32
}

// NumEdges in the graph.
func (g *Graph) NumEdges() int { return len(g.Sources) }

// FeatureDim is the width of the node features, 0 if there are no nodes.
func (g *Graph) FeatureDim() int {
	if len(g.Features) == 0 {
		return 0
	}
	return len(g.Features[0])
}

// EdgeDim is the width of the edge attributes, 0 if there are none.
func (g *Graph) EdgeDim() int {
	if len(g.EdgeAttributes) == 0 {
		return 0
	}
	return len(g.EdgeAttributes[0])
}

// Validate checks that the features, edges and attributes are consistent, and that every edge points to
// an existing node.
func (g *Graph) Validate() error {
	if g.NumNodes <= 0 {
		return errors.Errorf("graph must have at least one node, got NumNodes=%d", g.NumNodes)
	}
	if len(g.Features) != g.NumNodes {
		return errors.Errorf("graph has %d nodes but features for %d", g.NumNodes, len(g.Features))
	}
	featureDim := g.FeatureDim()
	if featureDim == 0 {
		return errors.New("node features must have at least one value")
	}
	for ii, row := range g.Features {
		if len(row) != featureDim {
			return errors.Errorf("features of node #%d have width %d, but node #0 has width %d", ii, len(row), featureDim)
		}
	}
	if len(g.Sources) != len(g.Targets) {
		return errors.Errorf("graph has %d edge sources but %d edge targets", len(g.Sources), len(g.Targets))
	}
	for ii := range g.Sources {
		source, target := g.Sources[ii], g.Targets[ii]
		if source < 0 || int(source) >= g.NumNodes || target < 0 || int(target) >= g.NumNodes {
			return errors.Errorf("edge #%d (%d->%d) points to a node out of range [0, %d)", ii, source, target, g.NumNodes)
		}
	}
	if g.EdgeAttributes != nil {
		if len(g.EdgeAttributes) != g.NumEdges() {
			return errors.Errorf("graph has %d edges but attributes for %d", g.NumEdges(), len(g.EdgeAttributes))
		}
		edgeDim := g.EdgeDim()
		for ii, row := range g.EdgeAttributes {
			if len(row) != edgeDim || edgeDim == 0 {
				return errors.Errorf("attributes of edge #%d have width %d, expected %d > 0", ii, len(row), edgeDim)
			}
		}
	}
	return nil
}

// Tensors validates the graph and converts it to tensors: the node features shaped `[num_nodes, feature_dim]`,
// the edge index shaped `[2, num_edges]` and the edge attributes shaped `[num_edges, edge_dim]`, or nil if the graph
// has no edge attributes.
func (g *Graph) Tensors() (features, edgeIndex, edgeAttributes *tensors.Tensor, err error) {
	if err = g.Validate(); err != nil {
		err = errors.WithMessage(err, "invalid graph")
		return
	}
	features = tensors.FromValue(g.Features)
	if g.NumEdges() == 0 {
		edgeIndex = tensors.FromShape(shapes.Make(dtypes.Int32, 2, 0))
	} else {
		edgeIndex = tensors.FromValue([][]int32{g.Sources, g.Targets})
	}
	if g.EdgeAttributes != nil && g.NumEdges() > 0 {
		edgeAttributes = tensors.FromValue(g.EdgeAttributes)
	}
	return
}

// AddEdge from source to target.
func (g *Graph) AddEdge(source, target int) {
	g.Sources = append(g.Sources, int32(source))
	g.Targets = append(g.Targets, int32(target))
}

// Ones returns numNodes feature vectors of width featureDim, all set to 1.
func Ones(numNodes, featureDim int) [][]float32 {
	features := make([][]float32, numNodes)
	for ii := range features {
		features[ii] = make([]float32, featureDim)
		for jj := range features[ii] {
			features[ii][jj] = 1
		}
	}
	return features
}

// Chain returns a graph with numNodes nodes and edges i->i+1, with all features set to 1.
func Chain(numNodes, featureDim int) *Graph {
	g := &Graph{NumNodes: numNodes, Features: Ones(numNodes, featureDim)}
	for ii := range numNodes - 1 {
		g.AddEdge(ii, ii+1)
	}
	return g
}

// Ring is a Chain closed with an edge from the last node to the first one.
func Ring(numNodes, featureDim int) *Graph {
	g := Chain(numNodes, featureDim)
	if numNodes > 1 {
		g.AddEdge(numNodes-1, 0)
	}
	return g
}
