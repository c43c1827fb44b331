package graphdata

import (
	"github.com/katalvlaran/lvlath/core"
	"github.com/pkg/errors"
)

// FeatureFn returns the features of the vertex with the given id.
type FeatureFn func(id string) []float32

// FromLvlath converts an lvlath graph: vertices become nodes, numbered in the order of lg.Vertices()
// (sorted by id), and returned in nodeIDs.
//
// Directed edges become one edge, undirected edges become two, one per direction, and self-loops are
// kept once. If lg is weighted, the edge weights become edge attributes of width 1.
func FromLvlath(lg *core.Graph, featureFn FeatureFn) (g *Graph, nodeIDs []string, err error) {
	if lg == nil || featureFn == nil {
		return nil, nil, errors.New("graphdata.FromLvlath: graph and feature function are required")
	}
	nodeIDs = lg.Vertices()
	indices := make(map[string]int, len(nodeIDs))
	g = &Graph{NumNodes: len(nodeIDs), Features: make([][]float32, len(nodeIDs))}
	for ii, id := range nodeIDs {
		indices[id] = ii
		g.Features[ii] = featureFn(id)
	}

	weighted := lg.Weighted()
	addEdge := func(from, to int, weight int64) {
		g.AddEdge(from, to)
		if weighted {
			g.EdgeAttributes = append(g.EdgeAttributes, []float32{float32(weight)})
		}
	}
	for _, edge := range lg.Edges() {
		from, foundFrom := indices[edge.From]
		to, foundTo := indices[edge.To]
		if !foundFrom || !foundTo {
			return nil, nil, errors.Errorf("graphdata.FromLvlath: edge %q (%s->%s) has an unknown vertex", edge.ID, edge.From, edge.To)
		}
		addEdge(from, to, edge.Weight)
		if !edge.Directed && from != to {
			addEdge(to, from, edge.Weight)
		}
	}
	if err = g.Validate(); err != nil {
		return nil, nil, errors.WithMessage(err, "graphdata.FromLvlath")
	}
	return g, nodeIDs, nil
}
