package gnn

import (
	. "github.com/gomlx/exceptions"
)

// TopologyKind tells apart the shapes a stack of graph layers can take.
type TopologyKind int

//go:generate go tool enumer -type TopologyKind -trimprefix=Kind -transform=snake -output=gen_topologykind_enumer.go topology.go

const (
	// KindSingleLayer is a stack with exactly one layer, projecting straight to the embedding width.
	KindSingleLayer TopologyKind = iota

	// KindMultiLayer is a stack with a first layer, zero or more middle layers and a last layer.
	KindMultiLayer
)

// Topology of a stack of layers of type L, built once at construction of a model.
//
// It is either a SingleLayer or a MultiLayer: no other implementations exist.
type Topology[L any] interface {
	// Kind of the topology.
	Kind() TopologyKind

	// NumLayers in the stack, including the first and last ones.
	NumLayers() int

	// Layers returns all layers of the stack in the order they are applied.
	Layers() []L

	sealed()
}

// SingleLayer is the topology of a stack with only one layer.
type SingleLayer[L any] struct {
	Only L
}

// Kind implements Topology.
func (SingleLayer[L]) Kind() TopologyKind { return KindSingleLayer }

// NumLayers implements Topology.
func (SingleLayer[L]) NumLayers() int { return 1 }

// Layers implements Topology.
func (t SingleLayer[L]) Layers() []L { return []L{t.Only} }

func (SingleLayer[L]) sealed() {}

// MultiLayer is the topology of a stack with 2 or more layers.
//
// Only the first and middle layers are followed by the activation and dropout; the last one is not.
type MultiLayer[L any] struct {
	First  L
	Middle []L
	Last   L
}

// Kind implements Topology.
func (MultiLayer[L]) Kind() TopologyKind { return KindMultiLayer }

// NumLayers implements Topology.
func (t MultiLayer[L]) NumLayers() int { return len(t.Middle) + 2 }

// Layers implements Topology.
func (t MultiLayer[L]) Layers() []L {
	layers := make([]L, 0, t.NumLayers())
	layers = append(layers, t.First)
	layers = append(layers, t.Middle...)
	return append(layers, t.Last)
}

func (MultiLayer[L]) sealed() {}

// NumMiddle returns the number of middle layers of the topology: 0 for a SingleLayer.
func NumMiddle[L any](t Topology[L]) int {
	if multi, ok := t.(MultiLayer[L]); ok {
		return len(multi.Middle)
	}
	return 0
}

// buildTopology creates the topology for numLayers layers, calling newLayer for each position.
// The position index goes from 0 to numLayers-1, and numLayers must be >= 1.
func buildTopology[L any](numLayers int, newLayer func(position int) L) Topology[L] {
	if numLayers < 1 {
		Panicf("gnn: number of layers must be >= 1, got %d", numLayers)
	}
	if numLayers == 1 {
		return SingleLayer[L]{Only: newLayer(0)}
	}
	multi := MultiLayer[L]{First: newLayer(0)}
	if numLayers > 2 {
		multi.Middle = make([]L, 0, numLayers-2)
		for position := 1; position < numLayers-1; position++ {
			multi.Middle = append(multi.Middle, newLayer(position))
		}
	}
	multi.Last = newLayer(numLayers - 1)
	return multi
}
