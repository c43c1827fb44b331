package graphconv

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
)

// Linear is a dense projection `y = x·W + b` of the last axis of its input.
//
// Its variables, "weights" shaped `[inputDim, outputDim]` and "biases" shaped `[outputDim]`, are created by Init
// in the scope given to NewLinear. Biases are zero initialized.
type Linear struct {
	scope               string
	inputDim, outputDim int
	dtype               dtypes.DType
	useBias             bool
}

// NewLinear returns a Linear projection to outputDim, whose variables live in the given scope.
// The input dimension is only known when Init is called.
func NewLinear(scope string, outputDim int) *Linear {
	if outputDim <= 0 {
		Panicf("graphconv.NewLinear(%q): outputDim must be > 0, got %d", scope, outputDim)
	}
	return &Linear{scope: scope, outputDim: outputDim, useBias: true}
}

// UseBias configures whether a bias is added. Default is true.
// It must be called before Init.
func (l *Linear) UseBias(useBias bool) *Linear {
	l.useBias = useBias
	return l
}

// Scope in which the variables are created, relative to the context given to Init and Apply.
func (l *Linear) Scope() string { return l.scope }

// InputDim is the expected width of the input, 0 before Init is called.
func (l *Linear) InputDim() int { return l.inputDim }

// OutputDim is the width of the projection.
func (l *Linear) OutputDim() int { return l.outputDim }

// IsInitialized returns whether Init has already been called.
func (l *Linear) IsInitialized() bool { return l.inputDim > 0 }

// Init creates the variables of the projection in ctx.In(scope), for inputs of the given width and dtype.
func (l *Linear) Init(ctx *context.Context, dtype dtypes.DType, inputDim int) {
	if l.IsInitialized() {
		Panicf("graphconv.Linear(%q): Init called twice", l.scope)
	}
	if inputDim <= 0 {
		Panicf("graphconv.Linear(%q): inputDim must be > 0, got %d", l.scope, inputDim)
	}
	ctx = ctx.In(l.scope)
	ctx.VariableWithShape("weights", shapes.Make(dtype, inputDim, l.outputDim))
	if l.useBias {
		ctx.WithInitializer(initializers.Zero).VariableWithShape("biases", shapes.Make(dtype, l.outputDim))
	}
	l.inputDim = inputDim
	l.dtype = dtype
}

// Apply projects x, shaped `[..., inputDim]`, to `[..., outputDim]`.
func (l *Linear) Apply(ctx *context.Context, x *Node) *Node {
	if !l.IsInitialized() {
		Panicf("graphconv.Linear(%q): Apply called before Init", l.scope)
	}
	if x.Rank() < 1 || x.Shape().Dim(-1) != l.inputDim {
		Panicf("graphconv.Linear(%q): expected input shaped [..., %d], got x.shape=%s", l.scope, l.inputDim, x.Shape())
	}
	if x.DType() != l.dtype {
		Panicf("graphconv.Linear(%q): expected input dtype %s, got x.shape=%s", l.scope, l.dtype, x.Shape())
	}
	g := x.Graph()
	ctx = ctx.In(l.scope).Reuse()
	weights := ctx.VariableWithShape("weights", shapes.Make(l.dtype, l.inputDim, l.outputDim)).ValueGraph(g)
	y := DotGeneral(x, []int{-1}, nil, weights, []int{0}, nil)
	if l.useBias {
		biases := ctx.VariableWithShape("biases", shapes.Make(l.dtype, l.outputDim)).ValueGraph(g)
		y = Add(y, ExpandLeftToRank(biases, y.Rank()))
	}
	return y
}
