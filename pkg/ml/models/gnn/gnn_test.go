package gnn

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/graphnets/gnn/pkg/graphdata"
	"github.com/graphnets/gnn/pkg/ml/layers/graphconv"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func setVariable(t *testing.T, ctx *context.Context, scope, name string, value any) {
	v := ctx.GetVariableByScopeAndName(scope, name)
	require.NotNilf(t, v, "variable %q in scope %q not found", name, scope)
	v.MustSetValue(tensors.FromAnyValue(value))
}

// predict initializes the model for the graph features, and runs the forward pass in inference mode.
func predict(t *testing.T, ctx *context.Context, model Model, g *graphdata.Graph) [][]float32 {
	backend := graphtest.BuildTestBackend()
	if !model.IsInitialized() {
		require.NoError(t, model.Init(ctx, g.FeatureDim()))
	}
	predictor := must.M1(NewPredictor(backend, ctx, model))
	defer predictor.Finalize()
	x, edgeIndex, edgeAttr := must.M3(g.Tensors())
	output, err := predictor.Predict(x, edgeIndex, edgeAttr)
	require.NoError(t, err)
	return output.Value().([][]float32)
}

func requireFiniteShape(t *testing.T, output [][]float32, numNodes, outputDim int) {
	require.Len(t, output, numNodes)
	for _, row := range output {
		require.Len(t, row, outputDim)
		for _, v := range row {
			require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "output has non-finite values: %v", output)
		}
	}
}

func TestSAGEConfig(t *testing.T) {
	valid := SAGEConfig{HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: 2}
	require.NoError(t, valid.Validate())

	for name, cfg := range map[string]SAGEConfig{
		"no layers":        {HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: 0},
		"no hidden width":  {HiddenDim: 0, EmbeddingDim: 8, OutputDim: 3, NumLayers: 2},
		"no output width":  {HiddenDim: 16, EmbeddingDim: 8, OutputDim: 0, NumLayers: 2},
		"dropout too high": {HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: 2, DropoutRate: 1.5},
		"bad aggregation":  {HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: 2, Aggregation: graphconv.Aggregation(17)},
		"integer dtype":    {HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: 2, DType: dtypes.Int32},
	} {
		_, err := NewSAGE(cfg)
		require.Errorf(t, err, "NewSAGE should fail for %q", name)
	}

	// Hidden width is not used by a single layer model.
	_, err := NewSAGE(SAGEConfig{EmbeddingDim: 8, OutputDim: 3, NumLayers: 1})
	require.NoError(t, err)
}

func TestSAGEConfigFromContext(t *testing.T) {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamHiddenDim:          32,
		ParamEmbeddingDim:       16,
		ParamOutputDim:          4,
		ParamNumLayers:          3,
		ParamSAGEAggregation:    "max",
		layers.ParamDropoutRate: 0.25,
	})
	cfg, err := SAGEConfigFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, SAGEConfig{
		HiddenDim: 32, EmbeddingDim: 16, OutputDim: 4, NumLayers: 3, DropoutRate: 0.25,
		Aggregation: graphconv.AggregationMax, DType: dtypes.Float32,
	}, cfg)

	ctx.SetParam(ParamSAGEAggregation, "median")
	_, err = SAGEConfigFromContext(ctx)
	require.Error(t, err)

	ctx.SetParam(ParamSAGEAggregation, "add")
	ctx.SetParam(ParamDType, "float64")
	model, err := NewSAGEFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, graphconv.AggregationSum, model.Config().Aggregation)
	assert.Equal(t, dtypes.Float64, model.Config().DType)
}

func TestSAGETopology(t *testing.T) {
	for _, numLayers := range []int{1, 2, 3, 6} {
		model, err := NewSAGE(SAGEConfig{HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: numLayers})
		require.NoError(t, err)
		require.Equal(t, numLayers, model.Topology().NumLayers())
		require.Equal(t, max(numLayers-2, 0), NumMiddle(model.Topology()))

		ctx := context.New()
		require.NoError(t, model.Init(ctx, 4))
		convs := model.Topology().Layers()
		for ii, conv := range convs {
			if ii == len(convs)-1 {
				assert.Equal(t, 8, conv.OutputDim(), "last convolution projects to the embedding width")
			} else {
				assert.Equal(t, 16, conv.OutputDim(), "convolution #%d projects to the hidden width", ii)
			}
		}
		assert.Equal(t, 4, convs[0].InputDim())
		assert.Equal(t, 8, model.Output().InputDim())
		assert.Equal(t, 3, model.Output().OutputDim())

		// Weights of the first layer, projecting the 4 input features.
		v := ctx.GetVariableByScopeAndName("/graphsage/conv_0/neighbors", "weights")
		require.NotNil(t, v)
		assert.Equal(t, []int{4, convs[0].OutputDim()}, v.Shape().Dimensions)
	}
}

func TestSAGE(t *testing.T) {
	t.Run("ChainEndToEnd", func(t *testing.T) {
		model, err := NewSAGE(SAGEConfig{
			HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: 2,
			DropoutRate: 0.5, Aggregation: graphconv.AggregationMean,
		})
		require.NoError(t, err)
		ctx := context.New()
		chain := graphdata.Chain(5, 4)
		output := predict(t, ctx, model, chain)
		requireFiniteShape(t, output, 5, 3)

		// Inference is deterministic: dropout is disabled.
		assert.Equal(t, output, predict(t, ctx, model, chain))
	})

	t.Run("NoEdges", func(t *testing.T) {
		for _, aggregation := range []graphconv.Aggregation{
			graphconv.AggregationMean, graphconv.AggregationSum, graphconv.AggregationMax, graphconv.AggregationMin} {
			model, err := NewSAGE(SAGEConfig{HiddenDim: 16, EmbeddingDim: 8, OutputDim: 3, NumLayers: 3, Aggregation: aggregation})
			require.NoError(t, err)
			output := predict(t, context.New(), model, &graphdata.Graph{NumNodes: 4, Features: graphdata.Ones(4, 5)})
			requireFiniteShape(t, output, 4, 3)
		}
	})

	t.Run("SingleLayer", func(t *testing.T) {
		model, err := NewSAGE(SAGEConfig{EmbeddingDim: 1, OutputDim: 1, NumLayers: 1})
		require.NoError(t, err)
		ctx := context.New()
		require.NoError(t, model.Init(ctx, 1))
		setVariable(t, ctx, "/graphsage/conv_0/neighbors", "weights", [][]float32{{3}})
		setVariable(t, ctx, "/graphsage/conv_0/neighbors", "biases", []float32{0})
		setVariable(t, ctx, "/graphsage/conv_0/root", "weights", [][]float32{{-1}})
		setVariable(t, ctx, "/graphsage/output", "weights", [][]float32{{2}})
		setVariable(t, ctx, "/graphsage/output", "biases", []float32{0.5})

		// Chain 0->1->2: the only convolution is followed by a ReLU.
		g := &graphdata.Graph{NumNodes: 3, Features: [][]float32{{1}, {2}, {3}}, Sources: []int32{0, 1}, Targets: []int32{1, 2}}
		assert.Equal(t, [][]float32{{0.5}, {2.5}, {6.5}}, predict(t, ctx, model, g))
	})

	t.Run("LastLayerHasNoActivation", func(t *testing.T) {
		model, err := NewSAGE(SAGEConfig{HiddenDim: 1, EmbeddingDim: 1, OutputDim: 1, NumLayers: 2})
		require.NoError(t, err)
		ctx := context.New()
		require.NoError(t, model.Init(ctx, 1))
		for _, scope := range []string{"/graphsage/conv_0", "/graphsage/conv_1"} {
			setVariable(t, ctx, scope+"/neighbors", "weights", [][]float32{{0}})
			setVariable(t, ctx, scope+"/neighbors", "biases", []float32{0})
		}
		setVariable(t, ctx, "/graphsage/conv_0/root", "weights", [][]float32{{1}})
		setVariable(t, ctx, "/graphsage/conv_1/root", "weights", [][]float32{{-1}})
		setVariable(t, ctx, "/graphsage/output", "weights", [][]float32{{1}})
		setVariable(t, ctx, "/graphsage/output", "biases", []float32{0})
		g := &graphdata.Graph{NumNodes: 3, Features: [][]float32{{1}, {2}, {3}}, Sources: []int32{0, 1}, Targets: []int32{1, 2}}
		assert.Equal(t, [][]float32{{-1}, {-2}, {-3}}, predict(t, ctx, model, g))
	})

	t.Run("Lifecycle", func(t *testing.T) {
		model, err := NewSAGE(SAGEConfig{HiddenDim: 4, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2})
		require.NoError(t, err)
		ctx := context.New()
		_, err = NewPredictor(graphtest.BuildTestBackend(), ctx, model)
		require.Error(t, err, "Predictor requires an initialized model")
		require.Error(t, model.Init(ctx, 0))
		require.NoError(t, model.Init(ctx, 3))
		require.Error(t, model.Init(ctx, 3), "Init can only be called once")

		// Features with the wrong width.
		predictor := must.M1(NewPredictor(graphtest.BuildTestBackend(), ctx, model))
		x, edgeIndex, _ := must.M3(graphdata.Chain(3, 5).Tensors())
		_, err = predictor.Predict(x, edgeIndex, nil)
		require.Error(t, err)
	})
}

func TestSAGETraining(t *testing.T) {
	model, err := NewSAGE(SAGEConfig{HiddenDim: 64, EmbeddingDim: 64, OutputDim: 8, NumLayers: 3, DropoutRate: 0.5})
	require.NoError(t, err)
	ctx := context.New()
	chain := graphdata.Chain(16, 4)
	inference := predict(t, ctx, model, chain)

	predictor := must.M1(NewPredictor(graphtest.BuildTestBackend(), ctx, model))
	defer predictor.Finalize()
	require.NoError(t, predictor.SetTraining(true))
	require.True(t, predictor.IsTraining())
	x, edgeIndex, _ := must.M3(chain.Tensors())
	training := must.M1(predictor.Predict(x, edgeIndex, nil)).Value().([][]float32)
	requireFiniteShape(t, training, 16, 8)
	assert.NotEqual(t, inference, training, "dropout should change the outputs in training mode")
}

func TestSAGEDropoutAll(t *testing.T) {
	model, err := NewSAGE(SAGEConfig{HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2, DropoutRate: 1})
	require.NoError(t, err)
	ctx := context.New()
	chain := graphdata.Chain(4, 3)
	require.NoError(t, model.Init(ctx, chain.FeatureDim()))

	predictor := must.M1(NewPredictor(graphtest.BuildTestBackend(), ctx, model))
	defer predictor.Finalize()
	require.NoError(t, predictor.SetTraining(true))
	x, edgeIndex, _ := must.M3(chain.Tensors())
	// Hidden features are all dropped, and every bias is zero initialized.
	training := must.M1(predictor.Predict(x, edgeIndex, nil)).Value().([][]float32)
	assert.Equal(t, [][]float32{{0, 0}, {0, 0}, {0, 0}, {0, 0}}, training)

	require.NoError(t, predictor.SetTraining(false))
	requireFiniteShape(t, must.M1(predictor.Predict(x, edgeIndex, nil)).Value().([][]float32), 4, 2)
}

func TestPredictorEdgeIndex(t *testing.T) {
	model := must.M1(NewSAGE(SAGEConfig{EmbeddingDim: 2, OutputDim: 2, NumLayers: 1}))
	ctx := context.New()
	require.NoError(t, model.Init(ctx, 1))
	predictor := must.M1(NewPredictor(graphtest.BuildTestBackend(), ctx, model))
	defer predictor.Finalize()
	x := tensors.FromValue([][]float32{{1}, {2}, {3}})

	for name, edges := range map[string]any{
		"source too large":  [][]int32{{0, 7}, {1, 2}},
		"negative target":   [][]int32{{0, 1}, {1, -1}},
		"target == nodes":   [][]int64{{0}, {3}},
		"float edges":       [][]float32{{0}, {1}},
		"wrong number rows": [][]int32{{0, 1}, {1, 2}, {2, 0}},
	} {
		_, err := predictor.Predict(x, tensors.FromAnyValue(edges), nil)
		require.Errorf(t, err, "Predict should fail for %q", name)
	}
	_, err := predictor.Predict(x, tensors.FromAnyValue([][]int32{{0, 7}, {1, 2}}), nil)
	require.ErrorContains(t, err, "edge #1 (7->2)")

	output, err := predictor.Predict(x, tensors.FromValue([][]int64{{0, 1}, {1, 2}}), nil)
	require.NoError(t, err)
	requireFiniteShape(t, output.Value().([][]float32), 3, 2)
}

func TestGATConfig(t *testing.T) {
	model, err := NewGAT(GATConfig{HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, model.Config().Heads, "heads defaults to 1")
	assert.Equal(t, graphconv.DefaultNegativeSlope, model.Config().NegativeSlope)

	for name, cfg := range map[string]GATConfig{
		"no layers":                 {HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 0},
		"negative heads":            {HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2, Heads: -1},
		"negative dropout":          {HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2, DropoutRate: -0.1},
		"attention dropout is 1":    {HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2, AttentionDropoutRate: 1},
		"negative edge attrs width": {HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2, EdgeDim: -2},
	} {
		_, err := NewGAT(cfg)
		require.Errorf(t, err, "NewGAT should fail for %q", name)
	}

	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamHiddenDim:            8,
		ParamEmbeddingDim:         4,
		ParamOutputDim:            2,
		ParamNumLayers:            1,
		ParamHeads:                3,
		ParamEdgeDim:              2,
		ParamAttentionDropoutRate: 0.1,
	})
	cfg, err := GATConfigFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, GATConfig{
		HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 1, Heads: 3, EdgeDim: 2,
		NegativeSlope: graphconv.DefaultNegativeSlope, AttentionDropoutRate: 0.1, DType: dtypes.Float32,
	}, cfg)
}

func TestGATTopology(t *testing.T) {
	const heads = 3
	for _, numLayers := range []int{1, 2, 3, 5} {
		model, err := NewGAT(GATConfig{HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: numLayers, Heads: heads})
		require.NoError(t, err)
		require.Equal(t, numLayers, model.Attention().NumLayers())
		require.Equal(t, max(numLayers-2, 0), NumMiddle(model.Attention()))
		require.Equal(t, NumMiddle(model.Attention()), NumMiddle(model.Skip()))

		ctx := context.New()
		require.NoError(t, model.Init(ctx, 5))
		attention, skips := model.Attention().Layers(), model.Skip().Layers()
		for ii, conv := range attention {
			assert.False(t, conv.HasSelfLoops())
			assert.Equal(t, heads, conv.Heads())
			assert.Equal(t, conv.DeclaredOutputDim(), skips[ii].OutputDim())
			assert.Equal(t, conv.InputDim(), skips[ii].InputDim())
			if ii == len(attention)-1 {
				assert.False(t, conv.IsConcat(), "last attention layer averages its heads")
				assert.Equal(t, 4, conv.DeclaredOutputDim())
			} else {
				assert.True(t, conv.IsConcat())
				assert.Equal(t, heads*8, conv.DeclaredOutputDim())
			}
		}

		// Only the first attention layer has separate source and target projections.
		assert.NotNil(t, ctx.GetVariableByScopeAndName("/gat/conv_0/target", "weights"))
		if numLayers > 1 {
			assert.Nil(t, ctx.GetVariableByScopeAndName("/gat/conv_1/target", "weights"))
			assert.NotNil(t, ctx.GetVariableByScopeAndName("/gat/conv_1/projection", "weights"))
		}
	}
}

func TestGAT(t *testing.T) {
	t.Run("SingleLayerEndToEnd", func(t *testing.T) {
		model, err := NewGAT(GATConfig{HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 1, Heads: 2})
		require.NoError(t, err)
		only := model.Attention().(SingleLayer[*graphconv.GAT]).Only
		assert.Equal(t, 4, only.DeclaredOutputDim())
		ctx := context.New()
		chain := graphdata.Chain(5, 4)
		output := predict(t, ctx, model, chain)
		requireFiniteShape(t, output, 5, 2)
		assert.Equal(t, output, predict(t, ctx, model, chain))
	})

	t.Run("MultiLayer", func(t *testing.T) {
		model, err := NewGAT(GATConfig{HiddenDim: 8, EmbeddingDim: 4, OutputDim: 3, NumLayers: 4, Heads: 2, DropoutRate: 0.3})
		require.NoError(t, err)
		output := predict(t, context.New(), model, graphdata.Ring(6, 3))
		requireFiniteShape(t, output, 6, 3)
	})

	t.Run("NoEdges", func(t *testing.T) {
		for _, numLayers := range []int{1, 3} {
			model, err := NewGAT(GATConfig{HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: numLayers, Heads: 2})
			require.NoError(t, err)
			output := predict(t, context.New(), model, &graphdata.Graph{NumNodes: 3, Features: graphdata.Ones(3, 4)})
			requireFiniteShape(t, output, 3, 2)
		}
	})

	t.Run("SkipAndActivation", func(t *testing.T) {
		model, err := NewGAT(GATConfig{EmbeddingDim: 1, OutputDim: 1, NumLayers: 1})
		require.NoError(t, err)
		ctx := context.New()
		require.NoError(t, model.Init(ctx, 1))
		// Uniform attention over the in-neighbors.
		setVariable(t, ctx, "/gat/conv_0/source", "weights", [][]float32{{1}})
		setVariable(t, ctx, "/gat/conv_0/target", "weights", [][]float32{{1}})
		setVariable(t, ctx, "/gat/conv_0", "attention_source", [][]float32{{0}})
		setVariable(t, ctx, "/gat/conv_0", "attention_target", [][]float32{{0}})
		setVariable(t, ctx, "/gat/conv_0_skip", "weights", [][]float32{{1}})
		setVariable(t, ctx, "/gat/conv_0_skip", "biases", []float32{-1.5})
		setVariable(t, ctx, "/gat/output", "weights", [][]float32{{1}})
		setVariable(t, ctx, "/gat/output", "biases", []float32{0})

		// Chain 0->1->2: node 0 has no incoming edges, so it only gets the skip projection ReLU(1-1.5)=0.
		g := &graphdata.Graph{NumNodes: 3, Features: [][]float32{{1}, {2}, {3}}, Sources: []int32{0, 1}, Targets: []int32{1, 2}}
		assert.Equal(t, [][]float32{{0}, {1.5}, {3.5}}, predict(t, ctx, model, g))
	})

	t.Run("MultiLayerLastHasNoActivation", func(t *testing.T) {
		model, err := NewGAT(GATConfig{HiddenDim: 1, EmbeddingDim: 1, OutputDim: 1, NumLayers: 2})
		require.NoError(t, err)
		ctx := context.New()
		require.NoError(t, model.Init(ctx, 1))
		// Attention contributes nothing: only the skip projections (and zero biases) are left.
		setVariable(t, ctx, "/gat/conv_0/source", "weights", [][]float32{{0}})
		setVariable(t, ctx, "/gat/conv_0/target", "weights", [][]float32{{0}})
		setVariable(t, ctx, "/gat/conv_1/projection", "weights", [][]float32{{0}})
		setVariable(t, ctx, "/gat/conv_0_skip", "weights", [][]float32{{2}})
		setVariable(t, ctx, "/gat/conv_1_skip", "weights", [][]float32{{-1}})
		setVariable(t, ctx, "/gat/output", "weights", [][]float32{{1}})

		// h = ReLU(2x), then -h with no ReLU: the last skip reads h, not x.
		g := &graphdata.Graph{NumNodes: 3, Features: [][]float32{{1}, {2}, {3}}, Sources: []int32{0, 1}, Targets: []int32{1, 2}}
		assert.Equal(t, [][]float32{{-2}, {-4}, {-6}}, predict(t, ctx, model, g))
	})

	t.Run("EdgeAttributes", func(t *testing.T) {
		ring := graphdata.Ring(5, 4)
		ring.EdgeAttributes = make([][]float32, ring.NumEdges())
		for ii := range ring.EdgeAttributes {
			ring.EdgeAttributes[ii] = []float32{float32(ii), 1}
		}

		// Without EdgeDim, the attributes are ignored.
		cfg := GATConfig{HiddenDim: 8, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2, Heads: 2}
		model := must.M1(NewGAT(cfg))
		ctx := context.New()
		withAttributes := predict(t, ctx, model, ring)
		withoutAttributes := *ring
		withoutAttributes.EdgeAttributes = nil
		assert.Equal(t, withAttributes, predict(t, ctx, model, &withoutAttributes))

		// With EdgeDim, every attention layer uses them.
		cfg.EdgeDim = 2
		model = must.M1(NewGAT(cfg))
		ctx = context.New()
		output := predict(t, ctx, model, ring)
		requireFiniteShape(t, output, 5, 2)
		for _, scope := range []string{"/gat/conv_0", "/gat/conv_1"} {
			assert.NotNil(t, ctx.GetVariableByScopeAndName(scope, "attention_edge"))
			assert.Nil(t, ctx.GetVariableByScopeAndName(scope+"_skip/edge", "weights"))
		}
	})

	t.Run("Lifecycle", func(t *testing.T) {
		model := must.M1(NewGAT(GATConfig{HiddenDim: 4, EmbeddingDim: 4, OutputDim: 2, NumLayers: 2}))
		ctx := context.New()
		require.NoError(t, model.Init(ctx, 3))
		require.Error(t, model.Init(ctx, 3))
	})
}
