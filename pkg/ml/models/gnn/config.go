package gnn

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/graphnets/gnn/pkg/ml/layers/graphconv"
	"github.com/pkg/errors"
)

var (
	// ParamHiddenDim context hyperparameter defines the width of the hidden layers. For GAT models it is the
	// width of each head, so hidden states are `heads*hidden_dim` wide.
	// The default is 64.
	ParamHiddenDim = "gnn_hidden_dim"

	// ParamEmbeddingDim context hyperparameter defines the width of the node embeddings produced by the last
	// graph layer, before the output projection.
	// The default is 64.
	ParamEmbeddingDim = "gnn_embedding_dim"

	// ParamOutputDim context hyperparameter defines the width of the model output (number of logits or
	// regression values per node).
	// The default is 1.
	ParamOutputDim = "gnn_output_dim"

	// ParamNumLayers context hyperparameter defines the number of graph layers. It must be >= 1.
	// The default is 2.
	ParamNumLayers = "gnn_num_layers"

	// ParamSAGEAggregation context hyperparameter defines how GraphSAGE pools incoming messages:
	// one of `mean`, `sum` (or `add`), `max` or `min`.
	// The default is `mean`.
	ParamSAGEAggregation = "gnn_sage_aggregation"

	// ParamHeads context hyperparameter defines the number of attention heads of GAT models.
	// The default is 1.
	ParamHeads = "gnn_heads"

	// ParamEdgeDim context hyperparameter defines the width of the edge attributes used by the GAT attention.
	// The default is 0, meaning edge attributes are ignored.
	ParamEdgeDim = "gnn_edge_dim"

	// ParamAttentionDropoutRate context hyperparameter defines the dropout rate of the GAT attention coefficients.
	// The default is 0.0, meaning no attention dropout.
	ParamAttentionDropoutRate = "gnn_attention_dropout_rate"

	// ParamNegativeSlope context hyperparameter defines the slope of the LeakyReLU applied to the GAT attention logits.
	// The default is 0.2.
	ParamNegativeSlope = "gnn_negative_slope"

	// ParamDType context hyperparameter defines the dtype of the model variables.
	// The default is `float32`.
	ParamDType = "gnn_dtype"
)

// SAGEConfig holds the configuration of a GraphSAGE model.
type SAGEConfig struct {
	HiddenDim, EmbeddingDim, OutputDim int

	// NumLayers of graph convolutions. With 1 layer the convolution projects straight to EmbeddingDim.
	NumLayers int

	// DropoutRate applied after every convolution but the last one, only during training.
	// It must be in [0, 1]: 1 zeroes the hidden features.
	DropoutRate float64

	Aggregation graphconv.Aggregation

	// DType of the variables. If left as InvalidDType it defaults to Float32.
	DType dtypes.DType
}

// GATConfig holds the configuration of a GAT model.
type GATConfig struct {
	// HiddenDim is the width of each head in the hidden layers.
	HiddenDim, EmbeddingDim, OutputDim int

	// NumLayers of attention layers, each one paired with a linear skip projection.
	NumLayers int

	// DropoutRate applied after every layer but the last one, only during training.
	// It must be in [0, 1]: 1 zeroes the hidden features.
	DropoutRate float64

	// Heads of attention. If 0 it defaults to 1.
	Heads int

	// EdgeDim is the width of the edge attributes. If 0, edge attributes are ignored.
	EdgeDim int

	// NegativeSlope of the LeakyReLU of the attention logits. If 0 it defaults to graphconv.DefaultNegativeSlope,
	// so a plain ReLU (slope 0) can't be configured: use a tiny positive slope instead.
	NegativeSlope float64

	AttentionDropoutRate float64

	// DType of the variables. If left as InvalidDType it defaults to Float32.
	DType dtypes.DType
}

// validateStack checks the parameters shared by both models.
func validateStack(model string, hiddenDim, embeddingDim, outputDim, numLayers int, dropoutRate float64, dtype dtypes.DType) error {
	if numLayers < 1 {
		return errors.Errorf("%s: NumLayers must be >= 1, got %d", model, numLayers)
	}
	if numLayers > 1 && hiddenDim <= 0 {
		return errors.Errorf("%s: HiddenDim must be > 0, got %d", model, hiddenDim)
	}
	if embeddingDim <= 0 || outputDim <= 0 {
		return errors.Errorf("%s: EmbeddingDim (%d) and OutputDim (%d) must be > 0", model, embeddingDim, outputDim)
	}
	if dropoutRate < 0 || dropoutRate > 1 {
		return errors.Errorf("%s: DropoutRate must be in [0, 1], got %g", model, dropoutRate)
	}
	if !dtype.IsFloat() {
		return errors.Errorf("%s: DType must be a float, got %s", model, dtype)
	}
	return nil
}

func (cfg *SAGEConfig) setDefaults() {
	if cfg.DType == dtypes.InvalidDType {
		cfg.DType = dtypes.Float32
	}
}

// Validate returns an error if the configuration can't be used to build a model.
// Zero values that have a default are accepted.
func (cfg SAGEConfig) Validate() error {
	cfg.setDefaults()
	if err := validateStack("gnn.SAGE", cfg.HiddenDim, cfg.EmbeddingDim, cfg.OutputDim, cfg.NumLayers,
		cfg.DropoutRate, cfg.DType); err != nil {
		return err
	}
	if !cfg.Aggregation.IsAAggregation() {
		return errors.Errorf("gnn.SAGE: invalid aggregation %s", cfg.Aggregation)
	}
	return nil
}

func (cfg *GATConfig) setDefaults() {
	if cfg.DType == dtypes.InvalidDType {
		cfg.DType = dtypes.Float32
	}
	if cfg.Heads == 0 {
		cfg.Heads = 1
	}
	if cfg.NegativeSlope == 0 {
		cfg.NegativeSlope = graphconv.DefaultNegativeSlope
	}
}

// Validate returns an error if the configuration can't be used to build a model.
// Zero values that have a default are accepted.
func (cfg GATConfig) Validate() error {
	cfg.setDefaults()
	if err := validateStack("gnn.GAT", cfg.HiddenDim, cfg.EmbeddingDim, cfg.OutputDim, cfg.NumLayers,
		cfg.DropoutRate, cfg.DType); err != nil {
		return err
	}
	if cfg.Heads < 0 {
		return errors.Errorf("gnn.GAT: Heads must be > 0, got %d", cfg.Heads)
	}
	if cfg.EdgeDim < 0 {
		return errors.Errorf("gnn.GAT: EdgeDim must be >= 0, got %d", cfg.EdgeDim)
	}
	if cfg.AttentionDropoutRate < 0 || cfg.AttentionDropoutRate >= 1 {
		return errors.Errorf("gnn.GAT: AttentionDropoutRate must be in [0, 1), got %g", cfg.AttentionDropoutRate)
	}
	return nil
}

// dtypeFromContext reads ParamDType.
func dtypeFromContext(ctx *context.Context) (dtypes.DType, error) {
	name := context.GetParamOr(ctx, ParamDType, "float32")
	dtype, found := dtypes.MapOfNames[name]
	if !found || dtype == dtypes.InvalidDType {
		return dtypes.InvalidDType, errors.Errorf("invalid value %q for hyperparameter %q", name, ParamDType)
	}
	return dtype, nil
}

// SAGEConfigFromContext builds a SAGEConfig from the context hyperparameters (see Param... variables)
// and layers.ParamDropoutRate.
func SAGEConfigFromContext(ctx *context.Context) (SAGEConfig, error) {
	aggregation, err := graphconv.AggregationFromName(context.GetParamOr(ctx, ParamSAGEAggregation, "mean"))
	if err != nil {
		return SAGEConfig{}, errors.WithMessagef(err, "hyperparameter %q", ParamSAGEAggregation)
	}
	dtype, err := dtypeFromContext(ctx)
	if err != nil {
		return SAGEConfig{}, err
	}
	return SAGEConfig{
		HiddenDim:    context.GetParamOr(ctx, ParamHiddenDim, 64),
		EmbeddingDim: context.GetParamOr(ctx, ParamEmbeddingDim, 64),
		OutputDim:    context.GetParamOr(ctx, ParamOutputDim, 1),
		NumLayers:    context.GetParamOr(ctx, ParamNumLayers, 2),
		DropoutRate:  context.GetParamOr(ctx, layers.ParamDropoutRate, 0.0),
		Aggregation:  aggregation,
		DType:        dtype,
	}, nil
}

// GATConfigFromContext builds a GATConfig from the context hyperparameters (see Param... variables)
// and layers.ParamDropoutRate.
func GATConfigFromContext(ctx *context.Context) (GATConfig, error) {
	dtype, err := dtypeFromContext(ctx)
	if err != nil {
		return GATConfig{}, err
	}
	return GATConfig{
		HiddenDim:            context.GetParamOr(ctx, ParamHiddenDim, 64),
		EmbeddingDim:         context.GetParamOr(ctx, ParamEmbeddingDim, 64),
		OutputDim:            context.GetParamOr(ctx, ParamOutputDim, 1),
		NumLayers:            context.GetParamOr(ctx, ParamNumLayers, 2),
		DropoutRate:          context.GetParamOr(ctx, layers.ParamDropoutRate, 0.0),
		Heads:                context.GetParamOr(ctx, ParamHeads, 1),
		EdgeDim:              context.GetParamOr(ctx, ParamEdgeDim, 0),
		NegativeSlope:        context.GetParamOr(ctx, ParamNegativeSlope, graphconv.DefaultNegativeSlope),
		AttentionDropoutRate: context.GetParamOr(ctx, ParamAttentionDropoutRate, 0.0),
		DType:                dtype,
	}, nil
}
