// gnn_forward builds a GraphSAGE or GAT model from context hyperparameters and runs one forward pass over
// a generated graph, printing the outputs of every node.
//
// Example:
//
//	gnn_forward -model=gat -nodes=8 -graph=ring -set="gnn_heads=4;gnn_hidden_dim=16;gnn_output_dim=3"
//
// With -checkpoint the model variables are loaded from (if present) and saved to the given directory.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/graphnets/gnn/pkg/graphdata"
	"github.com/graphnets/gnn/pkg/ml/models/gnn"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagModel      = flag.String("model", "sage", "Model to run: \"sage\" (GraphSAGE) or \"gat\".")
	flagNumNodes   = flag.Int("nodes", 5, "Number of nodes of the generated graph.")
	flagFeatureDim = flag.Int("features", 4, "Width of the node features, all set to 1.")
	flagGraph      = flag.String("graph", "chain", "Generated graph: \"chain\" (edges i->i+1) or \"ring\" (chain plus last->first).")
	flagCheckpoint = flag.String("checkpoint", "", "Directory where to load/save the model variables. If empty, variables are "+
		"randomly initialized and not saved.")
	flagCheckpointKeep = flag.Int("checkpoint_keep", 3, "Number of checkpoints to keep.")
	flagTraining       = flag.Bool("training", false, "Run the forward pass in training mode, that is, with dropout enabled.")
)

func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		gnn.ParamHiddenDim:            16,
		gnn.ParamEmbeddingDim:         8,
		gnn.ParamOutputDim:            3,
		gnn.ParamNumLayers:            2,
		gnn.ParamSAGEAggregation:      "mean",
		gnn.ParamHeads:                1,
		gnn.ParamEdgeDim:              0,
		gnn.ParamNegativeSlope:        0.2,
		gnn.ParamAttentionDropoutRate: 0.0,
		gnn.ParamDType:                "float32",
		layers.ParamDropoutRate:       0.0,
	})
	return ctx
}

func main() {
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))

	// Checkpoints: hyperparameters set in the command line take precedence over the ones saved.
	var checkpoint *checkpoints.Handler
	if *flagCheckpoint != "" {
		checkpoint = must.M1(checkpoints.Build(ctx).
			Dir(*flagCheckpoint).Keep(*flagCheckpointKeep).ExcludeParams(paramsSet...).Done())
		klog.V(1).Infof("checkpoint: %s", checkpoint)
	}

	g, err := generateGraph(*flagGraph, *flagNumNodes, *flagFeatureDim)
	if err != nil {
		klog.Fatalf("Failed to generate graph: %+v", err)
	}
	model, err := newModel(ctx, *flagModel)
	if err != nil {
		klog.Fatalf("Failed to create model %q: %+v", *flagModel, err)
	}
	if err = model.Init(ctx, g.FeatureDim()); err != nil {
		klog.Fatalf("Failed to initialize model: %+v", err)
	}

	backend := backends.MustNew()
	predictor, err := gnn.NewPredictor(backend, ctx, model)
	if err != nil {
		klog.Fatalf("Failed to compile model: %+v", err)
	}
	defer predictor.Finalize()
	must.M(predictor.SetTraining(*flagTraining))
	x, edgeIndex, edgeAttr := must.M3(g.Tensors())
	output, err := predictor.Predict(x, edgeIndex, edgeAttr)
	if err != nil {
		klog.Errorf("Forward pass failed: %+v", err)
		os.Exit(1)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s over a %d nodes %s", *flagModel, g.NumNodes, *flagGraph)))
	fmt.Println(summaryTable(backend, ctx, g).Render())
	fmt.Println(outputTable(output).Render())

	if checkpoint != nil {
		must.M(checkpoint.Save())
		fmt.Printf("Variables saved to %s\n", checkpoint.Dir())
	}
}

func newModel(ctx *context.Context, name string) (gnn.Model, error) {
	switch name {
	case "sage":
		return gnn.NewSAGEFromContext(ctx)
	case "gat":
		return gnn.NewGATFromContext(ctx)
	}
	return nil, errors.Errorf("unknown model %q, valid values are \"sage\" or \"gat\"", name)
}

func generateGraph(kind string, numNodes, featureDim int) (*graphdata.Graph, error) {
	var g *graphdata.Graph
	switch kind {
	case "chain":
		g = graphdata.Chain(numNodes, featureDim)
	case "ring":
		g = graphdata.Ring(numNodes, featureDim)
	default:
		return nil, errors.Errorf("unknown graph %q, valid values are \"chain\" or \"ring\"", kind)
	}
	return g, g.Validate()
}
