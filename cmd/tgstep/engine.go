package main

import (
	"context"
	"os"

	"github.com/samcharles93/tgstep/internal/generation"
	"github.com/samcharles93/tgstep/internal/inference"
	"github.com/samcharles93/tgstep/internal/logger"
	"github.com/samcharles93/tgstep/internal/metrics"
)

// loadEngine resolves the model directory and replica layout from the
// common model flags and opens the engine.
func loadEngine(ctx context.Context, log logger.Logger) (*inference.LoadResult, shardLayout, error) {
	if err := checkPrecision(dtype, quantize); err != nil {
		return nil, shardLayout{}, err
	}
	layout, err := resolveShards(sharded, int(numShard), os.Getenv)
	if err != nil {
		return nil, shardLayout{}, err
	}
	dir, err := resolveModelDir(modelDir, modelsPath, os.Stdin, os.Stderr)
	if err != nil {
		return nil, shardLayout{}, err
	}
	if dtype != "" || quantize != "" {
		log.Warn("weights run at native precision", "dtype", dtype, "quantize", quantize)
	}

	loader := inference.Loader{
		ONNXPath: onnxPath,
		Threads:  int(threads),
		Shards:   layout.WorldSize,
		NewObserver: func(rank int) generation.Observer {
			return metrics.NewObserver(rank)
		},
		Log: logger.ForShard(log, layout.Rank, layout.WorldSize),
	}
	res, err := loader.Load(dir)
	if err != nil {
		return nil, shardLayout{}, err
	}
	return res, layout, ctx.Err()
}
