package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tgstep/internal/logger"
	"github.com/samcharles93/tgstep/internal/logits"
)

var (
	modelDir   string
	modelsPath string
	onnxPath   string
	threads    int64
	numShard   int64
	sharded    bool
	dtype      string
	quantize   string

	logLevel   string
	jsonOutput bool
)

var (
	dtypes        = []string{"float16", "bfloat16", "float32"}
	quantizations = []string{"bitsandbytes", "gptq", "awq", "int8"}
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model directory holding tokenizer.json",
			Destination: &modelDir,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory of model directories",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "onnx",
			Usage:       "run this ONNX graph instead of the hash model (needs -tags onnx)",
			Destination: &onnxPath,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Usage:       "intra-op threads for the ONNX runtime",
			Value:       1,
			Destination: &threads,
		},
		&cli.Int64Flag{
			Name:        "num-shard",
			Aliases:     []string{"shards"},
			Usage:       "number of in-process replicas",
			Value:       1,
			Destination: &numShard,
		},
		&cli.BoolFlag{
			Name:        "sharded",
			Usage:       "take the replica layout from RANK and WORLD_SIZE",
			Destination: &sharded,
		},
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "weight dtype (" + strings.Join(dtypes, ", ") + ")",
			Destination: &dtype,
		},
		&cli.StringFlag{
			Name:        "quantize",
			Usage:       "weight quantization (" + strings.Join(quantizations, ", ") + ")",
			Destination: &quantize,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "logger-level",
			Aliases:     []string{"log-level"},
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.BoolFlag{
			Name:        "json-output",
			Usage:       "emit JSON log records",
			Destination: &jsonOutput,
		},
	}
}

// setupLogger builds the process logger from the logging flags and stores
// it in ctx.
func setupLogger(ctx context.Context) (context.Context, logger.Logger) {
	log := logger.Setup(os.Stderr, logLevel, jsonOutput)
	return logger.WithContext(ctx, log), log
}

var errDtypeQuantize = fmt.Errorf("%w: --dtype and --quantize are mutually exclusive", logits.ErrConfigurationConflict)

func checkPrecision(dtype, quantize string) error {
	if dtype != "" && quantize != "" {
		return errDtypeQuantize
	}
	if dtype != "" && !slices.Contains(dtypes, dtype) {
		return fmt.Errorf("unknown dtype %q", dtype)
	}
	if quantize != "" && !slices.Contains(quantizations, quantize) {
		return fmt.Errorf("unknown quantization %q", quantize)
	}
	return nil
}

// shardLayout is the replica count and the rank this process reports as.
type shardLayout struct {
	Rank      int
	WorldSize int
}

// resolveShards reads RANK and WORLD_SIZE when sharded, and otherwise runs
// numShard replicas from rank 0.
func resolveShards(sharded bool, numShard int, getenv func(string) string) (shardLayout, error) {
	if !sharded {
		if numShard < 1 {
			return shardLayout{}, fmt.Errorf("--num-shard must be positive, got %d", numShard)
		}
		return shardLayout{WorldSize: numShard}, nil
	}
	rank, err := requiredIntEnv(getenv, "RANK")
	if err != nil {
		return shardLayout{}, err
	}
	world, err := requiredIntEnv(getenv, "WORLD_SIZE")
	if err != nil {
		return shardLayout{}, err
	}
	if world < 1 || rank < 0 || rank >= world {
		return shardLayout{}, fmt.Errorf("invalid shard layout RANK=%d WORLD_SIZE=%d", rank, world)
	}
	return shardLayout{Rank: rank, WorldSize: world}, nil
}

func requiredIntEnv(getenv func(string) string, key string) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return 0, fmt.Errorf("%s must be set when --sharded is used", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
