package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tgstep/internal/forward"
	"github.com/samcharles93/tgstep/internal/generation"
	"github.com/samcharles93/tgstep/internal/logger"
	"github.com/samcharles93/tgstep/internal/tokenizer"
)

// Loader opens a model directory holding tokenizer.json, an optional
// tokenizer_config.json and generation_config.json, and an optional ONNX
// graph.
type Loader struct {
	// ONNXPath selects the ONNX runtime. Empty uses the hash model, whose
	// scores depend only on the token history.
	ONNXPath string
	Threads  int
	// Shards is the number of in-process replicas.
	Shards int

	NewObserver func(rank int) generation.Observer
	Log         logger.Logger
}

type LoadResult struct {
	Engine             *EngineImpl
	Tokenizer          tokenizer.Tokenizer
	GenerationDefaults GenDefaults
	StopTokens         []int
	ModelID            string
	Shards             int
}

type GenDefaults struct {
	Temperature       *float64 `json:"temperature"`
	TopK              *int     `json:"top_k"`
	TopP              *float64 `json:"top_p"`
	RepetitionPenalty *float64 `json:"repetition_penalty"`
}

func (l Loader) Load(modelDir string) (*LoadResult, error) {
	if strings.TrimSpace(modelDir) == "" {
		return nil, fmt.Errorf("model path is required")
	}
	shards := max(l.Shards, 1)
	log := l.Log
	if log == nil {
		log = logger.Discard()
	}

	tok, err := tokenizer.Load(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	defaults, err := loadGenerationDefaults(filepath.Join(modelDir, "generation_config.json"))
	if err != nil {
		return nil, err
	}
	stopTokens := BuildStopTokens(tok)

	replicas := make([]*generation.Generator, 0, shards)
	closeAll := func(err error) (*LoadResult, error) {
		for _, g := range replicas {
			_ = g.Model.Close()
		}
		return nil, err
	}
	for rank := range shards {
		m, err := l.openModel(tok)
		if err != nil {
			return closeAll(err)
		}
		g := &generation.Generator{
			Model:     m,
			Tokenizer: tok,
			Shard:     generation.Shard{Rank: rank, WorldSize: shards},
			Log:       logger.ForShard(log, rank, shards),
		}
		if l.NewObserver != nil {
			g.Observer = l.NewObserver(rank)
		}
		replicas = append(replicas, g)
	}

	var runner Runner = &Loop{Gen: replicas[0]}
	if shards > 1 {
		sr, err := NewShardedRunner(replicas)
		if err != nil {
			return closeAll(err)
		}
		runner = sr
	}

	log.Info("model loaded",
		"model_dir", modelDir,
		"vocab_size", tok.VocabSize(),
		"shards", shards,
		"onnx", l.ONNXPath != "",
		"stop_tokens", stopTokens,
	)
	return &LoadResult{
		Engine:             NewEngine(runner, tok, stopTokens, log),
		Tokenizer:          tok,
		GenerationDefaults: defaults,
		StopTokens:         stopTokens,
		ModelID:            filepath.Base(filepath.Clean(modelDir)),
		Shards:             shards,
	}, nil
}

func (l Loader) openModel(tok tokenizer.Tokenizer) (forward.Model, error) {
	if l.ONNXPath == "" {
		return forward.NewHashModel(tok.VocabSize()), nil
	}
	padID := max(tok.EOSID(), 0)
	return openONNX(l.ONNXPath, tok.VocabSize(), padID, l.Threads)
}

func loadGenerationDefaults(path string) (GenDefaults, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return GenDefaults{}, nil
	}
	if err != nil {
		return GenDefaults{}, fmt.Errorf("read generation config: %w", err)
	}
	var cfg GenDefaults
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return GenDefaults{}, fmt.Errorf("parse generation config: %w", err)
	}
	return cfg, nil
}
