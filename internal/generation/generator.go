package generation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/samcharles93/tgstep/internal/forward"
	"github.com/samcharles93/tgstep/internal/logger"
)

// Observer receives per-step measurements. Implementations must be cheap;
// they run on the decoding goroutine.
type Observer interface {
	ObserveStep(batchSize int, elapsed time.Duration)
	ObserveToken(g *Generation)
}

// Generator couples a forward pass with Step for one shard.
type Generator struct {
	Model     forward.Model
	Tokenizer Tokenizer
	Shard     Shard
	Observer  Observer
	// Log defaults to the logger carried by the context.
	Log logger.Logger
}

// GenerateToken runs the forward pass for b, then one Step over its scores.
// The scores are fully materialized before any request is processed.
func (g *Generator) GenerateToken(ctx context.Context, b *Batch) ([]Generation, *Batch, error) {
	log := g.Log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	start := time.Now()
	size := b.Len()

	out, err := g.forward(ctx, b)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, errors.Wrapf(ErrCollaboratorFailure, "forward: %v", err)
	}
	if err := forward.CheckShape(out, size, g.Model.VocabSize()); err != nil {
		return nil, nil, errors.Wrap(ErrCollaboratorFailure, err.Error())
	}
	b.Cache = out.Cache

	var opts []StepOption
	if out.PrefillLogits != nil {
		opts = append(opts, WithPrefillLogits(out.PrefillLogits))
	}
	gens, next, err := Step(b, out.Logits, g.Shard, g.Tokenizer, opts...)
	if err != nil {
		return nil, nil, err
	}

	elapsed := time.Since(start)
	if g.Observer != nil {
		g.Observer.ObserveStep(size, elapsed)
		for i := range gens {
			g.Observer.ObserveToken(&gens[i])
		}
	}
	log.Debug("decoding step",
		"rank", g.Shard.Rank,
		"batch_size", size,
		"emitted", len(gens),
		"done", next == nil,
		"elapsed", elapsed,
	)
	return gens, next, nil
}

// forward hands the model every token of every row, or only the tokens
// since the last call when the model continues from its own cache.
func (g *Generator) forward(ctx context.Context, b *Batch) (*forward.Output, error) {
	if inc, ok := g.Model.(forward.Incremental); ok && b.Cache != nil {
		return forward.CallIncremental(ctx, inc, b.InputIDs, b.InputLengths, b.Cache)
	}
	return forward.Call(ctx, g.Model, b.AllTokenIDs, b.InputLengths, b.Cache)
}

// FilterBatch drops the stopped requests from b and compacts the model's
// cache to match. It returns nil when nothing is left running.
func (g *Generator) FilterBatch(b *Batch) (*Batch, error) {
	keep := b.Running()
	if len(keep) == b.Len() {
		return b, nil
	}
	return g.filter(b, keep)
}

// KeepRequests restricts b to the listed request ids, for callers that
// cancel requests between steps.
func (g *Generator) KeepRequests(b *Batch, ids []string) (*Batch, error) {
	keep, err := b.Indices(ids)
	if err != nil {
		return nil, err
	}
	return g.filter(b, keep)
}

func (g *Generator) filter(b *Batch, keep []int) (*Batch, error) {
	out, err := b.Filter(keep)
	if err != nil || out == nil {
		return out, err
	}
	if b.Cache == nil {
		return out, nil
	}
	cf, ok := g.Model.(forward.CacheFilter)
	if !ok {
		return nil, errors.Wrapf(ErrCollaboratorFailure, "model %T cannot compact its cache", g.Model)
	}
	cache, err := cf.FilterCache(b.Cache, keep)
	if err != nil {
		return nil, errors.Wrapf(ErrCollaboratorFailure, "filter cache: %v", err)
	}
	out.Cache = cache
	return out, nil
}
