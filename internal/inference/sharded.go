package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/tgstep/internal/generation"
)

// ShardedRunner runs one Loop per replica over identical batches. Each
// replica emits only the requests it owns, so the merged stream holds every
// generation exactly once.
type ShardedRunner struct {
	Replicas []*generation.Generator
}

func NewShardedRunner(replicas []*generation.Generator) (*ShardedRunner, error) {
	if len(replicas) == 0 {
		return nil, errors.New("sharded runner needs at least one replica")
	}
	for i, g := range replicas {
		if g.Shard.Rank != i || g.Shard.WorldSize != len(replicas) {
			return nil, fmt.Errorf("%w: replica %d has shard %d/%d", generation.ErrInvariantViolation,
				i, g.Shard.Rank, g.Shard.WorldSize)
		}
	}
	return &ShardedRunner{Replicas: replicas}, nil
}

func (r *ShardedRunner) Run(ctx context.Context, reqs []generation.Request, emit func(generation.Generation)) (Stats, error) {
	start := time.Now()
	var (
		mu    sync.Mutex
		stats = make([]Stats, len(r.Replicas))
	)
	merged := func(g generation.Generation) {
		if emit == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		emit(g)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for rank, gen := range r.Replicas {
		batchReqs := cloneRequests(reqs)
		eg.Go(func() error {
			s, err := (&Loop{Gen: gen}).Run(egCtx, batchReqs, merged)
			stats[rank] = s
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return Stats{}, err
	}

	// replicas step in lockstep, so step counts agree
	out := Stats{Steps: stats[0].Steps}
	for _, s := range stats {
		out.TokensGenerated += s.TokensGenerated
	}
	out.finish(start)
	return out, nil
}

func (r *ShardedRunner) Close() error {
	var errs []error
	for _, g := range r.Replicas {
		if err := g.Model.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cloneRequests gives each replica requests that share no memory with the
// others.
func cloneRequests(reqs []generation.Request) []generation.Request {
	out := make([]generation.Request, len(reqs))
	for i, r := range reqs {
		r.Prompt = append([]int(nil), r.Prompt...)
		if r.Params.Seed != nil {
			seed := *r.Params.Seed
			r.Params.Seed = &seed
		}
		out[i] = r
	}
	return out
}
