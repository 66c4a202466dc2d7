package inference

import (
	"context"
	"time"

	"github.com/samcharles93/tgstep/internal/generation"
)

// Runner drives one batch until every request in it has stopped.
type Runner interface {
	Run(ctx context.Context, reqs []generation.Request, emit func(generation.Generation)) (Stats, error)
	Close() error
}

// Loop is the single-replica Runner.
type Loop struct {
	Gen *generation.Generator
}

func (l *Loop) Run(ctx context.Context, reqs []generation.Request, emit func(generation.Generation)) (Stats, error) {
	var stats Stats
	start := time.Now()

	b, err := generation.NewBatch(reqs)
	if err != nil {
		return stats, err
	}
	for b != nil {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		gens, next, err := l.Gen.GenerateToken(ctx, b)
		if err != nil {
			return stats, err
		}
		stats.Steps++
		stats.TokensGenerated += len(gens)
		if emit != nil {
			for _, g := range gens {
				emit(g)
			}
		}
		if next == nil {
			break
		}
		b, err = l.Gen.FilterBatch(next)
		if err != nil {
			return stats, err
		}
	}
	stats.finish(start)
	return stats, nil
}

func (l *Loop) Close() error {
	return l.Gen.Model.Close()
}
