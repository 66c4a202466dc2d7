package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samcharles93/tgstep/internal/generation"
	"github.com/samcharles93/tgstep/internal/logger"
	"github.com/samcharles93/tgstep/internal/logits"
	"github.com/samcharles93/tgstep/internal/tokenizer"
)

// EngineImpl tokenizes requests, runs them as one batch and assembles the
// results. Calls to Generate are serialized.
type EngineImpl struct {
	runner     Runner
	tokenizer  tokenizer.Tokenizer
	stopTokens []int
	log        logger.Logger

	mu sync.Mutex
}

func NewEngine(runner Runner, tok tokenizer.Tokenizer, stopTokens []int, log logger.Logger) *EngineImpl {
	if log == nil {
		log = logger.Discard()
	}
	return &EngineImpl{
		runner:     runner,
		tokenizer:  tok,
		stopTokens: stopTokens,
		log:        log,
	}
}

func (e *EngineImpl) Tokenizer() tokenizer.Tokenizer { return e.tokenizer }

func (e *EngineImpl) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.runner != nil {
		if err := e.runner.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := e.tokenizer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *EngineImpl) Generate(ctx context.Context, reqs []Request, stream StreamFunc) ([]*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no requests", generation.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Encoding runs under the lock too, so tokenizers need not be safe for
	// concurrent use.
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := make([]generation.Request, len(reqs))
	results := make(map[string]*Result, len(reqs))
	prompts := make(map[string]string, len(reqs))
	for i, r := range reqs {
		ids, err := safeEncode(e.tokenizer, r.Inputs)
		if err != nil {
			return nil, fmt.Errorf("encode request %q: %w", r.ID, err)
		}
		params, err := pinSeed(r.Params)
		if err != nil {
			return nil, fmt.Errorf("request %q: %w", r.ID, err)
		}
		batch[i] = generation.Request{
			ID:       r.ID,
			Prompt:   ids,
			Truncate: r.Truncate,
			Params:   params,
			Stopping: generation.StoppingParams{
				MaxNewTokens:  r.MaxNewTokens,
				StopSequences: r.StopSequences,
				EOSTokenIDs:   e.stopTokens,
				IgnoreEOS:     r.IgnoreEOS,
			},
			PrefillLogprobs: r.Details,
		}
		promptTokens := len(ids)
		if r.Truncate > 0 {
			promptTokens = min(promptTokens, r.Truncate)
		}
		results[r.ID] = &Result{RequestID: r.ID, PromptTokens: promptTokens}
		if r.ReturnFullText {
			prompts[r.ID] = r.Inputs
		}
	}

	stats, err := e.runner.Run(ctx, batch, func(g generation.Generation) {
		res, ok := results[g.RequestID]
		if !ok {
			return
		}
		tok := Token{ID: g.TokenID, Text: g.TokenText, Logprob: g.TokenLogprob, Special: g.TokenIsSpecial}
		res.Tokens = append(res.Tokens, tok)
		if g.PrefillTokens != nil {
			res.Prefill = g.PrefillTokens
		}
		ev := Event{RequestID: g.RequestID, Token: tok}
		if done := g.GeneratedText; done != nil {
			res.Text = prompts[g.RequestID] + done.Text
			res.GeneratedTokens = done.GeneratedTokens
			res.FinishReason = done.FinishReason
			res.Seed = done.Seed
			ev.Done = res
			e.log.Info("request finished",
				"request_id", res.RequestID,
				"prompt_tokens", res.PromptTokens,
				"generated_tokens", res.GeneratedTokens,
				"finish_reason", string(res.FinishReason),
			)
		}
		if stream != nil {
			stream(ev)
		}
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("batch finished",
		"requests", len(reqs),
		"steps", stats.Steps,
		"tokens", stats.TokensGenerated,
		"tps", stats.TPS,
	)

	out := make([]*Result, len(reqs))
	for i, r := range reqs {
		out[i] = results[r.ID]
	}
	return out, nil
}

// pinSeed fixes the seed of sampling requests up front so every replica
// draws the same tokens.
func pinSeed(p logits.Params) (logits.Params, error) {
	c, err := logits.NewChooser(p)
	if err != nil {
		return p, err
	}
	if seed, ok := c.Seed(); ok && p.Seed == nil {
		p.Seed = &seed
	}
	return p, nil
}

func safeEncode(tok tokenizer.Tokenizer, prompt string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(prompt)
}
