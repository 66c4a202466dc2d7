package generation

import (
	"math"

	"github.com/pkg/errors"

	"github.com/samcharles93/tgstep/internal/logits"
)

// Generation is what one step produces for one request owned by the shard.
type Generation struct {
	RequestID string
	// PrefillTokens is only set on the first generated token, and only when
	// the request asked for it.
	PrefillTokens  *PrefillTokens
	TokenID        int
	TokenLogprob   float32
	TokenText      string
	TokenIsSpecial bool
	// GeneratedText is only set on the step the request stopped.
	GeneratedText *GeneratedText
}

// PrefillTokens describes the prompt. Logprobs[0] is always NaN since
// nothing scores the first prompt token.
type PrefillTokens struct {
	TokenIDs []int
	Logprobs []float32
	Texts    []string
	// Approximate is set when the prompt was scored with the distribution
	// of the current step instead of per-position prefill scores.
	Approximate bool
}

type GeneratedText struct {
	Text            string
	GeneratedTokens int
	FinishReason    FinishReason
	// Seed is the sampling seed, nil for greedy requests.
	Seed *uint64
}

type stepConfig struct {
	prefillLogits [][][]float32
}

// StepOption tunes a single Step call.
type StepOption func(*stepConfig)

// WithPrefillLogits supplies per-position prompt scores from the prefill
// forward pass, rows[i][j] scoring token j+1 of request i. Prompt
// log-probabilities are then exact instead of approximated.
func WithPrefillLogits(rows [][][]float32) StepOption {
	return func(c *stepConfig) { c.prefillLogits = rows }
}

// Step advances every request of b by one token using scores, one row per
// request. All shards run it on identical inputs; only the requests shard
// owns produce a Generation, in batch order. The returned batch is nil once
// every request has stopped. Otherwise it is b, ready for the next forward
// pass, still holding the requests that stopped during this step.
func Step(b *Batch, scores [][]float32, shard Shard, tok Tokenizer, opts ...StepOption) ([]Generation, *Batch, error) {
	var cfg stepConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := shard.Validate(); err != nil {
		return nil, nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}
	if err := checkScores(scores, b.Len()); err != nil {
		return nil, nil, err
	}
	if cfg.prefillLogits != nil && len(cfg.prefillLogits) != b.Len() {
		return nil, nil, errors.Wrapf(ErrCollaboratorFailure,
			"prefill scores for %d requests, batch holds %d", len(cfg.prefillLogits), b.Len())
	}

	for i, criteria := range b.Stopping {
		if criteria.Stopped() {
			return nil, nil, errors.Wrapf(ErrInvariantViolation, "request %q evaluated after it stopped", b.Requests[i].ID)
		}
	}

	// Every row is worked out before any of them is written back, so a
	// failing step leaves the rows of b untouched.
	type rowUpdate struct {
		ids          []int
		prefix, read int
		decision     stopDecision
	}
	updates := make([]rowUpdate, b.Len())
	outputs := make([]Generation, 0, (b.Len()+shard.WorldSize-1)/shard.WorldSize)
	allStopped := true

	for i := range b.Requests {
		req := &b.Requests[i]
		criteria := b.Stopping[i]

		nextID, logprobs := b.Choosers[i].Choose(b.AllTokenIDs[i], scores[i])
		// Writes past len(AllTokenIDs[i]) stay invisible until committed.
		ids := append(b.AllTokenIDs[i], nextID)
		newLength := b.InputLengths[i] + 1

		text, prefix, read, err := DecodeToken(tok, ids, b.PrefixOffsets[i], b.ReadOffsets[i])
		if err != nil {
			return nil, nil, errors.Wrapf(err, "request %q", req.ID)
		}

		d := criteria.check(nextID, text)
		stop := d.reason != ""
		if !stop {
			allStopped = false
		}

		if shard.Owns(i) {
			gen := Generation{
				RequestID:      req.ID,
				TokenID:        nextID,
				TokenLogprob:   logprobs[nextID],
				TokenText:      text,
				TokenIsSpecial: tok.IsSpecial(nextID),
			}
			if stop {
				gen.GeneratedText, err = completion(tok, ids, d.current, d.reason, b.Choosers[i])
				if err != nil {
					return nil, nil, errors.Wrapf(err, "request %q", req.ID)
				}
			}
			if d.current == 1 && req.PrefillLogprobs {
				var rows [][]float32
				if cfg.prefillLogits != nil {
					rows = cfg.prefillLogits[i]
				}
				gen.PrefillTokens, err = prefill(tok, ids[len(ids)-newLength:len(ids)-1], scores[i], rows)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "request %q", req.ID)
				}
			}
			outputs = append(outputs, gen)
		}
		updates[i] = rowUpdate{ids: ids, prefix: prefix, read: read, decision: d}
	}

	if !allStopped && b.PaddingRightOffset < 1 {
		return nil, nil, errors.Wrap(ErrInvariantViolation, "no right padding left for a surviving batch")
	}

	for i, u := range updates {
		b.AllTokenIDs[i] = u.ids
		b.InputLengths[i] = len(u.ids)
		b.PrefixOffsets[i] = u.prefix
		b.ReadOffsets[i] = u.read
		b.Stopping[i].apply(u.decision)
		b.MaxInputLength = max(b.MaxInputLength, len(u.ids))
	}

	if allStopped {
		return outputs, nil, nil
	}

	col := len(b.AttentionMask[0]) - b.PaddingRightOffset
	for i, u := range updates {
		b.InputIDs[i] = append(b.InputIDs[i][:0], u.ids[len(u.ids)-1])
		b.AttentionMask[i][col] = 1
		b.PositionIDs[i]++
	}
	b.PaddingRightOffset--
	return outputs, b, nil
}

func checkScores(scores [][]float32, n int) error {
	if len(scores) != n {
		return errors.Wrapf(ErrCollaboratorFailure, "got %d score rows for %d requests", len(scores), n)
	}
	for i, row := range scores {
		if len(row) == 0 {
			return errors.Wrapf(ErrCollaboratorFailure, "score row %d is empty", i)
		}
		if len(row) != len(scores[0]) {
			return errors.Wrapf(ErrCollaboratorFailure, "score row %d has width %d, row 0 has %d", i, len(row), len(scores[0]))
		}
	}
	return nil
}

func completion(tok Tokenizer, ids []int, generated int, reason FinishReason, chooser *logits.Chooser) (*GeneratedText, error) {
	text, err := tok.Decode(ids[len(ids)-generated:], true)
	if err != nil {
		return nil, errors.Wrapf(ErrCollaboratorFailure, "decode: %v", err)
	}
	out := &GeneratedText{Text: text, GeneratedTokens: generated, FinishReason: reason}
	if seed, ok := chooser.Seed(); ok {
		out.Seed = &seed
	}
	return out, nil
}

// prefill scores the prompt. With per-position rows, token j is scored by
// row j-1. Without them every token is scored by the current row, which is
// the distribution for the position after the prompt.
func prefill(tok Tokenizer, prompt []int, current []float32, rows [][]float32) (*PrefillTokens, error) {
	out := &PrefillTokens{
		TokenIDs:    append([]int(nil), prompt...),
		Logprobs:    make([]float32, len(prompt)),
		Approximate: rows == nil,
	}
	if len(prompt) > 0 {
		out.Logprobs[0] = float32(math.NaN())
	}
	if rows != nil && len(rows) < len(prompt)-1 {
		return nil, errors.Wrapf(ErrCollaboratorFailure, "%d prefill score rows for a prompt of %d", len(rows), len(prompt))
	}

	var approx []float32
	if rows == nil {
		approx = logits.LogSoftmax(nil, current)
	}
	var buf []float32
	for j := 1; j < len(prompt); j++ {
		id := prompt[j]
		dist := approx
		if rows != nil {
			buf = logits.LogSoftmax(buf, rows[j-1])
			dist = buf
		}
		if id < 0 || id >= len(dist) {
			return nil, errors.Wrapf(ErrCollaboratorFailure, "prompt token %d outside a vocabulary of %d", id, len(dist))
		}
		out.Logprobs[j] = dist[id]
	}

	texts, err := decodeEach(tok, prompt)
	if err != nil {
		return nil, errors.Wrapf(ErrCollaboratorFailure, "decode: %v", err)
	}
	out.Texts = texts
	return out, nil
}
