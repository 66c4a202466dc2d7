package inference

import (
	"fmt"
	"math"

	"github.com/samcharles93/tgstep/internal/logits"
)

// DefaultMaxNewTokens applies when a request does not say how much to
// generate.
const DefaultMaxNewTokens = 20

// RequestOptions is the wire-level view of a request: nil means unset.
type RequestOptions struct {
	ID     string
	Inputs string

	MaxNewTokens *int
	Truncate     *int
	Seed         *uint64

	Temperature       *float64
	TopK              *int
	TopP              *float64
	TypicalP          *float64
	RepetitionPenalty *float64
	DoSample          *bool
	// Greedy forces arg-max selection and conflicts with any sampling
	// option set alongside it.
	Greedy *bool

	Stop           []string
	IgnoreEOS      *bool
	Details        *bool
	ReturnFullText *bool
}

// ResolveRequest fills unset options. Model generation defaults only apply
// to requests that sample, so a plain request stays greedy.
func ResolveRequest(opts RequestOptions, defaults GenDefaults) Request {
	req := Request{
		ID:            opts.ID,
		Inputs:        opts.Inputs,
		MaxNewTokens:  DefaultMaxNewTokens,
		StopSequences: opts.Stop,
	}

	var p logits.Params
	if opts.DoSample != nil {
		p.DoSample = *opts.DoSample
	}
	if opts.Greedy != nil {
		p.Greedy = *opts.Greedy
	}
	if p.DoSample {
		if defaults.Temperature != nil && *defaults.Temperature > 0 {
			p.Temperature = float32(*defaults.Temperature)
		}
		if defaults.TopK != nil && *defaults.TopK > 0 {
			p.TopK = *defaults.TopK
		}
		if defaults.TopP != nil && *defaults.TopP > 0 && *defaults.TopP <= 1 {
			p.TopP = float32(*defaults.TopP)
		}
	}
	if defaults.RepetitionPenalty != nil && *defaults.RepetitionPenalty > 0 {
		p.RepetitionPenalty = float32(*defaults.RepetitionPenalty)
	}

	if opts.MaxNewTokens != nil {
		req.MaxNewTokens = *opts.MaxNewTokens
	}
	if opts.Truncate != nil {
		req.Truncate = *opts.Truncate
	}
	if opts.Seed != nil {
		seed := *opts.Seed
		p.Seed = &seed
	}
	if opts.Temperature != nil {
		p.Temperature = float32(*opts.Temperature)
	}
	if opts.TopK != nil {
		p.TopK = *opts.TopK
	}
	if opts.TopP != nil {
		p.TopP = float32(*opts.TopP)
	}
	if opts.TypicalP != nil {
		p.TypicalP = float32(*opts.TypicalP)
	}
	if opts.RepetitionPenalty != nil {
		p.RepetitionPenalty = float32(*opts.RepetitionPenalty)
	}
	if opts.IgnoreEOS != nil {
		req.IgnoreEOS = *opts.IgnoreEOS
	}
	if opts.Details != nil {
		req.Details = *opts.Details
	}
	if opts.ReturnFullText != nil {
		req.ReturnFullText = *opts.ReturnFullText
	}
	req.Params = p
	return req
}

// PresenceToRepetition maps an OpenAI presence penalty in (-2, 2] onto a
// multiplicative repetition penalty in (0, 2]. A penalty of -2 would map to
// zero, which is no valid repetition penalty, so it is rejected with the
// rest of the out-of-range values.
func PresenceToRepetition(p float64) (float64, error) {
	if math.IsNaN(p) || p <= -2 || p > 2 {
		return 0, fmt.Errorf("%w: presence_penalty must be in (-2, 2], got %v", logits.ErrInvalidParameter, p)
	}
	return (p + 2) / 2, nil
}
