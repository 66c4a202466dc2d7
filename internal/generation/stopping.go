package generation

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// FinishReason is why a request stopped generating.
type FinishReason string

const (
	FinishReasonLength       FinishReason = "length"
	FinishReasonEOSToken     FinishReason = "eos_token"
	FinishReasonStopSequence FinishReason = "stop_sequence"
)

// StoppingParams are the per-request limits supplied at admission.
type StoppingParams struct {
	MaxNewTokens  int
	StopSequences []string
	// EOSTokenIDs end generation when chosen, unless IgnoreEOS is set.
	EOSTokenIDs []int
	IgnoreEOS   bool
}

// StoppingCriteria tracks one request from running to stopped.
type StoppingCriteria struct {
	params StoppingParams

	// CurrentTokens counts Evaluate calls, i.e. tokens generated so far.
	CurrentTokens int

	// tail holds the end of the generated text, long enough to match the
	// longest stop sequence.
	tail    string
	keepLen int
	reason  FinishReason
}

func NewStoppingCriteria(p StoppingParams) (*StoppingCriteria, error) {
	if p.MaxNewTokens < 1 {
		return nil, errors.Wrapf(ErrInvalidRequest, "max_new_tokens must be at least 1, got %d", p.MaxNewTokens)
	}
	s := &StoppingCriteria{params: p}
	for _, seq := range p.StopSequences {
		if seq == "" {
			return nil, errors.Wrap(ErrInvalidRequest, "stop sequences must not be empty")
		}
		s.keepLen = max(s.keepLen, len(seq))
	}
	return s, nil
}

// Evaluate records one generated token and its text and reports whether
// the request is done. It must not be called once Stopped reports true.
func (s *StoppingCriteria) Evaluate(lastToken int, lastText string) (bool, FinishReason) {
	d := s.check(lastToken, lastText)
	s.apply(d)
	return d.reason != "", d.reason
}

// stopDecision is the state Evaluate would move to, computed without
// touching the criteria.
type stopDecision struct {
	current int
	tail    string
	reason  FinishReason
}

func (s *StoppingCriteria) check(lastToken int, lastText string) stopDecision {
	d := stopDecision{current: s.CurrentTokens + 1, tail: s.tail}
	if d.current >= s.params.MaxNewTokens {
		d.reason = FinishReasonLength
		return d
	}
	if !s.params.IgnoreEOS && slices.Contains(s.params.EOSTokenIDs, lastToken) {
		d.reason = FinishReasonEOSToken
		return d
	}
	if s.keepLen == 0 {
		return d
	}
	d.tail += lastText
	for _, seq := range s.params.StopSequences {
		if strings.HasSuffix(d.tail, seq) {
			d.reason = FinishReasonStopSequence
			return d
		}
	}
	if len(d.tail) > s.keepLen {
		d.tail = d.tail[len(d.tail)-s.keepLen:]
	}
	return d
}

func (s *StoppingCriteria) apply(d stopDecision) {
	s.CurrentTokens = d.current
	s.tail = d.tail
	s.reason = d.reason
}

func (s *StoppingCriteria) Stopped() bool { return s.reason != "" }

// Reason is empty while the request is running.
func (s *StoppingCriteria) Reason() FinishReason { return s.reason }

// Remaining is how many more tokens the request may generate.
func (s *StoppingCriteria) Remaining() int {
	return max(s.params.MaxNewTokens-s.CurrentTokens, 0)
}

func (s *StoppingCriteria) MaxNewTokens() int { return s.params.MaxNewTokens }
