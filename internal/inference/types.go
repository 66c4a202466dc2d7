package inference

import (
	"context"
	"time"

	"github.com/samcharles93/tgstep/internal/generation"
	"github.com/samcharles93/tgstep/internal/logits"
	"github.com/samcharles93/tgstep/internal/tokenizer"
)

// StreamFunc receives every emitted token as soon as its step completes.
// Done is set on the last event of a request.
type StreamFunc func(ev Event)

type Event struct {
	RequestID string
	Token     Token
	Done      *Result
}

type Token struct {
	ID      int
	Text    string
	Logprob float32
	Special bool
}

type Engine interface {
	Generate(ctx context.Context, reqs []Request, stream StreamFunc) ([]*Result, error)
	Tokenizer() tokenizer.Tokenizer
	Close() error
}

// Request is a text request before tokenization.
type Request struct {
	ID     string
	Inputs string
	// Truncate keeps only the last Truncate prompt tokens when positive.
	Truncate int

	Params        logits.Params
	MaxNewTokens  int
	StopSequences []string
	IgnoreEOS     bool

	// Details returns the prompt tokens with their log-probabilities.
	Details        bool
	ReturnFullText bool
}

type Result struct {
	RequestID       string
	Text            string
	PromptTokens    int
	GeneratedTokens int
	FinishReason    generation.FinishReason
	Seed            *uint64
	Prefill         *generation.PrefillTokens
	Tokens          []Token
}

type Stats struct {
	Steps           int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if s.Duration.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / s.Duration.Seconds()
	}
}
