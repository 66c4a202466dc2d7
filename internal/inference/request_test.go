package inference

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/tgstep/internal/logits"
)

func ptr[T any](v T) *T { return &v }

func TestResolveRequestDefaults(t *testing.T) {
	t.Parallel()

	req := ResolveRequest(RequestOptions{ID: "r", Inputs: "hi"}, GenDefaults{})
	if req.MaxNewTokens != DefaultMaxNewTokens {
		t.Fatalf("max new tokens: got %d", req.MaxNewTokens)
	}
	if req.Params.DoSample || req.Params.Seed != nil || req.Params.Temperature != 0 {
		t.Fatalf("expected plain greedy params, got %+v", req.Params)
	}
}

func TestResolveRequestModelDefaultsOnlyWhenSampling(t *testing.T) {
	t.Parallel()

	defaults := GenDefaults{
		Temperature:       ptr(0.6),
		TopK:              ptr(20),
		TopP:              ptr(0.9),
		RepetitionPenalty: ptr(1.1),
	}

	greedy := ResolveRequest(RequestOptions{}, defaults)
	if greedy.Params.Temperature != 0 || greedy.Params.TopK != 0 || greedy.Params.TopP != 0 {
		t.Fatalf("warpers leaked into a greedy request: %+v", greedy.Params)
	}
	if greedy.Params.RepetitionPenalty != float32(1.1) {
		t.Fatalf("repetition penalty: got %v", greedy.Params.RepetitionPenalty)
	}

	sampled := ResolveRequest(RequestOptions{DoSample: ptr(true), TopK: ptr(5)}, defaults)
	if sampled.Params.Temperature != float32(0.6) || sampled.Params.TopP != float32(0.9) {
		t.Fatalf("model defaults not applied: %+v", sampled.Params)
	}
	if sampled.Params.TopK != 5 {
		t.Fatalf("request value should win: got %d", sampled.Params.TopK)
	}
}

func TestResolveRequestOverrides(t *testing.T) {
	t.Parallel()

	req := ResolveRequest(RequestOptions{
		MaxNewTokens:   ptr(7),
		Truncate:       ptr(3),
		Seed:           ptr(uint64(42)),
		TypicalP:       ptr(0.5),
		Stop:           []string{"\n"},
		IgnoreEOS:      ptr(true),
		Details:        ptr(true),
		ReturnFullText: ptr(true),
	}, GenDefaults{})
	if req.MaxNewTokens != 7 || req.Truncate != 3 || !req.IgnoreEOS || !req.Details || !req.ReturnFullText {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Params.Seed == nil || *req.Params.Seed != 42 || req.Params.TypicalP != 0.5 {
		t.Fatalf("unexpected params %+v", req.Params)
	}
	if len(req.StopSequences) != 1 {
		t.Fatalf("stop sequences: %v", req.StopSequences)
	}
}

func TestPresenceToRepetition(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{-1.5: 0.25, 0: 1, 1: 1.5, 2: 2}
	for in, want := range cases {
		got, err := PresenceToRepetition(in)
		if err != nil || got != want {
			t.Errorf("PresenceToRepetition(%v): got %v, %v want %v", in, got, err, want)
		}
	}
}

func TestPresenceToRepetitionRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	for _, in := range []float64{-2, -3, 2.5, math.NaN()} {
		if _, err := PresenceToRepetition(in); !errors.Is(err, logits.ErrInvalidParameter) {
			t.Errorf("PresenceToRepetition(%v): expected invalid parameter, got %v", in, err)
		}
	}
}

func TestResolveRequestGreedy(t *testing.T) {
	t.Parallel()

	defaults := GenDefaults{Temperature: ptr(0.7)}

	req := ResolveRequest(RequestOptions{ID: "g", Inputs: "a", Greedy: ptr(true)}, defaults)
	if !req.Params.Greedy || req.Params.Temperature != 0 {
		t.Fatalf("unexpected params %+v", req.Params)
	}
	if _, err := logits.NewChooser(req.Params); err != nil {
		t.Fatalf("plain greedy request rejected: %v", err)
	}

	conflict := ResolveRequest(RequestOptions{ID: "c", Inputs: "a", Greedy: ptr(true), Temperature: ptr(0.7)}, defaults)
	if _, err := logits.NewChooser(conflict.Params); !errors.Is(err, logits.ErrConfigurationConflict) {
		t.Fatalf("expected configuration conflict, got %v", err)
	}
}
