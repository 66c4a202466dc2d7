package logits

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(v uint64) *uint64 { return &v }

func TestChooserGreedyPicksArgmax(t *testing.T) {
	t.Parallel()
	c, err := NewChooser(Params{})
	require.NoError(t, err)
	assert.Equal(t, KindGreedy, c.Kind())

	id, lp := c.Choose(nil, []float32{-1, 5, 3, 7, 2})
	assert.Equal(t, 3, id)
	require.Len(t, lp, 5)

	var mass float64
	for _, v := range lp {
		mass += math.Exp(float64(v))
	}
	assert.InDelta(t, 1.0, mass, 1e-5)

	_, ok := c.Seed()
	assert.False(t, ok, "greedy chooser must not report a seed")
}

func TestChooserSamplingDeterminism(t *testing.T) {
	t.Parallel()
	row := []float32{0.1, 1.2, 0.3, 2.4, 1.5, 0.6, 1.7, 0.8}
	seq := []int{1, 3, 3}
	params := Params{Temperature: 0.9, TopK: 6, TopP: 0.95, Seed: seed(42)}

	run := func() []int {
		c, err := NewChooser(params)
		require.NoError(t, err)
		out := make([]int, 0, 32)
		for range 32 {
			id, _ := c.Choose(seq, row)
			out = append(out, id)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestChooserSeedRecorded(t *testing.T) {
	t.Parallel()
	c, err := NewChooser(Params{DoSample: true, Seed: seed(7)})
	require.NoError(t, err)
	got, ok := c.Seed()
	require.True(t, ok)
	assert.Equal(t, uint64(7), got)

	// without an explicit seed one is drawn and kept
	c, err = NewChooser(Params{DoSample: true})
	require.NoError(t, err)
	_, ok = c.Seed()
	assert.True(t, ok)
}

func TestChooserTopPRestrictsToHead(t *testing.T) {
	t.Parallel()
	c, err := NewChooser(Params{TopP: 0.5, Seed: seed(3)})
	require.NoError(t, err)
	row := []float32{10, 0, 0, 0, 0}
	for range 20 {
		id, lp := c.Choose(nil, row)
		require.Equal(t, 0, id)
		assert.True(t, math.IsInf(float64(lp[1]), -1))
	}
}

func TestChooserTopKMasksTail(t *testing.T) {
	t.Parallel()
	c, err := NewChooser(Params{TopK: 2, Seed: seed(11)})
	require.NoError(t, err)
	row := []float32{1, 4, 3, 2}
	for range 50 {
		id, _ := c.Choose(nil, row)
		assert.Contains(t, []int{1, 2}, id)
	}
}

func TestChooserTypicalPKeepsOneToken(t *testing.T) {
	t.Parallel()
	c, err := NewChooser(Params{TypicalP: 0.01, Seed: seed(5)})
	require.NoError(t, err)
	_, lp := c.Choose(nil, []float32{1, 2, 3})
	finite := 0
	for _, v := range lp {
		if !math.IsInf(float64(v), -1) {
			finite++
		}
	}
	assert.Equal(t, 1, finite)
}

func TestChooserRepetitionPenalty(t *testing.T) {
	t.Parallel()
	c, err := NewChooser(Params{RepetitionPenalty: 4})
	require.NoError(t, err)

	// token 0 wins on raw scores but has already been generated
	id, _ := c.Choose([]int{0, 0}, []float32{2, 1.5, -1})
	assert.Equal(t, 1, id)

	// negative scores get pushed further down
	id, _ = c.Choose([]int{1}, []float32{-1, -0.5, -2})
	assert.Equal(t, 0, id)
}

func TestNewChooserRejectsConflicts(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		params Params
		want   error
	}{
		{"greedy and do_sample", Params{Greedy: true, DoSample: true}, ErrConfigurationConflict},
		{"greedy and temperature", Params{Greedy: true, Temperature: 0.7}, ErrConfigurationConflict},
		{"greedy and top_k", Params{Greedy: true, TopK: 10}, ErrConfigurationConflict},
		{"greedy and seed", Params{Greedy: true, Seed: seed(1)}, ErrConfigurationConflict},
		{"negative temperature", Params{Temperature: -1}, ErrInvalidParameter},
		{"top_p above one", Params{TopP: 1.5}, ErrInvalidParameter},
		{"negative top_k", Params{TopK: -2}, ErrInvalidParameter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewChooser(tc.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestGreedyWithNeutralWarpersIsAllowed(t *testing.T) {
	t.Parallel()
	c, err := NewChooser(Params{Greedy: true, Temperature: 1, TopP: 1})
	require.NoError(t, err)
	assert.Equal(t, KindGreedy, c.Kind())
}

func TestLogSoftmax(t *testing.T) {
	t.Parallel()
	out := LogSoftmax(nil, []float32{0, 0})
	assert.InDelta(t, math.Log(0.5), out[0], 1e-6)
	assert.InDelta(t, math.Log(0.5), out[1], 1e-6)

	out = LogSoftmax(out, []float32{negInf, 0})
	assert.True(t, math.IsInf(float64(out[0]), -1))
	assert.InDelta(t, 0, out[1], 1e-6)
}
