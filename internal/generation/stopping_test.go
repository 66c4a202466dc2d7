package generation

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoppingMaxNewTokens(t *testing.T) {
	t.Parallel()
	s, err := NewStoppingCriteria(StoppingParams{MaxNewTokens: 3})
	require.NoError(t, err)

	for want := 1; want < 3; want++ {
		stop, _ := s.Evaluate(1, "x")
		require.False(t, stop)
		require.Equal(t, want, s.CurrentTokens)
		require.False(t, s.Stopped())
	}
	stop, reason := s.Evaluate(1, "x")
	assert.True(t, stop)
	assert.Equal(t, FinishReasonLength, reason)
	assert.Equal(t, 3, s.CurrentTokens)
	assert.True(t, s.Stopped())
	assert.Equal(t, 0, s.Remaining())
}

func TestStoppingEOS(t *testing.T) {
	t.Parallel()
	s, err := NewStoppingCriteria(StoppingParams{MaxNewTokens: 10, EOSTokenIDs: []int{2, 9}})
	require.NoError(t, err)
	stop, _ := s.Evaluate(1, "a")
	require.False(t, stop)
	stop, reason := s.Evaluate(9, "")
	assert.True(t, stop)
	assert.Equal(t, FinishReasonEOSToken, reason)

	s, err = NewStoppingCriteria(StoppingParams{MaxNewTokens: 10, EOSTokenIDs: []int{9}, IgnoreEOS: true})
	require.NoError(t, err)
	stop, _ = s.Evaluate(9, "")
	assert.False(t, stop)
}

func TestStoppingLengthWinsOverEOS(t *testing.T) {
	t.Parallel()
	s, err := NewStoppingCriteria(StoppingParams{MaxNewTokens: 1, EOSTokenIDs: []int{9}})
	require.NoError(t, err)
	_, reason := s.Evaluate(9, "")
	assert.Equal(t, FinishReasonLength, reason)
}

func TestStoppingSequenceAcrossTokens(t *testing.T) {
	t.Parallel()
	s, err := NewStoppingCriteria(StoppingParams{MaxNewTokens: 50, StopSequences: []string{"###", "END"}})
	require.NoError(t, err)

	for _, piece := range []string{"hello ", "wor", "ld #", "#"} {
		stop, _ := s.Evaluate(1, piece)
		require.False(t, stop, "stopped early on %q", piece)
	}
	stop, reason := s.Evaluate(1, "#")
	assert.True(t, stop)
	assert.Equal(t, FinishReasonStopSequence, reason)
	assert.Equal(t, 5, s.CurrentTokens)
}

func TestStoppingRejectsBadParams(t *testing.T) {
	t.Parallel()
	_, err := NewStoppingCriteria(StoppingParams{MaxNewTokens: 0})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	_, err = NewStoppingCriteria(StoppingParams{MaxNewTokens: 3, StopSequences: []string{""}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
