package generation

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialOffsets(t *testing.T) {
	t.Parallel()
	p, r := InitialOffsets(3)
	assert.Equal(t, 0, p)
	assert.Equal(t, 3, r)
	p, r = InitialOffsets(12)
	assert.Equal(t, 7, p)
	assert.Equal(t, 12, r)
}

func TestDecodeTokenEmitsSuffix(t *testing.T) {
	t.Parallel()
	tok := &fakeTokenizer{}
	ids := []int{1, 2}
	p, r := InitialOffsets(1)

	text, p, r, err := DecodeToken(tok, ids, p, r)
	require.NoError(t, err)
	assert.Equal(t, "b", text)
	assert.Equal(t, 1, p)
	assert.Equal(t, 2, r)

	ids = append(ids, 4)
	text, p, r, err = DecodeToken(tok, ids, p, r)
	require.NoError(t, err)
	assert.Equal(t, " d", text)
	assert.Equal(t, 2, p)
	assert.Equal(t, 3, r)
}

func TestDecodeTokenIdempotent(t *testing.T) {
	t.Parallel()
	tok := &fakeTokenizer{}
	ids := []int{1, 2, 3}
	p, r := InitialOffsets(2)
	text, p, r, err := DecodeToken(tok, ids, p, r)
	require.NoError(t, err)
	require.Equal(t, "c", text)

	for range 2 {
		again, p2, r2, err := DecodeToken(tok, ids, p, r)
		require.NoError(t, err)
		assert.Empty(t, again)
		assert.Equal(t, p, p2)
		assert.Equal(t, r, r2)
	}
}

func TestDecodeTokenHoldsPartialCharacter(t *testing.T) {
	t.Parallel()
	tok := &fakeTokenizer{}
	ids := []int{1, 5}
	text, p, r, err := DecodeToken(tok, ids, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 0, p)
	assert.Equal(t, 1, r)

	ids = append(ids, 6)
	text, p, r, err = DecodeToken(tok, ids, p, r)
	require.NoError(t, err)
	assert.Equal(t, "é", text)
	assert.Equal(t, 1, p)
	assert.Equal(t, 3, r)
}

func TestDecodeTokenRejectsBadCursors(t *testing.T) {
	t.Parallel()
	tok := &fakeTokenizer{}
	cases := [][2]int{{2, 1}, {-1, 0}, {0, 5}}
	for _, c := range cases {
		_, _, _, err := DecodeToken(tok, []int{1, 2}, c[0], c[1])
		assert.True(t, errors.Is(err, ErrInvariantViolation), "cursors %v", c)
	}
}

func TestDecodeTokenTokenizerFailure(t *testing.T) {
	t.Parallel()
	_, _, _, err := DecodeToken(&fakeTokenizer{}, []int{1, 99}, 0, 1)
	assert.True(t, errors.Is(err, ErrCollaboratorFailure))
}
