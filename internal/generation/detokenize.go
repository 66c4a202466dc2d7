package generation

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Tokenizer is what the step needs from the external tokenizer.
type Tokenizer interface {
	Decode(ids []int, skipSpecial bool) (string, error)
	IsSpecial(id int) bool
}

// BatchDecoder is implemented by tokenizers that decode many rows at once.
type BatchDecoder interface {
	BatchDecode(rows [][]int, skipSpecial bool) ([]string, error)
}

// window is how many trailing ids seed the prefix cursor of a new request.
const window = 5

// InitialOffsets returns the (prefix, read) cursors for a sequence of n ids
// that has not produced any text yet.
func InitialOffsets(n int) (prefix, read int) {
	return max(0, n-window), n
}

// DecodeToken returns the text added by ids[read:] and the moved cursors.
// Both ids[prefix:read] and ids[prefix:] are decoded so that characters
// spanning several tokens, or merges that rewrite the previous text, are
// only emitted once they are complete. A result ending in U+FFFD is held
// back and the cursors stay where they were.
func DecodeToken(tok Tokenizer, ids []int, prefix, read int) (string, int, int, error) {
	if prefix < 0 || prefix > read || read > len(ids) {
		return "", prefix, read, errors.Wrapf(ErrInvariantViolation,
			"cursor order violated: prefix=%d read=%d len=%d", prefix, read, len(ids))
	}
	prefixText, err := tok.Decode(ids[prefix:read], false)
	if err != nil {
		return "", prefix, read, errors.Wrapf(ErrCollaboratorFailure, "decode: %v", err)
	}
	newText, err := tok.Decode(ids[prefix:], false)
	if err != nil {
		return "", prefix, read, errors.Wrapf(ErrCollaboratorFailure, "decode: %v", err)
	}

	prefixRunes := utf8.RuneCountInString(prefixText)
	if utf8.RuneCountInString(newText) > prefixRunes && !strings.HasSuffix(newText, "\uFFFD") {
		return dropRunes(newText, prefixRunes), read, len(ids), nil
	}
	return "", prefix, read, nil
}

func dropRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}

func decodeEach(tok Tokenizer, ids []int) ([]string, error) {
	if bd, ok := tok.(BatchDecoder); ok {
		rows := make([][]int, len(ids))
		for i, id := range ids {
			rows[i] = []int{id}
		}
		return bd.BatchDecode(rows, false)
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		s, err := tok.Decode([]int{id}, false)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
