package inference

import (
	"slices"

	"github.com/samcharles93/tgstep/internal/tokenizer"
)

var endOfTurnMarkers = []string{
	"<|im_end|>",
	"<|eot_id|>",
	"<|endoftext|>",
	"<|end_of_text|>",
	"</s>",
}

// BuildStopTokens returns the EOS id plus every end-of-turn marker the
// vocabulary carries as a single special token.
func BuildStopTokens(tok tokenizer.Tokenizer) []int {
	var stop []int
	if eos := tok.EOSID(); eos >= 0 {
		stop = append(stop, eos)
	}
	for _, marker := range endOfTurnMarkers {
		ids, err := safeEncode(tok, marker)
		if err != nil || len(ids) != 1 || !tok.IsSpecial(ids[0]) {
			continue
		}
		if !slices.Contains(stop, ids[0]) {
			stop = append(stop, ids[0])
		}
	}
	return stop
}
