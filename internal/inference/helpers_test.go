package inference

import (
	"strings"
	"testing"

	"github.com/samcharles93/tgstep/internal/forward"
	"github.com/samcharles93/tgstep/internal/generation"
)

var letters = []string{"<eos>", "a", "b", "c", "d", "e", "f", "g"}

// letterTokenizer maps each letter a-g to one id; anything else is dropped.
type letterTokenizer struct{}

func (letterTokenizer) Encode(text string) ([]int, error) {
	var ids []int
	for _, r := range text {
		if r >= 'a' && r <= 'g' {
			ids = append(ids, int(r-'a')+1)
		}
	}
	return ids, nil
}

func (letterTokenizer) Decode(ids []int, skipSpecial bool) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id == 0 && skipSpecial {
			continue
		}
		sb.WriteString(letters[id])
	}
	return sb.String(), nil
}

func (letterTokenizer) IsSpecial(id int) bool { return id == 0 }
func (letterTokenizer) EOSID() int            { return 0 }
func (letterTokenizer) VocabSize() int        { return len(letters) }

func newReplicas(n int) []*generation.Generator {
	out := make([]*generation.Generator, n)
	for rank := range out {
		out[rank] = &generation.Generator{
			Model:     forward.NewHashModel(len(letters)),
			Tokenizer: letterTokenizer{},
			Shard:     generation.Shard{Rank: rank, WorldSize: n},
		}
	}
	return out
}

func newLoopEngine() *EngineImpl {
	return NewEngine(&Loop{Gen: newReplicas(1)[0]}, letterTokenizer{}, nil, nil)
}

func newShardedEngine(t *testing.T, n int) *EngineImpl {
	t.Helper()
	r, err := NewShardedRunner(newReplicas(n))
	if err != nil {
		t.Fatalf("sharded runner: %v", err)
	}
	return NewEngine(r, letterTokenizer{}, nil, nil)
}

func seeded(seed uint64) *uint64 { return &seed }
