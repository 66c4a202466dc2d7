package generation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/tgstep/internal/logits"
)

const eosID = 0

// fakeVocab: id 5 and 6 are the two UTF-8 bytes of "é".
var fakeVocab = []string{"<eos>", "a", "b", "c", " d", "\xc3", "\xa9", "!"}

type fakeTokenizer struct {
	decodes int
}

func (f *fakeTokenizer) Decode(ids []int, skipSpecial bool) (string, error) {
	f.decodes++
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(fakeVocab) {
			return "", fmt.Errorf("id %d out of range", id)
		}
		if id == eosID && skipSpecial {
			continue
		}
		sb.WriteString(fakeVocab[id])
	}
	return strings.ToValidUTF8(sb.String(), "\uFFFD"), nil
}

func (f *fakeTokenizer) IsSpecial(id int) bool { return id == eosID }

// favour returns a score row over fakeVocab peaking at id.
func favour(id int) []float32 {
	row := make([]float32, len(fakeVocab))
	row[id] = 10
	return row
}

func favourAll(n, id int) [][]float32 {
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = favour(id)
	}
	return rows
}

func greedyRequest(id string, prompt []int, maxNew int) Request {
	return Request{
		ID:       id,
		Prompt:   prompt,
		Stopping: StoppingParams{MaxNewTokens: maxNew, EOSTokenIDs: []int{eosID}},
	}
}

func mustBatch(t *testing.T, reqs ...Request) *Batch {
	t.Helper()
	b, err := NewBatch(reqs)
	require.NoError(t, err)
	return b
}

func seedPtr(v uint64) *uint64 { return &v }

func samplingParams(seed uint64) logits.Params {
	return logits.Params{Temperature: 0.8, TopK: 5, TopP: 0.9, Seed: seedPtr(seed)}
}

func requestIDs(gens []Generation) []string {
	out := make([]string, len(gens))
	for i, g := range gens {
		out[i] = g.RequestID
	}
	return out
}

func requireCursors(t *testing.T, b *Batch) {
	t.Helper()
	for i := range b.Requests {
		p, r, n := b.PrefixOffsets[i], b.ReadOffsets[i], len(b.AllTokenIDs[i])
		require.True(t, 0 <= p && p <= r && r <= n, "request %d: prefix=%d read=%d len=%d", i, p, r, n)
	}
}
