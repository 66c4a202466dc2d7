package forward

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashModel is a deterministic stand-in for a neural network: the scores
// for a position are a pure function of the token prefix, computed from a
// chained xxhash of the ids. It exercises the full decoding loop without
// weights, and every replica running it produces bit-identical scores.
type HashModel struct {
	vocab int
	// Scale bounds the generated scores to [-Scale, Scale).
	Scale float32
	// Prefill makes the first call for a batch return per-position rows.
	Prefill bool
}

// hashCache is the chained prefix hash and length of every row.
type hashCache struct {
	rows []uint64
	lens []int
}

func NewHashModel(vocab int) *HashModel {
	return &HashModel{vocab: vocab, Scale: 8}
}

func (m *HashModel) VocabSize() int { return m.vocab }
func (m *HashModel) Close() error   { return nil }

// Forward hashes every row from its first token. cache is not read.
func (m *HashModel) Forward(ctx context.Context, ids [][]int, lengths []int, cache Cache) (*Output, error) {
	if err := CheckLengths(ids, lengths); err != nil {
		return nil, fmt.Errorf("hash model: %w", err)
	}
	state := &hashCache{rows: make([]uint64, len(ids)), lens: make([]int, len(ids))}
	return m.run(ctx, ids, state, cache == nil && m.Prefill)
}

// ForwardIncremental continues each row from the prefix hash in cache.
func (m *HashModel) ForwardIncremental(ctx context.Context, ids [][]int, lengths []int, cache Cache) (*Output, error) {
	c, ok := cache.(*hashCache)
	if !ok {
		return nil, fmt.Errorf("hash model: foreign cache %T", cache)
	}
	if len(c.rows) != len(ids) || len(lengths) != len(ids) {
		return nil, fmt.Errorf("hash model: cache holds %d rows, got %d ids and %d lengths", len(c.rows), len(ids), len(lengths))
	}
	for i, row := range ids {
		if c.lens[i]+len(row) != lengths[i] {
			return nil, fmt.Errorf("hash model: row %d continues %d ids with %d, length says %d", i, c.lens[i], len(row), lengths[i])
		}
	}
	state := &hashCache{rows: append([]uint64(nil), c.rows...), lens: append([]int(nil), c.lens...)}
	return m.run(ctx, ids, state, false)
}

func (m *HashModel) run(ctx context.Context, ids [][]int, state *hashCache, prefill bool) (*Output, error) {
	if m.vocab <= 0 {
		return nil, fmt.Errorf("hash model: vocabulary size must be positive")
	}
	out := &Output{Logits: make([][]float32, len(ids)), Cache: state}
	if prefill {
		out.PrefillLogits = make([][][]float32, len(ids))
	}
	for i, row := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(row) == 0 {
			return nil, fmt.Errorf("hash model: row %d is empty", i)
		}
		h := state.rows[i]
		for _, id := range row {
			h = chainHash(h, id)
			if prefill {
				out.PrefillLogits[i] = append(out.PrefillLogits[i], m.scores(h))
			}
		}
		state.rows[i] = h
		state.lens[i] += len(row)
		out.Logits[i] = m.scores(h)
	}
	return out, nil
}

// FilterCache keeps the rows listed in keep, in that order.
func (m *HashModel) FilterCache(cache Cache, keep []int) (Cache, error) {
	c, ok := cache.(*hashCache)
	if !ok {
		return nil, fmt.Errorf("hash model: foreign cache %T", cache)
	}
	out := &hashCache{rows: make([]uint64, len(keep)), lens: make([]int, len(keep))}
	for j, i := range keep {
		if i < 0 || i >= len(c.rows) {
			return nil, fmt.Errorf("hash model: cache row %d out of range", i)
		}
		out.rows[j] = c.rows[i]
		out.lens[j] = c.lens[i]
	}
	return out, nil
}

func chainHash(prefix uint64, id int) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], prefix)
	binary.LittleEndian.PutUint32(buf[8:], uint32(id))
	return xxhash.Sum64(buf[:])
}

func (m *HashModel) scores(h uint64) []float32 {
	row := make([]float32, m.vocab)
	for v := range row {
		x := splitmix(h + uint64(v)*0x9e3779b97f4a7c15)
		u := float64(x>>11) / float64(1<<53)
		row[v] = float32((2*u - 1) * float64(m.Scale))
	}
	return row
}

func splitmix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
