// Package forward defines the forward-pass collaborator the decoding loop
// drives, along with the implementations shipped with the server.
package forward

import (
	"context"
	"fmt"
)

// Cache is cross-step state owned by a Model. Callers store it and hand it
// back on the next call without looking inside.
type Cache any

// Output is one forward pass worth of scores.
type Output struct {
	// Logits holds one next-token score row per input row.
	Logits [][]float32
	// PrefillLogits optionally holds, per input row, the score rows for every
	// position (row j scores the token at j+1). Models that can produce it
	// fill it on the first call for a batch, when cache is nil.
	PrefillLogits [][][]float32
	Cache         Cache
}

// Model maps token rows to next-token scores. ids holds every token of each
// row so far, prompt and generated, and lengths[i] == len(ids[i]). The
// scores must follow from ids alone: cache is what the model returned on
// the previous call for the same batch and may only save recomputation.
// Implementations must not modify ids.
type Model interface {
	Forward(ctx context.Context, ids [][]int, lengths []int, cache Cache) (*Output, error)
	VocabSize() int
	Close() error
}

// Incremental is implemented by models whose Cache carries enough per-row
// state to continue a sequence. Once a batch holds such a cache, the
// decoding loop passes only the tokens appended since the previous call;
// lengths still holds each row's full length.
type Incremental interface {
	ForwardIncremental(ctx context.Context, ids [][]int, lengths []int, cache Cache) (*Output, error)
}

// CacheFilter is implemented by models whose Cache can be compacted to a
// subset of rows when requests leave a batch.
type CacheFilter interface {
	FilterCache(cache Cache, keep []int) (Cache, error)
}

// Call runs m.Forward and converts a panic inside the model into an error.
func Call(ctx context.Context, m Model, ids [][]int, lengths []int, cache Cache) (*Output, error) {
	return guard(ctx, func() (*Output, error) { return m.Forward(ctx, ids, lengths, cache) })
}

// CallIncremental is Call for the incremental entry point.
func CallIncremental(ctx context.Context, m Incremental, ids [][]int, lengths []int, cache Cache) (*Output, error) {
	return guard(ctx, func() (*Output, error) { return m.ForwardIncremental(ctx, ids, lengths, cache) })
}

func guard(ctx context.Context, run func() (*Output, error)) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("forward pass panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return run()
}

// CheckLengths verifies that lengths describes ids.
func CheckLengths(ids [][]int, lengths []int) error {
	if len(lengths) != len(ids) {
		return fmt.Errorf("%d rows but %d lengths", len(ids), len(lengths))
	}
	for i, row := range ids {
		if len(row) != lengths[i] {
			return fmt.Errorf("row %d holds %d ids, length says %d", i, len(row), lengths[i])
		}
	}
	return nil
}

// Pad right-pads ragged rows with padID into a rectangular matrix and
// returns each row's original length.
func Pad(ids [][]int, padID int) ([][]int, []int) {
	width := 0
	for _, row := range ids {
		width = max(width, len(row))
	}
	out := make([][]int, len(ids))
	lengths := make([]int, len(ids))
	for i, row := range ids {
		lengths[i] = len(row)
		padded := make([]int, width)
		copy(padded, row)
		for j := len(row); j < width; j++ {
			padded[j] = padID
		}
		out[i] = padded
	}
	return out, lengths
}

// CheckShape verifies that out carries one row of width vocab per input row.
func CheckShape(out *Output, rows, vocab int) error {
	if out == nil {
		return fmt.Errorf("forward pass returned no output")
	}
	if len(out.Logits) != rows {
		return fmt.Errorf("forward pass returned %d logit rows for %d inputs", len(out.Logits), rows)
	}
	for i, row := range out.Logits {
		if len(row) == 0 {
			return fmt.Errorf("forward pass returned an empty logit row %d", i)
		}
		if vocab > 0 && len(row) != vocab {
			return fmt.Errorf("logit row %d has width %d, vocabulary is %d", i, len(row), vocab)
		}
	}
	return nil
}
