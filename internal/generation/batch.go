package generation

import (
	"github.com/pkg/errors"

	"github.com/samcharles93/tgstep/internal/forward"
	"github.com/samcharles93/tgstep/internal/logits"
)

// Request is one tokenized generation request at admission time.
type Request struct {
	ID     string
	Prompt []int
	// Truncate keeps only the last Truncate prompt ids when positive.
	Truncate int

	Params   logits.Params
	Stopping StoppingParams

	// PrefillLogprobs asks for the prompt tokens, their log-probabilities
	// and texts on the first generated token.
	PrefillLogprobs bool
}

// Batch is the state of requests decoded together. Every per-request slice
// is index aligned with Requests, and rows are only ever removed.
type Batch struct {
	Requests      []Request
	AllTokenIDs   [][]int
	InputLengths  []int
	PrefixOffsets []int
	ReadOffsets   []int
	Choosers      []*logits.Chooser
	Stopping      []*StoppingCriteria

	MaxInputLength     int
	PaddingRightOffset int

	// Buffers for the forward pass. The model always gets AllTokenIDs;
	// InputIDs, the full prompt on the first step and the last generated
	// token afterwards, only goes to models that continue from a cache. AttentionMask
	// is left padded to MaxInputLength and has PaddingRightOffset free
	// columns on the right. PositionIDs is the position of each row's last
	// input token.
	InputIDs      [][]int
	AttentionMask [][]uint8
	PositionIDs   []int

	Cache forward.Cache
}

// NewBatch builds a batch from admitted requests.
func NewBatch(reqs []Request) (*Batch, error) {
	if len(reqs) == 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "empty batch")
	}
	n := len(reqs)
	b := &Batch{
		Requests:      make([]Request, n),
		AllTokenIDs:   make([][]int, n),
		InputLengths:  make([]int, n),
		PrefixOffsets: make([]int, n),
		ReadOffsets:   make([]int, n),
		Choosers:      make([]*logits.Chooser, n),
		Stopping:      make([]*StoppingCriteria, n),
		InputIDs:      make([][]int, n),
		AttentionMask: make([][]uint8, n),
		PositionIDs:   make([]int, n),
	}
	seen := make(map[string]struct{}, n)
	for i, r := range reqs {
		if _, dup := seen[r.ID]; dup {
			return nil, errors.Wrapf(ErrInvalidRequest, "duplicate request id %q", r.ID)
		}
		seen[r.ID] = struct{}{}

		prompt := r.Prompt
		if r.Truncate > 0 && len(prompt) > r.Truncate {
			prompt = prompt[len(prompt)-r.Truncate:]
		}
		if len(prompt) == 0 {
			return nil, errors.Wrapf(ErrInvalidRequest, "request %q has an empty prompt", r.ID)
		}
		chooser, err := logits.NewChooser(r.Params)
		if err != nil {
			return nil, errors.Wrapf(err, "request %q", r.ID)
		}
		stopping, err := NewStoppingCriteria(r.Stopping)
		if err != nil {
			return nil, errors.Wrapf(err, "request %q", r.ID)
		}

		r.Prompt = prompt
		b.Requests[i] = r
		b.AllTokenIDs[i] = append(make([]int, 0, len(prompt)+r.Stopping.MaxNewTokens), prompt...)
		b.InputIDs[i] = append([]int(nil), prompt...)
		b.InputLengths[i] = len(prompt)
		b.PrefixOffsets[i], b.ReadOffsets[i] = InitialOffsets(len(prompt))
		b.Choosers[i] = chooser
		b.Stopping[i] = stopping
		b.PositionIDs[i] = len(prompt) - 1
		b.MaxInputLength = max(b.MaxInputLength, len(prompt))
		b.PaddingRightOffset = max(b.PaddingRightOffset, r.Stopping.MaxNewTokens)
	}

	width := b.MaxInputLength + b.PaddingRightOffset
	for i, l := range b.InputLengths {
		mask := make([]uint8, width)
		for j := b.MaxInputLength - l; j < b.MaxInputLength; j++ {
			mask[j] = 1
		}
		b.AttentionMask[i] = mask
	}
	return b, nil
}

// Len is the number of requests in the batch.
func (b *Batch) Len() int { return len(b.Requests) }

// Validate checks the structural invariants of the batch.
func (b *Batch) Validate() error {
	n := len(b.Requests)
	lens := []int{
		len(b.AllTokenIDs), len(b.InputLengths), len(b.PrefixOffsets), len(b.ReadOffsets),
		len(b.Choosers), len(b.Stopping), len(b.InputIDs), len(b.AttentionMask), len(b.PositionIDs),
	}
	for _, l := range lens {
		if l != n {
			return errors.Wrapf(ErrInvariantViolation, "per-request slice length %d, batch size %d", l, n)
		}
	}
	width := b.MaxInputLength + b.PaddingRightOffset
	for i := range n {
		ids := b.AllTokenIDs[i]
		if b.InputLengths[i] != len(ids) {
			return errors.Wrapf(ErrInvariantViolation, "request %d: input length %d, %d ids", i, b.InputLengths[i], len(ids))
		}
		if b.InputLengths[i] > b.MaxInputLength {
			return errors.Wrapf(ErrInvariantViolation, "request %d: input length %d above max %d", i, b.InputLengths[i], b.MaxInputLength)
		}
		if p, r := b.PrefixOffsets[i], b.ReadOffsets[i]; p < 0 || p > r || r > len(ids) {
			return errors.Wrapf(ErrInvariantViolation, "request %d: cursor order violated: prefix=%d read=%d len=%d", i, p, r, len(ids))
		}
		if len(b.AttentionMask[i]) != width {
			return errors.Wrapf(ErrInvariantViolation, "request %d: attention mask width %d, want %d", i, len(b.AttentionMask[i]), width)
		}
		if b.Choosers[i] == nil || b.Stopping[i] == nil {
			return errors.Wrapf(ErrInvariantViolation, "request %d: missing chooser or stopping criteria", i)
		}
	}
	return nil
}

// Indices maps request ids to their positions in the batch.
func (b *Batch) Indices(ids []string) ([]int, error) {
	pos := make(map[string]int, len(b.Requests))
	for i, r := range b.Requests {
		pos[r.ID] = i
	}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		i, ok := pos[id]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidRequest, "request %q is not in the batch", id)
		}
		out = append(out, i)
	}
	return out, nil
}

// Running returns the positions of the requests that have not stopped.
// Every replica computes the same answer from its own state.
func (b *Batch) Running() []int {
	keep := make([]int, 0, len(b.Stopping))
	for i, s := range b.Stopping {
		if !s.Stopped() {
			keep = append(keep, i)
		}
	}
	return keep
}

// Filter keeps the rows listed in keep, in that order, and shrinks the
// attention mask and the right padding to what the survivors still need.
// It returns nil when keep is empty. The cache is left untouched; compacting
// it is up to the forward-pass owner.
func (b *Batch) Filter(keep []int) (*Batch, error) {
	if len(keep) == 0 {
		return nil, nil
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(keep))
	newMax, newPad := 0, 0
	for _, i := range keep {
		if i < 0 || i >= b.Len() {
			return nil, errors.Wrapf(ErrInvariantViolation, "filter index %d outside batch of %d", i, b.Len())
		}
		if _, dup := seen[i]; dup {
			return nil, errors.Wrapf(ErrInvariantViolation, "filter index %d repeated", i)
		}
		seen[i] = struct{}{}
		if b.Stopping[i].Stopped() {
			return nil, errors.Wrapf(ErrInvariantViolation, "request %q kept after it stopped", b.Requests[i].ID)
		}
		newMax = max(newMax, b.InputLengths[i])
		newPad = max(newPad, b.Stopping[i].Remaining())
	}

	width := b.MaxInputLength + b.PaddingRightOffset
	start := width - b.PaddingRightOffset - newMax
	end := width - b.PaddingRightOffset + newPad

	out := &Batch{
		Requests:           make([]Request, len(keep)),
		AllTokenIDs:        make([][]int, len(keep)),
		InputLengths:       make([]int, len(keep)),
		PrefixOffsets:      make([]int, len(keep)),
		ReadOffsets:        make([]int, len(keep)),
		Choosers:           make([]*logits.Chooser, len(keep)),
		Stopping:           make([]*StoppingCriteria, len(keep)),
		InputIDs:           make([][]int, len(keep)),
		AttentionMask:      make([][]uint8, len(keep)),
		PositionIDs:        make([]int, len(keep)),
		MaxInputLength:     newMax,
		PaddingRightOffset: newPad,
		Cache:              b.Cache,
	}
	for j, i := range keep {
		out.Requests[j] = b.Requests[i]
		out.AllTokenIDs[j] = b.AllTokenIDs[i]
		out.InputLengths[j] = b.InputLengths[i]
		out.PrefixOffsets[j] = b.PrefixOffsets[i]
		out.ReadOffsets[j] = b.ReadOffsets[i]
		out.Choosers[j] = b.Choosers[i]
		out.Stopping[j] = b.Stopping[i]
		out.InputIDs[j] = b.InputIDs[i]
		out.PositionIDs[j] = b.PositionIDs[i]

		mask := make([]uint8, end-start)
		copy(mask, b.AttentionMask[i][start:min(end, width)])
		out.AttentionMask[j] = mask
	}
	return out, nil
}
