package logits

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
)

var (
	// ErrConfigurationConflict is returned when a request mixes mutually
	// exclusive generation controls.
	ErrConfigurationConflict = errors.New("configuration conflict")
	// ErrInvalidParameter is returned for out-of-range sampling values.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Kind is the closed set of token selection strategies.
type Kind int

const (
	KindGreedy Kind = iota
	KindSampling
)

func (k Kind) String() string {
	switch k {
	case KindGreedy:
		return "greedy"
	case KindSampling:
		return "sampling"
	default:
		return "unknown"
	}
}

// Params configures a Chooser. Zero values mean "not set".
type Params struct {
	Temperature       float32
	TopK              int
	TopP              float32
	TypicalP          float32
	RepetitionPenalty float32

	// DoSample forces sampling even when no warper is configured.
	DoSample bool
	// Greedy forces deterministic arg-max selection. It conflicts with
	// DoSample, any warper and an explicit seed.
	Greedy bool

	Seed *uint64
}

func (p Params) hasWarpers() bool {
	return (p.Temperature != 0 && p.Temperature != 1) ||
		p.TopK > 0 ||
		(p.TopP > 0 && p.TopP < 1) ||
		(p.TypicalP > 0 && p.TypicalP < 1)
}

func (p Params) validate() error {
	if p.Temperature < 0 || math.IsNaN(float64(p.Temperature)) {
		return errors.Wrapf(ErrInvalidParameter, "temperature must be positive, got %v", p.Temperature)
	}
	if p.TopK < 0 {
		return errors.Wrapf(ErrInvalidParameter, "top_k must be positive, got %d", p.TopK)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return errors.Wrapf(ErrInvalidParameter, "top_p must be in (0, 1], got %v", p.TopP)
	}
	if p.TypicalP < 0 || p.TypicalP > 1 {
		return errors.Wrapf(ErrInvalidParameter, "typical_p must be in (0, 1], got %v", p.TypicalP)
	}
	if p.RepetitionPenalty < 0 {
		return errors.Wrapf(ErrInvalidParameter, "repetition_penalty must be positive, got %v", p.RepetitionPenalty)
	}
	if p.Greedy {
		switch {
		case p.DoSample:
			return errors.Wrap(ErrConfigurationConflict, "greedy decoding requested together with do_sample")
		case p.hasWarpers():
			return errors.Wrap(ErrConfigurationConflict, "greedy decoding requested together with sampling warpers")
		case p.Seed != nil:
			return errors.Wrap(ErrConfigurationConflict, "greedy decoding requested together with a sampling seed")
		}
	}
	return nil
}

// Chooser selects the next token of one request. It is not safe for
// concurrent use; each request owns its Chooser.
type Chooser struct {
	kind   Kind
	params Params
	seed   uint64
	rng    *rand.Rand

	scores   []float32
	logprobs []float32
	idx      []int
	seen     map[int]struct{}
}

// NewChooser validates params and builds the matching strategy. Sampling
// choosers without an explicit seed draw one so it can be reported later.
func NewChooser(params Params) (*Chooser, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.RepetitionPenalty == 0 {
		params.RepetitionPenalty = 1
	}
	if params.Temperature == 0 {
		params.Temperature = 1
	}

	c := &Chooser{kind: KindGreedy, params: params}
	if !params.Greedy && (params.DoSample || params.hasWarpers()) {
		c.kind = KindSampling
		if params.Seed != nil {
			c.seed = *params.Seed
		} else {
			c.seed = rand.Uint64()
		}
		c.rng = rand.New(rand.NewPCG(c.seed, c.seed^0x9e3779b97f4a7c15))
	}
	return c, nil
}

// Kind reports the strategy in use.
func (c *Chooser) Kind() Kind { return c.kind }

// Seed returns the sampling seed. Greedy choosers have none.
func (c *Chooser) Seed() (uint64, bool) {
	if c.kind != KindSampling {
		return 0, false
	}
	return c.seed, true
}

// Choose picks the next token given the sequence so far and the raw score
// row for the current position. The returned log-probabilities are the
// log-softmax of the processed scores; the slice is reused by the next call.
func (c *Chooser) Choose(seq []int, row []float32) (int, []float32) {
	if len(row) == 0 {
		panic("logits: empty score row")
	}
	if cap(c.scores) < len(row) {
		c.scores = make([]float32, len(row))
		c.logprobs = make([]float32, len(row))
	}
	scores := c.scores[:len(row)]
	copy(scores, row)

	if c.params.RepetitionPenalty != 1 {
		c.applyRepetitionPenalty(scores, seq)
	}

	if c.kind == KindGreedy {
		c.logprobs = LogSoftmax(c.logprobs[:len(row)], scores)
		return argmax(scores), c.logprobs
	}

	if c.params.Temperature != 1 {
		inv := 1 / c.params.Temperature
		for i := range scores {
			scores[i] *= inv
		}
	}
	if c.params.TopK > 0 && c.params.TopK < len(scores) {
		c.applyTopK(scores, c.params.TopK)
	}
	if c.params.TopP > 0 && c.params.TopP < 1 {
		c.applyTopP(scores, c.params.TopP)
	}
	if c.params.TypicalP > 0 && c.params.TypicalP < 1 {
		c.applyTypicalP(scores, c.params.TypicalP)
	}

	c.logprobs = LogSoftmax(c.logprobs[:len(row)], scores)
	return c.draw(c.logprobs), c.logprobs
}

func (c *Chooser) draw(logprobs []float32) int {
	r := c.rng.Float64()
	var acc float64
	last := -1
	for i, lp := range logprobs {
		if math.IsInf(float64(lp), -1) {
			continue
		}
		acc += math.Exp(float64(lp))
		last = i
		if r < acc {
			return i
		}
	}
	// rounding left r above the accumulated mass
	return last
}

func (c *Chooser) applyRepetitionPenalty(scores []float32, seq []int) {
	if c.seen == nil {
		c.seen = make(map[int]struct{}, len(seq))
	}
	clear(c.seen)
	penalty := c.params.RepetitionPenalty
	for _, id := range seq {
		if id < 0 || id >= len(scores) {
			continue
		}
		if _, ok := c.seen[id]; ok {
			continue
		}
		c.seen[id] = struct{}{}
		if scores[id] < 0 {
			scores[id] *= penalty
		} else {
			scores[id] /= penalty
		}
	}
}

// argmax returns the index of the maximum value in the slice. If the slice is empty it panics.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// LogSoftmax writes the log-softmax of row into dst (allocating when dst is
// too small) and returns it. Entries at -Inf stay at -Inf.
func LogSoftmax(dst, row []float32) []float32 {
	if cap(dst) < len(row) {
		dst = make([]float32, len(row))
	}
	dst = dst[:len(row)]
	if len(row) == 0 {
		return dst
	}
	maxv := float32(math.Inf(-1))
	for _, v := range row {
		if v > maxv {
			maxv = v
		}
	}
	if math.IsInf(float64(maxv), -1) {
		for i := range dst {
			dst[i] = maxv
		}
		return dst
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxv))
	}
	logZ := float64(maxv) + math.Log(sum)
	for i, v := range row {
		dst[i] = float32(float64(v) - logZ)
	}
	return dst
}
