package logits

import (
	"cmp"
	"math"
	"slices"
)

var negInf = float32(math.Inf(-1))

// applyTopK masks every score below the k-th largest one. Ties with the
// k-th value survive. The shortlist is built by insertion, O(V*K), which
// is fine for the small k values requests use.
func (c *Chooser) applyTopK(scores []float32, k int) {
	top := make([]float32, 0, k+1)
	for _, v := range scores {
		pos := len(top)
		for pos > 0 && top[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		top = append(top, 0)
		copy(top[pos+1:], top[pos:])
		top[pos] = v
		if len(top) > k {
			top = top[:k]
		}
	}
	threshold := top[len(top)-1]
	for i, v := range scores {
		if v < threshold {
			scores[i] = negInf
		}
	}
}

// applyTopP keeps the smallest set of most likely tokens whose probability
// mass reaches p. The most likely token always survives.
func (c *Chooser) applyTopP(scores []float32, p float32) {
	probs := softmax64(scores)
	order := c.order(len(scores), func(a, b int) int {
		return cmp.Compare(probs[b], probs[a])
	})
	c.keepMass(scores, probs, order, float64(p))
}

// applyTypicalP keeps the tokens whose surprisal is closest to the
// distribution's entropy until their mass reaches p.
func (c *Chooser) applyTypicalP(scores []float32, p float32) {
	probs := softmax64(scores)
	var entropy float64
	for _, pr := range probs {
		if pr > 0 {
			entropy -= pr * math.Log(pr)
		}
	}
	shifted := make([]float64, len(probs))
	for i, pr := range probs {
		if pr == 0 {
			shifted[i] = math.Inf(1)
			continue
		}
		shifted[i] = math.Abs(-math.Log(pr) - entropy)
	}
	order := c.order(len(scores), func(a, b int) int {
		return cmp.Compare(shifted[a], shifted[b])
	})
	c.keepMass(scores, probs, order, float64(p))
}

func (c *Chooser) order(n int, less func(a, b int) int) []int {
	if cap(c.idx) < n {
		c.idx = make([]int, n)
	}
	idx := c.idx[:n]
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, less)
	return idx
}

// keepMass walks order and masks every token reached once the mass of the
// tokens before it is already >= mass.
func (c *Chooser) keepMass(scores []float32, probs []float64, order []int, mass float64) {
	var cum float64
	for j, i := range order {
		if j > 0 && cum >= mass {
			scores[i] = negInf
			continue
		}
		cum += probs[i]
	}
}

func softmax64(scores []float32) []float64 {
	out := make([]float64, len(scores))
	maxv := math.Inf(-1)
	for _, v := range scores {
		if float64(v) > maxv {
			maxv = float64(v)
		}
	}
	if math.IsInf(maxv, -1) {
		return out
	}
	var sum float64
	for i, v := range scores {
		e := math.Exp(float64(v) - maxv)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
