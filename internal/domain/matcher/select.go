package matcher

import (
	"sort"
)

// SelectBest returns the highest-confidence candidate, or nil when the
// slice is empty. Ties prefer the smaller date difference, then the smaller
// amount difference, then the lower counterpart ID.
func SelectBest(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	ranked := Rank(candidates)
	return &ranked[0]
}

// Rank returns a copy of candidates ordered best first. The order is
// deterministic for a given candidate set regardless of input order.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return better(ranked[i], ranked[j])
	})
	return ranked
}

func better(a, b Candidate) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if a.DateDiffDays != b.DateDiffDays {
		return a.DateDiffDays < b.DateDiffDays
	}
	if cmp := a.AmountDiff.Cmp(b.AmountDiff); cmp != 0 {
		return cmp < 0
	}
	return a.Counterpart.ID < b.Counterpart.ID
}

// Accept returns the best candidate when it reaches the threshold
func (c *Calculator) Accept(candidates []Candidate) *Candidate {
	best := SelectBest(candidates)
	if best == nil || best.Total < c.config.Threshold {
		return nil
	}
	return best
}
