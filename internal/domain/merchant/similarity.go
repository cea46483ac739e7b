package merchant

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Scores assigned by the individual similarity rules.
const (
	ExactScore     = 1.0
	SubstringScore = 0.9
)

// SimilarityConfig holds the relatedness thresholds
type SimilarityConfig struct {
	MinSubstringLength   int // Default: 5
	MaxEditDistance      int // Default: 2
	DistanceScaleDivisor int // Long names allow len/divisor edits (default: 8)

	// MinLengthPerEdit, when positive, additionally requires the shorter
	// variant to be longer than MinLengthPerEdit × distance, so that "bp"
	// and "ab" stay unrelated. Zero disables the check (default).
	MinLengthPerEdit int
}

// DefaultSimilarityConfig returns sensible defaults
func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		MinSubstringLength:   5,
		MaxEditDistance:      2,
		DistanceScaleDivisor: 8,
	}
}

// Scorer compares merchant strings through their normalized variants.
type Scorer struct {
	normalizer *Normalizer
	cache      *VariantCache
	config     SimilarityConfig
}

// NewScorer creates a scorer. cache may be nil to disable memoization.
func NewScorer(normalizer *Normalizer, cache *VariantCache, config SimilarityConfig) *Scorer {
	if normalizer == nil {
		normalizer = NewNormalizer(DefaultNormalizerConfig())
	}
	if config.MinSubstringLength <= 0 {
		config.MinSubstringLength = 5
	}
	if config.MaxEditDistance < 0 {
		config.MaxEditDistance = 0
	}
	return &Scorer{
		normalizer: normalizer,
		cache:      cache,
		config:     config,
	}
}

// Variants returns the normalized variants of raw, memoized when a cache is set
func (s *Scorer) Variants(raw string) []string {
	if v, ok := s.cache.Get(raw); ok {
		return v
	}
	v := s.normalizer.Normalize(raw)
	s.cache.Set(raw, v)
	return v
}

// AreRelated reports whether any variant pair satisfies the exact,
// substring or edit-distance rule.
func (s *Scorer) AreRelated(a, b string) bool {
	_, related := s.compare(a, b)
	return related
}

// Score returns the best similarity in [0,1] across all variant pairs.
// Empty input on either side scores 0.
func (s *Scorer) Score(a, b string) float64 {
	score, _ := s.compare(a, b)
	return score
}

func (s *Scorer) compare(a, b string) (float64, bool) {
	va := s.Variants(a)
	vb := s.Variants(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0, false
	}

	best := 0.0
	related := false
	for _, v1 := range va {
		for _, v2 := range vb {
			score, ok := s.comparePair(v1, v2)
			if score > best {
				best = score
			}
			related = related || ok
			if best == ExactScore {
				return best, true
			}
		}
	}
	return best, related
}

// comparePair applies the rules to one variant pair.
func (s *Scorer) comparePair(v1, v2 string) (float64, bool) {
	if v1 == v2 {
		return ExactScore, true
	}

	l1, l2 := len(v1), len(v2)
	if l1 >= s.config.MinSubstringLength && l2 >= s.config.MinSubstringLength {
		if strings.Contains(v1, v2) || strings.Contains(v2, v1) {
			return SubstringScore, true
		}
	}

	longer, shorter := max(l1, l2), min(l1, l2)
	distance := Levenshtein(v1, v2)
	score := 1 - float64(distance)/float64(longer)
	if score < 0 {
		score = 0
	}

	related := distance <= s.maxDistance(longer)
	if related && s.config.MinLengthPerEdit > 0 {
		related = shorter > s.config.MinLengthPerEdit*distance
	}
	return score, related
}

// maxDistance scales the allowed edit distance for long names.
func (s *Scorer) maxDistance(length int) int {
	d := s.config.MaxEditDistance
	if s.config.DistanceScaleDivisor > 0 {
		if scaled := length / s.config.DistanceScaleDivisor; scaled > d {
			d = scaled
		}
	}
	return d
}

// Levenshtein returns the edit distance between a and b where insertion,
// deletion and substitution each cost 1.
func Levenshtein(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}
