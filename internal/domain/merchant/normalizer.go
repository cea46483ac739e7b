// Package merchant canonicalizes merchant strings and scores how similar two
// of them are.
//
// Bank feeds, card processors and OCR all spell the same merchant
// differently ("SQ *BLUE BOTTLE #12", "Blue Bottle Coffee Inc."). The
// Normalizer turns a raw string into a small set of comparable variants and
// the Scorer compares variant sets with exact, substring and edit-distance
// rules.
//
// Example usage:
//
//	n := merchant.NewNormalizer(merchant.DefaultNormalizerConfig())
//	cache, _ := merchant.NewVariantCache(4096)
//	s := merchant.NewScorer(n, cache, merchant.DefaultSimilarityConfig())
//	s.AreRelated("STARBUCKS #4521", "Starbucks Coffee") // true
package merchant

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// processorMarker separates an aggregator prefix from the merchant name
// ("SQ *COFFEE SHOP", "PAYPAL *SPOTIFY").
const processorMarker = "*"

// punctuationAllowlist is kept when NormalizerConfig.KeepPunctuation is set.
const punctuationAllowlist = "&'-"

// NormalizerConfig holds normalization settings
type NormalizerConfig struct {
	KeepPunctuation bool
	StopWords       []string
	Abbreviations   map[string][]string
}

// DefaultNormalizerConfig returns the stop-list and abbreviation table used in production
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		StopWords: []string{
			// corporate suffixes
			"inc", "llc", "ltd", "corp", "co", "company", "group", "services",
			"corporation", "limited", "plc", "gmbh", "com",
			// connectors
			"and", "of", "by", "for", "the", "www", "http", "https",
		},
		Abbreviations: map[string][]string{
			"rest":  {"restaurant"},
			"cafe":  {"coffee"},
			"mkt":   {"market"},
			"ctr":   {"center"},
			"intl":  {"international"},
			"svc":   {"service"},
			"pharm": {"pharmacy"},
			"whse":  {"warehouse"},
			"st":    {"street", "saint"},
		},
	}
}

// Normalizer turns raw merchant strings into comparable variants.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	keepPunctuation bool
	stopWords       map[string]struct{}
	abbreviations   map[string][]string
}

// NewNormalizer creates a normalizer with the given config
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	abbrev := make(map[string][]string, len(cfg.Abbreviations))
	for k, v := range cfg.Abbreviations {
		expansions := make([]string, len(v))
		copy(expansions, v)
		sort.Strings(expansions)
		abbrev[strings.ToLower(k)] = expansions
	}

	return &Normalizer{
		keepPunctuation: cfg.KeepPunctuation,
		stopWords:       stop,
		abbreviations:   abbrev,
	}
}

// Normalize returns the normalized variants of raw, primary variant first.
// The result is non-empty for any input that is not blank.
func (n *Normalizer) Normalize(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	variants := newVariantSet()

	primary := n.clean(raw)
	if primary == "" {
		// Nothing survived the character filter ("***", "#12").
		primary = strings.ToLower(strings.Join(strings.Fields(raw), " "))
	}
	variants.add(primary)

	if idx := strings.LastIndex(raw, processorMarker); idx >= 0 && idx < len(raw)-1 {
		variants.add(n.clean(raw[idx+1:]))
	}

	for _, v := range variants.snapshot() {
		variants.add(stripDigits(v))
	}

	for _, v := range variants.snapshot() {
		for _, expanded := range n.expand(v) {
			variants.add(expanded)
		}
	}

	return variants.snapshot()
}

// clean applies accent folding, lowercasing, character filtering,
// whitespace collapsing and stop-word removal.
func (n *Normalizer) clean(s string) string {
	s = strings.ToLower(foldAccents(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case n.keepPunctuation && strings.ContainsRune(punctuationAllowlist, r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := n.stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}

	// A name made only of stop words ("The Company") keeps its tokens.
	if len(kept) == 0 {
		kept = tokens
	}

	return strings.Join(kept, " ")
}

// expand substitutes each abbreviation token with each of its expansions.
func (n *Normalizer) expand(v string) []string {
	if len(n.abbreviations) == 0 {
		return nil
	}

	tokens := strings.Fields(v)
	var out []string
	for i, tok := range tokens {
		expansions, ok := n.abbreviations[tok]
		if !ok {
			continue
		}
		for _, e := range expansions {
			replaced := make([]string, len(tokens))
			copy(replaced, tokens)
			replaced[i] = e
			out = append(out, strings.Join(replaced, " "))
		}
	}
	return out
}

// foldAccents strips diacritics ("Café Müller" -> "Cafe Muller").
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// stripDigits removes digit runs and re-collapses whitespace.
func stripDigits(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(stripped), " ")
}

// variantSet keeps insertion order and drops empties and duplicates.
type variantSet struct {
	seen  map[string]struct{}
	order []string
}

func newVariantSet() *variantSet {
	return &variantSet{seen: make(map[string]struct{})}
}

func (v *variantSet) add(s string) {
	if s == "" {
		return
	}
	if _, ok := v.seen[s]; ok {
		return
	}
	v.seen[s] = struct{}{}
	v.order = append(v.order, s)
}

func (v *variantSet) snapshot() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}
