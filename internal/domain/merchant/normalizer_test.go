package merchant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_PrimaryVariant(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"lowercases and drops suffix", "Blue Bottle Coffee Inc.", "blue bottle coffee"},
		{"strips punctuation", "TRADER JOE'S #552", "trader joe s 552"},
		{"collapses whitespace", "  Whole   Foods\tMarket  ", "whole foods market"},
		{"folds accents", "Café Müller", "cafe muller"},
		{"drops connectors", "The Home Depot", "home depot"},
		{"keeps stop words when nothing else is left", "The Company", "the company"},
		{"falls back to raw when filter removes everything", "***", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestNormalize_BlankInput(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	assert.Nil(t, n.Normalize(""))
	assert.Nil(t, n.Normalize("   "))
}

func TestNormalize_ProcessorPrefix(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	got := n.Normalize("SQ *BLUE BOTTLE #12")

	assert.Equal(t, "sq blue bottle 12", got[0])
	assert.Contains(t, got, "blue bottle 12")
	assert.Contains(t, got, "blue bottle")
	assert.Contains(t, got, "sq blue bottle")
}

func TestNormalize_TrailingMarkerIgnored(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	got := n.Normalize("PAYPAL *")

	assert.Equal(t, []string{"paypal"}, got)
}

func TestNormalize_DigitStrippedVariant(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	got := n.Normalize("STARBUCKS #4521")

	assert.Equal(t, []string{"starbucks 4521", "starbucks"}, got)
}

func TestNormalize_AbbreviationExpansion(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	t.Run("single expansion", func(t *testing.T) {
		got := n.Normalize("Joe's Pizza Rest")
		assert.Contains(t, got, "joe s pizza restaurant")
	})

	t.Run("multiple expansions for one token", func(t *testing.T) {
		got := n.Normalize("Main St Deli")
		assert.Contains(t, got, "main street deli")
		assert.Contains(t, got, "main saint deli")
	})
}

func TestNormalize_KeepPunctuation(t *testing.T) {
	cfg := DefaultNormalizerConfig()
	cfg.KeepPunctuation = true
	n := NewNormalizer(cfg)

	got := n.Normalize("AT&T Wireless")

	assert.Equal(t, "at&t wireless", got[0])
}

func TestNormalize_DeterministicAndDeduplicated(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	first := n.Normalize("SQ *CAFE ROMA 22")
	second := n.Normalize("SQ *CAFE ROMA 22")

	assert.Equal(t, first, second)

	seen := make(map[string]bool)
	for _, v := range first {
		assert.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
	}
}
