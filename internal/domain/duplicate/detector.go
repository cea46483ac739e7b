// Package duplicate flags records that look like a second import of the same
// expense.
//
// Detection is amount-first: a pair is only considered when the amounts are
// within AmountTolerance and the merchant strings are related. Confidence is
// then summed from fixed bonuses:
//   - +0.5 exact amount
//   - +0.3 same calendar date
//   - +0.1 same non-empty category
//   - +0.1 related merchant description
//
// Flags are advisory. The detector never changes link state and never
// removes records.
package duplicate

import (
	"sort"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/shopspring/decimal"
)

// Confidence bonuses
const (
	ExactAmountBonus = 0.5
	SameDateBonus    = 0.3
	CategoryBonus    = 0.1
	DescriptionBonus = 0.1
)

// MerchantRelater decides whether two merchant strings name the same merchant
type MerchantRelater interface {
	AreRelated(a, b string) bool
}

// Config holds detector configuration
type Config struct {
	AmountTolerance decimal.Decimal // Default: 0.01
	MinConfidence   float64         // Default: 0 (every pair past the gate is flagged)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountTolerance: decimal.RequireFromString("0.01"),
		MinConfidence:   0,
	}
}

// Detector finds likely duplicate records
type Detector struct {
	config    Config
	merchants MerchantRelater
	now       func() time.Time
}

// NewDetector creates a detector with the given config
func NewDetector(config Config, merchants MerchantRelater) *Detector {
	return &Detector{
		config:    config,
		merchants: merchants,
		now:       time.Now,
	}
}

// Config returns the detector's configuration
func (d *Detector) Config() Config {
	return d.config
}

// FindDuplicates compares candidate against existing records of the same
// kind. Results are sorted by confidence descending, then by ID.
func (d *Detector) FindDuplicates(candidate *record.FinancialRecord, existing []*record.FinancialRecord) []record.DuplicateFlag {
	if candidate == nil || !candidate.HasAmount() {
		return nil
	}

	createdAt := d.now().UTC()
	var flags []record.DuplicateFlag
	for _, other := range existing {
		if other == nil || other.ID == candidate.ID || other.Kind != candidate.Kind {
			continue
		}

		confidence, ok := d.Confidence(candidate, other)
		if !ok || confidence < d.config.MinConfidence {
			continue
		}

		flags = append(flags, record.DuplicateFlag{
			RecordID:      candidate.ID,
			DuplicateOfID: other.ID,
			Confidence:    confidence,
			CreatedAt:     createdAt,
		})
	}

	sort.SliceStable(flags, func(i, j int) bool {
		if flags[i].Confidence != flags[j].Confidence {
			return flags[i].Confidence > flags[j].Confidence
		}
		return flags[i].DuplicateOfID < flags[j].DuplicateOfID
	})

	return flags
}

// Confidence returns the summed duplicate confidence for a pair. ok is false
// when the pair fails the amount or merchant gate.
func (d *Detector) Confidence(a, b *record.FinancialRecord) (float64, bool) {
	if !a.HasAmount() || !b.HasAmount() {
		return 0, false
	}

	diff := a.Amount.Decimal.Sub(b.Amount.Decimal).Abs()
	if diff.GreaterThan(d.config.AmountTolerance) {
		return 0, false
	}

	related := d.merchants != nil && d.merchants.AreRelated(a.MerchantText, b.MerchantText)
	if !related {
		return 0, false
	}

	confidence := 0.0
	if diff.IsZero() {
		confidence += ExactAmountBonus
	}
	if a.HasDate() && b.HasDate() && record.DaysBetween(a.Date, b.Date) == 0 {
		confidence += SameDateBonus
	}
	if a.Category != "" && a.Category == b.Category {
		confidence += CategoryBonus
	}
	// Every pair past the gate has related merchant text.
	confidence += DescriptionBonus

	if confidence > 1 {
		confidence = 1
	}
	return confidence, true
}
