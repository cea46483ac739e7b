// Package matcher scores how likely a receipt and a transaction describe the
// same purchase.
//
// The calculator combines three sub-scores:
//   - Amount: ladder tiers or a percentage band (configurable)
//   - Date: linear decay to 0 at the window edge; beyond the window the pair is ineligible
//   - Merchant: fuzzy similarity of the merchant text
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	c := matcher.NewCalculator(config, scorer)
//	b, err := c.Confidence(transaction, receipt)
//	if err == nil && b.Eligible && b.Total >= config.Threshold {
//		// Good enough to link
//	}
package matcher

import (
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/shopspring/decimal"
)

// MerchantScorer returns a similarity in [0,1] for two merchant strings
type MerchantScorer interface {
	Score(a, b string) float64
}

// Calculator computes weighted confidence for record pairs.
// It is stateless apart from its config and safe for concurrent use.
type Calculator struct {
	config    Config
	tiers     []AmountTier
	weights   Weights
	merchants MerchantScorer
}

// NewCalculator creates a calculator with the given config
func NewCalculator(config Config, merchants MerchantScorer) *Calculator {
	return &Calculator{
		config:    config,
		tiers:     config.sortedTiers(),
		weights:   config.normalizedWeights(),
		merchants: merchants,
	}
}

// Config returns the calculator's configuration
func (c *Calculator) Config() Config {
	return c.config
}

// Confidence scores a against b. A missing amount or date on either side
// returns a *MissingFieldError.
func (c *Calculator) Confidence(a, b *record.FinancialRecord) (Breakdown, error) {
	if err := checkScorable(a); err != nil {
		return Breakdown{}, err
	}
	if err := checkScorable(b); err != nil {
		return Breakdown{}, err
	}

	days := record.DaysBetween(a.Date, b.Date)
	diff := a.Amount.Decimal.Sub(b.Amount.Decimal).Abs()
	result := Breakdown{DateDiffDays: days, AmountDiff: diff}

	if days > c.config.DateWindowDays {
		return result, nil
	}

	amountScore, ok := c.AmountScore(a.Amount.Decimal, b.Amount.Decimal)
	if !ok {
		return result, nil
	}

	result.Eligible = true
	result.AmountScore = amountScore
	result.DateScore = c.DateScore(days)
	if c.merchants != nil {
		result.MerchantScore = clamp(c.merchants.Score(a.MerchantText, b.MerchantText))
	}

	total := c.weights.Amount*result.AmountScore +
		c.weights.Date*result.DateScore +
		c.weights.Merchant*result.MerchantScore
	result.Total = clamp(total)

	return result, nil
}

// Score evaluates every counterpart for rec and returns the eligible ones.
// Counterparts missing an amount or date are skipped.
func (c *Calculator) Score(rec *record.FinancialRecord, counterparts []*record.FinancialRecord) ([]Candidate, error) {
	if err := checkScorable(rec); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(counterparts))
	for _, cp := range counterparts {
		b, err := c.Confidence(rec, cp)
		if err != nil || !b.Eligible {
			continue
		}
		candidates = append(candidates, Candidate{Counterpart: cp, Breakdown: b})
	}
	return candidates, nil
}

// AmountScore scores two amounts under the active policy. ok is false when
// the percent band rejects the pair outright.
func (c *Calculator) AmountScore(a, b decimal.Decimal) (score float64, ok bool) {
	diff := a.Sub(b).Abs()
	if diff.IsZero() {
		return 1.0, true
	}

	if c.config.AmountPolicy == PolicyPercentBand {
		return c.percentBandScore(diff, decimal.Max(a.Abs(), b.Abs()))
	}

	for _, tier := range c.tiers {
		if diff.LessThanOrEqual(tier.MaxDiff) {
			return clamp(tier.Score), true
		}
	}
	return 0, true
}

func (c *Calculator) percentBandScore(diff, reference decimal.Decimal) (float64, bool) {
	band := reference.Mul(c.config.BandPercent)
	if diff.GreaterThan(band) {
		return 0, false
	}

	decayPct := c.config.DecayPercent
	if !decayPct.IsPositive() {
		decayPct = c.config.BandPercent
	}
	edge := reference.Mul(decayPct)
	if !edge.IsPositive() || diff.GreaterThanOrEqual(edge) {
		return 0, true
	}

	ratio, _ := diff.Div(edge).Float64()
	return clamp(1 - ratio), true
}

// DateScore decays linearly from 1.0 at zero days to 0 at the window edge
func (c *Calculator) DateScore(days int) float64 {
	if days < 0 {
		days = -days
	}
	window := c.config.DateWindowDays
	if days > window {
		return 0
	}
	if window == 0 {
		return 1.0
	}
	return clamp(1 - float64(days)/float64(window))
}

// AmountBand returns the range counterpart amounts must fall in to score
// above 0 under the active policy.
func (c *Calculator) AmountBand(amount decimal.Decimal) (low, high decimal.Decimal) {
	amount = amount.Abs()

	if c.config.AmountPolicy == PolicyPercentBand {
		one := decimal.NewFromInt(1)
		low = amount.Mul(one.Sub(c.config.BandPercent))
		high = amount.DivRound(one.Sub(c.config.BandPercent), 4)
		return low, high
	}

	widest := decimal.Zero
	for _, tier := range c.tiers {
		widest = decimal.Max(widest, tier.MaxDiff)
	}
	low = amount.Sub(widest)
	if low.IsNegative() {
		low = decimal.Zero
	}
	return low, amount.Add(widest)
}

// DateWindow returns the number of days either side of a record's date that
// a counterpart may fall in.
func (c *Calculator) DateWindow() int {
	return c.config.DateWindowDays
}

func checkScorable(r *record.FinancialRecord) error {
	if !r.HasAmount() {
		return &MissingFieldError{RecordID: r.ID, Field: "amount"}
	}
	if !r.HasDate() {
		return &MissingFieldError{RecordID: r.ID, Field: "date"}
	}
	return nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
