package matcher

import (
	"errors"
	"fmt"
	"sort"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/shopspring/decimal"
)

// AmountPolicy selects how amount differences are scored
type AmountPolicy string

const (
	// PolicyLadder scores by absolute difference tiers.
	PolicyLadder AmountPolicy = "ladder"
	// PolicyPercentBand rejects outside a percentage band and decays linearly inside it.
	PolicyPercentBand AmountPolicy = "percent_band"
)

// AmountTier awards Score when the absolute difference is at most MaxDiff
type AmountTier struct {
	MaxDiff decimal.Decimal
	Score   float64
}

// Weights for the three sub-scores. They are normalized to sum to 1.
type Weights struct {
	Amount   float64
	Date     float64
	Merchant float64
}

// Config holds matcher configuration
type Config struct {
	Threshold      float64 // Minimum total to link (default: 0.8)
	Weights        Weights // Default: 0.4/0.3/0.3
	DateWindowDays int     // Default: 3

	AmountPolicy AmountPolicy // Default: ladder
	AmountTiers  []AmountTier // Ladder tiers; exact equality always scores 1.0

	// Percent band: candidates outside BandPercent of the larger amount are
	// rejected; the score reaches 0 at DecayPercent (defaults to BandPercent).
	BandPercent  decimal.Decimal
	DecayPercent decimal.Decimal

	ScoreWorkers int // Parallel scoring goroutines per record (default: 4)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Threshold:      0.8,
		Weights:        Weights{Amount: 0.4, Date: 0.3, Merchant: 0.3},
		DateWindowDays: 3,
		AmountPolicy:   PolicyLadder,
		AmountTiers: []AmountTier{
			{MaxDiff: decimal.RequireFromString("0.01"), Score: 0.9},
			{MaxDiff: decimal.RequireFromString("0.10"), Score: 0.8},
			{MaxDiff: decimal.RequireFromString("1.00"), Score: 0.6},
		},
		BandPercent:  decimal.RequireFromString("0.05"),
		DecayPercent: decimal.Zero,
		ScoreWorkers: 4,
	}
}

// Validate checks the config for values the calculator cannot work with
func (c Config) Validate() error {
	var errs []error
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be within [0,1], got %v", c.Threshold))
	}
	if c.Weights.Amount < 0 || c.Weights.Date < 0 || c.Weights.Merchant < 0 {
		errs = append(errs, errors.New("weights must not be negative"))
	}
	if c.Weights.Amount+c.Weights.Date+c.Weights.Merchant <= 0 {
		errs = append(errs, errors.New("at least one weight must be positive"))
	}
	if c.DateWindowDays < 0 {
		errs = append(errs, fmt.Errorf("date window must not be negative, got %d", c.DateWindowDays))
	}

	switch c.AmountPolicy {
	case PolicyLadder:
		if len(c.AmountTiers) == 0 {
			errs = append(errs, errors.New("ladder policy needs at least one amount tier"))
		}
		for i, tier := range c.AmountTiers {
			if tier.MaxDiff.IsNegative() {
				errs = append(errs, fmt.Errorf("amount tier %d: max diff must not be negative", i))
			}
			if tier.Score < 0 || tier.Score > 1 {
				errs = append(errs, fmt.Errorf("amount tier %d: score must be within [0,1]", i))
			}
		}
	case PolicyPercentBand:
		if !c.BandPercent.IsPositive() || c.BandPercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Errorf("band percent must be within (0,1), got %s", c.BandPercent))
		}
		if c.DecayPercent.IsNegative() {
			errs = append(errs, errors.New("decay percent must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown amount policy %q", c.AmountPolicy))
	}

	return errors.Join(errs...)
}

// sortedTiers returns the ladder tiers ordered by ascending MaxDiff.
func (c Config) sortedTiers() []AmountTier {
	tiers := make([]AmountTier, len(c.AmountTiers))
	copy(tiers, c.AmountTiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MaxDiff.LessThan(tiers[j].MaxDiff)
	})
	return tiers
}

// normalizedWeights scales the weights to sum to 1.
func (c Config) normalizedWeights() Weights {
	sum := c.Weights.Amount + c.Weights.Date + c.Weights.Merchant
	if sum <= 0 {
		return DefaultConfig().Weights
	}
	return Weights{
		Amount:   c.Weights.Amount / sum,
		Date:     c.Weights.Date / sum,
		Merchant: c.Weights.Merchant / sum,
	}
}

// Breakdown is the per-pair confidence with its sub-scores
type Breakdown struct {
	AmountScore   float64         `json:"amount_score"`
	DateScore     float64         `json:"date_score"`
	MerchantScore float64         `json:"merchant_score"`
	Total         float64         `json:"total"`
	DateDiffDays  int             `json:"date_diff_days"`
	AmountDiff    decimal.Decimal `json:"amount_diff"`

	// Eligible is false when the pair falls outside the date window or the
	// amount band. Sub-scores of an ineligible pair are not computed.
	Eligible bool `json:"eligible"`
}

// Candidate is a scored counterpart
type Candidate struct {
	Counterpart *record.FinancialRecord
	Breakdown
}
