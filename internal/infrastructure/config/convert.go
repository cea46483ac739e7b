package config

import (
	"errors"
	"fmt"

	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/application/scheduler"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/duplicate"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/shopspring/decimal"
)

// MatcherConfig converts the matching section and validates it
func (c *Config) MatcherConfig() (matcher.Config, error) {
	m := c.Matching

	band, err := decimal.NewFromString(m.AmountBandPercent)
	if err != nil {
		return matcher.Config{}, fmt.Errorf("matching.amount_band_percent: %w", err)
	}
	decay := decimal.Zero
	if m.AmountDecayPercent != "" {
		if decay, err = decimal.NewFromString(m.AmountDecayPercent); err != nil {
			return matcher.Config{}, fmt.Errorf("matching.amount_decay_percent: %w", err)
		}
	}

	tiers := make([]matcher.AmountTier, 0, len(m.AmountTiers))
	for i, t := range m.AmountTiers {
		maxDiff, err := decimal.NewFromString(t.MaxDiff)
		if err != nil {
			return matcher.Config{}, fmt.Errorf("matching.amount_tiers[%d].max_diff: %w", i, err)
		}
		tiers = append(tiers, matcher.AmountTier{MaxDiff: maxDiff, Score: t.Score})
	}

	cfg := matcher.Config{
		Threshold: m.Threshold,
		Weights: matcher.Weights{
			Amount:   m.Weights.Amount,
			Date:     m.Weights.Date,
			Merchant: m.Weights.Merchant,
		},
		DateWindowDays: m.DateWindowDays,
		AmountPolicy:   matcher.AmountPolicy(m.AmountPolicy),
		AmountTiers:    tiers,
		BandPercent:    band,
		DecayPercent:   decay,
		ScoreWorkers:   m.ScoreWorkers,
	}
	if err := cfg.Validate(); err != nil {
		return matcher.Config{}, fmt.Errorf("invalid matching config: %w", err)
	}
	return cfg, nil
}

// SimilarityConfig converts the merchant similarity settings
func (c *Config) SimilarityConfig() merchant.SimilarityConfig {
	return merchant.SimilarityConfig{
		MinSubstringLength:   c.Matching.MinSubstringLength,
		MaxEditDistance:      c.Matching.MaxEditDistance,
		DistanceScaleDivisor: c.Matching.DistanceScaleDivisor,
		MinLengthPerEdit:     c.Matching.MinLengthPerEdit,
	}
}

// NormalizerConfig converts the merchant normalization settings
func (c *Config) NormalizerConfig() merchant.NormalizerConfig {
	cfg := merchant.DefaultNormalizerConfig()
	cfg.KeepPunctuation = c.Matching.KeepPunctuation
	return cfg
}

// DuplicateConfig converts the duplicates section
func (c *Config) DuplicateConfig() (duplicate.Config, error) {
	tolerance, err := decimal.NewFromString(c.Duplicates.AmountTolerance)
	if err != nil {
		return duplicate.Config{}, fmt.Errorf("duplicates.amount_tolerance: %w", err)
	}
	if tolerance.IsNegative() {
		return duplicate.Config{}, errors.New("duplicates.amount_tolerance must not be negative")
	}
	if c.Duplicates.MinConfidence < 0 || c.Duplicates.MinConfidence > 1 {
		return duplicate.Config{}, errors.New("duplicates.min_confidence must be between 0 and 1")
	}
	return duplicate.Config{
		AmountTolerance: tolerance,
		MinConfidence:   c.Duplicates.MinConfidence,
	}, nil
}

// EngineOptions converts the engine tuning settings
func (c *Config) EngineOptions() reconcile.Options {
	return reconcile.Options{
		RecordsPerSecond:    c.Scheduler.RecordsPerSecond,
		CandidateLimit:      c.Matching.CandidateLimit,
		DuplicateWindowDays: c.Duplicates.WindowDays,
	}
}

// SchedulerJobs converts the scheduler section
func (c *Config) SchedulerJobs() (scheduler.Config, error) {
	receipts, err := parseInterval("receipts_interval", c.Scheduler.ReceiptsInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	transactions, err := parseInterval("transactions_interval", c.Scheduler.TransactionsInterval)
	if err != nil {
		return scheduler.Config{}, err
	}

	return scheduler.Config{
		Jobs: []scheduler.Job{
			{Name: scheduler.JobReceipts, Kind: record.KindReceipt, Interval: receipts},
			{Name: scheduler.JobTransactions, Kind: record.KindTransaction, Interval: transactions},
		},
		BatchSize:  c.Scheduler.BatchSize,
		RunOnStart: c.Scheduler.RunOnStart,
	}, nil
}
