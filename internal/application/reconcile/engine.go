// Package reconcile links receipts to the bank transactions they paid for.
//
// The Engine ties the pieces together:
//  1. Reload the record so the decision sees the latest link state
//  2. Find unlinked counterparts inside the amount band and date window
//  3. Score every candidate in parallel
//  4. Pick the best candidate and, above the threshold, link both sides
//     in one conditional store transaction
//
// A lost link race is retried once against fresh candidates before it is
// reported as a *LinkConflictError.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/duplicate"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Status is the result of reconciling one record
type Status string

const (
	StatusMatched        Status = "matched"
	StatusAlreadyMatched Status = "already_matched"
	StatusNoMatch        Status = "no_match"
	StatusSkipped        Status = "skipped"
	StatusFailed         Status = "failed"
)

// linkAttempts is the first try plus one retry after a lost race
const linkAttempts = 2

// Outcome describes what happened to one record
type Outcome struct {
	RecordID   string              `json:"record_id"`
	Status     Status              `json:"status"`
	Match      *record.MatchResult `json:"match,omitempty"`
	Best       *matcher.Breakdown  `json:"best,omitempty"`
	BestID     string              `json:"best_counterpart_id,omitempty"`
	Candidates int                 `json:"candidates"`
	Reason     string              `json:"reason,omitempty"`
}

// BatchResult holds per-record outcomes in input order
type BatchResult struct {
	Outcomes []Outcome
	Counts   storage.SweepCounts
}

func (b *BatchResult) add(o Outcome) {
	b.Outcomes = append(b.Outcomes, o)
	b.Counts.Found++
	switch o.Status {
	case StatusMatched:
		b.Counts.Matched++
	case StatusNoMatch:
		b.Counts.NoMatch++
	case StatusFailed:
		b.Counts.Errored++
	default:
		b.Counts.Skipped++
	}
}

// Options tunes the engine beyond the matcher config
type Options struct {
	RecordsPerSecond    float64 // Batch pacing (0 = unlimited)
	CandidateLimit      int     // Max candidates loaded per record (0 = store default)
	DuplicateWindowDays int     // Date neighbourhood for duplicate checks (default: 7)
}

// Engine is the single entry point for matching decisions
type Engine struct {
	store    storage.Repository
	calc     *matcher.Calculator
	finder   *CandidateFinder
	detector *duplicate.Detector
	limiter  *rate.Limiter
	logger   *slog.Logger

	workers   int
	dupWindow int
	newID     func() string
	now       func() time.Time
}

// NewEngine creates an engine. detector may be nil to disable duplicate checks.
func NewEngine(store storage.Repository, calc *matcher.Calculator, detector *duplicate.Detector, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.RecordsPerSecond > 0 {
		burst := int(opts.RecordsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RecordsPerSecond), burst)
	}

	workers := calc.Config().ScoreWorkers
	if workers <= 0 {
		workers = 1
	}
	dupWindow := opts.DuplicateWindowDays
	if dupWindow <= 0 {
		dupWindow = 7
	}

	return &Engine{
		store:     store,
		calc:      calc,
		finder:    NewCandidateFinder(store, calc, opts.CandidateLimit),
		detector:  detector,
		limiter:   limiter,
		logger:    logger.With("system", "reconcile"),
		workers:   workers,
		dupWindow: dupWindow,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Finder returns the engine's candidate finder
func (e *Engine) Finder() *CandidateFinder {
	return e.finder
}

// ReconcileOne tries to link rec to its best counterpart. Reconciling an
// already matched record returns its existing match.
func (e *Engine) ReconcileOne(ctx context.Context, rec *record.FinancialRecord) (*Outcome, error) {
	current, err := e.load(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		if current.IsMatched() {
			return e.alreadyMatched(ctx, current)
		}

		outcome, conflict, err := e.attempt(ctx, current)
		if err != nil {
			return nil, err
		}
		if conflict == nil {
			return outcome, nil
		}
		if attempt >= linkAttempts {
			e.logger.Warn("link conflict persisted after retry",
				"record_id", conflict.RecordID,
				"counterpart_id", conflict.CounterpartID,
			)
			return nil, conflict
		}

		e.logger.Debug("link conflict, retrying with fresh candidates",
			"record_id", conflict.RecordID,
			"counterpart_id", conflict.CounterpartID,
		)
		if current, err = e.load(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
}

// attempt runs one find/score/select/link pass. A lost race is reported
// through conflict, not err.
func (e *Engine) attempt(ctx context.Context, rec *record.FinancialRecord) (*Outcome, *LinkConflictError, error) {
	counterparts, err := e.finder.FindCandidates(ctx, rec)
	if err != nil {
		return nil, nil, err
	}

	candidates, err := e.score(ctx, rec, counterparts)
	if err != nil {
		return nil, nil, err
	}

	outcome := &Outcome{RecordID: rec.ID, Status: StatusNoMatch, Candidates: len(candidates)}
	best := matcher.SelectBest(candidates)
	if best == nil {
		e.logger.Debug("no eligible candidates", "record_id", rec.ID, "searched", len(counterparts))
		return outcome, nil, nil
	}
	outcome.Best = &best.Breakdown
	outcome.BestID = best.Counterpart.ID

	if best.Total < e.calc.Config().Threshold {
		e.logger.Debug("best candidate below threshold",
			"record_id", rec.ID,
			"counterpart_id", best.Counterpart.ID,
			"confidence", best.Total,
		)
		return outcome, nil, nil
	}

	match := &record.MatchResult{
		ID:            e.newID(),
		RecordID:      rec.ID,
		CounterpartID: best.Counterpart.ID,
		Confidence:    best.Total,
		MatchedAt:     e.now().UTC().Truncate(time.Second),
	}

	// The commit must finish once started, even if the caller cancels.
	linked, err := e.store.CompareAndLink(context.WithoutCancel(ctx),
		rec.ID, best.Counterpart.ID, rec.LinkState, best.Counterpart.LinkState, match)
	if err != nil {
		return nil, nil, storeError("link records", err)
	}
	if !linked {
		return nil, &LinkConflictError{RecordID: rec.ID, CounterpartID: best.Counterpart.ID}, nil
	}

	e.logger.Info("records matched",
		"record_id", rec.ID,
		"counterpart_id", best.Counterpart.ID,
		"confidence", fmt.Sprintf("%.3f", best.Total),
		"match_id", match.ID,
	)

	outcome.Status = StatusMatched
	outcome.Match = match
	return outcome, nil, nil
}

// score evaluates counterparts concurrently. Counterparts that cannot be
// scored are dropped; the result order does not matter to SelectBest.
func (e *Engine) score(ctx context.Context, rec *record.FinancialRecord, counterparts []*record.FinancialRecord) ([]matcher.Candidate, error) {
	scored := make([]*matcher.Candidate, len(counterparts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, cp := range counterparts {
		i, cp := i, cp
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := e.calc.Confidence(rec, cp)
			if errors.Is(err, matcher.ErrMissingField) {
				e.logger.Debug("skipping unscorable candidate", "record_id", rec.ID, "counterpart_id", cp.ID, "error", err)
				return nil
			}
			if err != nil {
				return err
			}
			if b.Eligible {
				scored[i] = &matcher.Candidate{Counterpart: cp, Breakdown: b}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]matcher.Candidate, 0, len(scored))
	for _, c := range scored {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates, nil
}

// ReconcileBatch reconciles records in order. Each record is reloaded, so a
// later record sees links committed for earlier ones. Records that cannot be
// scored or keep losing link races are reported as skipped. A store failure
// stops the batch and returns the outcomes so far with the error.
func (e *Engine) ReconcileBatch(ctx context.Context, records []*record.FinancialRecord) (*BatchResult, error) {
	result := &BatchResult{Outcomes: make([]Outcome, 0, len(records))}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		outcome, err := e.ReconcileOne(ctx, rec)
		if err == nil {
			result.add(*outcome)
			continue
		}

		switch {
		case errors.Is(err, ErrMissingField), errors.Is(err, ErrLinkConflict), errors.Is(err, storage.ErrNotFound):
			e.logger.Debug("record skipped", "record_id", rec.ID, "reason", err)
			result.add(Outcome{RecordID: rec.ID, Status: StatusSkipped, Reason: err.Error()})
		case errors.Is(err, ErrStoreUnavailable):
			e.logger.Error("batch stopped on store failure", "record_id", rec.ID, "error", err)
			result.add(Outcome{RecordID: rec.ID, Status: StatusFailed, Reason: err.Error()})
			return result, err
		default:
			return result, err
		}
	}

	return result, nil
}

// Unmatch clears the link on recordID and its counterpart. It is a no-op
// for a record without a link.
func (e *Engine) Unmatch(ctx context.Context, recordID string) error {
	removed, err := e.store.Unlink(ctx, recordID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("unmatch %s: %w", recordID, err)
	}
	if err != nil {
		return storeError("unlink records", err)
	}

	if removed != nil {
		e.logger.Info("records unmatched",
			"record_id", removed.RecordID,
			"counterpart_id", removed.CounterpartID,
			"match_id", removed.ID,
		)
	}
	return nil
}

// CheckDuplicates compares rec against same-kind records of the same owner
// and stores any advisory flags it raises.
func (e *Engine) CheckDuplicates(ctx context.Context, rec *record.FinancialRecord) ([]record.DuplicateFlag, error) {
	if e.detector == nil {
		return nil, nil
	}

	neighbours, err := e.finder.FindNeighbours(ctx, rec, e.detector.Config().AmountTolerance, e.dupWindow)
	if err != nil {
		return nil, err
	}

	flags := e.detector.FindDuplicates(rec, neighbours)
	for _, flag := range flags {
		if err := e.store.SaveDuplicateFlag(ctx, flag); err != nil {
			return nil, storeError("save duplicate flag", err)
		}
	}

	if len(flags) > 0 {
		e.logger.Info("possible duplicates flagged",
			"record_id", rec.ID,
			"count", len(flags),
			"top_confidence", flags[0].Confidence,
		)
	}
	return flags, nil
}

func (e *Engine) load(ctx context.Context, id string) (*record.FinancialRecord, error) {
	current, err := e.store.GetRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("reconcile %s: %w", id, err)
	}
	if err != nil {
		return nil, storeError("load record", err)
	}
	return current, nil
}

func (e *Engine) alreadyMatched(ctx context.Context, rec *record.FinancialRecord) (*Outcome, error) {
	match, err := e.store.GetMatchForRecord(ctx, rec.ID)
	if err != nil {
		return nil, storeError("load match", err)
	}
	return &Outcome{RecordID: rec.ID, Status: StatusAlreadyMatched, Match: match}, nil
}
