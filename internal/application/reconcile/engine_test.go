package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/duplicate"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, repo storage.Repository, cfg matcher.Config) *Engine {
	t.Helper()
	cache, err := merchant.NewVariantCache(64)
	require.NoError(t, err)
	scorer := merchant.NewScorer(nil, cache, merchant.DefaultSimilarityConfig())

	e := NewEngine(repo, matcher.NewCalculator(cfg, scorer), duplicate.NewDetector(duplicate.DefaultConfig(), scorer), Options{}, testLogger())
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("match-%d", n)
	}
	e.now = func() time.Time { return time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC) }
	return e
}

func mar(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func rec(id string, kind record.Kind, amount string, date time.Time, merchantText string) *record.FinancialRecord {
	r := &record.FinancialRecord{
		ID:           id,
		Kind:         kind,
		OwnerID:      "owner1",
		Date:         date,
		MerchantText: merchantText,
		LinkState:    record.StateUnmatched,
	}
	if amount != "" {
		r.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return r
}

func seed(t *testing.T, repo storage.Repository, records ...*record.FinancialRecord) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, repo.SaveRecord(context.Background(), r))
	}
}

func TestReconcileOne_StarbucksMatch(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(10), "STARBUCKS #4521")
	rc := rec("rc1", record.KindReceipt, "42.50", mar(11), "Starbucks")
	seed(t, repo, tx, rc)
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	// Act
	outcome, err := e.ReconcileOne(ctx, tx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, outcome.Status)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, "match-1", outcome.Match.ID)
	assert.Equal(t, "rc1", outcome.Match.CounterpartID)
	assert.GreaterOrEqual(t, outcome.Match.Confidence, 0.8)
	assert.LessOrEqual(t, outcome.Match.Confidence, 1.0)

	gotTx, _ := repo.GetRecord(ctx, "tx1")
	gotRc, _ := repo.GetRecord(ctx, "rc1")
	assert.Equal(t, record.StateMatched, gotTx.LinkState)
	assert.Equal(t, record.StateMatched, gotRc.LinkState)
	assert.Equal(t, "rc1", gotTx.LinkedID)
	assert.Equal(t, "tx1", gotRc.LinkedID)
}

func TestReconcileOne_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(10), "STARBUCKS #4521")
	seed(t, repo, tx, rec("rc1", record.KindReceipt, "42.50", mar(11), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	first, err := e.ReconcileOne(ctx, tx)
	require.NoError(t, err)
	second, err := e.ReconcileOne(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, StatusMatched, first.Status)
	assert.Equal(t, StatusAlreadyMatched, second.Status)
	require.NotNil(t, second.Match)
	assert.Equal(t, first.Match.ID, second.Match.ID)
	assert.Equal(t, 1, repo.ActiveMatchCount())
	assert.Equal(t, 1, repo.CompareAndLinkCalls)
}

func TestReconcileOne_CandidateLimitKeepsNearest(t *testing.T) {
	// Arrange: with a limit of two, ordering by date alone would load only
	// the Mar 7 and Mar 8 transactions
	ctx := context.Background()
	repo := storage.NewMockRepository()
	rc := rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks")
	seed(t, repo, rc,
		rec("tx-7", record.KindTransaction, "42.00", mar(7), "Shell Oil"),
		rec("tx-8", record.KindTransaction, "43.00", mar(8), "Target"),
		rec("tx-10", record.KindTransaction, "42.50", mar(10), "STARBUCKS #4521"),
	)
	cache, err := merchant.NewVariantCache(64)
	require.NoError(t, err)
	scorer := merchant.NewScorer(nil, cache, merchant.DefaultSimilarityConfig())
	e := NewEngine(repo, matcher.NewCalculator(matcher.DefaultConfig(), scorer), nil, Options{CandidateLimit: 2}, testLogger())

	// Act
	outcome, err := e.ReconcileOne(ctx, rc)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, outcome.Status)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, "tx-10", outcome.Match.CounterpartID)
	assert.Equal(t, 2, repo.LastQuery.Limit)
	assert.Equal(t, mar(10), repo.LastQuery.NearDate)
}

func TestReconcileOne_DatesTooFarApart(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(1), "Starbucks")
	seed(t, repo, tx, rec("rc1", record.KindReceipt, "42.50", mar(11), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	outcome, err := e.ReconcileOne(ctx, tx)

	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, outcome.Status)
	assert.Zero(t, outcome.Candidates)
	assert.Nil(t, outcome.Match)
	assert.Zero(t, repo.CompareAndLinkCalls)
}

func TestReconcileOne_BelowThreshold(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(10), "Shell Oil")
	seed(t, repo, tx, rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	outcome, err := e.ReconcileOne(ctx, tx)

	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, outcome.Status)
	assert.Equal(t, 1, outcome.Candidates)
	require.NotNil(t, outcome.Best)
	assert.Equal(t, "rc1", outcome.BestID)
	assert.GreaterOrEqual(t, outcome.Best.Total, 0.7)
	assert.Less(t, outcome.Best.Total, 0.8)

	got, _ := repo.GetRecord(ctx, "tx1")
	assert.Equal(t, record.StateUnmatched, got.LinkState)
}

func TestReconcileOne_TieBreaks(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "20.00", mar(10), "Cafe Roma")
	seed(t, repo, tx,
		rec("rc-b", record.KindReceipt, "20.00", mar(10), "Cafe Roma"),
		rec("rc-a", record.KindReceipt, "20.00", mar(10), "Cafe Roma"),
		rec("rc-c", record.KindReceipt, "20.00", mar(11), "Cafe Roma"),
	)
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	outcome, err := e.ReconcileOne(ctx, tx)

	require.NoError(t, err)
	assert.Equal(t, StatusMatched, outcome.Status)
	assert.Equal(t, "rc-a", outcome.Match.CounterpartID)
	assert.Equal(t, 3, outcome.Candidates)
}

func TestReconcileOne_PercentBand(t *testing.T) {
	tests := []struct {
		name           string
		band           string
		wantCandidates int
	}{
		{"5% band keeps the 100 vs 105 pair", "0.05", 1},
		{"1% band excludes the 100 vs 105 pair", "0.01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := storage.NewMockRepository()
			tx := rec("tx1", record.KindTransaction, "105.00", mar(10), "Hardware Store")
			seed(t, repo, tx, rec("rc1", record.KindReceipt, "100.00", mar(10), "Hardware Store"))

			cfg := matcher.DefaultConfig()
			cfg.AmountPolicy = matcher.PolicyPercentBand
			cfg.BandPercent = decimal.RequireFromString(tt.band)
			e := newTestEngine(t, repo, cfg)

			outcome, err := e.ReconcileOne(ctx, tx)

			require.NoError(t, err)
			assert.Equal(t, StatusNoMatch, outcome.Status)
			assert.Equal(t, tt.wantCandidates, outcome.Candidates)
			if tt.wantCandidates > 0 {
				require.NotNil(t, outcome.Best)
				assert.Less(t, outcome.Best.AmountScore, 1.0)
			}
		})
	}
}

func TestReconcileOne_MissingFields(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	noAmount := rec("tx1", record.KindTransaction, "", mar(10), "Starbucks")
	noDate := rec("tx2", record.KindTransaction, "42.50", time.Time{}, "Starbucks")
	seed(t, repo, noAmount, noDate, rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	for _, r := range []*record.FinancialRecord{noAmount, noDate} {
		_, err := e.ReconcileOne(ctx, r)

		assert.ErrorIs(t, err, ErrMissingField)
		var mfe *matcher.MissingFieldError
		require.True(t, errors.As(err, &mfe))
		assert.Equal(t, r.ID, mfe.RecordID)
	}
	assert.Zero(t, repo.FindCalls)
}

func TestReconcileOne_SkipsUnscorableCandidates(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	seed(t, repo, tx, rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	candidates, err := e.score(ctx, tx, []*record.FinancialRecord{
		rec("rc-bad", record.KindReceipt, "", mar(10), "Starbucks"),
		rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"),
	})

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "rc1", candidates[0].Counterpart.ID)
}

func TestReconcileOne_RetriesAfterLostRace(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx1 := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	seed(t, repo, tx1,
		rec("tx2", record.KindTransaction, "42.50", mar(10), "Starbucks"),
		rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"),
		rec("rc2", record.KindReceipt, "42.50", mar(11), "Starbucks"),
	)
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	// Another writer links tx2 to rc1 just before our first commit
	repo.BeforeCompareAndLink = func(idA, idB string) {
		repo.BeforeCompareAndLink = nil
		ok, err := repo.CompareAndLink(ctx, "tx2", "rc1", record.StateUnmatched, record.StateUnmatched,
			&record.MatchResult{ID: "other", RecordID: "tx2", CounterpartID: "rc1", Confidence: 1})
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Act
	outcome, err := e.ReconcileOne(ctx, tx1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, outcome.Status)
	assert.Equal(t, "rc2", outcome.Match.CounterpartID)
	assert.Equal(t, 2, repo.ActiveMatchCount())
}

func TestReconcileOne_ConflictAfterRetry(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx1 := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	seed(t, repo, tx1,
		rec("spare1", record.KindTransaction, "42.50", mar(10), "Starbucks"),
		rec("spare2", record.KindTransaction, "42.50", mar(10), "Starbucks"),
		rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"),
		rec("rc2", record.KindReceipt, "42.50", mar(11), "Starbucks"),
	)
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	// Every commit loses to a competing writer
	spares := []string{"spare1", "spare2"}
	inHook := false
	repo.BeforeCompareAndLink = func(idA, idB string) {
		if inHook || len(spares) == 0 {
			return
		}
		inHook = true
		defer func() { inHook = false }()
		spare := spares[0]
		spares = spares[1:]
		ok, err := repo.CompareAndLink(ctx, spare, idB, record.StateUnmatched, record.StateUnmatched,
			&record.MatchResult{ID: "m-" + spare, RecordID: spare, CounterpartID: idB, Confidence: 1})
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err := e.ReconcileOne(ctx, tx1)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLinkConflict)
	var conflict *LinkConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "tx1", conflict.RecordID)
	assert.Equal(t, "rc2", conflict.CounterpartID)

	got, _ := repo.GetRecord(ctx, "tx1")
	assert.Equal(t, record.StateUnmatched, got.LinkState)
}

func TestReconcileOne_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	seed(t, repo, tx)
	repo.FindErr = errors.New("database is locked")
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	_, err := e.ReconcileOne(ctx, tx)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	var sue *StoreUnavailableError
	require.True(t, errors.As(err, &sue))
	assert.Equal(t, "find candidates", sue.Op)
	assert.EqualError(t, sue.Err, "database is locked")
}

func TestReconcileOne_UnknownRecord(t *testing.T) {
	e := newTestEngine(t, storage.NewMockRepository(), matcher.DefaultConfig())

	_, err := e.ReconcileOne(context.Background(), rec("ghost", record.KindReceipt, "1.00", mar(1), "x"))

	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestReconcileBatch_ReadsEarlierCommits(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx1 := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	tx2 := rec("tx2", record.KindTransaction, "42.50", mar(10), "Starbucks")
	noAmount := rec("tx3", record.KindTransaction, "", mar(10), "Starbucks")
	seed(t, repo, tx1, tx2, noAmount, rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	// Act
	result, err := e.ReconcileBatch(ctx, []*record.FinancialRecord{tx1, noAmount, tx2})

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, "tx1", result.Outcomes[0].RecordID)
	assert.Equal(t, StatusMatched, result.Outcomes[0].Status)
	assert.Equal(t, StatusSkipped, result.Outcomes[1].Status)
	assert.NotEmpty(t, result.Outcomes[1].Reason)
	assert.Equal(t, StatusNoMatch, result.Outcomes[2].Status)
	assert.Equal(t, storage.SweepCounts{Found: 3, Matched: 1, NoMatch: 1, Skipped: 1}, result.Counts)
}

func TestReconcileBatch_StopsOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx1 := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	tx2 := rec("tx2", record.KindTransaction, "9.99", mar(10), "Netflix")
	tx3 := rec("tx3", record.KindTransaction, "5.00", mar(10), "Bakery")
	seed(t, repo, tx1, tx2, tx3, rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	// The store goes away right after the first commit
	repo.BeforeCompareAndLink = func(idA, idB string) {
		repo.FindErr = errors.New("disk I/O error")
	}

	result, err := e.ReconcileBatch(ctx, []*record.FinancialRecord{tx1, tx2, tx3})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, StatusMatched, result.Outcomes[0].Status)
	assert.Equal(t, StatusFailed, result.Outcomes[1].Status)
	assert.Equal(t, 1, result.Counts.Errored)
}

func TestReconcileBatch_Cancelled(t *testing.T) {
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	seed(t, repo, tx)
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.ReconcileBatch(ctx, []*record.FinancialRecord{tx})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Outcomes)
}

func TestReconcileBatch_CancelledDuringCommit(t *testing.T) {
	// Arrange
	repo := storage.NewMockRepository()
	tx1 := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	tx2 := rec("tx2", record.KindTransaction, "18.00", mar(10), "Corner Deli")
	seed(t, repo, tx1, tx2,
		rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"),
		rec("rc2", record.KindReceipt, "18.00", mar(10), "Corner Deli"),
	)
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo.BeforeCompareAndLink = func(idA, idB string) {
		cancel()
	}

	// Act
	result, err := e.ReconcileBatch(ctx, []*record.FinancialRecord{tx1, tx2})

	// Assert: the started commit finished and was reported
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "tx1", result.Outcomes[0].RecordID)
	assert.Equal(t, StatusMatched, result.Outcomes[0].Status)
	assert.Equal(t, 1, result.Counts.Matched)

	gotTx, _ := repo.GetRecord(context.Background(), "tx1")
	gotRc, _ := repo.GetRecord(context.Background(), "rc1")
	assert.Equal(t, "rc1", gotTx.LinkedID)
	assert.Equal(t, "tx1", gotRc.LinkedID)
	assert.Equal(t, record.StateMatched, gotTx.LinkState)
	assert.Equal(t, record.StateMatched, gotRc.LinkState)

	// The next record was never attempted
	assert.Equal(t, 1, repo.CompareAndLinkCalls)
	untouched, _ := repo.GetRecord(context.Background(), "tx2")
	assert.Equal(t, record.StateUnmatched, untouched.LinkState)
	assert.Equal(t, 1, repo.ActiveMatchCount())
}

func TestReconcileBatch_RateLimited(t *testing.T) {
	repo := storage.NewMockRepository()
	records := []*record.FinancialRecord{
		rec("tx1", record.KindTransaction, "1.00", mar(10), "A"),
		rec("tx2", record.KindTransaction, "2.00", mar(10), "B"),
	}
	seed(t, repo, records...)

	cache, _ := merchant.NewVariantCache(0)
	scorer := merchant.NewScorer(nil, cache, merchant.DefaultSimilarityConfig())
	e := NewEngine(repo, matcher.NewCalculator(matcher.DefaultConfig(), scorer), nil, Options{RecordsPerSecond: 1000}, testLogger())
	require.NotNil(t, e.limiter)

	result, err := e.ReconcileBatch(context.Background(), records)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Counts.NoMatch)
}

func TestUnmatch(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	tx := rec("tx1", record.KindTransaction, "42.50", mar(10), "Starbucks")
	seed(t, repo, tx, rec("rc1", record.KindReceipt, "42.50", mar(10), "Starbucks"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	outcome, err := e.ReconcileOne(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, StatusMatched, outcome.Status)

	require.NoError(t, e.Unmatch(ctx, "rc1"))

	for _, id := range []string{"tx1", "rc1"} {
		got, err := repo.GetRecord(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, record.StateUnmatched, got.LinkState)
		assert.Empty(t, got.LinkedID)
	}
	assert.Zero(t, repo.ActiveMatchCount())

	// No-op on an unmatched record
	assert.NoError(t, e.Unmatch(ctx, "tx1"))

	// Re-matching is allowed after an unmatch
	again, err := e.ReconcileOne(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, again.Status)
}

func TestUnmatch_Errors(t *testing.T) {
	repo := storage.NewMockRepository()
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	assert.ErrorIs(t, e.Unmatch(context.Background(), "missing"), storage.ErrNotFound)

	repo.UnlinkErr = errors.New("database is locked")
	assert.ErrorIs(t, e.Unmatch(context.Background(), "missing"), ErrStoreUnavailable)
}

func TestCheckDuplicates_CafeRoma(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := storage.NewMockRepository()
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := rec("rc1", record.KindReceipt, "20.00", jan1, "Cafe Roma")
	incoming := rec("rc2", record.KindReceipt, "20.00", jan1, "CAFE ROMA LLC")
	other := rec("rc3", record.KindReceipt, "20.00", jan1, "Cafe Roma")
	other.OwnerID = "owner2"
	seed(t, repo, existing, incoming, other, rec("tx1", record.KindTransaction, "20.00", jan1, "Cafe Roma"))
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	// Act
	flags, err := e.CheckDuplicates(ctx, incoming)

	// Assert
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "rc1", flags[0].DuplicateOfID)
	assert.GreaterOrEqual(t, flags[0].Confidence, 0.8)

	stored, err := repo.ListDuplicateFlags(ctx, "rc2")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "rc1", stored[0].DuplicateOfID)

	// Flags never touch link state
	got, _ := repo.GetRecord(ctx, "rc2")
	assert.Equal(t, record.StateUnmatched, got.LinkState)
}

func TestCheckDuplicates_SaveFailure(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMockRepository()
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	incoming := rec("rc2", record.KindReceipt, "20.00", jan1, "Cafe Roma")
	seed(t, repo, rec("rc1", record.KindReceipt, "20.00", jan1, "Cafe Roma"), incoming)
	repo.SaveDuplicateFlagErr = errors.New("readonly database")
	e := newTestEngine(t, repo, matcher.DefaultConfig())

	_, err := e.CheckDuplicates(ctx, incoming)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
