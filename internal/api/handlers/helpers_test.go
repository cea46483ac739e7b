package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/duplicate"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, repo storage.Repository) *reconcile.Engine {
	t.Helper()
	cache, err := merchant.NewVariantCache(64)
	require.NoError(t, err)
	scorer := merchant.NewScorer(nil, cache, merchant.DefaultSimilarityConfig())
	return reconcile.NewEngine(repo,
		matcher.NewCalculator(matcher.DefaultConfig(), scorer),
		duplicate.NewDetector(duplicate.DefaultConfig(), scorer),
		reconcile.Options{}, discardLogger())
}

func mar(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func seedRecord(t *testing.T, repo storage.Repository, id string, kind record.Kind, amount string, date time.Time, merchantText string) {
	t.Helper()
	require.NoError(t, repo.SaveRecord(context.Background(), &record.FinancialRecord{
		ID:           id,
		Kind:         kind,
		OwnerID:      "owner1",
		Date:         date,
		Amount:       decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		MerchantText: merchantText,
		LinkState:    record.StateUnmatched,
	}))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Helper to set chi URL param in context
func setChiURLParam(ctx context.Context, key, value string) context.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}
