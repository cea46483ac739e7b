package api_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-reconciler/internal/api"
	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/api/handlers"
	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/application/scheduler"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/duplicate"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
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

func newTestServer(t *testing.T, withSweeps bool) (*api.Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	engine := newEngine(t, repo)

	var sweeps handlers.SweepRunner
	if withSweeps {
		s := scheduler.New(repo, engine, scheduler.Config{}, discardLogger())
		t.Cleanup(s.Stop)
		sweeps = s
	}

	return api.NewServer(api.DefaultConfig(), repo, engine, sweeps, discardLogger()), repo
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response.Status)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/records/missing", "", http.StatusNotFound},
		{http.MethodPost, "/api/records/missing/reconcile", "", http.StatusNotFound},
		{http.MethodPost, "/api/records/missing/unmatch", "", http.StatusNotFound},
		{http.MethodGet, "/api/records/missing/duplicates", "", http.StatusNotFound},
		{http.MethodGet, "/api/runs", "", http.StatusOK},
		{http.MethodGet, "/api/runs/42", "", http.StatusNotFound},
		{http.MethodGet, "/api/stats", "", http.StatusOK},
		{http.MethodPost, "/api/receipts", `{"owner_id":"owner1","merchant":"Starbucks","date":"2024-03-11","total":"4.50"}`, http.StatusCreated},
		{http.MethodPost, "/api/transactions", `{"owner_id":"owner1","transactions":[]}`, http.StatusBadRequest},
		{http.MethodGet, "/api/sweeps", "", http.StatusOK},
		{http.MethodPost, "/api/sweeps/invoices", "", http.StatusNotFound},
		{http.MethodGet, "/api/receipts", "", http.StatusMethodNotAllowed},
	}

	server, _ := newTestServer(t, true)

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			rec := httptest.NewRecorder()

			server.Router().ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_SweepRoutesNeedScheduler(t *testing.T) {
	server, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/sweeps/receipts", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	server, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := api.DefaultConfig()

	assert.Equal(t, 8085, cfg.Port)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}
