package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/api/handlers"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

func TestRunsHandler_List(t *testing.T) {
	ctx := context.Background()

	t.Run("returns empty list when no runs", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.SweepRunListResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Empty(t, response.Runs)
		assert.Equal(t, 0, response.Count)
	})

	t.Run("returns runs from repository", func(t *testing.T) {
		repo := storage.NewMockRepository()

		runID1, _ := repo.StartSweepRun(ctx, "receipts", record.KindReceipt)
		_ = repo.CompleteSweepRun(ctx, runID1, storage.SweepCounts{Found: 10, Matched: 8, NoMatch: 1, Errored: 1}, nil)

		runID2, _ := repo.StartSweepRun(ctx, "transactions", record.KindTransaction)
		_ = repo.CompleteSweepRun(ctx, runID2, storage.SweepCounts{Found: 5, Matched: 5}, nil)

		handler := handlers.NewRunsHandler(repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.SweepRunListResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, 2, response.Count)
		require.Len(t, response.Runs, 2)
		assert.Equal(t, "transactions", response.Runs[0].Job)
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		repo := storage.NewMockRepository()

		for i := 0; i < 5; i++ {
			runID, _ := repo.StartSweepRun(ctx, "receipts", record.KindReceipt)
			_ = repo.CompleteSweepRun(ctx, runID, storage.SweepCounts{Found: 10, Matched: 10}, nil)
		}

		handler := handlers.NewRunsHandler(repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=3", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.SweepRunListResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Len(t, response.Runs, 3)
	})
}

func TestRunsHandler_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns run by ID", func(t *testing.T) {
		repo := storage.NewMockRepository()
		runID, _ := repo.StartSweepRun(ctx, "receipts", record.KindReceipt)
		_ = repo.CompleteSweepRun(ctx, runID, storage.SweepCounts{Found: 10, Matched: 8, NoMatch: 1, Errored: 1}, nil)

		handler := handlers.NewRunsHandler(repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs/1", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.SweepRunResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, int64(1), response.ID)
		assert.Equal(t, "receipts", response.Job)
		assert.Equal(t, "receipt", response.Kind)
		assert.Equal(t, 10, response.RecordsFound)
		assert.Equal(t, 8, response.Matched)
		assert.Equal(t, storage.SweepStatusCompletedWithErrors, response.Status)
	})

	t.Run("includes the failure message", func(t *testing.T) {
		repo := storage.NewMockRepository()
		runID, _ := repo.StartSweepRun(ctx, "receipts", record.KindReceipt)
		_ = repo.CompleteSweepRun(ctx, runID, storage.SweepCounts{}, errors.New("database is locked"))

		handler := handlers.NewRunsHandler(repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs/1", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		var response dto.SweepRunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, storage.SweepStatusFailed, response.Status)
		assert.Equal(t, "database is locked", response.ErrorMessage)
	})

	t.Run("returns 404 for non-existent run", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs/999", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "999"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)

		var response dto.APIError
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, dto.ErrCodeNotFound, response.Code)
	})

	t.Run("returns 400 for invalid ID", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/runs/invalid", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "invalid"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
