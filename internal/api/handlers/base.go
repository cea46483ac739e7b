package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// Reconciler is the part of the reconciliation engine the handlers call.
type Reconciler interface {
	ReconcileOne(ctx context.Context, rec *record.FinancialRecord) (*reconcile.Outcome, error)
	ReconcileBatch(ctx context.Context, records []*record.FinancialRecord) (*reconcile.BatchResult, error)
	Unmatch(ctx context.Context, recordID string) error
	CheckDuplicates(ctx context.Context, rec *record.FinancialRecord) ([]record.DuplicateFlag, error)
}

// Base provides shared functionality for all handlers.
type Base struct {
	repo   storage.Repository
	logger *slog.Logger
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{repo: repo, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps an engine or storage error to an HTTP response.
// resource names the thing that was not found, e.g. "record".
func (b *Base) WriteServiceError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError(resource))
	case errors.Is(err, reconcile.ErrMissingField):
		b.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	case errors.Is(err, reconcile.ErrLinkConflict), errors.Is(err, storage.ErrRecordConflict):
		b.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
	case errors.Is(err, reconcile.ErrStoreUnavailable):
		b.logger.Error("store unavailable", "path", r.URL.Path, "error", err)
		b.WriteError(w, http.StatusServiceUnavailable, dto.StoreUnavailableError())
	case errors.Is(err, context.DeadlineExceeded):
		b.WriteError(w, http.StatusGatewayTimeout, dto.NewAPIError(dto.ErrCodeInternalError, "request timed out"))
	default:
		b.logger.Error("request failed", "path", r.URL.Path, "error", err)
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// DecodeJSON decodes a size-limited JSON body into v. Unknown fields are rejected.
func (b *Base) DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
