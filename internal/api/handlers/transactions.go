package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/receipt-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// maxTransactionsPerRequest caps one bank feed page
const maxTransactionsPerRequest = 500

// TransactionsHandler ingests bank feed transactions.
type TransactionsHandler struct {
	*Base
	engine    Reconciler
	converter *ingest.Converter
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo storage.Repository, engine Reconciler, converter *ingest.Converter, logger *slog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		Base:      NewBase(repo, logger),
		engine:    engine,
		converter: converter,
	}
}

// Create handles POST /api/transactions - stores a page of bank feed
// transactions. Transactions that fail to convert, or that would rewrite a
// matched record, are reported per index and the rest are still stored.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.TransactionsRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if len(req.Transactions) == 0 {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("transactions are required"))
		return
	}
	if len(req.Transactions) > maxTransactionsPerRequest {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("too many transactions in one request"))
		return
	}

	response := dto.TransactionsResponse{
		Records: make([]dto.RecordResponse, 0, len(req.Transactions)),
	}

	saved := make([]*record.FinancialRecord, 0, len(req.Transactions))
	for i, tx := range req.Transactions {
		rec, err := h.converter.Transaction(req.OwnerID, tx)
		if err != nil {
			response.Errors = append(response.Errors, dto.ItemError{Index: i, ID: tx.ID, Message: err.Error()})
			continue
		}
		if err := h.repo.SaveRecord(r.Context(), rec); err != nil {
			if errors.Is(err, storage.ErrRecordConflict) {
				response.Errors = append(response.Errors, dto.ItemError{Index: i, ID: tx.ID, Message: err.Error()})
				continue
			}
			h.logger.Error("failed to save transaction", "record_id", rec.ID, "error", err)
			h.WriteError(w, http.StatusServiceUnavailable, dto.StoreUnavailableError())
			return
		}
		saved = append(saved, rec)
	}
	response.Saved = len(saved)

	if req.Reconcile && len(saved) > 0 {
		result, err := h.engine.ReconcileBatch(r.Context(), saved)
		if err != nil {
			h.WriteServiceError(w, r, err, "record")
			return
		}
		response.Outcomes = result.Outcomes
	}

	for _, rec := range saved {
		if current, err := h.repo.GetRecord(r.Context(), rec.ID); err == nil {
			rec = current
		}
		response.Records = append(response.Records, dto.NewRecordResponse(rec))
	}

	status := http.StatusCreated
	if len(saved) == 0 {
		status = http.StatusUnprocessableEntity
	}
	h.WriteJSON(w, status, response)
}
