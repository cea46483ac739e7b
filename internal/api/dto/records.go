package dto

import (
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/receipt-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
)

// RecordResponse represents a financial record in API responses.
// Dates are YYYY-MM-DD and amounts are decimal strings; both are omitted
// when missing.
type RecordResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	OwnerID      string `json:"owner_id"`
	Date         string `json:"date,omitempty"`
	Amount       string `json:"amount,omitempty"`
	MerchantText string `json:"merchant"`
	Category     string `json:"category,omitempty"`
	LinkedID     string `json:"linked_id,omitempty"`
	LinkState    string `json:"link_state"`
	Source       string `json:"source,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// RecordDetailResponse is returned by GET /api/records/{id}.
type RecordDetailResponse struct {
	Record     RecordResponse         `json:"record"`
	Match      *record.MatchResult    `json:"match,omitempty"`
	Duplicates []record.DuplicateFlag `json:"duplicates"`
}

// ReceiptResponse is returned after a receipt is ingested.
type ReceiptResponse struct {
	Record     RecordResponse         `json:"record"`
	Meta       ingest.ReceiptMeta     `json:"meta"`
	Duplicates []record.DuplicateFlag `json:"duplicates"`
	Outcome    *reconcile.Outcome     `json:"outcome,omitempty"`
}

// TransactionsResponse is returned after a bank feed page is ingested.
type TransactionsResponse struct {
	Records  []RecordResponse    `json:"records"`
	Outcomes []reconcile.Outcome `json:"outcomes,omitempty"`
	Errors   []ItemError         `json:"errors,omitempty"`
	Saved    int                 `json:"saved"`
}

// ItemError reports one rejected element of a batch request.
type ItemError struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// DuplicatesResponse is returned by GET /api/records/{id}/duplicates.
type DuplicatesResponse struct {
	RecordID   string                 `json:"record_id"`
	Duplicates []record.DuplicateFlag `json:"duplicates"`
	Count      int                    `json:"count"`
}

// NewRecordResponse converts a domain record to its API form.
func NewRecordResponse(r *record.FinancialRecord) RecordResponse {
	resp := RecordResponse{
		ID:           r.ID,
		Kind:         string(r.Kind),
		OwnerID:      r.OwnerID,
		MerchantText: r.MerchantText,
		Category:     r.Category,
		LinkedID:     r.LinkedID,
		LinkState:    string(r.LinkState),
		Source:       r.Source,
	}
	if r.HasDate() {
		resp.Date = r.Date.Format("2006-01-02")
	}
	if r.HasAmount() {
		resp.Amount = r.Amount.Decimal.StringFixed(2)
	}
	if !r.CreatedAt.IsZero() {
		resp.CreatedAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
