package ingest

import (
	"fmt"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/record"
	"github.com/shopspring/decimal"
)

// BankTransaction is a transaction as delivered by the bank feed sync
type BankTransaction struct {
	ID           string              `json:"id"`
	Date         string              `json:"date"`
	Amount       decimal.NullDecimal `json:"amount"`
	Merchant     string              `json:"merchant,omitempty"`
	Description  string              `json:"description,omitempty"`
	Counterparty *Counterparty       `json:"counterparty,omitempty"`
	Category     string              `json:"category,omitempty"`
}

// Counterparty is the other side of a bank transaction
type Counterparty struct {
	Name string `json:"name"`
}

// Transaction converts a bank feed transaction. The feed's ID is kept as
// the record ID so re-syncing the same transaction updates it in place.
// Merchant text comes from the merchant, then the counterparty name, then
// the description.
func (c *Converter) Transaction(ownerID string, tx BankTransaction) (*record.FinancialRecord, error) {
	rec, err := c.newRecord(tx.ID, ownerID, record.KindTransaction, SourceBankFeed)
	if err != nil {
		return nil, err
	}

	date, err := ParseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s date: %w", rec.ID, err)
	}

	counterparty := ""
	if tx.Counterparty != nil {
		counterparty = tx.Counterparty.Name
	}

	rec.Date = date
	rec.MerchantText = firstNonEmpty(tx.Merchant, counterparty, tx.Description)
	rec.Category = tx.Category
	if tx.Amount.Valid {
		rec.Amount = magnitude(tx.Amount.Decimal)
	}
	return rec, nil
}
