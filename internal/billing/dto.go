package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateInvoiceInput carries the fields for a new draft invoice.
type CreateInvoiceInput struct {
	Number   string
	Amount   decimal.Decimal
	Currency string
	DueAt    time.Time
}

// Validate checks structural correctness before any storage work.
func (in CreateInvoiceInput) Validate() error {
	if in.Number == "" {
		return ErrMissingInvoiceNumber
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// RecordPaymentInput carries one settlement attempt.
type RecordPaymentInput struct {
	InvoiceID     *int64
	TransactionID *int64
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	Reference     string
}

// Validate checks structural correctness before any storage work.
func (in RecordPaymentInput) Validate() error {
	if !in.Status.Valid() {
		return ErrInvalidPaymentStatus
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
