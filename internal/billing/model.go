package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// CanTransitionTo reports whether the lifecycle permits moving to next.
// OVERDUE is derived from dueAt by the sweep or at read time, so it is
// never a client-settable target here.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return next == InvoiceStatusPending || next == InvoiceStatusCancelled
	case InvoiceStatusPending:
		return next == InvoiceStatusSent || next == InvoiceStatusPaid || next == InvoiceStatusCancelled
	case InvoiceStatusSent:
		return next == InvoiceStatusPaid || next == InvoiceStatusCancelled
	case InvoiceStatusOverdue:
		return next == InvoiceStatusPaid || next == InvoiceStatusCancelled
	default:
		return false
	}
}

// PaymentStatus is the processing state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

// Valid reports whether the status is a known value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// BillingState is the per-tenant aggregate billing condition.
type BillingState string

const (
	BillingStateActive     BillingState = "ACTIVE"
	BillingStatePastDue    BillingState = "PAST_DUE"
	BillingStateSuspended  BillingState = "SUSPENDED"
	BillingStateCancelled  BillingState = "CANCELLED"
	BillingStateTrial      BillingState = "TRIAL"
	BillingStateDelinquent BillingState = "DELINQUENT"
)

// Invoice is a tenant-scoped receivable.
type Invoice struct {
	ID        int64
	CompanyID uuid.UUID
	Number    string
	Amount    decimal.Decimal
	Currency  string
	Status    InvoiceStatus
	IssuedAt  *time.Time
	DueAt     time.Time
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus derives OVERDUE at read time for invoices past their due
// date that are still collectible. The stored status is left untouched.
func (i Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if (i.Status == InvoiceStatusPending || i.Status == InvoiceStatusSent) && i.DueAt.Before(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// Payment records one settlement attempt. It may reference an invoice,
// a posted ledger transaction, both, or neither.
type Payment struct {
	ID            int64
	CompanyID     uuid.UUID
	InvoiceID     *int64
	TransactionID *int64
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	Reference     string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// BillingStatus is the one-per-tenant aggregate. It is a cache over raw
// invoice and payment history and may be rebuilt from it at any time.
type BillingStatus struct {
	CompanyID          uuid.UUID
	State              BillingState
	PaymentStatus      PaymentStatus
	FailedPayments     int
	OutstandingBalance decimal.Decimal
	UpdatedAt          time.Time
}
