package reports

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrReportNotFound    = errors.New("report not found")
	ErrInvalidReportType = errors.New("unknown report type")
	ErrInvalidWindow     = errors.New("window start must precede end")
)

// ReportType selects which sections a snapshot carries.
type ReportType string

const (
	// ReportTypeReconciliation is the full snapshot: balances, open
	// invoices, recent postings, and the billing aggregate.
	ReportTypeReconciliation ReportType = "RECONCILIATION"
	// ReportTypeTrialBalance carries account balances and ledger totals only.
	ReportTypeTrialBalance ReportType = "TRIAL_BALANCE"
)

// Valid reports whether the type is a known value.
func (t ReportType) Valid() bool {
	return t == ReportTypeReconciliation || t == ReportTypeTrialBalance
}

// Window bounds the postings included in a snapshot.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate checks the window is well formed.
func (w Window) Validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return ErrInvalidWindow
	}
	return nil
}

// AccountBalance is one chart-of-accounts line in a snapshot.
type AccountBalance struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
}

// OpenInvoice is one collectible invoice in a snapshot.
type OpenInvoice struct {
	InvoiceID int64           `json:"invoice_id"`
	Number    string          `json:"number"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	DueAt     time.Time       `json:"due_at"`
}

// TransactionSummary is one posting in a snapshot.
type TransactionSummary struct {
	TransactionID int64           `json:"transaction_id"`
	Number        string          `json:"number"`
	Type          string          `json:"type"`
	Date          time.Time       `json:"date"`
	Total         decimal.Decimal `json:"total"`
}

// BillingSnapshot is the tenant billing aggregate at generation time.
type BillingSnapshot struct {
	State              string          `json:"state"`
	PaymentStatus      string          `json:"payment_status"`
	FailedPayments     int             `json:"failed_payments"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
}

// Payload is the structured snapshot body stored as JSONB.
type Payload struct {
	Window             Window               `json:"window"`
	AccountBalances    []AccountBalance     `json:"account_balances"`
	TotalDebits        decimal.Decimal      `json:"total_debits"`
	TotalCredits       decimal.Decimal      `json:"total_credits"`
	OpenInvoices       []OpenInvoice        `json:"open_invoices,omitempty"`
	RecentTransactions []TransactionSummary `json:"recent_transactions,omitempty"`
	Billing            *BillingSnapshot     `json:"billing,omitempty"`
}

// Report is one immutable snapshot row. Rows are write-once; regenerating
// the same window appends a new row rather than touching this one.
type Report struct {
	ID          int64
	CompanyID   uuid.UUID
	Type        ReportType
	Payload     Payload
	GeneratedAt time.Time
}
