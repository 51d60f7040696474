package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates ledger transaction categories.
type TransactionType string

const (
	TypeJournalEntry TransactionType = "JOURNAL_ENTRY"
	TypeInvoice      TransactionType = "INVOICE"
	TypePayment      TransactionType = "PAYMENT"
	TypeBill         TransactionType = "BILL"
	TypeExpense      TransactionType = "EXPENSE"
	TypeAdjustment   TransactionType = "ADJUSTMENT"
	TypeTransfer     TransactionType = "TRANSFER"
)

// Valid reports whether the type is a known category.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeJournalEntry, TypeInvoice, TypePayment, TypeBill,
		TypeExpense, TypeAdjustment, TypeTransfer:
		return true
	}
	return false
}

// Transaction is a posted, balanced journal entry. Posted transactions are
// append-only: corrections happen through a reversal transaction, never by
// mutating the original amounts.
type Transaction struct {
	ID          int64
	CompanyID   uuid.UUID
	Number      string
	Type        TransactionType
	Date        time.Time
	Description string
	Reference   string
	Total       decimal.Decimal
	ReversesID  *int64
	CreatedAt   time.Time
	Lines       []TransactionLine
}

// TransactionLine carries one side of a posting. Exactly one of Debit or
// Credit is nonzero per line.
type TransactionLine struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Description   string
}
