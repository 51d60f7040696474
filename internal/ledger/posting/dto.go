package posting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
)

// LineInput describes one transaction line for a posting request.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// PostingInput groups fields required to post a transaction. Number is
// optional: when empty the engine assigns the next per-tenant sequence
// value; when set it doubles as an idempotency key.
type PostingInput struct {
	Type        TransactionType
	Date        time.Time
	Number      string
	Description string
	Reference   string
	Lines       []LineInput
}

// Validate enforces the line-shape invariants: every line carries exactly
// one non-negative side and the two sides balance to the same exact decimal
// total. No epsilon is tolerated.
func (in PostingInput) Validate() error {
	if !in.Type.Valid() {
		return shared.ErrInvalidTransactionType
	}
	if in.Date.IsZero() {
		return shared.ErrInvalidDate
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debits := decimal.Zero
	credits := decimal.Zero
	for _, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.ErrInvalidLine
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return shared.ErrInvalidLine
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return shared.ErrInvalidLine
		}
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	if !debits.Equal(credits) {
		return shared.ErrUnbalancedTransaction
	}
	return nil
}

// Total returns the balanced side total of the input.
func (in PostingInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range in.Lines {
		total = total.Add(line.Debit)
	}
	return total
}

// ReverseInput wraps parameters for reversing a posted transaction.
type ReverseInput struct {
	TransactionID int64
	Number        string
	Date          time.Time
	Description   string
}
