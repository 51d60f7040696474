package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeOther     AccountType = "OTHER"
)

// Valid reports whether the type is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeRevenue, AccountTypeExpense, AccountTypeOther:
		return true
	}
	return false
}

// BalanceDelta applies the accounting-equation sign convention: debits
// increase ASSET/EXPENSE/OTHER balances, credits increase
// LIABILITY/EQUITY/REVENUE balances.
func (t AccountType) BalanceDelta(debit, credit decimal.Decimal) decimal.Decimal {
	switch t {
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return credit.Sub(debit)
	default:
		return debit.Sub(credit)
	}
}

// Account models a chart-of-accounts node. Balance is mutated only by the
// posting engine; Version guards those mutations against lost updates.
type Account struct {
	ID        int64
	CompanyID uuid.UUID
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	Balance   decimal.Decimal
	Version   int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
