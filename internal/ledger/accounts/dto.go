package accounts

import (
	"errors"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
)

// CreateAccountInput groups fields required to create an account.
type CreateAccountInput struct {
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}

// Validate ensures the input meets minimum criteria. Code comparison is
// case-sensitive; uniqueness within the tenant is enforced by the service.
func (in CreateAccountInput) Validate() error {
	if in.Code == "" {
		return errors.New("accounts: code required")
	}
	if in.Name == "" {
		return errors.New("accounts: name required")
	}
	if !in.Type.Valid() {
		return shared.ErrInvalidAccountType
	}
	return nil
}
