package shared

import "errors"

var (
	// ErrUnknownAccount indicates a line references a missing or inactive account.
	ErrUnknownAccount = errors.New("ledger: unknown or inactive account")
	// ErrInvalidLine indicates a malformed line (negative, or both sides set).
	ErrInvalidLine = errors.New("ledger: line must carry exactly one non-negative side")
	// ErrUnbalancedTransaction indicates total debits do not equal total credits.
	ErrUnbalancedTransaction = errors.New("ledger: debits and credits must balance exactly")
	// ErrTooFewLines indicates fewer than two lines were supplied.
	ErrTooFewLines = errors.New("ledger: transaction requires at least two lines")
	// ErrDuplicateTransactionNumber signals the number was already posted.
	// Callers should treat it as "already applied" rather than retry blindly.
	ErrDuplicateTransactionNumber = errors.New("ledger: transaction number already posted")
	// ErrConcurrentUpdateConflict indicates a balance update lost an
	// optimistic-concurrency race after exhausting internal retries.
	ErrConcurrentUpdateConflict = errors.New("ledger: concurrent balance update conflict")
	// ErrPostingTimeout indicates a posting timed out waiting for account
	// locks; no partial state was left behind and the same transaction
	// number may be retried safely.
	ErrPostingTimeout = errors.New("ledger: posting timed out waiting for locks")
	// ErrAccountInUse indicates a deactivation was blocked by recent postings.
	ErrAccountInUse = errors.New("ledger: account has recent posted lines")
	// ErrAccountCycle indicates a parent assignment would create a cycle.
	ErrAccountCycle = errors.New("ledger: account parent chain must be acyclic")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrDuplicateAccountCode indicates the code is taken within the tenant.
	ErrDuplicateAccountCode = errors.New("ledger: account code already exists")
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrInvalidAccountType indicates an unrecognised account type.
	ErrInvalidAccountType = errors.New("ledger: invalid account type")
	// ErrInvalidTransactionType indicates an unrecognised transaction type.
	ErrInvalidTransactionType = errors.New("ledger: invalid transaction type")
	// ErrInvalidDate indicates a posting without a transaction date.
	ErrInvalidDate = errors.New("ledger: transaction date required")
)
