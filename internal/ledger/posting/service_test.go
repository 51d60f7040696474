package posting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/accounts"
	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// memoryLedgerRepo backs the engine with maps. WithTx snapshots state
// before the callback and restores it on error, so atomicity behaves like
// a real storage transaction.
type memoryLedgerRepo struct {
	accounts     map[int64]*accounts.Account
	transactions map[int64]*Transaction
	numbers      map[string]int64
	counter      int64
	nextTxID     int64

	// conflictsLeft makes the next N balance updates fail with a version
	// conflict to exercise the retry loop.
	conflictsLeft int

	// lockErr fails every LockAccounts call, standing in for a lock wait
	// that exceeded its deadline.
	lockErr error
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		accounts:     make(map[int64]*accounts.Account),
		transactions: make(map[int64]*Transaction),
		numbers:      make(map[string]int64),
	}
}

func (r *memoryLedgerRepo) addAccount(tenantID uuid.UUID, id int64, accountType accounts.AccountType, active bool) {
	r.accounts[id] = &accounts.Account{
		ID:        id,
		CompanyID: tenantID,
		Code:      fmt.Sprintf("%04d", id),
		Name:      fmt.Sprintf("Account %d", id),
		Type:      accountType,
		Balance:   decimal.Zero,
		Version:   1,
		IsActive:  active,
	}
}

func (r *memoryLedgerRepo) snapshot() *memoryLedgerRepo {
	clone := newMemoryLedgerRepo()
	for id, a := range r.accounts {
		copied := *a
		clone.accounts[id] = &copied
	}
	for id, t := range r.transactions {
		copied := *t
		copied.Lines = append([]TransactionLine(nil), t.Lines...)
		clone.transactions[id] = &copied
	}
	for n, id := range r.numbers {
		clone.numbers[n] = id
	}
	clone.counter = r.counter
	clone.nextTxID = r.nextTxID
	return clone
}

func (r *memoryLedgerRepo) restore(snap *memoryLedgerRepo) {
	r.accounts = snap.accounts
	r.transactions = snap.transactions
	r.numbers = snap.numbers
	r.counter = snap.counter
	r.nextTxID = snap.nextTxID
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryLedgerRepo) List(ctx context.Context, limit, offset int) ([]Transaction, int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	var out []Transaction
	for _, t := range r.transactions {
		if t.CompanyID == tenantID {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

func (r *memoryLedgerRepo) Get(ctx context.Context, id int64) (Transaction, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Transaction{}, err
	}
	t, ok := r.transactions[id]
	if !ok {
		return Transaction{}, ledgershared.ErrTransactionNotFound
	}
	if t.CompanyID != tenantID {
		return Transaction{}, tenant.ErrTenantMismatch
	}
	return *t, nil
}

func (r *memoryLedgerRepo) GetByNumber(ctx context.Context, number string) (Transaction, error) {
	id, ok := r.numbers[number]
	if !ok {
		return Transaction{}, ledgershared.ErrTransactionNotFound
	}
	return r.Get(ctx, id)
}

func (r *memoryLedgerRepo) LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	if r.lockErr != nil {
		return nil, r.lockErr
	}
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	locked := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		a, ok := r.accounts[id]
		if !ok || a.CompanyID != tenantID {
			continue
		}
		locked[id] = *a
	}
	return locked, nil
}

func (r *memoryLedgerRepo) NextNumber(ctx context.Context) (string, error) {
	r.counter++
	return fmt.Sprintf("TXN-%06d", r.counter), nil
}

func (r *memoryLedgerRepo) InsertTransaction(ctx context.Context, in PostingInput, number string, total decimal.Decimal, reverses *int64) (Transaction, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Transaction{}, err
	}
	if _, exists := r.numbers[number]; exists {
		return Transaction{}, ledgershared.ErrDuplicateTransactionNumber
	}
	r.nextTxID++
	t := &Transaction{
		ID:          r.nextTxID,
		CompanyID:   tenantID,
		Number:      number,
		Type:        in.Type,
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		Total:       total,
		ReversesID:  reverses,
		CreatedAt:   time.Now(),
	}
	r.transactions[t.ID] = t
	r.numbers[number] = t.ID
	return *t, nil
}

func (r *memoryLedgerRepo) InsertLines(ctx context.Context, transactionID int64, lines []LineInput) error {
	t := r.transactions[transactionID]
	for _, line := range lines {
		t.Lines = append(t.Lines, TransactionLine{
			TransactionID: transactionID,
			AccountID:     line.AccountID,
			Debit:         line.Debit,
			Credit:        line.Credit,
			Description:   line.Description,
		})
	}
	return nil
}

func (r *memoryLedgerRepo) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal, expectedVersion int64) error {
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return ledgershared.ErrConcurrentUpdateConflict
	}
	a, ok := r.accounts[accountID]
	if !ok || a.Version != expectedVersion {
		return ledgershared.ErrConcurrentUpdateConflict
	}
	a.Balance = a.Balance.Add(delta)
	a.Version++
	return nil
}

func (r *memoryLedgerRepo) GetWithLines(ctx context.Context, id int64) (Transaction, error) {
	return r.Get(ctx, id)
}

func newTestEngine(repo *memoryLedgerRepo) *Engine {
	return NewEngine(repo, nil, nil, nil, 3, time.Millisecond)
}

func journal(lines ...LineInput) PostingInput {
	return PostingInput{
		Type:  TypeJournalEntry,
		Date:  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Lines: lines,
	}
}

func debit(accountID int64, amount string) LineInput {
	return LineInput{AccountID: accountID, Debit: decimal.RequireFromString(amount)}
}

func credit(accountID int64, amount string) LineInput {
	return LineInput{AccountID: accountID, Credit: decimal.RequireFromString(amount)}
}

func TestPostTransactionAppliesSignedDeltas(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	repo.addAccount(tenantID, 3, accounts.AccountTypeLiability, true)
	repo.addAccount(tenantID, 4, accounts.AccountTypeExpense, true)
	engine := newTestEngine(repo)

	// Cash sale: asset up, revenue up.
	_, err := engine.PostTransaction(ctx, journal(debit(1, "100.00"), credit(2, "100.00")))
	require.NoError(t, err)
	require.True(t, repo.accounts[1].Balance.Equal(decimal.RequireFromString("100.00")))
	require.True(t, repo.accounts[2].Balance.Equal(decimal.RequireFromString("100.00")))

	// Expense on credit: expense up, liability up.
	_, err = engine.PostTransaction(ctx, journal(debit(4, "40.00"), credit(3, "40.00")))
	require.NoError(t, err)
	require.True(t, repo.accounts[4].Balance.Equal(decimal.RequireFromString("40.00")))
	require.True(t, repo.accounts[3].Balance.Equal(decimal.RequireFromString("40.00")))

	// Paying the liability down: liability down, asset down.
	_, err = engine.PostTransaction(ctx, journal(debit(3, "40.00"), credit(1, "40.00")))
	require.NoError(t, err)
	require.True(t, repo.accounts[3].Balance.IsZero())
	require.True(t, repo.accounts[1].Balance.Equal(decimal.RequireFromString("60.00")))
}

func TestPostTransactionValidation(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	_, err := engine.PostTransaction(ctx, journal(debit(1, "100.00"), credit(2, "90.00")))
	require.ErrorIs(t, err, ledgershared.ErrUnbalancedTransaction)

	_, err = engine.PostTransaction(ctx, journal(
		LineInput{AccountID: 1, Debit: decimal.RequireFromString("10"), Credit: decimal.RequireFromString("10")},
		credit(2, "10"),
	))
	require.ErrorIs(t, err, ledgershared.ErrInvalidLine)

	_, err = engine.PostTransaction(ctx, journal(
		LineInput{AccountID: 1, Debit: decimal.RequireFromString("-5")},
		credit(2, "-5"),
	))
	require.ErrorIs(t, err, ledgershared.ErrInvalidLine)

	_, err = engine.PostTransaction(ctx, journal(debit(1, "10")))
	require.ErrorIs(t, err, ledgershared.ErrTooFewLines)

	in := journal(debit(1, "10"), credit(2, "10"))
	in.Type = "WIRE"
	_, err = engine.PostTransaction(ctx, in)
	require.ErrorIs(t, err, ledgershared.ErrInvalidTransactionType)

	in = journal(debit(1, "10"), credit(2, "10"))
	in.Date = time.Time{}
	_, err = engine.PostTransaction(ctx, in)
	require.ErrorIs(t, err, ledgershared.ErrInvalidDate)

	// Nothing was persisted by any rejected posting.
	require.Empty(t, repo.transactions)
	require.True(t, repo.accounts[1].Balance.IsZero())
}

func TestPostTransactionUnknownAccount(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, false)
	engine := newTestEngine(repo)

	// Inactive account.
	_, err := engine.PostTransaction(ctx, journal(debit(1, "10"), credit(2, "10")))
	require.ErrorIs(t, err, ledgershared.ErrUnknownAccount)

	// Missing account.
	_, err = engine.PostTransaction(ctx, journal(debit(1, "10"), credit(99, "10")))
	require.ErrorIs(t, err, ledgershared.ErrUnknownAccount)
}

func TestPostTransactionTenantIsolation(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantA, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantB, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	// Probing another tenant's account by raw id must not resolve it.
	ctx := tenant.WithTenant(context.Background(), tenantA)
	_, err := engine.PostTransaction(ctx, journal(debit(1, "10"), credit(2, "10")))
	require.ErrorIs(t, err, ledgershared.ErrUnknownAccount)
	require.True(t, repo.accounts[2].Balance.IsZero())

	_, err = engine.PostTransaction(context.Background(), journal(debit(1, "10"), credit(2, "10")))
	require.ErrorIs(t, err, tenant.ErrNoTenant)
}

func TestPostTransactionIdempotentNumber(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	in := journal(debit(1, "25.00"), credit(2, "25.00"))
	in.Number = "TXN-CLIENT-1"
	_, err := engine.PostTransaction(ctx, in)
	require.NoError(t, err)

	_, err = engine.PostTransaction(ctx, in)
	require.ErrorIs(t, err, ledgershared.ErrDuplicateTransactionNumber)

	// The retry applied nothing: one transaction, deltas applied once.
	require.Len(t, repo.transactions, 1)
	require.True(t, repo.accounts[1].Balance.Equal(decimal.RequireFromString("25.00")))
}

func TestPostTransactionGeneratedNumbers(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	first, err := engine.PostTransaction(ctx, journal(debit(1, "1"), credit(2, "1")))
	require.NoError(t, err)
	second, err := engine.PostTransaction(ctx, journal(debit(1, "1"), credit(2, "1")))
	require.NoError(t, err)
	require.Equal(t, "TXN-000001", first.Number)
	require.Equal(t, "TXN-000002", second.Number)
}

func TestPostTransactionRetriesConflicts(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	repo.conflictsLeft = 2
	posted, err := engine.PostTransaction(ctx, journal(debit(1, "10"), credit(2, "10")))
	require.NoError(t, err)
	require.True(t, repo.accounts[1].Balance.Equal(decimal.RequireFromString("10")))
	require.Len(t, repo.transactions, 1)
	require.Equal(t, posted.ID, repo.transactions[posted.ID].ID)
}

func TestPostTransactionConflictExhaustion(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	repo.conflictsLeft = 100
	_, err := engine.PostTransaction(ctx, journal(debit(1, "10"), credit(2, "10")))
	require.ErrorIs(t, err, ledgershared.ErrConcurrentUpdateConflict)

	// Every attempt rolled back: no transaction, no balance movement.
	require.Empty(t, repo.transactions)
	require.True(t, repo.accounts[1].Balance.IsZero())
}

func TestPostTransactionTimeout(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	in := journal(debit(1, "10.00"), credit(2, "10.00"))
	in.Number = "TXN-CLIENT-7"

	repo.lockErr = fmt.Errorf("lock accounts: %w", context.DeadlineExceeded)
	_, err := engine.PostTransaction(ctx, in)
	require.ErrorIs(t, err, ledgershared.ErrPostingTimeout)

	// The timed-out attempt left no partial state behind.
	require.Empty(t, repo.transactions)
	require.True(t, repo.accounts[1].Balance.IsZero())

	// Retrying with the same number succeeds once locks are available.
	repo.lockErr = nil
	posted, err := engine.PostTransaction(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "TXN-CLIENT-7", posted.Number)
	require.True(t, repo.accounts[1].Balance.Equal(decimal.RequireFromString("10.00")))
}

func TestPostTransactionAggregatesRepeatedAccounts(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	_, err := engine.PostTransaction(ctx, journal(
		debit(1, "30.00"),
		debit(1, "20.00"),
		credit(2, "50.00"),
	))
	require.NoError(t, err)
	require.True(t, repo.accounts[1].Balance.Equal(decimal.RequireFromString("50.00")))
	require.EqualValues(t, 2, repo.accounts[1].Version)
}

func TestReverseTransaction(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeRevenue, true)
	engine := newTestEngine(repo)

	posted, err := engine.PostTransaction(ctx, journal(debit(1, "75.00"), credit(2, "75.00")))
	require.NoError(t, err)

	reversal, err := engine.ReverseTransaction(ctx, ReverseInput{TransactionID: posted.ID})
	require.NoError(t, err)

	require.True(t, repo.accounts[1].Balance.IsZero())
	require.True(t, repo.accounts[2].Balance.IsZero())
	require.NotNil(t, reversal.ReversesID)
	require.Equal(t, posted.ID, *reversal.ReversesID)
	require.Equal(t, posted.Number, reversal.Reference)

	// The original record is untouched.
	original, err := engine.Get(ctx, posted.ID)
	require.NoError(t, err)
	require.True(t, original.Total.Equal(decimal.RequireFromString("75.00")))
	require.Nil(t, original.ReversesID)

	_, err = engine.ReverseTransaction(ctx, ReverseInput{TransactionID: 999})
	require.ErrorIs(t, err, ledgershared.ErrTransactionNotFound)
}

func TestBalanceInvariantAcrossPostings(t *testing.T) {
	tenantID := uuid.New()
	ctx := tenant.WithTenant(context.Background(), tenantID)
	repo := newMemoryLedgerRepo()
	repo.addAccount(tenantID, 1, accounts.AccountTypeAsset, true)
	repo.addAccount(tenantID, 2, accounts.AccountTypeLiability, true)
	repo.addAccount(tenantID, 3, accounts.AccountTypeEquity, true)
	repo.addAccount(tenantID, 4, accounts.AccountTypeRevenue, true)
	repo.addAccount(tenantID, 5, accounts.AccountTypeExpense, true)
	engine := newTestEngine(repo)

	postings := []PostingInput{
		journal(debit(1, "1000.00"), credit(3, "1000.00")),
		journal(debit(1, "250.50"), credit(4, "250.50")),
		journal(debit(5, "99.99"), credit(1, "99.99")),
		journal(debit(1, "10.01"), credit(2, "10.01")),
	}
	for _, in := range postings {
		_, err := engine.PostTransaction(ctx, in)
		require.NoError(t, err)
	}

	// Accounting equation: assets == liabilities + equity + revenue - expenses.
	assets := repo.accounts[1].Balance
	rhs := repo.accounts[2].Balance.
		Add(repo.accounts[3].Balance).
		Add(repo.accounts[4].Balance).
		Sub(repo.accounts[5].Balance)
	require.True(t, assets.Equal(rhs), "assets %s, rhs %s", assets, rhs)
}
