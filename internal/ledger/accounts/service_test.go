package accounts

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

type memoryAccountRepo struct {
	accounts map[int64]*Account
	// lineTimes records when posted lines touched an account, newest last.
	lineTimes map[int64][]time.Time
	nextID    int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts:  make(map[int64]*Account),
		lineTimes: make(map[int64][]time.Time),
	}
}

func (r *memoryAccountRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryAccountRepo) List(ctx context.Context) ([]Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	var out []Account
	for _, a := range r.accounts {
		if a.CompanyID == tenantID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryAccountRepo) Get(ctx context.Context, id int64) (Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Account{}, err
	}
	a, ok := r.accounts[id]
	if !ok || a.CompanyID != tenantID {
		return Account{}, ledgershared.ErrAccountNotFound
	}
	return *a, nil
}

func (r *memoryAccountRepo) Children(ctx context.Context, parentID int64) ([]Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	var out []Account
	for _, a := range r.accounts {
		if a.CompanyID == tenantID && a.ParentID != nil && *a.ParentID == parentID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryAccountRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, a := range r.accounts {
		if a.CompanyID == tenantID && a.Code == code {
			return *a, nil
		}
	}
	return Account{}, ledgershared.ErrAccountNotFound
}

func (r *memoryAccountRepo) Insert(ctx context.Context, in CreateAccountInput) (Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Account{}, err
	}
	r.nextID++
	a := &Account{
		ID:        r.nextID,
		CompanyID: tenantID,
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		ParentID:  in.ParentID,
		Balance:   decimal.Zero,
		Version:   1,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.accounts[a.ID] = a
	return *a, nil
}

func (r *memoryAccountRepo) SetParent(ctx context.Context, id int64, parentID *int64) error {
	a, ok := r.accounts[id]
	if !ok {
		return ledgershared.ErrAccountNotFound
	}
	a.ParentID = parentID
	return nil
}

func (r *memoryAccountRepo) SetActive(ctx context.Context, id int64, active bool) error {
	a, ok := r.accounts[id]
	if !ok {
		return ledgershared.ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func (r *memoryAccountRepo) CountAccounts(ctx context.Context) (int64, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, a := range r.accounts {
		if a.CompanyID == tenantID {
			count++
		}
	}
	return count, nil
}

func (r *memoryAccountRepo) CountLinesSince(ctx context.Context, accountID int64, since time.Time) (int64, error) {
	var count int64
	for _, at := range r.lineTimes[accountID] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, nil, 90*24*time.Hour)
}

func mustCreate(t *testing.T, s *Service, ctx context.Context, code string, accountType AccountType, parentID *int64) Account {
	t.Helper()
	a, err := s.CreateAccount(ctx, CreateAccountInput{Code: code, Name: "Account " + code, Type: accountType, ParentID: parentID})
	require.NoError(t, err)
	return a
}

func TestCreateAccount(t *testing.T) {
	ctx := tenant.WithTenant(context.Background(), uuid.New())
	repo := newMemoryAccountRepo()
	s := newTestService(repo)

	a := mustCreate(t, s, ctx, "1000", AccountTypeAsset, nil)
	require.True(t, a.Balance.IsZero())
	require.True(t, a.IsActive)

	_, err := s.CreateAccount(ctx, CreateAccountInput{Code: "1000", Name: "Duplicate", Type: AccountTypeAsset})
	require.ErrorIs(t, err, ledgershared.ErrDuplicateAccountCode)

	// Codes are case-sensitive, so a lowercase variant is a new account.
	_, err = s.CreateAccount(ctx, CreateAccountInput{Code: "cash", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, CreateAccountInput{Code: "CASH", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	_, err = s.CreateAccount(ctx, CreateAccountInput{Code: "2000", Name: "Bad", Type: AccountType("GOODWILL")})
	require.ErrorIs(t, err, ledgershared.ErrInvalidAccountType)

	missing := int64(99)
	_, err = s.CreateAccount(ctx, CreateAccountInput{Code: "3000", Name: "Child", Type: AccountTypeAsset, ParentID: &missing})
	require.ErrorIs(t, err, ledgershared.ErrAccountNotFound)
}

func TestAccountCodesScopedPerTenant(t *testing.T) {
	repo := newMemoryAccountRepo()
	s := newTestService(repo)
	ctxA := tenant.WithTenant(context.Background(), uuid.New())
	ctxB := tenant.WithTenant(context.Background(), uuid.New())

	mustCreate(t, s, ctxA, "1000", AccountTypeAsset, nil)
	// The same code in another tenant does not collide.
	mustCreate(t, s, ctxB, "1000", AccountTypeAsset, nil)
}

func TestReparentRejectsCycles(t *testing.T) {
	ctx := tenant.WithTenant(context.Background(), uuid.New())
	repo := newMemoryAccountRepo()
	s := newTestService(repo)

	root := mustCreate(t, s, ctx, "1000", AccountTypeAsset, nil)
	child := mustCreate(t, s, ctx, "1100", AccountTypeAsset, &root.ID)
	grandchild := mustCreate(t, s, ctx, "1110", AccountTypeAsset, &child.ID)

	_, err := s.ReparentAccount(ctx, root.ID, &root.ID)
	require.ErrorIs(t, err, ledgershared.ErrAccountCycle)

	_, err = s.ReparentAccount(ctx, root.ID, &grandchild.ID)
	require.ErrorIs(t, err, ledgershared.ErrAccountCycle)

	// A rejected reparent leaves the hierarchy unchanged.
	got, err := s.Get(ctx, root.ID)
	require.NoError(t, err)
	require.Nil(t, got.ParentID)

	// Moving a leaf under a sibling subtree is fine.
	sibling := mustCreate(t, s, ctx, "1200", AccountTypeAsset, &root.ID)
	moved, err := s.ReparentAccount(ctx, grandchild.ID, &sibling.ID)
	require.NoError(t, err)
	require.Equal(t, sibling.ID, *moved.ParentID)

	// And back to the root.
	moved, err = s.ReparentAccount(ctx, grandchild.ID, nil)
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)
}

func TestDeactivateAccountRetention(t *testing.T) {
	ctx := tenant.WithTenant(context.Background(), uuid.New())
	repo := newMemoryAccountRepo()
	s := newTestService(repo)

	used := mustCreate(t, s, ctx, "1000", AccountTypeAsset, nil)
	idle := mustCreate(t, s, ctx, "2000", AccountTypeLiability, nil)
	stale := mustCreate(t, s, ctx, "3000", AccountTypeEquity, nil)

	repo.lineTimes[used.ID] = []time.Time{time.Now().Add(-24 * time.Hour)}
	repo.lineTimes[stale.ID] = []time.Time{time.Now().Add(-365 * 24 * time.Hour)}

	err := s.DeactivateAccount(ctx, used.ID, false)
	require.ErrorIs(t, err, ledgershared.ErrAccountInUse)
	got, _ := s.Get(ctx, used.ID)
	require.True(t, got.IsActive)

	require.NoError(t, s.DeactivateAccount(ctx, used.ID, true))
	got, _ = s.Get(ctx, used.ID)
	require.False(t, got.IsActive)

	require.NoError(t, s.DeactivateAccount(ctx, idle.ID, false))
	// Lines older than the retention window do not block deactivation.
	require.NoError(t, s.DeactivateAccount(ctx, stale.ID, false))
}

func TestGetSubtreeBalance(t *testing.T) {
	ctx := tenant.WithTenant(context.Background(), uuid.New())
	repo := newMemoryAccountRepo()
	s := newTestService(repo)

	root := mustCreate(t, s, ctx, "1000", AccountTypeAsset, nil)
	child := mustCreate(t, s, ctx, "1100", AccountTypeAsset, &root.ID)
	grandchild := mustCreate(t, s, ctx, "1110", AccountTypeAsset, &child.ID)
	inactive := mustCreate(t, s, ctx, "1200", AccountTypeAsset, &root.ID)
	buried := mustCreate(t, s, ctx, "1210", AccountTypeAsset, &inactive.ID)

	repo.accounts[root.ID].Balance = decimal.RequireFromString("10.00")
	repo.accounts[child.ID].Balance = decimal.RequireFromString("20.00")
	repo.accounts[grandchild.ID].Balance = decimal.RequireFromString("30.00")
	repo.accounts[inactive.ID].Balance = decimal.RequireFromString("99.00")
	repo.accounts[inactive.ID].IsActive = false
	repo.accounts[buried.ID].Balance = decimal.RequireFromString("5.00")

	// The inactive node is skipped but its active child still counts.
	total, err := s.GetSubtreeBalance(ctx, root.ID)
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("65.00")), "got %s", total)

	total, err = s.GetSubtreeBalance(ctx, child.ID)
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("50.00")))

	_, err = s.GetSubtreeBalance(ctx, 404)
	require.ErrorIs(t, err, ledgershared.ErrAccountNotFound)
}
