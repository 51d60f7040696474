package billing

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

type memoryBillingRepo struct {
	invoices      map[int64]*Invoice
	payments      map[int64]*Payment
	status        map[uuid.UUID]*BillingStatus
	nextInvoiceID int64
	nextPaymentID int64
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		invoices: make(map[int64]*Invoice),
		payments: make(map[int64]*Payment),
		status:   make(map[uuid.UUID]*BillingStatus),
	}
}

func (r *memoryBillingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryBillingRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Invoice{}, err
	}
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	if inv.CompanyID != tenantID {
		return Invoice{}, tenant.ErrTenantMismatch
	}
	return *inv, nil
}

func (r *memoryBillingRepo) ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.CompanyID == tenantID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *memoryBillingRepo) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	var out []Payment
	for _, p := range r.payments {
		if p.CompanyID == tenantID && p.InvoiceID != nil && *p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryBillingRepo) GetBillingStatus(ctx context.Context) (BillingStatus, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return BillingStatus{}, err
	}
	if s, ok := r.status[tenantID]; ok {
		return *s, nil
	}
	return BillingStatus{
		CompanyID:          tenantID,
		State:              BillingStateActive,
		PaymentStatus:      PaymentStatusPending,
		OutstandingBalance: decimal.Zero,
	}, nil
}

func (r *memoryBillingRepo) InsertInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Invoice{}, err
	}
	for _, inv := range r.invoices {
		if inv.Number == in.Number {
			return Invoice{}, ErrDuplicateInvoiceNumber
		}
	}
	r.nextInvoiceID++
	inv := &Invoice{
		ID:        r.nextInvoiceID,
		CompanyID: tenantID,
		Number:    in.Number,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Status:    InvoiceStatusDraft,
		DueAt:     in.DueAt,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.invoices[inv.ID] = inv
	return *inv, nil
}

func (r *memoryBillingRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *memoryBillingRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	stored, ok := r.invoices[inv.ID]
	if !ok {
		return ErrInvoiceNotFound
	}
	stored.Status = inv.Status
	stored.IssuedAt = inv.IssuedAt
	stored.PaidAt = inv.PaidAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *memoryBillingRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Payment{}, err
	}
	r.nextPaymentID++
	p.ID = r.nextPaymentID
	p.CompanyID = tenantID
	p.CreatedAt = time.Now()
	r.payments[p.ID] = &p
	return p, nil
}

func (r *memoryBillingRepo) CompletedPaymentTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range r.payments {
		if p.InvoiceID != nil && *p.InvoiceID == invoiceID && p.Status == PaymentStatusCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (r *memoryBillingRepo) OutstandingBalance(ctx context.Context) (decimal.Decimal, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	outstanding := decimal.Zero
	for _, inv := range r.invoices {
		if inv.CompanyID != tenantID || inv.Status == InvoiceStatusPaid || inv.Status == InvoiceStatusCancelled {
			continue
		}
		paid, _ := r.CompletedPaymentTotal(ctx, inv.ID)
		outstanding = outstanding.Add(inv.Amount.Sub(paid))
	}
	if outstanding.IsNegative() {
		return decimal.Zero, nil
	}
	return outstanding, nil
}

func (r *memoryBillingRepo) CountPaymentsByStatus(ctx context.Context, status PaymentStatus) (int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range r.payments {
		if p.CompanyID == tenantID && p.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *memoryBillingRepo) LatestPaymentStatus(ctx context.Context) (PaymentStatus, error) {
	var latest *Payment
	for _, p := range r.payments {
		if latest == nil || p.ID > latest.ID {
			latest = p
		}
	}
	if latest == nil {
		return PaymentStatusPending, nil
	}
	return latest.Status, nil
}

func (r *memoryBillingRepo) CountOverdueCollectible(ctx context.Context, asOf time.Time) (int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, inv := range r.invoices {
		if inv.CompanyID != tenantID {
			continue
		}
		switch inv.Status {
		case InvoiceStatusPending, InvoiceStatusSent, InvoiceStatusOverdue:
			if inv.DueAt.Before(asOf) {
				count++
			}
		}
	}
	return count, nil
}

func (r *memoryBillingRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	var swept int64
	for _, inv := range r.invoices {
		if inv.CompanyID != tenantID {
			continue
		}
		if (inv.Status == InvoiceStatusPending || inv.Status == InvoiceStatusSent) && inv.DueAt.Before(asOf) {
			inv.Status = InvoiceStatusOverdue
			swept++
		}
	}
	return swept, nil
}

func (r *memoryBillingRepo) UpsertBillingStatus(ctx context.Context, status BillingStatus) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	status.CompanyID = tenantID
	status.UpdatedAt = time.Now()
	r.status[tenantID] = &status
	return nil
}

func testTenantCtx(t *testing.T) (context.Context, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	return tenant.WithTenant(context.Background(), id), id
}

func sentInvoice(t *testing.T, s *Reconciler, ctx context.Context, number, amount string, dueAt time.Time) Invoice {
	t.Helper()
	inv, err := s.CreateInvoice(ctx, CreateInvoiceInput{
		Number:   number,
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		DueAt:    dueAt,
	})
	require.NoError(t, err)
	_, err = s.IssueInvoice(ctx, inv.ID)
	require.NoError(t, err)
	out, err := s.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	return out
}

func TestRecordPaymentSettlesInvoice(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	inv := sentInvoice(t, s, ctx, "INV-001", "100.00", time.Now().Add(30*24*time.Hour))

	_, err := s.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID: &inv.ID,
		Amount:    decimal.RequireFromString("40.00"),
		Currency:  "USD",
		Status:    PaymentStatusCompleted,
	})
	require.NoError(t, err)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusSent, got.Status)
	require.Nil(t, got.PaidAt)

	_, err = s.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID: &inv.ID,
		Amount:    decimal.RequireFromString("60.00"),
		Currency:  "USD",
		Status:    PaymentStatusCompleted,
	})
	require.NoError(t, err)

	got, err = s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)

	status, err := s.GetBillingStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.OutstandingBalance.IsZero())
	require.Equal(t, BillingStateActive, status.State)
}

func TestPaidStatusStickyPastDueDate(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	inv := sentInvoice(t, s, ctx, "INV-002", "50.00", time.Now().Add(time.Hour))
	_, err := s.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID: &inv.ID,
		Amount:    decimal.RequireFromString("50.00"),
		Currency:  "USD",
		Status:    PaymentStatusCompleted,
	})
	require.NoError(t, err)

	// Reads after the due date must still see PAID, never OVERDUE.
	s.WithNow(func() time.Time { return time.Now().Add(48 * time.Hour) })
	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPaid, got.Status)
}

func TestFailedPaymentsDriveDelinquency(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	inv := sentInvoice(t, s, ctx, "INV-003", "200.00", time.Now().Add(30*24*time.Hour))

	for i := 0; i < 3; i++ {
		_, err := s.RecordPayment(ctx, RecordPaymentInput{
			InvoiceID: &inv.ID,
			Amount:    decimal.RequireFromString("200.00"),
			Currency:  "USD",
			Status:    PaymentStatusFailed,
		})
		require.NoError(t, err)
	}

	status, err := s.GetBillingStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, status.FailedPayments)
	require.Equal(t, BillingStateDelinquent, status.State)
	require.True(t, status.OutstandingBalance.Equal(decimal.RequireFromString("200.00")))
}

func TestInvalidTransitionRejected(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	inv, err := s.CreateInvoice(ctx, CreateInvoiceInput{
		Number:   "INV-004",
		Amount:   decimal.RequireFromString("10.00"),
		Currency: "USD",
		DueAt:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = s.SendInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, got.Status)
}

func TestCurrencyMismatchRejected(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	inv := sentInvoice(t, s, ctx, "INV-005", "10.00", time.Now().Add(time.Hour))
	_, err := s.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID: &inv.ID,
		Amount:    decimal.RequireFromString("10.00"),
		Currency:  "EUR",
		Status:    PaymentStatusCompleted,
	})
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestSweepOverdue(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)
	overdueInv := sentInvoice(t, s, ctx, "INV-006", "30.00", past)
	currentInv := sentInvoice(t, s, ctx, "INV-007", "30.00", future)

	swept, err := s.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), swept)

	got, err := s.repo.GetInvoice(ctx, overdueInv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusOverdue, got.Status)

	got, err = s.repo.GetInvoice(ctx, currentInv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusSent, got.Status)

	status, err := s.GetBillingStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, BillingStatePastDue, status.State)
}

func TestOverdueDerivedAtReadTime(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	inv := sentInvoice(t, s, ctx, "INV-008", "30.00", time.Now().Add(-time.Hour))

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusOverdue, got.Status)

	// Stored status stays SENT until the sweep runs.
	raw, err := s.repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusSent, raw.Status)
}

func TestTenantIsolationByRawID(t *testing.T) {
	ctxA, _ := testTenantCtx(t)
	ctxB, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	inv := sentInvoice(t, s, ctxA, "INV-009", "30.00", time.Now().Add(time.Hour))

	_, err := s.GetInvoice(ctxB, inv.ID)
	require.ErrorIs(t, err, tenant.ErrTenantMismatch)
}

func TestInvoiceNumbersGloballyUnique(t *testing.T) {
	ctxA, _ := testTenantCtx(t)
	ctxB, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	_, err := s.CreateInvoice(ctxA, CreateInvoiceInput{
		Number:   "INV-010",
		Amount:   decimal.RequireFromString("10.00"),
		Currency: "USD",
		DueAt:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// Invoice numbers are globally unique: a second tenant cannot reuse one.
	_, err = s.CreateInvoice(ctxB, CreateInvoiceInput{
		Number:   "INV-010",
		Amount:   decimal.RequireFromString("20.00"),
		Currency: "USD",
		DueAt:    time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, ErrDuplicateInvoiceNumber)
}

func TestCompletedPaymentRejectedForUncollectibleInvoice(t *testing.T) {
	ctx, _ := testTenantCtx(t)
	repo := newMemoryBillingRepo()
	s := NewReconciler(repo, nil, nil)

	draft, err := s.CreateInvoice(ctx, CreateInvoiceInput{
		Number:   "INV-011",
		Amount:   decimal.RequireFromString("40.00"),
		Currency: "USD",
		DueAt:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = s.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID: &draft.ID,
		Amount:    decimal.RequireFromString("40.00"),
		Currency:  "USD",
		Status:    PaymentStatusCompleted,
	})
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	// The rejected settlement left the invoice and history untouched.
	raw, err := s.repo.GetInvoice(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, raw.Status)
	require.Nil(t, raw.PaidAt)
	payments, err := s.ListPayments(ctx, draft.ID)
	require.NoError(t, err)
	require.Empty(t, payments)

	cancelled := sentInvoice(t, s, ctx, "INV-012", "40.00", time.Now().Add(time.Hour))
	_, err = s.CancelInvoice(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = s.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID: &cancelled.ID,
		Amount:    decimal.RequireFromString("40.00"),
		Currency:  "USD",
		Status:    PaymentStatusCompleted,
	})
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
}
