package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/db"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

const invoiceColumns = `id, company_id, number, amount, currency, status, issued_at, due_at, paid_at, created_at, updated_at`

// Repository encapsulates DB operations for invoices, payments, and the
// billing aggregate.
type Repository interface {
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, int, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	GetBillingStatus(ctx context.Context) (BillingStatus, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a reconciliation transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	// CompletedPaymentTotal sums COMPLETED payments linked to the invoice.
	CompletedPaymentTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	// OutstandingBalance sums collectible invoice amounts net of their
	// completed payments.
	OutstandingBalance(ctx context.Context) (decimal.Decimal, error)
	CountPaymentsByStatus(ctx context.Context, status PaymentStatus) (int, error)
	LatestPaymentStatus(ctx context.Context) (PaymentStatus, error)
	CountOverdueCollectible(ctx context.Context, asOf time.Time) (int, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	GetBillingStatus(ctx context.Context) (BillingStatus, error)
	UpsertBillingStatus(ctx context.Context, status BillingStatus) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed billing repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var out Invoice
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = getInvoice(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	return out, nil
}

func (r *repository) ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Invoice
	var total int
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE company_id=$1`, tenantID).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE company_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			inv, err := scanInvoice(ctx, rows)
			if err != nil {
				return err
			}
			out = append(out, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, company_id, invoice_id, transaction_id, amount, currency, status, reference, processed_at, created_at
FROM payments WHERE company_id=$1 AND invoice_id=$2 ORDER BY created_at`, tenantID, invoiceID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanPayment(ctx, rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) GetBillingStatus(ctx context.Context) (BillingStatus, error) {
	var out BillingStatus
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = getBillingStatus(ctx, tx)
		return err
	})
	if err != nil {
		return BillingStatus{}, err
	}
	return out, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Invoice{}, err
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO invoices (company_id, number, amount, currency, status, due_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+invoiceColumns,
		tenantID, in.Number, in.Amount, in.Currency, InvoiceStatusDraft, in.DueAt)
	inv, err := scanInvoice(ctx, row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Invoice{}, ErrDuplicateInvoiceNumber
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$3, issued_at=$4, paid_at=$5, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, tenantID, inv.ID, inv.Status, inv.IssuedAt, inv.PaidAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Payment{}, err
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO payments (company_id, invoice_id, transaction_id, amount, currency, status, reference, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, company_id, invoice_id, transaction_id, amount, currency, status, reference, processed_at, created_at`,
		tenantID, p.InvoiceID, p.TransactionID, p.Amount, p.Currency, p.Status, p.Reference, p.ProcessedAt)
	return scanPayment(ctx, row)
}

func (r *txRepository) CompletedPaymentTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var total decimal.Decimal
	err = r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE company_id=$1 AND invoice_id=$2 AND status=$3`, tenantID, invoiceID, PaymentStatusCompleted).Scan(&total)
	return total, err
}

func (r *txRepository) OutstandingBalance(ctx context.Context) (decimal.Decimal, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var outstanding decimal.Decimal
	err = r.tx.QueryRow(ctx, `SELECT GREATEST(COALESCE(SUM(i.amount), 0) - COALESCE(SUM(p.paid), 0), 0)
FROM invoices i
LEFT JOIN (
  SELECT invoice_id, SUM(amount) AS paid FROM payments
  WHERE company_id=$1 AND status=$2 AND invoice_id IS NOT NULL GROUP BY invoice_id
) p ON p.invoice_id = i.id
WHERE i.company_id=$1 AND i.status NOT IN ($3, $4)`,
		tenantID, PaymentStatusCompleted, InvoiceStatusPaid, InvoiceStatusCancelled).Scan(&outstanding)
	return outstanding, err
}

func (r *txRepository) CountPaymentsByStatus(ctx context.Context, status PaymentStatus) (int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	err = r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE company_id=$1 AND status=$2`, tenantID, status).Scan(&count)
	return count, err
}

func (r *txRepository) LatestPaymentStatus(ctx context.Context) (PaymentStatus, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", err
	}
	var status PaymentStatus
	err = r.tx.QueryRow(ctx, `SELECT status FROM payments WHERE company_id=$1 ORDER BY created_at DESC LIMIT 1`, tenantID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentStatusPending, nil
	}
	return status, err
}

func (r *txRepository) CountOverdueCollectible(ctx context.Context, asOf time.Time) (int, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	err = r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoices
WHERE company_id=$1 AND status IN ($2, $3, $4) AND due_at < $5`,
		tenantID, InvoiceStatusPending, InvoiceStatusSent, InvoiceStatusOverdue, asOf).Scan(&count)
	return count, err
}

func (r *txRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, updated_at=NOW()
WHERE company_id=$1 AND status IN ($3, $4) AND due_at < $5`,
		tenantID, InvoiceStatusOverdue, InvoiceStatusPending, InvoiceStatusSent, asOf)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) GetBillingStatus(ctx context.Context) (BillingStatus, error) {
	return getBillingStatus(ctx, r.tx)
}

func (r *txRepository) UpsertBillingStatus(ctx context.Context, status BillingStatus) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO billing_status (company_id, state, payment_status, failed_payments, outstanding_balance, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (company_id) DO UPDATE SET state=$2, payment_status=$3, failed_payments=$4, outstanding_balance=$5, updated_at=NOW()`,
		tenantID, status.State, status.PaymentStatus, status.FailedPayments, status.OutstandingBalance)
	return err
}

func getInvoice(ctx context.Context, tx pgx.Tx, id int64, forUpdate bool) (Invoice, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Invoice{}, err
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE company_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanInvoice(ctx, tx.QueryRow(ctx, query, tenantID, id))
}

func getBillingStatus(ctx context.Context, tx pgx.Tx) (BillingStatus, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return BillingStatus{}, err
	}
	var s BillingStatus
	err = tx.QueryRow(ctx, `SELECT company_id, state, payment_status, failed_payments, outstanding_balance, updated_at
FROM billing_status WHERE company_id=$1`, tenantID).Scan(
		&s.CompanyID, &s.State, &s.PaymentStatus, &s.FailedPayments, &s.OutstandingBalance, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BillingStatus{
			CompanyID:          tenantID,
			State:              BillingStateActive,
			PaymentStatus:      PaymentStatusPending,
			OutstandingBalance: decimal.Zero,
		}, nil
	}
	if err != nil {
		return BillingStatus{}, err
	}
	if err := tenant.Ensure(ctx, s.CompanyID); err != nil {
		return BillingStatus{}, err
	}
	return s, nil
}

func scanInvoice(ctx context.Context, row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Number, &inv.Amount, &inv.Currency, &inv.Status,
		&inv.IssuedAt, &inv.DueAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	if err := tenant.Ensure(ctx, inv.CompanyID); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func scanPayment(ctx context.Context, row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.CompanyID, &p.InvoiceID, &p.TransactionID, &p.Amount, &p.Currency,
		&p.Status, &p.Reference, &p.ProcessedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	if err := tenant.Ensure(ctx, p.CompanyID); err != nil {
		return Payment{}, err
	}
	return p, nil
}
