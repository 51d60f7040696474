package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/db"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// Repository reads snapshot source data and persists generated reports.
type Repository interface {
	AccountBalances(ctx context.Context) ([]AccountBalance, error)
	LedgerTotals(ctx context.Context, window Window) (debits, credits decimal.Decimal, err error)
	OpenInvoices(ctx context.Context) ([]OpenInvoice, error)
	RecentTransactions(ctx context.Context, window Window, limit int) ([]TransactionSummary, error)
	BillingSnapshot(ctx context.Context) (*BillingSnapshot, error)
	Insert(ctx context.Context, reportType ReportType, payload Payload, generatedAt time.Time) (Report, error)
	Get(ctx context.Context, id int64) (Report, error)
	List(ctx context.Context, limit, offset int) ([]Report, int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed report repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) AccountBalances(ctx context.Context) ([]AccountBalance, error) {
	var out []AccountBalance
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, code, name, type, balance FROM accounts
WHERE company_id=$1 AND is_active ORDER BY code`, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var b AccountBalance
			if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Balance); err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) LedgerTotals(ctx context.Context, window Window) (decimal.Decimal, decimal.Decimal, error) {
	var debits, credits decimal.Decimal
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		from, to := windowBounds(window)
		return tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM transaction_lines l
JOIN transactions t ON t.id = l.transaction_id
WHERE t.company_id=$1 AND t.date >= $2 AND t.date <= $3`, tenantID, from, to).Scan(&debits, &credits)
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debits, credits, nil
}

func (r *repository) OpenInvoices(ctx context.Context) ([]OpenInvoice, error) {
	var out []OpenInvoice
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, number, amount, currency, status, due_at FROM invoices
WHERE company_id=$1 AND status NOT IN ('PAID', 'CANCELLED') ORDER BY due_at`, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var inv OpenInvoice
			if err := rows.Scan(&inv.InvoiceID, &inv.Number, &inv.Amount, &inv.Currency, &inv.Status, &inv.DueAt); err != nil {
				return err
			}
			out = append(out, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) RecentTransactions(ctx context.Context, window Window, limit int) ([]TransactionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []TransactionSummary
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		from, to := windowBounds(window)
		rows, err := tx.Query(ctx, `SELECT id, number, type, date, total FROM transactions
WHERE company_id=$1 AND date >= $2 AND date <= $3 ORDER BY date DESC, id DESC LIMIT $4`, tenantID, from, to, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t TransactionSummary
			if err := rows.Scan(&t.TransactionID, &t.Number, &t.Type, &t.Date, &t.Total); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) BillingSnapshot(ctx context.Context) (*BillingSnapshot, error) {
	var out *BillingSnapshot
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		var snap BillingSnapshot
		err = tx.QueryRow(ctx, `SELECT state, payment_status, failed_payments, outstanding_balance
FROM billing_status WHERE company_id=$1`, tenantID).Scan(
			&snap.State, &snap.PaymentStatus, &snap.FailedPayments, &snap.OutstandingBalance)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		out = &snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Insert(ctx context.Context, reportType ReportType, payload Payload, generatedAt time.Time) (Report, error) {
	var out Report
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `INSERT INTO reconciliation_reports (company_id, type, payload, generated_at)
VALUES ($1, $2, $3, $4) RETURNING id, company_id, type, generated_at`,
			tenantID, reportType, body, generatedAt).Scan(&out.ID, &out.CompanyID, &out.Type, &out.GeneratedAt)
	})
	if err != nil {
		return Report{}, err
	}
	out.Payload = payload
	return out, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Report, error) {
	var out Report
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		var body []byte
		err = tx.QueryRow(ctx, `SELECT id, company_id, type, payload, generated_at
FROM reconciliation_reports WHERE company_id=$1 AND id=$2`, tenantID, id).Scan(
			&out.ID, &out.CompanyID, &out.Type, &body, &out.GeneratedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReportNotFound
		}
		if err != nil {
			return err
		}
		if err := tenant.Ensure(ctx, out.CompanyID); err != nil {
			return err
		}
		return json.Unmarshal(body, &out.Payload)
	})
	if err != nil {
		return Report{}, err
	}
	return out, nil
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Report, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Report
	var total int
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliation_reports WHERE company_id=$1`, tenantID).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, company_id, type, generated_at
FROM reconciliation_reports WHERE company_id=$1 ORDER BY generated_at DESC, id DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rep Report
			if err := rows.Scan(&rep.ID, &rep.CompanyID, &rep.Type, &rep.GeneratedAt); err != nil {
				return err
			}
			out = append(out, rep)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// windowBounds widens an unset window to cover all history.
func windowBounds(w Window) (time.Time, time.Time) {
	from := w.From
	to := w.To
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().Add(24 * time.Hour).UTC()
	}
	return from, to
}
