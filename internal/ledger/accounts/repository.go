package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/db"
	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

const accountColumns = `id, company_id, code, name, type, parent_id, balance, version, is_active, created_at, updated_at`

// Repository encapsulates DB operations for the chart of accounts. Every
// method resolves the tenant from context; none accepts a tenant parameter.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	Children(ctx context.Context, parentID int64) ([]Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a tenant-bound transaction.
type TxRepository interface {
	Get(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	Insert(ctx context.Context, in CreateAccountInput) (Account, error)
	SetParent(ctx context.Context, id int64, parentID *int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	CountAccounts(ctx context.Context) (int64, error)
	CountLinesSince(ctx context.Context, accountID int64, since time.Time) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAccount(ctx, rows)
			if err != nil {
				return err
			}
			accounts = append(accounts, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	var account Account
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		account, err = getAccount(ctx, tx, id)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (r *repository) Children(ctx context.Context, parentID int64) ([]Account, error) {
	var accounts []Account
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND parent_id=$2 ORDER BY code`, tenantID, parentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAccount(ctx, rows)
			if err != nil {
				return err
			}
			accounts = append(accounts, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Get(ctx context.Context, id int64) (Account, error) {
	return getAccount(ctx, r.tx, id)
}

func (r *txRepository) GetByCode(ctx context.Context, code string) (Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Account{}, err
	}
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2`, tenantID, code)
	return scanAccount(ctx, row)
}

func (r *txRepository) Insert(ctx context.Context, in CreateAccountInput) (Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Account{}, err
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, type, parent_id, balance, version, is_active)
VALUES ($1, $2, $3, $4, $5, 0, 1, TRUE) RETURNING `+accountColumns, tenantID, in.Code, in.Name, in.Type, in.ParentID)
	account, err := scanAccount(ctx, row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ledgershared.ErrDuplicateAccountCode
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) SetParent(ctx context.Context, id int64, parentID *int64) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET parent_id=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, tenantID, id, parentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledgershared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, tenantID, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledgershared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) CountAccounts(ctx context.Context) (int64, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	err = r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE company_id=$1`, tenantID).Scan(&count)
	return count, err
}

func (r *txRepository) CountLinesSince(ctx context.Context, accountID int64, since time.Time) (int64, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	err = r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM transaction_lines tl
JOIN transactions t ON t.id = tl.transaction_id
WHERE t.company_id=$1 AND tl.account_id=$2 AND t.created_at >= $3`, tenantID, accountID, since).Scan(&count)
	return count, err
}

func getAccount(ctx context.Context, tx pgx.Tx, id int64) (Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Account{}, err
	}
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, tenantID, id)
	return scanAccount(ctx, row)
}

func scanAccount(ctx context.Context, row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Balance, &a.Version, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ledgershared.ErrAccountNotFound
		}
		return Account{}, err
	}
	// Defense in depth on top of the RLS policy and WHERE clause.
	if err := tenant.Ensure(ctx, a.CompanyID); err != nil {
		return Account{}, err
	}
	return a, nil
}
