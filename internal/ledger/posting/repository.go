package posting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/accounts"
	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/db"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

const transactionColumns = `id, company_id, number, type, date, description, reference, total, reverses_id, created_at`

// Repository encapsulates DB operations for transactions.
type Repository interface {
	List(ctx context.Context, limit, offset int) ([]Transaction, int, error)
	Get(ctx context.Context, id int64) (Transaction, error)
	GetByNumber(ctx context.Context, number string) (Transaction, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	// LockAccounts acquires row locks on the given accounts in ascending id
	// order so concurrent postings cannot deadlock on each other.
	LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	NextNumber(ctx context.Context) (string, error)
	InsertTransaction(ctx context.Context, in PostingInput, number string, total decimal.Decimal, reverses *int64) (Transaction, error)
	InsertLines(ctx context.Context, transactionID int64, lines []LineInput) error
	// ApplyBalanceDelta adds delta to the account balance, conditional on the
	// version observed under lock.
	ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal, expectedVersion int64) error
	GetWithLines(ctx context.Context, id int64) (Transaction, error)
}

type repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs a PostgreSQL-backed transaction repository.
// lockTimeout bounds the wait for contended account rows.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) Repository {
	return &repository{pool: pool, lockTimeout: lockTimeout}
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]Transaction, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Transaction
	var total int
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE company_id=$1`, tenantID).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE company_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTransaction(ctx, rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Transaction, error) {
	var out Transaction
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = getWithLines(ctx, tx, id)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return out, nil
}

func (r *repository) GetByNumber(ctx context.Context, number string) (Transaction, error) {
	var out Transaction
	err := db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		tenantID, err := tenant.FromContext(ctx)
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE company_id=$1 AND number=$2`, tenantID, number)
		head, err := scanTransaction(ctx, row)
		if err != nil {
			return err
		}
		out, err = getWithLines(ctx, tx, head.ID)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return out, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTenantTx(ctx, r.pool, func(tx pgx.Tx) error {
		if r.lockTimeout > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, r.lockTimeout.Milliseconds())); err != nil {
				return err
			}
		}
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rows, err := r.tx.Query(ctx, `SELECT id, company_id, code, name, type, parent_id, balance, version, is_active, created_at, updated_at
FROM accounts WHERE company_id=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, tenantID, sorted)
	if err != nil {
		return nil, mapLockErr(err)
	}
	defer rows.Close()
	locked := make(map[int64]accounts.Account, len(sorted))
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Balance, &a.Version, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, mapLockErr(err)
		}
		if err := tenant.Ensure(ctx, a.CompanyID); err != nil {
			return nil, err
		}
		locked[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, mapLockErr(err)
	}
	return locked, nil
}

func (r *txRepository) NextNumber(ctx context.Context) (string, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", err
	}
	var value int64
	err = r.tx.QueryRow(ctx, `INSERT INTO transaction_counters (company_id, value) VALUES ($1, 1)
ON CONFLICT (company_id) DO UPDATE SET value = transaction_counters.value + 1
RETURNING value`, tenantID).Scan(&value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN-%06d", value), nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, in PostingInput, number string, total decimal.Decimal, reverses *int64) (Transaction, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Transaction{}, err
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO transactions (company_id, number, type, date, description, reference, total, reverses_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+transactionColumns,
		tenantID, number, in.Type, in.Date, in.Description, in.Reference, total, reverses)
	t, err := scanTransaction(ctx, row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, ledgershared.ErrDuplicateTransactionNumber
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *txRepository) InsertLines(ctx context.Context, transactionID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO transaction_lines (transaction_id, account_id, debit, credit, description)
VALUES ($1, $2, $3, $4, $5)`, transactionID, line.AccountID, line.Debit, line.Credit, line.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal, expectedVersion int64) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $4, version = version + 1, updated_at = NOW()
WHERE company_id=$1 AND id=$2 AND version=$3`, tenantID, accountID, expectedVersion, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledgershared.ErrConcurrentUpdateConflict
	}
	return nil
}

func (r *txRepository) GetWithLines(ctx context.Context, id int64) (Transaction, error) {
	return getWithLines(ctx, r.tx, id)
}

func getWithLines(ctx context.Context, tx pgx.Tx, id int64) (Transaction, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return Transaction{}, err
	}
	row := tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE company_id=$1 AND id=$2`, tenantID, id)
	t, err := scanTransaction(ctx, row)
	if err != nil {
		return Transaction{}, err
	}
	rows, err := tx.Query(ctx, `SELECT id, transaction_id, account_id, debit, credit, description
FROM transaction_lines WHERE transaction_id=$1 ORDER BY id`, t.ID)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line TransactionLine
		if err := rows.Scan(&line.ID, &line.TransactionID, &line.AccountID, &line.Debit, &line.Credit, &line.Description); err != nil {
			return Transaction{}, err
		}
		t.Lines = append(t.Lines, line)
	}
	return t, rows.Err()
}

func scanTransaction(ctx context.Context, row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.CompanyID, &t.Number, &t.Type, &t.Date, &t.Description, &t.Reference, &t.Total, &t.ReversesID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ledgershared.ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	if err := tenant.Ensure(ctx, t.CompanyID); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// mapLockErr translates a PostgreSQL lock_timeout failure into the posting
// taxonomy so callers see a clean, retriable error.
func mapLockErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return ledgershared.ErrPostingTimeout
	}
	return err
}
