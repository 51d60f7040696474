package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithTenantTx executes fn within a RepeatableRead transaction after binding
// the active tenant to the database session. Every tenant-scoped table
// carries a row-level-security policy keyed on app.current_company_id, so a
// query that slips past the application-level guard still cannot see another
// tenant's rows.
func WithTenantTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	return WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('app.current_company_id', $1, true)`, tenantID.String()); err != nil {
			return fmt.Errorf("platform/db: bind tenant: %w", err)
		}
		return fn(tx)
	})
}
