package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists tenants. The companies table is the only table not
// subject to row-level security; it is the root the policies key on.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	Create(ctx context.Context, name string) (Tenant, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListActive(ctx context.Context) ([]Tenant, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed tenant repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	var t Tenant
	err := r.db.QueryRow(ctx, `SELECT id, name, is_active, created_at, updated_at FROM companies WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	return t, nil
}

func (r *repository) Create(ctx context.Context, name string) (Tenant, error) {
	t := Tenant{ID: uuid.New(), Name: name, IsActive: true}
	err := r.db.QueryRow(ctx, `INSERT INTO companies (id, name, is_active) VALUES ($1, $2, TRUE) RETURNING created_at, updated_at`, t.ID, t.Name).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func (r *repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE companies SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (r *repository) ListActive(ctx context.Context) ([]Tenant, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, is_active, created_at, updated_at FROM companies WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
