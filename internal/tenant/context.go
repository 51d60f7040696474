package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNoTenant indicates an operation ran without a bound tenant context.
	ErrNoTenant = errors.New("tenant: no tenant bound to context")
	// ErrTenantMismatch indicates an entity loaded mid-operation belongs to a
	// different tenant than the bound context. This is a hard invariant
	// violation and must never be ignored.
	ErrTenantMismatch = errors.New("tenant: entity belongs to another tenant")
	// ErrTenantNotFound indicates the tenant does not exist.
	ErrTenantNotFound = errors.New("tenant: not found")
	// ErrTenantInactive indicates the tenant has been deactivated.
	ErrTenantInactive = errors.New("tenant: deactivated")
)

type tenantContextKey struct{}

// WithTenant binds the active tenant for all downstream ledger operations.
func WithTenant(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, id)
}

// FromContext extracts the bound tenant. Repositories must use this instead
// of accepting a caller-supplied tenant parameter.
func FromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(tenantContextKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}

// RunWithTenant executes fn with the tenant bound to a derived context. The
// binding is confined to fn; the caller's context is left untouched on every
// exit path.
func RunWithTenant(ctx context.Context, id uuid.UUID, fn func(context.Context) error) error {
	if id == uuid.Nil {
		return ErrNoTenant
	}
	return fn(WithTenant(ctx, id))
}

// Ensure verifies that an entity's owner matches the bound tenant.
func Ensure(ctx context.Context, owner uuid.UUID) error {
	id, err := FromContext(ctx)
	if err != nil {
		return err
	}
	if owner != id {
		return ErrTenantMismatch
	}
	return nil
}
