package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Service owns the tenant lifecycle: signup-side creation and soft
// deactivation. Deactivated tenants keep their data but reject new work.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new tenant.
func (s *Service) Create(ctx context.Context, name string) (Tenant, error) {
	if name == "" {
		return Tenant{}, errors.New("tenant: name required")
	}
	return s.repo.Create(ctx, name)
}

// Get loads a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Deactivate soft-disables a tenant. Ledger data is never deleted.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}

// ListActive returns all active tenants, used by scheduled sweeps.
func (s *Service) ListActive(ctx context.Context) ([]Tenant, error) {
	return s.repo.ListActive(ctx)
}

// Resolve validates that the tenant exists and is active, returning it for
// binding into a request context.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if !t.IsActive {
		return Tenant{}, ErrTenantInactive
	}
	return t, nil
}
