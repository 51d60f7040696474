package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents one customer company, the isolation boundary for all
// ledger data. Tenants are soft-deactivated, never hard-deleted, while any
// ledger data still references them.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
