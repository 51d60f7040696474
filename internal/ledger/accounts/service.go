package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	internalshared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// AuditPort records chart-of-accounts events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// Service owns the chart of accounts for the bound tenant.
type Service struct {
	repo      Repository
	cache     *BalanceCache
	audit     AuditPort
	retention time.Duration
	rollups   singleflight.Group
	now       func() time.Time
}

// NewService constructs the service. retention controls how far back posted
// lines block a non-forced deactivation.
func NewService(repo Repository, cache *BalanceCache, audit AuditPort, retention time.Duration) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, retention: retention, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns the tenant's accounts ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// CreateAccount validates and persists a new account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetByCode(ctx, in.Code); err == nil {
			return ledgershared.ErrDuplicateAccountCode
		} else if !errors.Is(err, ledgershared.ErrAccountNotFound) {
			return err
		}
		if in.ParentID != nil {
			// Parent must resolve within the tenant; a brand-new node has no
			// descendants, so existence is the only cycle concern here.
			if _, err := tx.Get(ctx, *in.ParentID); err != nil {
				return err
			}
		}
		inserted, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		account = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, "account.create", account.ID, map[string]any{"code": account.Code, "type": string(account.Type)})
	return account, nil
}

// ReparentAccount moves an account under a new parent (or to the root when
// parentID is nil). Lines reference accounts by id, so moving a node never
// orphans them, but the parent chain must stay acyclic and tenant-local.
func (s *Service) ReparentAccount(ctx context.Context, id int64, parentID *int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if parentID != nil {
			if *parentID == id {
				return ledgershared.ErrAccountCycle
			}
			if err := ensureNoCycle(ctx, tx, id, *parentID); err != nil {
				return err
			}
		}
		if err := tx.SetParent(ctx, id, parentID); err != nil {
			return err
		}
		current.ParentID = parentID
		account = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, "account.reparent", id, map[string]any{"parent_id": parentID})
	return account, nil
}

// ensureNoCycle walks the parent chain from the candidate parent to the
// root. The walk is bounded by the tenant's account count, so a corrupted
// chain cannot loop forever.
func ensureNoCycle(ctx context.Context, tx TxRepository, id, parentID int64) error {
	bound, err := tx.CountAccounts(ctx)
	if err != nil {
		return err
	}
	cursor := parentID
	for steps := int64(0); steps <= bound; steps++ {
		ancestor, err := tx.Get(ctx, cursor)
		if err != nil {
			return err
		}
		if ancestor.ID == id {
			return ledgershared.ErrAccountCycle
		}
		if ancestor.ParentID == nil {
			return nil
		}
		cursor = *ancestor.ParentID
	}
	return ledgershared.ErrAccountCycle
}

// DeactivateAccount soft-disables an account. Accounts with posted lines
// inside the retention window require force; balance history stays queryable
// either way.
func (s *Service) DeactivateAccount(ctx context.Context, id int64, force bool) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		if !force {
			since := s.now().Add(-s.retention)
			count, err := tx.CountLinesSince(ctx, id, since)
			if err != nil {
				return err
			}
			if count > 0 {
				return ledgershared.ErrAccountInUse
			}
		}
		return tx.SetActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "account.deactivate", id, map[string]any{"force": force})
	return nil
}

// GetSubtreeBalance sums the balance of the account and all active
// descendants. Results are memoized per tenant generation; any posting
// invalidates the whole tenant's rollups.
func (s *Service) GetSubtreeBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if cached, ok, err := s.cache.Get(ctx, tenantID, id); err == nil && ok {
		return cached, nil
	}
	key := fmt.Sprintf("%s:%d", tenantID, id)
	value, err, _ := s.rollups.Do(key, func() (any, error) {
		root, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		total := root.Balance
		queue := []int64{root.ID}
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			children, err := s.repo.Children(ctx, next)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				// An inactive node contributes no balance of its own but
				// its active descendants still count.
				if child.IsActive {
					total = total.Add(child.Balance)
				}
				queue = append(queue, child.ID)
			}
		}
		_ = s.cache.Set(ctx, tenantID, id, total)
		return total, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return value.(decimal.Decimal), nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalshared.AuditLog{
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
