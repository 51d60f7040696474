package reports

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/observability"
	internalshared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
)

// AuditPort records report events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

const recentTransactionLimit = 100

// Generator assembles read-only snapshots and appends them as immutable
// report rows. It never mutates ledger or billing state.
type Generator struct {
	repo    Repository
	audit   AuditPort
	metrics *observability.LedgerMetrics
	now     func() time.Time
}

// NewGenerator constructs the report generator.
func NewGenerator(repo Repository, audit AuditPort, metrics *observability.LedgerMetrics) *Generator {
	return &Generator{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (g *Generator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// Generate assembles a snapshot for the bound tenant and appends one
// report row. Invoking it twice for the same window produces two distinct
// timestamped snapshots; retention is the caller's policy.
func (g *Generator) Generate(ctx context.Context, reportType ReportType, window Window) (Report, error) {
	if !reportType.Valid() {
		return Report{}, ErrInvalidReportType
	}
	if err := window.Validate(); err != nil {
		return Report{}, err
	}

	var payload Payload
	payload.Window = window

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		balances, err := g.repo.AccountBalances(grpCtx)
		if err != nil {
			return err
		}
		payload.AccountBalances = balances
		return nil
	})
	grp.Go(func() error {
		debits, credits, err := g.repo.LedgerTotals(grpCtx, window)
		if err != nil {
			return err
		}
		payload.TotalDebits = debits
		payload.TotalCredits = credits
		return nil
	})
	if reportType == ReportTypeReconciliation {
		grp.Go(func() error {
			invoices, err := g.repo.OpenInvoices(grpCtx)
			if err != nil {
				return err
			}
			payload.OpenInvoices = invoices
			return nil
		})
		grp.Go(func() error {
			recent, err := g.repo.RecentTransactions(grpCtx, window, recentTransactionLimit)
			if err != nil {
				return err
			}
			payload.RecentTransactions = recent
			return nil
		})
		grp.Go(func() error {
			snap, err := g.repo.BillingSnapshot(grpCtx)
			if err != nil {
				return err
			}
			payload.Billing = snap
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return Report{}, err
	}

	report, err := g.repo.Insert(ctx, reportType, payload, g.now())
	if err != nil {
		return Report{}, err
	}
	if g.metrics != nil {
		g.metrics.ReportsTotal.Inc()
	}
	if g.audit != nil {
		_ = g.audit.Record(ctx, internalshared.AuditLog{
			Action:   "report.generate",
			Entity:   "reconciliation_report",
			EntityID: fmt.Sprintf("%d", report.ID),
			Meta:     map[string]any{"type": string(reportType)},
			At:       g.now(),
		})
	}
	return report, nil
}

// Get loads one report with its payload.
func (g *Generator) Get(ctx context.Context, id int64) (Report, error) {
	return g.repo.Get(ctx, id)
}

// List returns report headers, newest first.
func (g *Generator) List(ctx context.Context, limit, offset int) ([]Report, int, error) {
	return g.repo.List(ctx, limit, offset)
}
