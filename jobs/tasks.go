package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/billing"
	jobmetrics "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/jobs"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/reports"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueSweep transitions past-due invoices to OVERDUE.
	TaskOverdueSweep = "billing:sweep_overdue"
	// TaskReportGenerate appends a reconciliation report snapshot.
	TaskReportGenerate = "reports:generate"
)

// OverdueSweepPayload selects the tenants to sweep. A nil tenant id means
// every active tenant.
type OverdueSweepPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
}

// ReportGeneratePayload describes a scheduled report run. A nil tenant id
// means every active tenant.
type ReportGeneratePayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Type     string    `json:"type"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
}

// NewOverdueSweepTask constructs an Asynq task.
func NewOverdueSweepTask(payload OverdueSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueSweep, data), nil
}

// NewReportGenerateTask constructs an Asynq task.
func NewReportGenerateTask(payload ReportGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportGenerate, data), nil
}

// LedgerJobs bundles the scheduled ledger maintenance handlers. Each run
// binds the tenant context per company, so every storage call stays inside
// the isolation guard.
type LedgerJobs struct {
	logger     *slog.Logger
	tenants    *tenant.Service
	reconciler *billing.Reconciler
	generator  *reports.Generator
	metrics    *jobmetrics.Metrics
}

// NewLedgerJobs constructs the handler bundle.
func NewLedgerJobs(logger *slog.Logger, tenants *tenant.Service, reconciler *billing.Reconciler, generator *reports.Generator, metrics *jobmetrics.Metrics) *LedgerJobs {
	return &LedgerJobs{logger: logger, tenants: tenants, reconciler: reconciler, generator: generator, metrics: metrics}
}

// HandleOverdueSweep processes TaskOverdueSweep tasks.
func (j *LedgerJobs) HandleOverdueSweep(ctx context.Context, t *asynq.Task) error {
	var payload OverdueSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskOverdueSweep)
	return tracker.End(j.forEachTenant(ctx, payload.TenantID, func(ctx context.Context, id uuid.UUID) error {
		swept, err := j.reconciler.SweepOverdue(ctx)
		if err != nil {
			return err
		}
		if swept > 0 {
			j.logger.Info("overdue sweep",
				slog.String("tenant_id", id.String()),
				slog.Int64("swept", swept))
		}
		return nil
	}))
}

// HandleReportGenerate processes TaskReportGenerate tasks.
func (j *LedgerJobs) HandleReportGenerate(ctx context.Context, t *asynq.Task) error {
	var payload ReportGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	reportType := reports.ReportType(payload.Type)
	if payload.Type == "" {
		reportType = reports.ReportTypeReconciliation
	}
	if !reportType.Valid() {
		return asynq.SkipRetry
	}
	window := reports.Window{From: payload.From, To: payload.To}
	tracker := j.metrics.Track(TaskReportGenerate)
	return tracker.End(j.forEachTenant(ctx, payload.TenantID, func(ctx context.Context, id uuid.UUID) error {
		report, err := j.generator.Generate(ctx, reportType, window)
		if err != nil {
			return err
		}
		j.logger.Info("report generated",
			slog.String("tenant_id", id.String()),
			slog.Int64("report_id", report.ID),
			slog.String("type", string(report.Type)))
		return nil
	}))
}

// forEachTenant runs fn under a bound tenant context, either for one tenant
// or for every active one. A failure for one tenant does not stop the rest;
// the first error is reported after the loop so Asynq retries the task.
func (j *LedgerJobs) forEachTenant(ctx context.Context, only uuid.UUID, fn func(context.Context, uuid.UUID) error) error {
	if only != uuid.Nil {
		return tenant.RunWithTenant(ctx, only, func(ctx context.Context) error {
			return fn(ctx, only)
		})
	}
	active, err := j.tenants.ListActive(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, t := range active {
		err := tenant.RunWithTenant(ctx, t.ID, func(ctx context.Context) error {
			return fn(ctx, t.ID)
		})
		if err != nil {
			j.logger.Error("tenant job failed",
				slog.String("tenant_id", t.ID.String()),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
