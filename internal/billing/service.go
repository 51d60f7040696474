package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/observability"
	internalshared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
)

// AuditPort records billing events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// delinquencyThreshold is the failed-payment count at which the tenant
// aggregate flips to DELINQUENT.
const delinquencyThreshold = 3

// Reconciler links payments to invoices and maintains the per-tenant
// billing aggregate. The aggregate is a cache over raw invoice and
// payment history, never the source of truth.
type Reconciler struct {
	repo    Repository
	audit   AuditPort
	metrics *observability.LedgerMetrics
	now     func() time.Time
}

// NewReconciler constructs the reconciler.
func NewReconciler(repo Repository, audit AuditPort, metrics *observability.LedgerMetrics) *Reconciler {
	return &Reconciler{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Reconciler) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice persists a new draft invoice.
func (s *Reconciler) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	if err := in.Validate(); err != nil {
		return Invoice{}, err
	}
	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertInvoice(ctx, in)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, "invoice.create", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

// IssueInvoice moves a draft invoice to PENDING and stamps issuedAt.
func (s *Reconciler) IssueInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.transition(ctx, id, InvoiceStatusPending, "invoice.issue")
}

// SendInvoice moves a pending invoice to SENT.
func (s *Reconciler) SendInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.transition(ctx, id, InvoiceStatusSent, "invoice.send")
}

// CancelInvoice cancels an invoice that has not been paid.
func (s *Reconciler) CancelInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.transition(ctx, id, InvoiceStatusCancelled, "invoice.cancel")
}

func (s *Reconciler) transition(ctx context.Context, id int64, next InvoiceStatus, action string) (Invoice, error) {
	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, inv.Status, next)
		}
		inv.Status = next
		if next == InvoiceStatusPending && inv.IssuedAt == nil {
			issued := s.now()
			inv.IssuedAt = &issued
		}
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, action, out.ID, map[string]any{"number": out.Number, "status": string(out.Status)})
	return out, nil
}

// GetInvoice loads one invoice with its status derived as of now.
func (s *Reconciler) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Status = inv.EffectiveStatus(s.now())
	return inv, nil
}

// ListInvoices returns invoices newest first, statuses derived as of now.
func (s *Reconciler) ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	invoices, total, err := s.repo.ListInvoices(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range invoices {
		invoices[i].Status = invoices[i].EffectiveStatus(now)
	}
	return invoices, total, nil
}

// ListPayments returns the settlement history for an invoice.
func (s *Reconciler) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// GetBillingStatus returns the tenant aggregate.
func (s *Reconciler) GetBillingStatus(ctx context.Context) (BillingStatus, error) {
	return s.repo.GetBillingStatus(ctx)
}

// RecordPayment persists one settlement attempt and reconciles its
// consequences in the same storage transaction: a COMPLETED payment may
// settle its invoice, a FAILED one feeds the delinquency counters, and
// either outcome rebuilds the tenant aggregate from raw history.
func (s *Reconciler) RecordPayment(ctx context.Context, in RecordPaymentInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	var recorded Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment := Payment{
			InvoiceID:     in.InvoiceID,
			TransactionID: in.TransactionID,
			Amount:        in.Amount,
			Currency:      in.Currency,
			Status:        in.Status,
			Reference:     in.Reference,
		}
		var invoice *Invoice
		if in.InvoiceID != nil {
			inv, err := tx.GetInvoiceForUpdate(ctx, *in.InvoiceID)
			if err != nil {
				return err
			}
			if inv.Currency != in.Currency {
				return ErrCurrencyMismatch
			}
			// Settlement follows the invoice state machine: a DRAFT or
			// CANCELLED invoice has no collectible balance.
			if in.Status == PaymentStatusCompleted &&
				inv.Status != InvoiceStatusPaid && !inv.Status.CanTransitionTo(InvoiceStatusPaid) {
				return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, inv.Status, InvoiceStatusPaid)
			}
			invoice = &inv
		}
		if in.Status == PaymentStatusCompleted || in.Status == PaymentStatusFailed {
			processed := s.now()
			payment.ProcessedAt = &processed
		}
		inserted, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		recorded = inserted

		if in.Status == PaymentStatusCompleted && invoice != nil {
			paid, err := tx.CompletedPaymentTotal(ctx, invoice.ID)
			if err != nil {
				return err
			}
			if paid.GreaterThanOrEqual(invoice.Amount) && invoice.Status != InvoiceStatusPaid {
				invoice.Status = InvoiceStatusPaid
				paidAt := s.now()
				invoice.PaidAt = &paidAt
				if err := tx.UpdateInvoice(ctx, *invoice); err != nil {
					return err
				}
			}
		}
		if in.Status == PaymentStatusCompleted || in.Status == PaymentStatusFailed {
			if err := s.rebuildAggregate(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	if s.metrics != nil {
		s.metrics.ReconciliationsTotal.WithLabelValues(outcomeLabel(in.Status)).Inc()
	}
	s.recordAudit(ctx, "payment.record", recorded.ID, map[string]any{
		"status": string(recorded.Status),
		"amount": recorded.Amount.String(),
	})
	return recorded, nil
}

// RecomputeBillingStatus rebuilds the tenant aggregate from raw invoice
// and payment history.
func (s *Reconciler) RecomputeBillingStatus(ctx context.Context) (BillingStatus, error) {
	var out BillingStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.rebuildAggregate(ctx, tx); err != nil {
			return err
		}
		var err error
		out, err = tx.GetBillingStatus(ctx)
		return err
	})
	if err != nil {
		return BillingStatus{}, err
	}
	return out, nil
}

// SweepOverdue transitions every past-due PENDING or SENT invoice to
// OVERDUE and refreshes the aggregate. Returns the number of invoices
// swept. Invoked per tenant from the scheduler.
func (s *Reconciler) SweepOverdue(ctx context.Context) (int64, error) {
	var swept int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		swept, err = tx.MarkOverdue(ctx, s.now())
		if err != nil {
			return err
		}
		if swept == 0 {
			return nil
		}
		return s.rebuildAggregate(ctx, tx)
	})
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.recordAudit(ctx, "invoice.sweep_overdue", 0, map[string]any{"count": swept})
	}
	return swept, nil
}

// rebuildAggregate derives the billing aggregate from raw history.
// SUSPENDED, CANCELLED, and TRIAL are operator-set states and survive
// the rebuild; ACTIVE, PAST_DUE, and DELINQUENT are derived.
func (s *Reconciler) rebuildAggregate(ctx context.Context, tx TxRepository) error {
	current, err := tx.GetBillingStatus(ctx)
	if err != nil {
		return err
	}
	outstanding, err := tx.OutstandingBalance(ctx)
	if err != nil {
		return err
	}
	failed, err := tx.CountPaymentsByStatus(ctx, PaymentStatusFailed)
	if err != nil {
		return err
	}
	latest, err := tx.LatestPaymentStatus(ctx)
	if err != nil {
		return err
	}
	overdue, err := tx.CountOverdueCollectible(ctx, s.now())
	if err != nil {
		return err
	}

	state := current.State
	switch state {
	case BillingStateSuspended, BillingStateCancelled, BillingStateTrial:
	default:
		switch {
		case failed >= delinquencyThreshold:
			state = BillingStateDelinquent
		case overdue > 0:
			state = BillingStatePastDue
		default:
			state = BillingStateActive
		}
	}

	return tx.UpsertBillingStatus(ctx, BillingStatus{
		CompanyID:          current.CompanyID,
		State:              state,
		PaymentStatus:      latest,
		FailedPayments:     failed,
		OutstandingBalance: outstanding,
	})
}

func outcomeLabel(status PaymentStatus) string {
	switch status {
	case PaymentStatusCompleted:
		return "completed"
	case PaymentStatusFailed:
		return "failed"
	default:
		return "recorded"
	}
}

func (s *Reconciler) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalshared.AuditLog{
		Action:   action,
		Entity:   "billing",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
