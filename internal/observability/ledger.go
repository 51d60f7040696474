package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks ledger core activity.
type LedgerMetrics struct {
	PostingsTotal        *prometheus.CounterVec
	PostingConflicts     prometheus.Counter
	PostingTimeouts      prometheus.Counter
	ReconciliationsTotal *prometheus.CounterVec
	ReportsTotal         prometheus.Counter
}

// NewLedgerMetrics registers ledger counters on the given registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		PostingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrona_ledger_postings_total",
			Help: "Posted transactions by type.",
		}, []string{"type"}),
		PostingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chrona_ledger_posting_conflicts_total",
			Help: "Balance update conflicts surfaced after internal retries.",
		}),
		PostingTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chrona_ledger_posting_timeouts_total",
			Help: "Postings that timed out waiting for account locks.",
		}),
		ReconciliationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chrona_billing_reconciliations_total",
			Help: "Payment reconciliations by outcome.",
		}, []string{"outcome"}),
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chrona_reports_generated_total",
			Help: "Reconciliation reports generated.",
		}),
	}
	reg.MustRegister(m.PostingsTotal, m.PostingConflicts, m.PostingTimeouts, m.ReconciliationsTotal, m.ReportsTotal)
	return m
}
