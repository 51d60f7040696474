package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/billing"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/accounts"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/posting"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/observability"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/reports"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	TenantService   *tenant.Service
	TenantHandler   *tenant.Handler
	AccountsHandler *accounts.Handler
	PostingHandler  *posting.Handler
	BillingHandler  *billing.Handler
	ReportsHandler  *reports.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything under /ledger, /billing,
// and /reports runs behind the tenant guard; tenant admin, health, and
// metrics endpoints do not.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.TenantHandler != nil {
		r.Route("/tenants", params.TenantHandler.MountRoutes)
	}

	guard := tenant.Middleware(params.TenantService, params.Logger)

	if params.AccountsHandler != nil {
		r.Route("/ledger/accounts", func(r chi.Router) {
			r.Use(guard)
			params.AccountsHandler.MountRoutes(r)
		})
	}
	if params.PostingHandler != nil {
		r.Route("/ledger/transactions", func(r chi.Router) {
			r.Use(guard)
			params.PostingHandler.MountRoutes(r)
		})
	}
	if params.BillingHandler != nil {
		r.Route("/billing", func(r chi.Router) {
			r.Use(guard)
			params.BillingHandler.MountRoutes(r)
		})
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", func(r chi.Router) {
			r.Use(guard)
			params.ReportsHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
