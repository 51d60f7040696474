package tenant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/httpx"
)

// HeaderName carries the authenticated tenant id, set by the upstream
// auth/API layer.
const HeaderName = "X-Tenant-ID"

// Middleware resolves the tenant named in the request header and binds it
// into the request context. Requests without a valid, active tenant never
// reach a ledger handler.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderName)
			if raw == "" {
				httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing "+HeaderName+" header")
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "malformed tenant id")
				return
			}
			t, err := service.Resolve(r.Context(), id)
			if err != nil {
				switch {
				case errors.Is(err, ErrTenantNotFound):
					httpx.Problem(w, http.StatusNotFound, "Unknown Tenant", "tenant does not exist")
				case errors.Is(err, ErrTenantInactive):
					httpx.Problem(w, http.StatusForbidden, "Tenant Inactive", "tenant has been deactivated")
				default:
					logger.Error("resolve tenant", slog.Any("error", err))
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), t.ID)))
		})
	}
}
