package accounts

import "github.com/go-chi/chi/v5"

// MountRoutes attaches chart-of-accounts routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reparent", h.reparent)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Get("/{id}/subtree-balance", h.subtreeBalance)
}
