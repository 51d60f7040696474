package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/httpx"
	internalshared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// Handler exposes billing endpoints.
type Handler struct {
	logger     *slog.Logger
	reconciler *Reconciler
	validate   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, reconciler *Reconciler) *Handler {
	return &Handler{logger: logger, reconciler: reconciler, validate: validator.New()}
}

// MountRoutes attaches billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/payments", h.listPayments)
	r.Post("/invoices/{id}/issue", h.issueInvoice)
	r.Post("/invoices/{id}/send", h.sendInvoice)
	r.Post("/invoices/{id}/cancel", h.cancelInvoice)
	r.Post("/payments", h.recordPayment)
	r.Get("/status", h.getStatus)
	r.Post("/status/recompute", h.recomputeStatus)
}

type createInvoiceRequest struct {
	Number   string `json:"number" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
	DueAt    string `json:"due_at" validate:"required"`
}

type recordPaymentRequest struct {
	InvoiceID     *int64 `json:"invoice_id"`
	TransactionID *int64 `json:"transaction_id"`
	Amount        string `json:"amount" validate:"required"`
	Currency      string `json:"currency" validate:"required,len=3"`
	Status        string `json:"status" validate:"required"`
	Reference     string `json:"reference"`
}

type invoiceResponse struct {
	ID       int64  `json:"id"`
	Number   string `json:"number"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	IssuedAt string `json:"issued_at,omitempty"`
	DueAt    string `json:"due_at"`
	PaidAt   string `json:"paid_at,omitempty"`
}

type paymentResponse struct {
	ID            int64  `json:"id"`
	InvoiceID     *int64 `json:"invoice_id,omitempty"`
	TransactionID *int64 `json:"transaction_id,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Reference     string `json:"reference,omitempty"`
	ProcessedAt   string `json:"processed_at,omitempty"`
}

type statusResponse struct {
	State              string `json:"state"`
	PaymentStatus      string `json:"payment_status"`
	FailedPayments     int    `json:"failed_payments"`
	OutstandingBalance string `json:"outstanding_balance"`
}

type invoiceListResponse struct {
	Invoices   []invoiceResponse         `json:"invoices"`
	Pagination internalshared.Pagination `json:"pagination"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:       inv.ID,
		Number:   inv.Number,
		Amount:   inv.Amount.String(),
		Currency: inv.Currency,
		Status:   string(inv.Status),
		DueAt:    inv.DueAt.UTC().Format(time.RFC3339),
	}
	if inv.IssuedAt != nil {
		out.IssuedAt = inv.IssuedAt.UTC().Format(time.RFC3339)
	}
	if inv.PaidAt != nil {
		out.PaidAt = inv.PaidAt.UTC().Format(time.RFC3339)
	}
	return out
}

func toPaymentResponse(p Payment) paymentResponse {
	out := paymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount.String(),
		Currency:      p.Currency,
		Status:        string(p.Status),
		Reference:     p.Reference,
	}
	if p.ProcessedAt != nil {
		out.ProcessedAt = p.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}
	dueAt, err := time.Parse(time.RFC3339, req.DueAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_at must be RFC3339")
		return
	}
	created, err := h.reconciler.CreateInvoice(r.Context(), CreateInvoiceInput{
		Number:   req.Number,
		Amount:   amount,
		Currency: req.Currency,
		DueAt:    dueAt,
	})
	if err != nil {
		h.respondError(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(created))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	inv, err := h.reconciler.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	invoices, total, err := h.reconciler.ListInvoices(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.respondError(w, "list invoices", err)
		return
	}
	out := invoiceListResponse{
		Invoices:   make([]invoiceResponse, 0, len(invoices)),
		Pagination: internalshared.NewPagination(page, perPage, total),
	}
	for _, inv := range invoices {
		out.Invoices = append(out.Invoices, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	payments, err := h.reconciler.ListPayments(r.Context(), id)
	if err != nil {
		h.respondError(w, "list payments", err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reconciler.IssueInvoice, "issue invoice")
}

func (h *Handler) sendInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reconciler.SendInvoice, "send invoice")
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reconciler.CancelInvoice, "cancel invoice")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (Invoice, error), name string) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	inv, err := op(r.Context(), id)
	if err != nil {
		h.respondError(w, name, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}
	recorded, err := h.reconciler.RecordPayment(r.Context(), RecordPaymentInput{
		InvoiceID:     req.InvoiceID,
		TransactionID: req.TransactionID,
		Amount:        amount,
		Currency:      req.Currency,
		Status:        PaymentStatus(req.Status),
		Reference:     req.Reference,
	})
	if err != nil {
		h.respondError(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(recorded))
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.reconciler.GetBillingStatus(r.Context())
	if err != nil {
		h.respondError(w, "get billing status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *Handler) recomputeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.reconciler.RecomputeBillingStatus(r.Context())
	if err != nil {
		h.respondError(w, "recompute billing status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatusResponse(status))
}

func toStatusResponse(s BillingStatus) statusResponse {
	return statusResponse{
		State:              string(s.State),
		PaymentStatus:      string(s.PaymentStatus),
		FailedPayments:     s.FailedPayments,
		OutstandingBalance: s.OutstandingBalance.String(),
	}
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed invoice id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrPaymentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateInvoiceNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate Invoice Number", err.Error())
	case errors.Is(err, ErrInvalidStatusTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrInvalidPaymentStatus),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrMissingInvoiceNumber),
		errors.Is(err, ErrCurrencyMismatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, tenant.ErrTenantMismatch), errors.Is(err, tenant.ErrNoTenant):
		httpx.Problem(w, http.StatusForbidden, "Tenant Violation", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
