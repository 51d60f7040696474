package reports

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/httpx"
	internalshared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// Handler exposes report endpoints.
type Handler struct {
	logger    *slog.Logger
	generator *Generator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, generator *Generator) *Handler {
	return &Handler{logger: logger, generator: generator}
}

// MountRoutes attaches report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.generate)
	r.Get("/{id}", h.get)
	r.Get("/{id}/export.csv", h.exportCSV)
}

type generateRequest struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

type reportHeader struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	GeneratedAt string `json:"generated_at"`
}

type reportResponse struct {
	reportHeader
	Payload Payload `json:"payload"`
}

type reportListResponse struct {
	Reports    []reportHeader            `json:"reports"`
	Pagination internalshared.Pagination `json:"pagination"`
}

func toHeader(r Report) reportHeader {
	return reportHeader{
		ID:          r.ID,
		Type:        string(r.Type),
		GeneratedAt: r.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	reportType := ReportType(req.Type)
	if req.Type == "" {
		reportType = ReportTypeReconciliation
	}
	window, err := parseWindow(req.From, req.To)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	report, err := h.generator.Generate(r.Context(), reportType, window)
	if err != nil {
		h.respondError(w, "generate report", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reportResponse{reportHeader: toHeader(report), Payload: report.Payload})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	report, err := h.generator.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reportResponse{reportHeader: toHeader(report), Payload: report.Payload})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	reportsList, total, err := h.generator.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.respondError(w, "list reports", err)
		return
	}
	out := reportListResponse{
		Reports:    make([]reportHeader, 0, len(reportsList)),
		Pagination: internalshared.NewPagination(page, perPage, total),
	}
	for _, rep := range reportsList {
		out.Reports = append(out.Reports, toHeader(rep))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	report, err := h.generator.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "export report", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=report-%d.csv", report.ID))
	if err := writeReportCSV(w, report); err != nil {
		h.logger.Error("export report", slog.Any("error", err))
	}
}

func parseWindow(from, to string) (Window, error) {
	var window Window
	if from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			return Window{}, errors.New("from must be YYYY-MM-DD")
		}
		window.From = parsed
	}
	if to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			return Window{}, errors.New("to must be YYYY-MM-DD")
		}
		window.To = parsed
	}
	return window, nil
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed report id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrReportNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidReportType), errors.Is(err, ErrInvalidWindow):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, tenant.ErrTenantMismatch), errors.Is(err, tenant.ErrNoTenant):
		httpx.Problem(w, http.StatusForbidden, "Tenant Violation", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
