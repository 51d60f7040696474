package posting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/httpx"
	internalshared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// Handler exposes posting engine endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes attaches posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.post)
	r.Get("/by-number/{number}", h.getByNumber)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reverse", h.reverse)
}

type lineRequest struct {
	AccountID   int64  `json:"account_id" validate:"required"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description"`
}

type postRequest struct {
	Type        string        `json:"type" validate:"required"`
	Date        string        `json:"date" validate:"required"`
	Number      string        `json:"number"`
	Description string        `json:"description"`
	Reference   string        `json:"reference"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	Number      string `json:"number"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type lineResponse struct {
	AccountID   int64  `json:"account_id"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
}

type transactionResponse struct {
	ID          int64          `json:"id"`
	Number      string         `json:"number"`
	Type        string         `json:"type"`
	Date        string         `json:"date"`
	Description string         `json:"description,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	Total       string         `json:"total"`
	ReversesID  *int64         `json:"reverses_id,omitempty"`
	Lines       []lineResponse `json:"lines,omitempty"`
}

type listResponse struct {
	Transactions []transactionResponse     `json:"transactions"`
	Pagination   internalshared.Pagination `json:"pagination"`
}

func toTransactionResponse(t Transaction) transactionResponse {
	out := transactionResponse{
		ID:          t.ID,
		Number:      t.Number,
		Type:        string(t.Type),
		Date:        t.Date.UTC().Format("2006-01-02"),
		Description: t.Description,
		Reference:   t.Reference,
		Total:       t.Total.String(),
		ReversesID:  t.ReversesID,
	}
	for _, line := range t.Lines {
		out.Lines = append(out.Lines, lineResponse{
			AccountID:   line.AccountID,
			Debit:       line.Debit.String(),
			Credit:      line.Credit.String(),
			Description: line.Description,
		})
	}
	return out
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := toPostingInput(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	posted, err := h.engine.PostTransaction(r.Context(), input)
	if err != nil {
		h.respondError(w, "post transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(posted))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed transaction id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	input := ReverseInput{TransactionID: id, Number: req.Number, Description: req.Description}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}
	posted, err := h.engine.ReverseTransaction(r.Context(), input)
	if err != nil {
		h.respondError(w, "reverse transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(posted))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed transaction id")
		return
	}
	t, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	t, err := h.engine.GetByNumber(r.Context(), number)
	if err != nil {
		h.respondError(w, "get transaction by number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(t))
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
	transactions, total, err := h.engine.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.respondError(w, "list transactions", err)
		return
	}
	out := listResponse{
		Transactions: make([]transactionResponse, 0, len(transactions)),
		Pagination:   internalshared.NewPagination(page, perPage, total),
	}
	for _, t := range transactions {
		out.Transactions = append(out.Transactions, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func toPostingInput(req postRequest) (PostingInput, error) {
	transactionType := TransactionType(req.Type)
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return PostingInput{}, errors.New("date must be YYYY-MM-DD")
	}
	input := PostingInput{
		Type:        transactionType,
		Date:        date,
		Number:      req.Number,
		Description: req.Description,
		Reference:   req.Reference,
	}
	for _, line := range req.Lines {
		debit, err := parseAmount(line.Debit)
		if err != nil {
			return PostingInput{}, err
		}
		credit, err := parseAmount(line.Credit)
		if err != nil {
			return PostingInput{}, err
		}
		input.Lines = append(input.Lines, LineInput{
			AccountID:   line.AccountID,
			Debit:       debit,
			Credit:      credit,
			Description: line.Description,
		})
	}
	return input, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("amounts must be decimal strings")
	}
	return value, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledgershared.ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledgershared.ErrUnknownAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Account", err.Error())
	case errors.Is(err, ledgershared.ErrInvalidLine),
		errors.Is(err, ledgershared.ErrTooFewLines),
		errors.Is(err, ledgershared.ErrInvalidTransactionType),
		errors.Is(err, ledgershared.ErrInvalidDate):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Transaction", err.Error())
	case errors.Is(err, ledgershared.ErrUnbalancedTransaction):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unbalanced Transaction", err.Error())
	case errors.Is(err, ledgershared.ErrDuplicateTransactionNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate Transaction Number", err.Error())
	case errors.Is(err, ledgershared.ErrConcurrentUpdateConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update Conflict", err.Error())
	case errors.Is(err, ledgershared.ErrPostingTimeout):
		httpx.Problem(w, http.StatusServiceUnavailable, "Posting Timeout", err.Error())
	case errors.Is(err, tenant.ErrTenantMismatch), errors.Is(err, tenant.ErrNoTenant):
		httpx.Problem(w, http.StatusForbidden, "Tenant Violation", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
