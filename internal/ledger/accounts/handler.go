package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	ledgershared "github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/ledger/shared"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/platform/httpx"
	"github.com/Assyrianfidi/ChronaWorkFlow-sub017/internal/tenant"
)

// Handler exposes chart-of-accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type accountResponse struct {
	ID       int64   `json:"id"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	ParentID *int64  `json:"parent_id,omitempty"`
	Balance  string  `json:"balance"`
	IsActive bool    `json:"is_active"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Code:     a.Code,
		Name:     a.Name,
		Type:     string(a.Type),
		ParentID: a.ParentID,
		Balance:  a.Balance.String(),
		IsActive: a.IsActive,
	}
}

type createAccountRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	Type     string `json:"type" validate:"required"`
	ParentID *int64 `json:"parent_id"`
}

type reparentRequest struct {
	ParentID *int64 `json:"parent_id"`
}

type subtreeBalanceResponse struct {
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list accounts", err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed account id")
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     AccountType(req.Type),
		ParentID: req.ParentID,
	})
	if err != nil {
		h.respondError(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) reparent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed account id")
		return
	}
	var req reparentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	account, err := h.service.ReparentAccount(r.Context(), id, req.ParentID)
	if err != nil {
		h.respondError(w, "reparent account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed account id")
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := h.service.DeactivateAccount(r.Context(), id, force); err != nil {
		h.respondError(w, "deactivate account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) subtreeBalance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "malformed account id")
		return
	}
	balance, err := h.service.GetSubtreeBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, "subtree balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, subtreeBalanceResponse{AccountID: id, Balance: balance.String()})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledgershared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledgershared.ErrDuplicateAccountCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate Code", err.Error())
	case errors.Is(err, ledgershared.ErrAccountCycle):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cycle Detected", err.Error())
	case errors.Is(err, ledgershared.ErrAccountInUse):
		httpx.Problem(w, http.StatusConflict, "Account In Use", err.Error())
	case errors.Is(err, ledgershared.ErrInvalidAccountType):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Type", err.Error())
	case errors.Is(err, tenant.ErrTenantMismatch), errors.Is(err, tenant.ErrNoTenant):
		httpx.Problem(w, http.StatusForbidden, "Tenant Violation", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
