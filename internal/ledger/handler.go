package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/artha-erp/artha/internal/platform/httpx"
)

// Handler wires chart-of-accounts and balance endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	flight    singleflight.Group
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/accounts", h.handleCreateAccount)
	r.Get("/accounts", h.handleListAccounts)
	r.Get("/accounts/{code}", h.handleGetAccount)
	r.Patch("/accounts/{code}/active", h.handleSetActive)
	r.Patch("/accounts/{code}/type", h.handleChangeType)
	r.Get("/accounts/{code}/balance", h.handleBalance)
	r.Get("/trial-balance", h.handleTrialBalance)
	r.Get("/trial-balance/export.csv", h.handleTrialBalanceCSV)
}

type createAccountRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentCode string `json:"parentCode"`
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Code:       req.Code,
		Name:       req.Name,
		Type:       AccountType(req.Type),
		ParentCode: req.ParentCode,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.service.SetAccountActive(r.Context(), chi.URLParam(r, "code"), req.Active); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

type changeTypeRequest struct {
	Type string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
}

func (h *Handler) handleChangeType(w http.ResponseWriter, r *http.Request) {
	var req changeTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ChangeAccountType(r.Context(), chi.URLParam(r, "code"), AccountType(req.Type)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"type": req.Type})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be formatted YYYY-MM-DD")
		return
	}
	balance, err := h.service.BalanceAsOf(r.Context(), chi.URLParam(r, "code"), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := h.trialBalance(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balances)
}

func (h *Handler) handleTrialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	balances, err := h.trialBalance(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"trial-balance.csv\"")

	printer := message.NewPrinter(language.English)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"code", "name", "type", "debit", "credit", "balance"})
	for _, b := range balances {
		_ = writer.Write([]string{
			b.Account.Code,
			b.Account.Name,
			string(b.Account.Type),
			printer.Sprintf("%v", b.Debit),
			printer.Sprintf("%v", b.Credit),
			printer.Sprintf("%v", b.Balance),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// trialBalance collapses concurrent identical requests into one query.
func (h *Handler) trialBalance(r *http.Request) ([]AccountBalance, error) {
	asOf, err := parseAsOf(r)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be formatted YYYY-MM-DD", httpx.ErrValidation)
	}
	v, err, _ := h.flight.Do("trial-balance:"+asOf.Format("2006-01-02"), func() (any, error) {
		return h.service.TrialBalance(r.Context(), asOf)
	})
	if err != nil {
		return nil, err
	}
	return v.([]AccountBalance), nil
}

func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrTypeLocked), errors.Is(err, ErrHeaderAccount), errors.Is(err, ErrInactiveAccount):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, httpx.ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
