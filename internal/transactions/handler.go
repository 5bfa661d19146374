package transactions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/formula"
	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/observability"
	"github.com/artha-erp/artha/internal/platform/httpx"
	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/templates"
)

// Handler wires transaction lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler builds a Handler instance. Metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers the transaction endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/transactions", h.handleCreate)
	r.Get("/transactions", h.handleList)
	r.Get("/transactions/{id}", h.handleGet)
	r.Put("/transactions/{id}", h.handleEdit)
	r.Post("/transactions/{id}/post", h.handlePost)
	r.Post("/transactions/{id}/void", h.handleVoid)
	r.Delete("/transactions/{id}", h.handleDelete)
}

type createRequest struct {
	TemplateID      int64             `json:"templateId" validate:"required"`
	TemplateVersion int               `json:"templateVersion"`
	Date            string            `json:"date" validate:"required"`
	Description     string            `json:"description"`
	Reference       string            `json:"reference"`
	Bindings        map[string]string `json:"bindings"`
	AccountSlots    map[string]string `json:"accountSlots"`
}

func parseBindings(raw map[string]string) (map[string]decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for name, value := range raw {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "date must be formatted YYYY-MM-DD")
		return
	}
	bindings, err := parseBindings(req.Bindings)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "bindings must be decimal strings")
		return
	}
	txn, err := h.service.Create(r.Context(), CreateInput{
		TemplateID:      req.TemplateID,
		TemplateVersion: req.TemplateVersion,
		Date:            date,
		Description:     req.Description,
		Reference:       req.Reference,
		Bindings:        bindings,
		AccountSlots:    req.AccountSlots,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	txns, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseTxnID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

type editRequest struct {
	Bindings     map[string]string `json:"bindings"`
	AccountSlots map[string]string `json:"accountSlots"`
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseTxnID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	bindings, err := parseBindings(req.Bindings)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "bindings must be decimal strings")
		return
	}
	txn, err := h.service.Edit(r.Context(), id, bindings, req.AccountSlots, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, err := parseTxnID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	txn, err := h.service.Post(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObservePosting("post")
	httpx.JSON(w, http.StatusOK, txn)
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, err := parseTxnID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	txn, err := h.service.Void(r.Context(), id, VoidInput{
		Reason:  req.Reason,
		Notes:   req.Notes,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObservePosting("void")
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseTxnID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObservePosting("delete")
	w.WriteHeader(http.StatusNoContent)
}

func parseTxnID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, templates.ErrNotFound),
		errors.Is(err, templates.ErrVersionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrAlreadyVoid),
		errors.Is(err, ErrNotPosted), errors.Is(err, ErrCannotDeletePosted),
		errors.Is(err, ErrCannotEditPosted), errors.Is(err, templates.ErrInactive):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrMissingBinding), errors.Is(err, ErrUnexpectedBinding),
		errors.Is(err, ErrMissingSlot), errors.Is(err, ErrUnexpectedSlot),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ledger.ErrUnbalanced), errors.Is(err, ledger.ErrTooFewLines),
		errors.Is(err, ledger.ErrNonPositiveAmount), errors.Is(err, ledger.ErrInvalidSide),
		errors.Is(err, ledger.ErrHeaderAccount), errors.Is(err, ledger.ErrInactiveAccount),
		errors.Is(err, formula.ErrUnknownVariable), errors.Is(err, formula.ErrDivisionByZero),
		errors.Is(err, formula.ErrSyntax):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("transactions handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
