package payroll

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/observability"
	"github.com/artha-erp/artha/internal/platform/httpx"
	"github.com/artha-erp/artha/internal/shared"
)

// Handler wires payroll run endpoints.
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

// MountRoutes registers the payroll endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/payroll-runs", h.handleCreate)
	r.Get("/payroll-runs", h.handleList)
	r.Get("/payroll-runs/{id}", h.handleGet)
	r.Post("/payroll-runs/{id}/journal", h.handleGenerateJournal)
}

type createRunRequest struct {
	Period     string `json:"period" validate:"required"`
	Gross      string `json:"gross" validate:"required"`
	Deductions string `json:"deductions" validate:"required"`
	Net        string `json:"net" validate:"required"`
	Headcount  int    `json:"headcount" validate:"gte=0"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	gross, err := decimal.NewFromString(req.Gross)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "gross must be a decimal string")
		return
	}
	deductions, err := decimal.NewFromString(req.Deductions)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "deductions must be a decimal string")
		return
	}
	net, err := decimal.NewFromString(req.Net)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "net must be a decimal string")
		return
	}
	run, err := h.service.CreateRun(r.Context(), RunInput{
		Period:     req.Period,
		Gross:      gross,
		Deductions: deductions,
		Net:        net,
		Headcount:  req.Headcount,
		ActorID:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid run id")
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) handleGenerateJournal(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid run id")
		return
	}
	run, err := h.service.GenerateJournal(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObserveGeneratedJournal("payroll")
	httpx.JSON(w, http.StatusOK, run)
}

func parseRunID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrDuplicatePeriod):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrAmountMismatch),
		errors.Is(err, shared.ErrInvalidPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("payroll handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
