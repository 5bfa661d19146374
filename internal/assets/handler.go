package assets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/observability"
	"github.com/artha-erp/artha/internal/platform/httpx"
	"github.com/artha-erp/artha/internal/shared"
)

// Handler wires fixed asset and depreciation endpoints.
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

// MountRoutes registers the asset endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/assets", h.handleCreate)
	r.Get("/assets", h.handleList)
	r.Get("/assets/{id}", h.handleGet)
	r.Get("/assets/{id}/entries", h.handleEntries)
	r.Post("/assets/{id}/depreciation", h.handleGenerate)
	r.Post("/depreciation-runs", h.handleGenerateAll)
}

type createAssetRequest struct {
	Code               string `json:"code" validate:"required"`
	Name               string `json:"name" validate:"required"`
	Cost               string `json:"cost" validate:"required"`
	Residual           string `json:"residual"`
	Method             string `json:"method" validate:"required,oneof=STRAIGHT_LINE DECLINING_BALANCE"`
	LifeMonths         int    `json:"lifeMonths" validate:"required,gt=0"`
	AcquiredAt         string `json:"acquiredAt" validate:"required"`
	ExpenseAccount     string `json:"expenseAccount" validate:"required"`
	AccumulatedAccount string `json:"accumulatedAccount" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	cost, err := decimal.NewFromString(req.Cost)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "cost must be a decimal string")
		return
	}
	residual := decimal.Zero
	if req.Residual != "" {
		residual, err = decimal.NewFromString(req.Residual)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "residual must be a decimal string")
			return
		}
	}
	acquiredAt, err := time.Parse("2006-01-02", req.AcquiredAt)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "acquiredAt must be formatted YYYY-MM-DD")
		return
	}
	asset, err := h.service.Create(r.Context(), CreateInput{
		Code:       req.Code,
		Name:       req.Name,
		Cost:       cost,
		Residual:   residual,
		Method:     Method(req.Method),
		LifeMonths: req.LifeMonths,
		AcquiredAt: acquiredAt,
		Accounts: AccountMapping{
			ExpenseAccount:     req.ExpenseAccount,
			AccumulatedAccount: req.AccumulatedAccount,
		},
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, asset)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	assets, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assets)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	asset, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	entries, err := h.service.Entries(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type periodRequest struct {
	Period string `json:"period" validate:"required"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Generate(r.Context(), id, req.Period, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObserveGeneratedJournal("depreciation")
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	generated, err := h.service.GenerateAll(r.Context(), req.Period, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	for i := 0; i < generated; i++ {
		h.metrics.ObserveGeneratedJournal("depreciation")
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"period":    req.Period,
		"generated": generated,
	})
}

func parseAssetID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAssetNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyDepreciated), errors.Is(err, ErrFullyDepreciated),
		errors.Is(err, ErrAssetInactive):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnknownMethod), errors.Is(err, ErrInvalidLife),
		errors.Is(err, ErrInvalidCost), errors.Is(err, ErrPeriodBeforeAcquisition),
		errors.Is(err, shared.ErrInvalidPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("assets handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
