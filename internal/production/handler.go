package production

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/costing"
	"github.com/artha-erp/artha/internal/inventory"
	"github.com/artha-erp/artha/internal/observability"
	"github.com/artha-erp/artha/internal/platform/httpx"
	"github.com/artha-erp/artha/internal/shared"
)

// Handler wires bill-of-material and production order endpoints.
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

// MountRoutes registers the production endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/boms", h.handleCreateBOM)
	r.Get("/boms", h.handleListBOMs)
	r.Get("/boms/{id}", h.handleGetBOM)
	r.Post("/production-orders", h.handleCreateOrder)
	r.Get("/production-orders", h.handleListOrders)
	r.Get("/production-orders/{id}", h.handleGetOrder)
	r.Post("/production-orders/{id}/start", h.handleStart)
	r.Post("/production-orders/{id}/cancel", h.handleCancel)
	r.Post("/production-orders/{id}/complete", h.handleComplete)
}

type componentRequest struct {
	ProductID int64  `json:"productId" validate:"required"`
	Qty       string `json:"qty" validate:"required"`
}

type createBOMRequest struct {
	Name       string             `json:"name" validate:"required"`
	ProductID  int64              `json:"productId" validate:"required"`
	OutputQty  string             `json:"outputQty" validate:"required"`
	Components []componentRequest `json:"components" validate:"required,dive"`
}

func (h *Handler) handleCreateBOM(w http.ResponseWriter, r *http.Request) {
	var req createBOMRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	outputQty, err := decimal.NewFromString(req.OutputQty)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "outputQty must be a decimal string")
		return
	}
	input := BOMInput{
		Name:      req.Name,
		ProductID: req.ProductID,
		OutputQty: outputQty,
	}
	for _, c := range req.Components {
		qty, err := decimal.NewFromString(c.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "component qty must be a decimal string")
			return
		}
		input.Components = append(input.Components, Component{ProductID: c.ProductID, Qty: qty})
	}
	bom, err := h.service.CreateBOM(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bom)
}

func (h *Handler) handleListBOMs(w http.ResponseWriter, r *http.Request) {
	boms, err := h.service.ListBOMs(r.Context(), queryLimit(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, boms)
}

func (h *Handler) handleGetBOM(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bom id")
		return
	}
	bom, err := h.service.GetBOM(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bom)
}

type createOrderRequest struct {
	Code  string `json:"code" validate:"required"`
	BOMID int64  `json:"bomId" validate:"required"`
	Qty   string `json:"qty" validate:"required"`
	Note  string `json:"note"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "qty must be a decimal string")
		return
	}
	order, err := h.service.CreateOrder(r.Context(), OrderInput{
		Code:    req.Code,
		BOMID:   req.BOMID,
		Qty:     qty,
		Note:    req.Note,
		ActorID: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), queryLimit(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := h.service.Complete(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObserveGeneratedJournal("production")
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (Order, error)) {
	id, err := parsePathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	order, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func parsePathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBOMNotFound), errors.Is(err, ErrOrderNotFound),
		errors.Is(err, inventory.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidOrderState), errors.Is(err, ErrBOMInactive),
		errors.Is(err, costing.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNoComponents),
		errors.Is(err, ErrComponentIsOutput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("production handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
