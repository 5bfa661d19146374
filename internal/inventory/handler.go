package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/costing"
	"github.com/artha-erp/artha/internal/observability"
	"github.com/artha-erp/artha/internal/platform/httpx"
	"github.com/artha-erp/artha/internal/shared"
)

// Handler wires product and stock movement endpoints.
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

// MountRoutes registers the inventory endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/products", h.handleCreateProduct)
	r.Get("/products", h.handleListProducts)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Patch("/products/{id}/active", h.handleSetActive)
	r.Get("/products/{id}/valuation", h.handleValuation)
	r.Get("/products/{id}/movements", h.handleListMovements)
	r.Post("/inventory/purchases", h.handlePurchase)
	r.Post("/inventory/sales", h.handleSale)
}

type accountMappingRequest struct {
	InventoryAccount  string `json:"inventoryAccount" validate:"required"`
	COGSAccount       string `json:"cogsAccount" validate:"required"`
	SalesAccount      string `json:"salesAccount" validate:"required"`
	ReceivableAccount string `json:"receivableAccount" validate:"required"`
}

type createProductRequest struct {
	SKU      string                 `json:"sku" validate:"required"`
	Name     string                 `json:"name" validate:"required"`
	Policy   string                 `json:"policy" validate:"required,oneof=FIFO AVERAGE"`
	Accounts *accountMappingRequest `json:"accounts"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	input := ProductInput{
		SKU:    req.SKU,
		Name:   req.Name,
		Policy: costing.Policy(req.Policy),
	}
	if req.Accounts != nil {
		input.Accounts = &AccountMapping{
			InventoryAccount:  req.Accounts.InventoryAccount,
			COGSAccount:       req.Accounts.COGSAccount,
			SalesAccount:      req.Accounts.SalesAccount,
			ReceivableAccount: req.Accounts.ReceivableAccount,
		}
	}
	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := parseProductID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	productID, err := parseProductID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	var req setActiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.service.SetProductActive(r.Context(), productID, req.Active); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	productID, err := parseProductID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	value, err := h.service.Valuation(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	onHand, err := h.service.StockOnHand(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]decimal.Decimal{
		"onHand": onHand,
		"value":  value,
	})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	productID, err := parseProductID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	movements, err := h.service.ListMovements(r.Context(), productID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type movementRequest struct {
	ProductID int64  `json:"productId" validate:"required"`
	Qty       string `json:"qty" validate:"required"`
	UnitCost  string `json:"unitCost"`
	UnitPrice string `json:"unitPrice"`
	Date      string `json:"date"`
	Reference string `json:"reference"`
	Note      string `json:"note"`
}

func (h *Handler) decodeMovement(r *http.Request) (movementRequest, decimal.Decimal, time.Time, error) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return req, decimal.Zero, time.Time{}, err
	}
	if err := h.validator.Struct(req); err != nil {
		return req, decimal.Zero, time.Time{}, err
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		return req, decimal.Zero, time.Time{}, err
	}
	date := time.Now()
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			return req, decimal.Zero, time.Time{}, err
		}
	}
	return req, qty, date, nil
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	req, qty, date, err := h.decodeMovement(r)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		unitCost, err = decimal.NewFromString(req.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "unitCost must be a decimal string")
			return
		}
	}
	movement, err := h.service.RecordPurchase(r.Context(), PurchaseInput{
		ProductID: req.ProductID,
		Qty:       qty,
		UnitCost:  unitCost,
		Date:      date,
		Reference: req.Reference,
		Note:      req.Note,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if movement.TransactionID != nil {
		h.metrics.ObserveGeneratedJournal("inventory")
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleSale(w http.ResponseWriter, r *http.Request) {
	req, qty, date, err := h.decodeMovement(r)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	unitPrice := decimal.Zero
	if req.UnitPrice != "" {
		unitPrice, err = decimal.NewFromString(req.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "unitPrice must be a decimal string")
			return
		}
	}
	movement, err := h.service.RecordSale(r.Context(), SaleInput{
		ProductID: req.ProductID,
		Qty:       qty,
		UnitPrice: unitPrice,
		Date:      date,
		Reference: req.Reference,
		Note:      req.Note,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if movement.TransactionID != nil {
		h.metrics.ObserveGeneratedJournal("inventory")
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func parseProductID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSKU), errors.Is(err, ErrProductInactive),
		errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, costing.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrSKURequired), errors.Is(err, ErrIncompleteMapping),
		errors.Is(err, costing.ErrUnknownPolicy):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("inventory handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
