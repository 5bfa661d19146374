package templates

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/platform/httpx"
)

// Handler wires template catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the template catalog endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/templates", h.handleCreate)
	r.Get("/templates", h.handleList)
	r.Get("/templates/{id}", h.handleGet)
	r.Put("/templates/{id}", h.handleEdit)
	r.Post("/templates/{id}/deactivate", h.handleDeactivate)
	r.Delete("/templates/{id}", h.handleDelete)
}

type lineRequest struct {
	AccountCode string `json:"accountCode"`
	AccountSlot string `json:"accountSlot"`
	Side        string `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Formula     string `json:"formula" validate:"required"`
	Order       int    `json:"order"`
}

type definitionRequest struct {
	Name     string        `json:"name" validate:"required"`
	Category string        `json:"category" validate:"required"`
	Type     string        `json:"type" validate:"required,oneof=SIMPLE DETAILED"`
	Lines    []lineRequest `json:"lines" validate:"required,dive"`
}

func (h *Handler) decodeDefinition(r *http.Request) (Definition, error) {
	var req definitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Definition{}, err
	}
	if err := h.validator.Struct(req); err != nil {
		return Definition{}, err
	}
	def := Definition{
		Name:     req.Name,
		Category: Category(req.Category),
		Type:     Type(req.Type),
	}
	for _, line := range req.Lines {
		def.Lines = append(def.Lines, LineSpec{
			AccountCode: line.AccountCode,
			AccountSlot: line.AccountSlot,
			Side:        ledger.Side(line.Side),
			Formula:     line.Formula,
			Order:       line.Order,
		})
	}
	return def, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	def, err := h.decodeDefinition(r)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	snapshot, err := h.service.Create(r.Context(), def)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, snapshot)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshots)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	templateID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid template id")
		return
	}
	version := 0
	if raw := r.URL.Query().Get("version"); raw != "" {
		version, err = strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid version")
			return
		}
	}
	snapshot, err := h.service.Resolve(r.Context(), templateID, version)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	templateID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid template id")
		return
	}
	def, err := h.decodeDefinition(r)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	snapshot, err := h.service.Edit(r.Context(), templateID, def)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	templateID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid template id")
		return
	}
	if err := h.service.Deactivate(r.Context(), templateID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"active": false})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	templateID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid template id")
		return
	}
	if err := h.service.Delete(r.Context(), templateID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrUnknownCategory),
		errors.Is(err, ErrUnknownType), errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrOneSided), errors.Is(err, ErrLineAccount),
		errors.Is(err, ErrVariableNotAllowed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("templates handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
