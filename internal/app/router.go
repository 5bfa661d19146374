package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/artha-erp/artha/internal/assets"
	"github.com/artha-erp/artha/internal/inventory"
	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/observability"
	"github.com/artha-erp/artha/internal/payroll"
	"github.com/artha-erp/artha/internal/production"
	"github.com/artha-erp/artha/internal/templates"
	"github.com/artha-erp/artha/internal/transactions"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	LedgerHandler       *ledger.Handler
	TemplatesHandler    *templates.Handler
	TransactionsHandler *transactions.Handler
	InventoryHandler    *inventory.Handler
	ProductionHandler   *production.Handler
	AssetsHandler       *assets.Handler
	PayrollHandler      *payroll.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		params.LedgerHandler.MountRoutes(api)
		params.TemplatesHandler.MountRoutes(api)
		params.TransactionsHandler.MountRoutes(api)
		params.InventoryHandler.MountRoutes(api)
		params.ProductionHandler.MountRoutes(api)
		params.AssetsHandler.MountRoutes(api)
		params.PayrollHandler.MountRoutes(api)
	})

	return r
}
