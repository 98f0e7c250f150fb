package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-sfa/meridian-sfa/internal/agents"
	"github.com/meridian-sfa/meridian-sfa/internal/identity"
	"github.com/meridian-sfa/meridian-sfa/internal/inventory"
	"github.com/meridian-sfa/meridian-sfa/internal/invoices"
	"github.com/meridian-sfa/meridian-sfa/internal/kpi"
	"github.com/meridian-sfa/meridian-sfa/internal/observability"
	"github.com/meridian-sfa/meridian-sfa/internal/reconciliation"
	"github.com/meridian-sfa/meridian-sfa/internal/returns"
	"github.com/meridian-sfa/meridian-sfa/internal/stockload"
	syncmod "github.com/meridian-sfa/meridian-sfa/internal/sync"
	"github.com/meridian-sfa/meridian-sfa/internal/visits"
	"github.com/meridian-sfa/meridian-sfa/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Authenticator func(http.Handler) http.Handler

	IdentityHandler       *identity.Handler
	AgentsHandler         *agents.Handler
	StockLoadHandler      *stockload.Handler
	InventoryHandler      *inventory.Handler
	InvoicesHandler       *invoices.Handler
	SyncHandler           *syncmod.Handler
	ReturnsHandler        *returns.Handler
	VisitsHandler         *visits.Handler
	ReconciliationHandler *reconciliation.Handler
	KPIHandler            *kpi.Handler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		Authenticator: params.Authenticator,
		Metrics:       params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.IdentityHandler.MountAuthRoutes)
	r.Route("/users", params.IdentityHandler.MountUserRoutes)
	r.Route("/agents", params.AgentsHandler.MountRoutes)
	r.Route("/stock-loads", params.StockLoadHandler.MountRoutes)
	r.Route("/inventory", params.InventoryHandler.MountRoutes)
	r.Route("/invoices", params.InvoicesHandler.MountRoutes)
	r.Route("/sync", params.SyncHandler.MountRoutes)
	r.Route("/returns", params.ReturnsHandler.MountRoutes)
	r.Route("/visits", params.VisitsHandler.MountRoutes)
	r.Route("/reconciliations", params.ReconciliationHandler.MountRoutes)
	r.Route("/kpi", params.KPIHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
