package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-books/meridian/internal/ap"
	"github.com/meridian-books/meridian/internal/ar"
	"github.com/meridian-books/meridian/internal/balances"
	"github.com/meridian-books/meridian/internal/fx"
	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/periods"
	"github.com/meridian-books/meridian/internal/reconcile"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledger.Handler
	BalancesHandler  *balances.Handler
	PeriodsHandler   *periods.Handler
	ARHandler        *ar.Handler
	APHandler        *ap.Handler
	ReconcileHandler *reconcile.Handler
	FXHandler        *fx.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			params.LedgerHandler.MountRoutes(g)
		})
		api.Route("/balances", func(g chi.Router) {
			params.BalancesHandler.MountRoutes(g)
		})
		api.Group(func(g chi.Router) {
			params.PeriodsHandler.MountRoutes(g)
		})
		api.Route("/ar", func(g chi.Router) {
			params.ARHandler.MountRoutes(g)
		})
		api.Route("/ap", func(g chi.Router) {
			params.APHandler.MountRoutes(g)
		})
		api.Group(func(g chi.Router) {
			params.ReconcileHandler.MountRoutes(g)
		})
		api.Group(func(g chi.Router) {
			params.FXHandler.MountRoutes(g)
		})
	})

	return r
}
