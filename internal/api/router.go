package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/etl"
	"github.com/marginlens/reconciler/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	orderRepo *repository.OrderRepo,
	feeRepo *repository.FeeItemRepo,
	costRepo *repository.PeriodCostRepo,
	attribRepo *repository.AttributionRepo,
	etlSvc *etl.Service,
	log zerolog.Logger,
) http.Handler {
	h := &Handlers{
		orderRepo:  orderRepo,
		feeRepo:    feeRepo,
		costRepo:   costRepo,
		attribRepo: attribRepo,
		etlSvc:     etlSvc,
		log:        log,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Reconciliation.
		r.Post("/sync", h.TriggerSync)

		// Orders.
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)

		// Period costs.
		r.Get("/costs", h.ListPeriodCosts)

		// Ad campaigns.
		r.Get("/campaigns", h.ListCampaignSpend)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
