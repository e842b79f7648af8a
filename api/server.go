/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. RealIP:     Client address behind a proxy
  3. instrument: slog request log + prometheus HTTP metrics
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a browser front end

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus scrape (when metrics are enabled)
  /api/sheet-types/*    Catalog
  /api/batches/*        Inventory
  /api/sales/*          Sales
  /api/customers/*      Customers and their payments
  /api/suppliers/*      Suppliers and their payments
  /api/accounts/*       Balances and ledger history
  /api/expenses/*       Expenses
  /api/reports/*        Valuation and statements
  /api/scenarios/*      Demo data loaders

SECURITY NOTE:
  No authentication middleware. The server is meant to listen on a
  trusted local interface.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/sheet-ledger/metrics"
)

type RouterOptions struct {
	CORSOrigins []string
	Metrics     *metrics.Metrics // nil disables /metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(h.Logger, opts.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/sheet-types", func(r chi.Router) {
			r.Get("/", h.ListSheetTypes)
			r.Post("/", h.CreateSheetType)
			r.Patch("/{id}/weight", h.BackfillSheetWeight)
			r.Delete("/{id}", h.DeleteSheetType)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Post("/", h.ReceiveBatch)
			r.Post("/prune", h.PruneBatches)
			r.Get("/{id}/movements", h.ListMovements)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.CreateSale)
			r.Get("/{id}", h.GetSale)
			r.Delete("/{id}", h.DeleteSale)
		})

		r.Post("/services", h.CreateServiceType)

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Post("/{id}/payments", h.RecordCustomerPayment)
		})

		r.Route("/suppliers", func(r chi.Router) {
			r.Post("/", h.CreateSupplier)
			r.Post("/{id}/payments", h.RecordSupplierPayment)
		})

		r.Post("/adjustments", h.CreateAdjustment)

		r.Route("/accounts/{kind}/{id}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Get("/entries", h.ListEntries)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Post("/", h.CreateExpense)
			r.Post("/{id}/approve", h.ApproveExpense)
		})

		r.Get("/scenarios", h.ListScenarios)
		r.Post("/scenarios/load", h.LoadScenario)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/inventory", h.InventoryValuation)
			r.Get("/inventory.xlsx", h.InventoryValuationXLSX)
			r.Get("/statements/{kind}/{file}", h.AccountStatementXLSX)
		})
	})

	return r
}
