package router

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tableflow/api/internal/config"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/handler"
	mw "github.com/tableflow/api/internal/middleware"
	"github.com/tableflow/api/internal/printer"
	"github.com/tableflow/api/internal/sequence"
	"github.com/tableflow/api/internal/service"
	"github.com/tableflow/api/internal/session"
	"github.com/tableflow/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, tenant scoping, and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, seq sequence.Sequencer) (chi.Router, error) {
	publicLimit, err := mw.RateLimit(cfg.PublicRateLimit)
	if err != nil {
		return nil, fmt.Errorf("public rate limit: %w", err)
	}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	r.Group(func(r chi.Router) {
		r.Use(publicLimit)
		authHandler.RegisterRoutes(r)
	})

	// Guest menu and table scan (public)
	menuHandler := handler.NewMenuHandler(queries, cfg.JWTSecret, cfg.CustomerTokenTTL)
	r.Route("/public/tenants/{slug}", func(r chi.Router) {
		r.Use(publicLimit)
		menuHandler.RegisterRoutes(r)
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/tenants/{tid}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Shared collaborators
	printQueue := printer.NewQueue(queries)
	tracker := session.NewTracker(queries)

	orderService := service.NewOrderService(pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		printQueue, tracker)
	settlementService := service.NewSettlementService(pool,
		func(db database.DBTX) service.SettlementStore { return database.New(db) },
		seq, printQueue, tracker)
	waiterService := service.NewWaiterService(queries)

	staff := []string{enum.RoleKitchen, enum.RoleWaiter, enum.RoleBilling, enum.RoleAdmin}

	// Tenant-scoped routes (require authentication)
	r.Route("/tenants/{tid}", func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireTenant)

		// Live views
		snapshotHandler := handler.NewSnapshotHandler(queries, hub)
		r.With(mw.RequireRole(staff...)).Route("/snapshot", snapshotHandler.RegisterRoutes)

		// Orders, settlement, invoices
		orderHandler := handler.NewOrderHandler(orderService, settlementService)
		r.Route("/orders", orderHandler.RegisterRoutes)

		// Printer queue
		printerHandler := handler.NewPrinterQueueHandler(printQueue)
		r.With(mw.RequireRole(staff...)).Route("/printer-queue", printerHandler.RegisterRoutes)

		// Waiter calls
		waiterHandler := handler.NewWaiterCallHandler(waiterService)
		r.Route("/waiter-calls", waiterHandler.RegisterRoutes)

		// Table sessions and wait-time reports
		reportsHandler := handler.NewReportsHandler(queries)
		r.With(mw.RequireRole(enum.RoleWaiter, enum.RoleBilling, enum.RoleAdmin)).Route("/table-sessions", reportsHandler.RegisterSessionRoutes)
		r.With(mw.RequireRole(enum.RoleBilling, enum.RoleAdmin)).Route("/reports", reportsHandler.RegisterRoutes)
	})

	log.Println("Router initialized with all handlers")
	return r, nil
}
