package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/adminauth"
	"storefront/internal/cashier"
	"storefront/internal/catalog"
	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/identity"
	"storefront/internal/inventory"
	"storefront/internal/kv"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/repository"
	"storefront/internal/reservation"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	*http.Server
	config   *config.Config
	logger   *zap.Logger
	db       *sql.DB
	redis    *redis.Client
	executor *reservation.Executor
	clients  *client.Registry
	auth     *adminauth.Service
	expiry   *catalog.ExpiryScanner
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client) *Server {
	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	// Stock changes only flow through the adjuster
	adjuster := inventory.NewAdjuster(repository.NewQuantityStore(db), logger)
	executor := reservation.NewExecutor(adjuster, cfg.Inventory.ExecutorWorkers, logger)

	// Initialize services
	clientStore := kv.NewRedis(redisClient, cfg.Redis.ClientTTL)
	clients := client.NewRegistry(executor, saleRepo, productRepo, clientStore, logger)
	productService := catalog.NewProductService(productRepo, adjuster, logger)
	orderService := order.NewOrderService(orderRepo, logger)
	saleService := cashier.NewSaleService(saleRepo, executor, logger)
	provider := identity.NewLocalProvider(credentialRepo, logger)
	authService := adminauth.NewService(adminRepo, sessionRepo, provider, cfg.Session, logger)

	// Initialize handlers
	productHandler := transport.NewProductHandler(productService, logger)
	cartHandler := transport.NewCartHandler(clients, orderService, logger)
	cashierHandler := transport.NewCashierHandler(clients, saleService, logger)
	orderHandler := transport.NewOrderHandler(orderService, logger)
	adminHandler := transport.NewAdminHandler(authService, clients, logger)

	// Create router
	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.Env == "development"))

	s := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:   cfg,
		logger:   logger,
		db:       db,
		redis:    redisClient,
		executor: executor,
		clients:  clients,
		auth:     authService,
		expiry:   catalog.NewExpiryScanner(productRepo, catalog.SystemClock, logger),
	}

	// Health check endpoint
	router.Get("/health", s.health)

	// Public catalog
	productHandler.RegisterRoutes(router)

	router.Group(func(r chi.Router) {
		r.Use(custommiddleware.ClientIDMiddleware(logger))
		r.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "rate_limit",
		}, logger))

		cartHandler.RegisterRoutes(r)

		r.Route("/api/admin", func(r chi.Router) {
			adminHandler.RegisterRoutes(r)

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.AdminSessionMiddleware(authService, clientStore, logger))
				adminHandler.RegisterAdminRoutes(r)
				productHandler.RegisterAdminRoutes(r)
				cashierHandler.RegisterAdminRoutes(r)
				orderHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return s
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]any{"status": "ok"}
	code := http.StatusOK

	if err := s.db.PingContext(ctx); err != nil {
		status["status"], status["database"] = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	} else if version, err := database.MigrationVersion(s.db); err == nil {
		status["migration_version"] = version
	}

	if err := s.redis.Ping(ctx).Err(); err != nil {
		status["status"], status["redis"] = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}

	status["clients"] = s.clients.Len()
	custommiddleware.RespondWithJSON(w, code, status)
}

// Bootstrap creates the configured first admin if it does not exist yet
func (s *Server) Bootstrap(ctx context.Context) error {
	cfg := s.config.Session
	if cfg.BootstrapUsername == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	created, err := s.auth.Bootstrap(ctx, cfg.BootstrapUsername, cfg.BootstrapPassword)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("Bootstrap admin created", zap.String("username", cfg.BootstrapUsername))
	}
	return nil
}

// RunBackground runs the scheduled jobs until ctx is done: product expiry,
// catalog reload for connected clients and expired session cleanup.
func (s *Server) RunBackground(ctx context.Context) error {
	inv := s.config.Inventory

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.expiry.Run(ctx, inv.ExpiryScanInterval)
	})
	g.Go(func() error {
		return s.clients.Run(ctx, inv.ReloadInterval, inv.ClientIdleTimeout)
	})
	g.Go(func() error {
		return s.auth.RunCleanup(ctx, s.config.Session.CleanupInterval)
	})
	return g.Wait()
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Let queued stock writes land before the pool goes away
	s.clients.Wait()
	s.executor.Close()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
