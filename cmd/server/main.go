package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	consulapi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deepshark/deepshark-backend/internal/artifacts"
	"github.com/deepshark/deepshark-backend/internal/catalog"
	"github.com/deepshark/deepshark-backend/internal/config"
	"github.com/deepshark/deepshark-backend/internal/consul"
	"github.com/deepshark/deepshark-backend/internal/events"
	"github.com/deepshark/deepshark-backend/internal/fal"
	"github.com/deepshark/deepshark-backend/internal/handlers"
	"github.com/deepshark/deepshark-backend/internal/middleware"
	"github.com/deepshark/deepshark-backend/internal/payments"
	"github.com/deepshark/deepshark-backend/internal/reconcile"
	"github.com/deepshark/deepshark-backend/internal/service"
	"github.com/deepshark/deepshark-backend/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("Starting DeepShark backend", zap.Int("port", cfg.Server.Port))

	// Database
	db, err := setupDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer db.Close()

	pgStore := store.NewPostgresStore(db, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pgStore.Initialize(ctx); err != nil {
		cancel()
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}
	cancel()

	// Generation provider
	falClient, err := fal.NewClient(&cfg.Fal, logger)
	if err != nil {
		logger.Fatal("Failed to create generation provider client", zap.Error(err))
	}

	// Artifact storage
	artifactStore, err := artifacts.NewMinioClient(cfg.Artifacts, logger)
	if err != nil {
		logger.Fatal("Failed to create artifact store", zap.Error(err))
	}
	bucketCtx, bucketCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := artifactStore.EnsureBucket(bucketCtx); err != nil {
		bucketCancel()
		logger.Fatal("Failed to ensure artifact bucket", zap.Error(err))
	}
	bucketCancel()
	fetcher := artifacts.NewFetcher(artifactStore, cfg.Fal.Timeout, logger)

	// Events
	publisher, err := events.Connect(cfg.NATS, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer publisher.Close()

	// Payment gateways
	paypalClient, err := payments.NewPayPalClient(&cfg.Payments.PayPal, logger)
	if err != nil {
		logger.Fatal("Failed to create PayPal client", zap.Error(err))
	}
	razorpayClient, err := payments.NewRazorpayClient(&cfg.Payments.Razorpay, logger)
	if err != nil {
		logger.Fatal("Failed to create Razorpay client", zap.Error(err))
	}

	// Services
	modelCatalog := catalog.New(&cfg.Pricing.Catalog, logger)
	invocationService := service.NewInvocationService(pgStore, modelCatalog, falClient, fetcher, publisher, logger)
	settlementService := service.NewSettlementService(
		pgStore, paypalClient, razorpayClient,
		cfg.Payments.Razorpay.KeySecret, cfg.Rates(), publisher, logger,
	)

	// Reconciler
	reconcileCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	if cfg.Reconcile.Enabled {
		reconciler := reconcile.New(cfg.Reconcile, pgStore, falClient, fetcher, modelCatalog, publisher, logger)
		go reconciler.Run(reconcileCtx)
	}

	server := setupHTTPServer(cfg, pgStore, invocationService, settlementService, falClient, logger)

	// Service discovery
	var consulClient *consulapi.Client
	var serviceID string
	if cfg.Consul.Enabled {
		consulClient, err = consul.Connect(cfg.Consul.Address, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Consul", zap.Error(err))
		}
		serviceID, err = consul.RegisterService(consulClient, cfg.Consul, server.Addr, logger)
		if err != nil {
			logger.Fatal("Failed to register with Consul", zap.Error(err))
		}
	}

	setupGracefulShutdown(server, cfg.Server.ShutdownTimeout, func() {
		stopReconciler()
		if consulClient != nil {
			consul.DeregisterService(consulClient, serviceID, logger)
		}
	}, logger)

	logger.Info("Starting HTTP server", zap.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}

// setupLogger initializes the logger
func setupLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.NewProductionConfig()
	config.Level = zapLevel
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build()
}

// setupDatabase initializes the database connection pool
func setupDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	poolConfig, err := cfg.GetDatabaseConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return pool, nil
}

// setupHTTPServer configures and returns the HTTP server
func setupHTTPServer(
	cfg *config.Config,
	pgStore *store.PostgresStore,
	invocationService *service.InvocationService,
	settlementService *service.SettlementService,
	falClient *fal.Client,
	logger *zap.Logger,
) *http.Server {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Fal.Timeout + 30*time.Second))
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"deepshark-backend"}`))
	})

	accountCfg := handlers.AccountConfig{
		SignupGrant:     cfg.Billing.SignupGrant,
		JWTSecret:       cfg.Auth.JWTSecret,
		SessionDuration: cfg.SessionDuration(),
	}

	r.Route("/api", func(r chi.Router) {
		// Account provisioning is the only unauthenticated API route.
		r.Post("/accounts", handlers.CreateAccount(pgStore, accountCfg, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticator(logger, cfg.Auth.JWTSecret))

			r.Post("/generate/{tool}", handlers.Generate(invocationService, logger))
			r.Post("/proxy", handlers.Proxy(invocationService, falClient, logger))

			r.Route("/payments", func(r chi.Router) {
				r.Post("/paypal/create-order", handlers.CreatePayPalOrder(settlementService, logger))
				r.Post("/paypal/capture-order", handlers.CapturePayPalOrder(settlementService, logger))
				r.Post("/razorpay/create-order", handlers.CreateRazorpayOrder(settlementService, logger))
				r.Post("/razorpay/verify", handlers.VerifyRazorpayPayment(settlementService, logger))
			})

			r.Route("/me", func(r chi.Router) {
				r.Get("/credits", handlers.GetCredits(pgStore, logger))
				r.Get("/transactions", handlers.GetTransactionHistory(settlementService, logger))
				r.Get("/generations", handlers.GetGenerationHistory(invocationService, logger))
			})
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// corsMiddleware allows the configured frontend origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed[origin] || allowed["*"]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Fal-Target-Url")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setupGracefulShutdown configures graceful shutdown handling
func setupGracefulShutdown(server *http.Server, timeout time.Duration, cleanup func(), logger *zap.Logger) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Received shutdown signal, shutting down gracefully...")

		cleanup()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown server gracefully", zap.Error(err))
		} else {
			logger.Info("Server shutdown completed")
		}
	}()
}
