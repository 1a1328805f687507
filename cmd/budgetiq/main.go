package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"

	"github.com/neomorfeo/budgetiq/internal/adapter/document"
	"github.com/neomorfeo/budgetiq/internal/adapter/fsm"
	"github.com/neomorfeo/budgetiq/internal/adapter/notify"
	oteladapter "github.com/neomorfeo/budgetiq/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/budgetiq/internal/adapter/river"
	"github.com/neomorfeo/budgetiq/internal/adapter/sqlite"
	"github.com/neomorfeo/budgetiq/internal/app"
	"github.com/neomorfeo/budgetiq/internal/config"
	"github.com/neomorfeo/budgetiq/internal/logger"

	handler "github.com/neomorfeo/budgetiq/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "budgetiq: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	providers, err := oteladapter.Setup(ctx, oteladapter.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Telemetry.Environment,
		Exporter:       cfg.Telemetry.Exporter,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	// --- Adapters (out) ---
	db, err := oteladapter.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	queue, err := riveradapter.Setup(ctx, db, notify.NewLogNotifier(log), log, cfg.QueueWorkers)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	publisher, err := oteladapter.NewTracingPublisher(riveradapter.NewPublisher(queue))
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}

	// --- Application ---
	svc := app.NewBudgetService(
		oteladapter.NewTracingStore(store),
		fsm.New(),
		publisher,
		app.WithLogger(log),
		app.WithCodePrefix(cfg.CodePrefix),
		app.WithRenderer(document.NewJSONRenderer(cfg.DocumentDir)),
	)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(cfg.Telemetry.ServiceName, otelchi.WithChiRoutes(router)))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Tenant-ID", "X-User-ID", "X-Request-Id"},
		MaxAge:         300,
	}))
	router.Use(handler.RequestLogger(log))

	api := humachi.New(router, huma.DefaultConfig("budgetiq", cfg.Telemetry.ServiceVersion))
	handler.Register(api, svc)

	// --- Server ---
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("starting queue: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("budgetiq listening", zap.String("port", cfg.Port), zap.String("docs", "http://localhost:"+cfg.Port+"/docs"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error("queue shutdown", zap.Error(err))
	}

	log.Info("stopped")
	return nil
}
