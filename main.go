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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"identity-reconciliation/internal/config"
	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/events"
	"identity-reconciliation/internal/handlers"
	"identity-reconciliation/internal/logger"
	"identity-reconciliation/internal/metrics"
	"identity-reconciliation/internal/service"
)

const serviceName = "identity-reconciliation"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.New(cfg.Database.Driver, cfg.Database.URL, log, database.WithTxTimeout(cfg.TxTimeout))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(m)}
	if cfg.Redis.Enabled() {
		client, err := events.NewRedisClient(ctx, events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect event stream: %w", err)
		}
		defer client.Close()
		publisher := events.NewStreamPublisher(client, cfg.Redis.Stream, events.WithMaxLen(cfg.Redis.MaxLen))
		opts = append(opts, service.WithPublisher(publisher))
		log.Info("publishing link events", zap.String("stream", publisher.Stream()))
	}

	svc := service.NewReconciliationService(service.TxFunc[*database.ContactStore](db.RunInTx), opts...)
	router := handlers.NewRouter(handlers.NewIdentifyHandler(svc, log), registry, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("driver", db.Driver()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
