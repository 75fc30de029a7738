// Pipeworks API — HTTP API для pipelines, workflows и runs.
//
// API:
//   - Управляет pipelines и графами workflows
//   - Создаёт runs и публикует готовые в RabbitMQ
//   - Принимает переходы состояний, консоль и артефакты от воркеров
//   - Применяет схему БД при старте
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaiso/Pipeworks/internal/api"
	"github.com/shaiso/Pipeworks/internal/catalog"
	"github.com/shaiso/Pipeworks/internal/config"
	"github.com/shaiso/Pipeworks/internal/mq"
	"github.com/shaiso/Pipeworks/internal/notify"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/storage"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeworks_api_health_requests_total",
		Help: "Total health checks handled by pipeworks-api",
	})
)

func main() {
	cfg, err := config.Load(os.Getenv("PIPEWORKS_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting pipeworks-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tracing
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName: "pipeworks-api",
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to setup tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DB.URL, cfg.DB.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")
	store := repo.NewPostgres(pool)

	objects, err := storage.NewMinIO(ctx, storage.MinIOConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to connect to object storage", "error", err)
		os.Exit(1)
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(ctx, mq.ConnectionConfig{
		URL:    cfg.RabbitMQ.URL,
		Name:   "pipeworks-api",
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	jobs := mq.NewJobQueue(mqConn, mq.JobQueueConfig{Prefetch: cfg.RabbitMQ.Prefetch, Logger: logger})

	runs := orchestrator.New(orchestrator.Config{
		Store:    store,
		Objects:  objects,
		Queue:    jobs,
		Notifier: notify.New(notify.Config{Timeout: cfg.Callback.Timeout, Logger: logger}),
		URLTTL:   cfg.Storage.URLTTL,
		Logger:   logger,
	})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Catalog: catalog.New(catalog.Config{Store: store, Logger: logger}),
		Runs:    runs,
		Logger:  logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		reqTotal.Inc()
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := config.Addr(cfg.API.Port)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
