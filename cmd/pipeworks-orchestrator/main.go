// Pipeworks Orchestrator — страхует доставку готовых runs.
//
// Orchestrator:
//   - По cron-расписанию ищет runs, застрявшие в NOT_STARTED
//   - Повторно публикует их в RabbitMQ (at-least-once)
//
// Переходы и распространение выполняются в API и воркерах,
// этот процесс только восстанавливает потерянные публикации.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Pipeworks/internal/config"
	"github.com/shaiso/Pipeworks/internal/mq"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("PIPEWORKS_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting pipeworks-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tracing
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName: "pipeworks-orchestrator",
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

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DB.URL, cfg.DB.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ
	mqConn, err := mq.NewConnection(ctx, mq.ConnectionConfig{
		URL:    cfg.RabbitMQ.URL,
		Name:   "pipeworks-orchestrator",
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
	logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())

	reconciler := orchestrator.NewReconciler(orchestrator.ReconcilerConfig{
		Store:      repo.NewPostgres(pool),
		Queue:      mq.NewJobQueue(mqConn, mq.JobQueueConfig{Logger: logger}),
		Schedule:   cfg.Reconcile.Schedule,
		StaleAfter: cfg.Reconcile.StaleAfter,
		Logger:     logger,
	})

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("failed to start reconciler", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.Orchestrator.Port)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	reconciler.Stop()
	logger.Info("pipeworks-orchestrator stopped")
}
