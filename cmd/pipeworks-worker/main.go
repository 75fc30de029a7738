// Pipeworks Worker — выполняет pipeline runs.
//
// Worker:
//   - Получает jobs из RabbitMQ (ручной ack, DLQ для повторных сбоев)
//   - Клонирует репозиторий, скачивает входы, запускает контейнер
//   - Загружает артефакты и консоль, выполняет переходы состояний
//
// Workers масштабируются горизонтально.
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
	"github.com/shaiso/Pipeworks/internal/notify"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/runtime"
	"github.com/shaiso/Pipeworks/internal/storage"
	"github.com/shaiso/Pipeworks/internal/telemetry"
	"github.com/shaiso/Pipeworks/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("PIPEWORKS_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting pipeworks-worker", "concurrency", cfg.Worker.Concurrency)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tracing
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName: "pipeworks-worker",
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
		Name:   "pipeworks-worker",
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	// Создаём топологию
	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	jobs := mq.NewJobQueue(mqConn, mq.JobQueueConfig{Prefetch: cfg.RabbitMQ.Prefetch, Logger: logger})

	// Воркер выполняет переходы сам: завершение run освобождает зависимые
	runs := orchestrator.New(orchestrator.Config{
		Store:    repo.NewPostgres(pool),
		Objects:  objects,
		Queue:    jobs,
		Notifier: notify.New(notify.Config{Timeout: cfg.Callback.Timeout, Logger: logger}),
		URLTTL:   cfg.Storage.URLTTL,
		Logger:   logger,
	})

	executor := worker.NewExecutor(worker.ExecutorConfig{
		Runs:       runs,
		Containers: runtime.NewDocker(cfg.Worker.DockerBinary, logger),
		Sources:    runtime.NewGit(cfg.Worker.GitBinary, logger),
		WorkDir:    cfg.Worker.WorkDir,
		Logger:     logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Queue:       jobs,
		Executor:    executor,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() || !mqConn.IsConnected() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.Worker.Port)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker: текущие runs дорабатывают до конца
	w.Stop()
	logger.Info("pipeworks-worker stopped")
}
