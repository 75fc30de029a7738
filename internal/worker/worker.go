package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/queue"
)

// Default configuration values.
const (
	defaultConcurrency = 2
	defaultErrorDelay  = time.Second
)

// RunExecutor — выполнение одного run. Реализуется Executor.
type RunExecutor interface {
	Execute(ctx context.Context, runID uuid.UUID) error
}

// Worker — пул горутин, которые забирают задачи из очереди
// и выполняют runs.
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди.
type Worker struct {
	queue       queue.Queue
	executor    RunExecutor
	concurrency int
	errorDelay  time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Queue    queue.Queue
	Executor RunExecutor

	// Concurrency — число одновременно выполняемых runs (default: 2).
	Concurrency int

	// ErrorDelay — пауза после ошибки очереди (default: 1s).
	ErrorDelay time.Duration

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	errorDelay := cfg.ErrorDelay
	if errorDelay <= 0 {
		errorDelay = defaultErrorDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:       cfg.Queue,
		executor:    cfg.Executor,
		concurrency: concurrency,
		errorDelay:  errorDelay,
		logger:      logger,
	}
}

// Start запускает concurrency горутин-потребителей.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "concurrency", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(slot int) {
			defer w.wg.Done()
			w.loop(ctx, slot)
		}(i)
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает приём задач и ждёт завершения выполняемых runs.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// loop — цикл одного потребителя.
func (w *Worker) loop(ctx context.Context, slot int) {
	logger := w.logger.With("slot", slot)

	for {
		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Error("failed to dequeue job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.errorDelay):
			}
			continue
		}

		// Начатый run доводится до конца даже при остановке воркера
		w.handle(context.WithoutCancel(ctx), d, logger)
	}
}
