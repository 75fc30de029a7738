package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/queue"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

// Default reconciler values.
const (
	defaultReconcileSchedule = "@every 30s"
	defaultStaleAfter        = time.Minute
	defaultBatchSize         = 100
)

// Reconciler периодически переотправляет в очередь runs,
// которые слишком долго остаются в NOT_STARTED.
//
// Такое бывает, если публикация после коммита не удалась или сообщение
// потерялось. Дубликаты безопасны: воркер захватывает run переходом
// NOT_STARTED → RUNNING под блокировкой и пропускает уже захваченные.
type Reconciler struct {
	store      repo.Store
	queue      queue.Queue
	schedule   string
	staleAfter time.Duration
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time

	cron *cron.Cron
	mu   sync.Mutex
}

// ReconcilerConfig — конфигурация Reconciler.
type ReconcilerConfig struct {
	Store repo.Store
	Queue queue.Queue

	// Schedule — cron-выражение или дескриптор (default: "@every 30s").
	Schedule string

	// StaleAfter — сколько run может ждать в NOT_STARTED (default: 1m).
	StaleAfter time.Duration

	// BatchSize — runs за один тик (default: 100).
	BatchSize int

	Logger *slog.Logger
	Now    func() time.Time
}

// NewReconciler создаёт Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultReconcileSchedule
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		store:      cfg.Store,
		queue:      cfg.Queue,
		schedule:   schedule,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     logger,
		now:        now,
	}
}

// Start регистрирует Tick в cron и запускает планировщик.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		if _, err := r.Tick(ctx); err != nil {
			r.logger.Error("reconcile tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse reconcile schedule %q: %w", r.schedule, err)
	}

	r.cron = c
	c.Start()

	r.logger.Info("reconciler started",
		"schedule", r.schedule,
		"stale_after", r.staleAfter,
	)
	return nil
}

// Stop останавливает cron и ждёт завершения текущего тика.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("reconciler stopped")
}

// Tick переотправляет зависшие runs. Возвращает число отправленных.
// Ошибка публикации одного run не прерывает обработку остальных.
//
// Отправленные runs помечаются временем переотправки: следующий тик
// вернётся к ним не раньше чем через staleAfter, даже если воркеры
// просто заняты и задача ждёт в очереди.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	now := r.now()

	var stale []uuid.UUID
	err := r.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		stale, err = tx.ListRunsInState(ctx, domain.RunStateNotStarted, now.Add(-r.staleAfter), r.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list stale runs: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	sent := make([]uuid.UUID, 0, len(stale))
	for _, runID := range stale {
		if err := r.queue.Enqueue(ctx, queue.NewJob(runID)); err != nil {
			telemetry.QueuePublishFailures.Inc()
			r.logger.Warn("failed to re-enqueue run", "run_id", runID, "error", err)
			continue
		}
		sent = append(sent, runID)
	}

	err = r.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return tx.MarkRunsEnqueued(ctx, sent, now)
	})
	if err != nil {
		// Без отметки следующий тик отправит дубликаты, захват их отсеет
		r.logger.Warn("failed to mark runs enqueued", "error", err)
	}

	r.logger.Info("reconcile tick completed",
		"stale", len(stale),
		"enqueued", len(sent),
	)
	return len(sent), nil
}
