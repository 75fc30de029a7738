package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/ledger"
	"github.com/shaiso/Pipeworks/internal/notify"
	"github.com/shaiso/Pipeworks/internal/queue"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/storage"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

// Default configuration values.
const (
	defaultURLTTL = 24 * time.Hour
)

// Notifier — получатель уведомлений о переходах.
type Notifier interface {
	Notify(ctx context.Context, callbackURL string, events []notify.Event)
}

// Service — операции над runs и планировщик workflow.
type Service struct {
	store    repo.Store
	objects  storage.Store
	queue    queue.Queue
	notifier Notifier

	// urlTTL — срок жизни ссылок на артефакты.
	urlTTL time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Service.
type Config struct {
	Store   repo.Store
	Objects storage.Store
	Queue   queue.Queue

	// Notifier — отправитель callbacks (опционально).
	Notifier Notifier

	// URLTTL — срок жизни ссылок на артефакты (default: 24h).
	URLTTL time.Duration

	Logger *slog.Logger

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	urlTTL := cfg.URLTTL
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:    cfg.Store,
		objects:  cfg.Objects,
		queue:    cfg.Queue,
		notifier: cfg.Notifier,
		urlTTL:   urlTTL,
		logger:   logger,
		now:      now,
	}
}

// effects накапливает последствия транзакции для выполнения после коммита.
type effects struct {
	transitions []ledger.Transition
	released    int
	cancelled   int
}

func (e *effects) add(trs ...ledger.Transition) {
	e.transitions = append(e.transitions, trs...)
}

// inTx выполняет fn в транзакции и после коммита применяет накопленные эффекты.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx, eff *effects) error) error {
	eff := &effects{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return fn(ctx, tx, eff)
	})
	if err != nil {
		return err
	}
	s.dispatch(ctx, eff)
	return nil
}

// dispatch публикует готовые runs, отправляет уведомления и обновляет метрики.
//
// Ошибка публикации не откатывает переход: run остаётся NOT_STARTED,
// и Reconciler переотправит его позже.
func (s *Service) dispatch(ctx context.Context, eff *effects) {
	type batch struct {
		url    string
		events []notify.Event
	}
	var batches []*batch
	byURL := make(map[string]*batch)

	for _, tr := range eff.transitions {
		telemetry.RunTransitions.WithLabelValues(string(tr.To)).Inc()

		if tr.To == domain.RunStateNotStarted && s.queue != nil {
			if err := s.queue.Enqueue(ctx, queue.NewJob(tr.Run.ID)); err != nil {
				telemetry.QueuePublishFailures.Inc()
				s.logger.Warn("failed to enqueue run, reconciler will retry",
					"run_id", tr.Run.ID,
					"error", err,
				)
			}
		}

		if tr.Run.CallbackURL == "" {
			continue
		}
		b, ok := byURL[tr.Run.CallbackURL]
		if !ok {
			b = &batch{url: tr.Run.CallbackURL}
			byURL[b.url] = b
			batches = append(batches, b)
		}
		b.events = append(b.events, notify.Event{RunID: tr.Run.ID, State: tr.To})
	}

	if s.notifier != nil {
		for _, b := range batches {
			s.notifier.Notify(ctx, b.url, b.events)
		}
	}

	telemetry.RunsReleased.Add(float64(eff.released))
	telemetry.RunsCascadeCancelled.Add(float64(eff.cancelled))
}
