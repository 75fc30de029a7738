// Package notify отправляет уведомления о смене состояния run
// на callback_url, указанный при создании run.
//
// Доставка best-effort: ошибка сети, таймаут или ответ не 2xx
// логируются и больше ни на что не влияют. Повторов нет.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

const defaultTimeout = 3 * time.Second

// Event — тело уведомления.
type Event struct {
	RunID uuid.UUID       `json:"pipeline_run_uuid"`
	State domain.RunState `json:"state"`
}

// Notifier — отправитель уведомлений.
//
// У каждого callback_url своя очередь и одна горутина-отправитель,
// поэтому уведомления приходят в порядке вызовов Notify. Медленный
// получатель не задерживает уведомления для других адресов.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string][]Event
	wg      sync.WaitGroup
}

// Config — конфигурация Notifier.
type Config struct {
	// Client — HTTP клиент (default: новый клиент без общего таймаута).
	Client *http.Client

	// Timeout — таймаут одного запроса (default: 3s).
	Timeout time.Duration

	Logger *slog.Logger
}

// New создаёт Notifier.
func New(cfg Config) *Notifier {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:  client,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string][]Event),
	}
}

// Notify ставит events в очередь callbackURL и сразу возвращается.
// Уведомления одного адреса отправляются строго по очереди, в том числе
// между разными вызовами Notify. Отмена ctx не прерывает отправку:
// переход уже зафиксирован.
func (n *Notifier) Notify(ctx context.Context, callbackURL string, events []Event) {
	if callbackURL == "" || len(events) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	queued, active := n.pending[callbackURL]
	n.pending[callbackURL] = append(queued, events...)
	if active {
		return // отправитель адреса уже работает и заберёт новые события
	}

	n.wg.Add(1)
	go n.drain(context.WithoutCancel(ctx), callbackURL)
}

// drain отправляет очередь callbackURL, пока она не опустеет.
// Ключ pending существует, пока работает отправитель адреса.
func (n *Notifier) drain(ctx context.Context, callbackURL string) {
	defer n.wg.Done()

	for {
		n.mu.Lock()
		batch := n.pending[callbackURL]
		if len(batch) == 0 {
			delete(n.pending, callbackURL)
			n.mu.Unlock()
			return
		}
		n.pending[callbackURL] = nil
		n.mu.Unlock()

		for _, ev := range batch {
			err := n.Send(ctx, callbackURL, ev)
			telemetry.Callbacks.WithLabelValues(telemetry.Outcome(err)).Inc()
			if err != nil {
				n.logger.Warn("callback failed",
					"run_id", ev.RunID,
					"state", ev.State,
					"callback_url", callbackURL,
					"error", err,
				)
			}
		}
	}
}

// Send синхронно отправляет одно уведомление.
func (n *Notifier) Send(ctx context.Context, callbackURL string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback responded %d", resp.StatusCode)
	}
	return nil
}

// Wait ждёт, пока все очереди не опустеют (для остановки и тестов).
func (n *Notifier) Wait() {
	n.wg.Wait()
}
