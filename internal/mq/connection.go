package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNoChannel — канал ещё не открыт или соединение потеряно.
var ErrNoChannel = errors.New("no channel available")

const (
	defaultHeartbeat   = 10 * time.Second
	defaultDialTimeout = 30 * time.Second
)

// ConnectionConfig — параметры соединения с RabbitMQ.
type ConnectionConfig struct {
	URL string

	// Name — имя соединения в management UI (например, "pipeworks-worker").
	Name string

	// Heartbeat — интервал heartbeat (default: 10s).
	Heartbeat time.Duration

	// DialTimeout — сколько ждать брокер при старте (default: 30s).
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Connection — AMQP соединение с одним каналом и автоматическим reconnect.
//
// Закрытие канала брокером (ошибка протокола) переоткрывает только канал,
// разрыв соединения — соединение целиком. В обоих случаях подписчики
// получают сигнал через ReconnectNotify и переподписываются.
type Connection struct {
	cfg    ConnectionConfig
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	reconnectCh chan struct{}

	// newBackOff — политика задержек между попытками переподключения.
	newBackOff func() backoff.BackOff
}

// NewConnection подключается к RabbitMQ. Пока брокер недоступен,
// попытки повторяются с экспоненциальной задержкой в пределах DialTimeout.
func NewConnection(ctx context.Context, cfg ConnectionConfig) (*Connection, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	c := &Connection{
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "amqp", "connection", cfg.Name),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
		newBackOff:  reconnectBackOff,
	}

	dial := backoff.NewExponentialBackOff()
	dial.MaxElapsedTime = cfg.DialTimeout
	err := backoff.RetryNotify(c.connect, backoff.WithContext(dial, ctx), func(err error, d time.Duration) {
		c.logger.Warn("RabbitMQ not reachable, retrying", "error", err, "delay", d)
	})
	if err != nil {
		return nil, err
	}

	go c.watch()
	return c, nil
}

// reconnectBackOff — экспоненциальная задержка 1s..30s без ограничения по времени.
func reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// connect открывает соединение и канал.
func (c *Connection) connect() error {
	props := amqp.NewConnectionProperties()
	if c.cfg.Name != "" {
		props.SetClientConnectionName(c.cfg.Name)
	}

	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Heartbeat:  c.cfg.Heartbeat,
		Properties: props,
		Dial:       amqp.DefaultDial(c.cfg.DialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// openChannel переоткрывает канал на живом соединении.
func (c *Connection) openChannel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return amqp.ErrClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	c.channel = ch
	return nil
}

// watch следит за соединением и каналом до явного Close.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn, ch := c.conn, c.channel
		c.mu.RUnlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-connClosed:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}
			c.restore(c.connect)
		case err := <-chClosed:
			if conn.IsClosed() {
				c.restore(c.connect)
				continue
			}
			c.logger.Warn("channel closed by broker", "error", err)
			c.restore(func() error {
				if err := c.openChannel(); err != nil {
					// Соединение умерло следом за каналом
					return c.connect()
				}
				return nil
			})
		}
	}
}

// restore повторяет attempt, пока он не удастся или соединение не закроют явно.
func (c *Connection) restore(attempt func() error) {
	b := c.newBackOff()

	for {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.logger.Error("giving up reconnecting to RabbitMQ")
			return
		}

		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}

		if err := attempt(); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "delay", delay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return
	}
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигналит после восстановления канала или соединения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Done закрывается при явном Close.
func (c *Connection) Done() <-chan struct{} {
	return c.closedCh
}

// Close закрывает канал и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected сообщает, открыты ли соединение и канал (для /healthz).
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn != nil && !c.conn.IsClosed() &&
		c.channel != nil && !c.channel.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}
