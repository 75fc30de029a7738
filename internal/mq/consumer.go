package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer получает сообщения из очереди RabbitMQ по одному.
//
// Подписка создаётся при первом вызове Next и пересоздаётся
// после переподключения соединения.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	prefetch int

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	Logger *slog.Logger
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		prefetch: prefetch,
	}
}

// Next блокируется до следующего сообщения или отмены ctx.
// Подтверждать сообщение должен вызывающий.
func (c *Consumer) Next(ctx context.Context) (amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.deliveries == nil {
			deliveries, err := c.setupConsume()
			if err != nil {
				c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
				if err := c.waitReconnect(ctx); err != nil {
					return amqp.Delivery{}, err
				}
				continue
			}
			c.deliveries = deliveries
			c.logger.Info("consumer started", "queue", c.queue)
		}

		select {
		case <-ctx.Done():
			return amqp.Delivery{}, ctx.Err()
		case <-c.conn.Done():
			return amqp.Delivery{}, ErrNoChannel
		case raw, ok := <-c.deliveries:
			if ok {
				return raw, nil
			}
			// Канал закрыт, ждём переподключения
			c.deliveries = nil
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			if err := c.waitReconnect(ctx); err != nil {
				return amqp.Delivery{}, err
			}
		}
	}
}

func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.Done():
		return ErrNoChannel
	case <-c.conn.ReconnectNotify():
		c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
		return nil
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	// Устанавливаем prefetch
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (мы ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// DecodeMessage парсит тело сообщения.
func DecodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload после Unmarshal — map, поэтому проходим через JSON ещё раз
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
