package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Pipeworks/internal/queue"
)

// JobQueue — queue.Queue поверх RabbitMQ.
//
// Enqueue публикует persistent-сообщение в pipeworks.runs,
// Dequeue получает сообщение из runs.execute с ручным подтверждением.
// Nack(false) отправляет сообщение в dlq.runs.
type JobQueue struct {
	publisher *Publisher
	consumer  *Consumer
	logger    *slog.Logger
}

var _ queue.Queue = (*JobQueue)(nil)

// JobQueueConfig — конфигурация JobQueue.
type JobQueueConfig struct {
	// Prefetch — сообщений без подтверждения на одного получателя (default: 1).
	Prefetch int

	Logger *slog.Logger
}

// NewJobQueue создаёт JobQueue на соединении conn.
// Топология должна быть объявлена заранее (SetupTopology).
func NewJobQueue(conn *Connection, cfg JobQueueConfig) *JobQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueue{
		publisher: NewPublisher(conn, logger),
		consumer: NewConsumer(conn, ConsumerConfig{
			Queue:    QueueRunsExecute,
			Prefetch: cfg.Prefetch,
			Logger:   logger,
		}),
		logger: logger,
	}
}

// Enqueue публикует задачу.
func (q *JobQueue) Enqueue(ctx context.Context, job queue.Job) error {
	return q.publisher.PublishJob(ctx, job)
}

// Dequeue блокируется до следующей задачи.
// Нераспознанные сообщения сразу уходят в DLQ.
func (q *JobQueue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	for {
		raw, err := q.consumer.Next(ctx)
		if err != nil {
			return nil, err
		}

		job, err := decodeJob(raw.Body)
		if err != nil {
			q.logger.Error("failed to decode job",
				"queue", QueueRunsExecute,
				"message_id", raw.MessageId,
				"error", err,
			)
			// Некорректное сообщение — отправляем в DLQ
			if err := raw.Nack(false, false); err != nil {
				q.logger.Warn("failed to reject message", "error", err)
			}
			continue
		}

		q.logger.Debug("received job",
			"job_id", job.ID,
			"run_id", job.RunID,
			"redelivered", raw.Redelivered,
		)
		return newDelivery(job, raw), nil
	}
}

func newDelivery(job queue.Job, raw amqp.Delivery) *queue.Delivery {
	return queue.NewDelivery(job, raw.Redelivered,
		func() error { return raw.Ack(false) },
		func(requeue bool) error { return raw.Nack(false, requeue) },
	)
}

// decodeJob извлекает задачу из тела сообщения run.execute.
func decodeJob(body []byte) (queue.Job, error) {
	msg, err := DecodeMessage(body)
	if err != nil {
		return queue.Job{}, err
	}
	if msg.Type != MessageTypeRunExecute {
		return queue.Job{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	job, err := ParsePayload[queue.Job](msg)
	if err != nil {
		return queue.Job{}, err
	}
	if job.RunID == uuid.Nil {
		return queue.Job{}, fmt.Errorf("message %s has no run id", msg.ID)
	}
	return job, nil
}
