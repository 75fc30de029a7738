// Package queue описывает очередь задач "выполнить run".
//
// Доставка — at-least-once: задача может прийти повторно, поэтому
// получатель обязан быть идемпотентным (см. worker).
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed — очередь закрыта.
var ErrClosed = errors.New("queue closed")

// Job — задача на выполнение pipeline run.
type Job struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob создаёт задачу для run.
func NewJob(runID uuid.UUID) Job {
	return Job{ID: uuid.New(), RunID: runID, EnqueuedAt: time.Now().UTC()}
}

// Delivery — полученная задача, которую нужно подтвердить.
type Delivery struct {
	Job Job

	// Redelivered — задача уже доставлялась раньше.
	Redelivered bool

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery создаёт Delivery с функциями подтверждения.
func NewDelivery(job Job, redelivered bool, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{Job: job, Redelivered: redelivered, ack: ack, nack: nack}
}

// Ack подтверждает обработку.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack отклоняет задачу; requeue возвращает её в очередь.
func (d *Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Queue — очередь задач.
type Queue interface {
	// Enqueue публикует задачу.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue блокируется до появления задачи или отмены ctx.
	Dequeue(ctx context.Context) (*Delivery, error)
}

// Memory — очередь в памяти процесса (для тестов и одиночного режима).
type Memory struct {
	ch        chan memItem
	closeOnce sync.Once
	closed    chan struct{}
}

type memItem struct {
	job         Job
	redelivered bool
}

// NewMemory создаёт очередь вместимостью size.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1024
	}
	return &Memory{
		ch:     make(chan memItem, size),
		closed: make(chan struct{}),
	}
}

// Enqueue кладёт задачу в очередь; блокируется, если очередь заполнена.
func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	return m.put(ctx, memItem{job: job})
}

func (m *Memory) put(ctx context.Context, item memItem) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- item:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue забирает задачу. Nack(true) возвращает её в конец очереди.
func (m *Memory) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case item := <-m.ch:
		var once sync.Once
		settle := func(fn func() error) error {
			var err error
			once.Do(func() { err = fn() })
			return err
		}
		return NewDelivery(item.job, item.redelivered,
			func() error { return settle(func() error { return nil }) },
			func(requeue bool) error {
				return settle(func() error {
					if !requeue {
						return nil
					}
					return m.put(context.Background(), memItem{job: item.job, redelivered: true})
				})
			},
		), nil
	case <-m.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len возвращает количество задач в очереди.
func (m *Memory) Len() int {
	return len(m.ch)
}

// Close закрывает очередь; ожидающие Dequeue получают ErrClosed.
func (m *Memory) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}
