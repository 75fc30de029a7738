package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FIFO(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()

	first, second := NewJob(uuid.New()), NewJob(uuid.New())
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))
	assert.Equal(t, 2, q.Len())

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, d.Job.RunID)
	assert.False(t, d.Redelivered)
	require.NoError(t, d.Ack())

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, d.Job.RunID)
}

func TestMemory_NackRequeue(t *testing.T) {
	q := NewMemory(4)
	ctx := context.Background()
	job := NewJob(uuid.New())
	require.NoError(t, q.Enqueue(ctx, job))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Nack(true))
	// Повторное подтверждение той же доставки игнорируется
	require.NoError(t, d.Nack(true))
	assert.Equal(t, 1, q.Len())

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, d.Job.ID)
	assert.True(t, d.Redelivered)

	require.NoError(t, d.Nack(false))
	assert.Equal(t, 0, q.Len())
}

func TestMemory_DequeueCancelled(t *testing.T) {
	q := NewMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_Close(t *testing.T) {
	q := NewMemory(1)
	q.Close()
	q.Close()

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), NewJob(uuid.New())), ErrClosed)
}
