package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Contract(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemory_ConcurrentSequences(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	p := testPipeline(fixedNow)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreatePipeline(ctx, p)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
				seq, err := tx.NextRunSequence(ctx, p.ID)
				if err != nil {
					return err
				}
				return tx.CreateRun(ctx, &domain.PipelineRun{ID: uuid.New(), PipelineID: p.ID, Sequence: seq})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		runs, err := tx.ListRuns(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, runs, 20)
		for i, r := range runs {
			assert.Equal(t, i+1, r.Sequence)
		}
		return nil
	}))
}

func TestMemory_DuplicateSequenceRejected(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	p := testPipeline(fixedNow)

	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.CreatePipeline(ctx, p))
		require.NoError(t, tx.CreateRun(ctx, &domain.PipelineRun{ID: uuid.New(), PipelineID: p.ID, Sequence: 1}))
		return tx.CreateRun(ctx, &domain.PipelineRun{ID: uuid.New(), PipelineID: p.ID, Sequence: 1})
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemory().InTx(ctx, func(context.Context, Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
