package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/blocksync/blocksync/pkg/internal/storemock"
	"github.com/blocksync/blocksync/pkg/service"
	"github.com/blocksync/blocksync/pkg/service/blockqueue"
)

func TestWorkerDrainsQueue(t *testing.T) {
	t.Parallel()

	var (
		count = 3
		q     = blockqueue.New(storemock.New(), log.NewNopLogger())

		// Use a weighted semaphore in place of a sync.WaitGroup to not
		// have the test block forever in the event of an error.
		sema = semaphore.NewWeighted(int64(count))

		mu   sync.Mutex
		seen []blockqueue.Block
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sema.Acquire(ctx, int64(count)), "Semaphore acquisition should happen.")

	handler := func(_ context.Context, block blockqueue.Block) (string, error) {
		mu.Lock()
		seen = append(seen, block)
		mu.Unlock()
		sema.Release(1)
		return "", nil
	}
	worker := service.NewWorkerService(service.WorkerServiceConfig{
		Queue:        q,
		Category:     blockqueue.Blocks,
		Handler:      handler,
		Log:          log.NewNopLogger(),
		PollInterval: 10 * time.Millisecond,
	})

	inserted := []blockqueue.Block{
		blockqueue.Block(`{"n":1}`),
		blockqueue.Block(`{"n":2}`),
		blockqueue.Block(`{"n":3}`),
	}
	for _, b := range inserted {
		require.NoError(t, q.Insert(ctx, b, blockqueue.Blocks), "Insert should not error.")
	}

	go worker.Run(ctx)

	require.NoError(t, sema.Acquire(ctx, int64(count)), "All blocks should be processed before the deadline.")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, inserted, seen, "Blocks should be processed in FIFO order.")
}

func TestWorkerContinuation(t *testing.T) {
	t.Parallel()

	q := blockqueue.New(storemock.New(), log.NewNopLogger())
	sema := semaphore.NewWeighted(2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sema.Acquire(ctx, 2), "Semaphore acquisition should happen.")

	cursors := []string{"cursor-1", ""}
	var i int
	handler := func(_ context.Context, _ blockqueue.Block) (string, error) {
		defer sema.Release(1)
		c := cursors[i]
		i++
		return c, nil
	}
	worker := service.NewWorkerService(service.WorkerServiceConfig{
		Queue:        q,
		Category:     blockqueue.Blocks,
		Handler:      handler,
		Log:          log.NewNopLogger(),
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, q.Insert(ctx, blockqueue.Block(`{"n":1}`), blockqueue.Blocks), "Insert should not error.")
	require.NoError(t, q.Insert(ctx, blockqueue.Block(`{"n":2}`), blockqueue.Blocks), "Insert should not error.")

	go worker.Run(ctx)
	require.NoError(t, sema.Acquire(ctx, 2), "Both blocks should be processed before the deadline.")

	// The cursor is committed just after the handler returns, so poll
	// briefly instead of snapshotting immediately.
	var snapshot blockqueue.WorkerSnapshot
	deadline := time.Now().Add(time.Second)
	for {
		snapshot = worker.Snapshot()
		if snapshot.Block == nil && snapshot.Continuation != "" {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, "cursor-1", snapshot.Continuation, "An empty continuation should leave the cursor unchanged.")
	assert.Nil(t, snapshot.Block, "Idle worker should snapshot no in-flight block.")
}

func TestWorkerSnapshotRestore(t *testing.T) {
	t.Parallel()

	worker := service.NewWorkerService(service.WorkerServiceConfig{
		Queue:    blockqueue.New(storemock.New(), log.NewNopLogger()),
		Category: blockqueue.Blocks,
		Handler:  func(context.Context, blockqueue.Block) (string, error) { return "", nil },
		Log:      log.NewNopLogger(),
	})

	worker.Restore(blockqueue.WorkerSnapshot{Continuation: "cursor-42"})
	snapshot := worker.Snapshot()
	assert.Equal(t, "cursor-42", snapshot.Continuation, "Restore should reseed the continuation cursor.")
	assert.Nil(t, snapshot.Block, "Restore should not reintroduce an in-flight block.")
}
