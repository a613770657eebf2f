// Package service implements the business logic for the block syncing
// pipeline.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/blocksync/blocksync/pkg/service/blockqueue"
)

const defaultPollInterval = 250 * time.Millisecond

// BlockHandler applies the pipeline's domain logic to one block. The
// returned continuation is the cursor to resume the upstream source
// from after this block; an empty continuation leaves the worker's
// cursor unchanged.
type BlockHandler func(ctx context.Context, block blockqueue.Block) (continuation string, err error)

// WorkerService drains one category's queue, applies the block handler
// to each retrieved block, and tracks a continuation cursor so the
// pipeline can resume the upstream source after a restart.
type WorkerService interface {
	Run(ctx context.Context)
	Snapshot() blockqueue.WorkerSnapshot
	Restore(s blockqueue.WorkerSnapshot)
}

// WorkerServiceConfig contains the configuration for a worker.
type WorkerServiceConfig struct {
	Queue    blockqueue.Queue
	Category blockqueue.Category
	Handler  BlockHandler
	Log      log.Logger
	// PollInterval bounds how often an idle worker re-checks the
	// queue. Defaults to 250ms.
	PollInterval time.Duration
}

// NewWorkerService returns a WorkerService.
func NewWorkerService(conf WorkerServiceConfig) WorkerService {
	return newWorkerService(conf)
}

func newWorkerService(conf WorkerServiceConfig) *workerService {
	poll := conf.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &workerService{
		q:        conf.Queue,
		category: conf.Category,
		handler:  conf.Handler,
		log:      conf.Log,
		poll:     poll,
	}
}

type workerService struct {
	q        blockqueue.Queue
	category blockqueue.Category
	handler  BlockHandler
	log      log.Logger
	poll     time.Duration

	mu           sync.Mutex
	current      blockqueue.Block
	continuation string
}

// Run drains the worker's category until ctx is done. Queue errors are
// logged and retried after the poll interval; an empty queue simply
// waits for more blocks.
func (w *workerService) Run(ctx context.Context) {
	_ = w.log.Log("LEVEL", "INFO", "MESSAGE", fmt.Sprintf("Worker draining category %s", w.category))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		block, err := w.q.Get(ctx, w.category)
		if err != nil {
			_ = w.log.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
			w.wait(ctx)
			continue
		}
		if block == nil {
			w.wait(ctx)
			continue
		}
		w.process(ctx, block)
	}
}

func (w *workerService) process(ctx context.Context, block blockqueue.Block) {
	w.mu.Lock()
	w.current = block
	w.mu.Unlock()

	continuation, err := w.handler(ctx, block)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = nil
	if err != nil {
		// The block is already consumed from the queue. Not advancing
		// the continuation means a restart re-syncs it from the
		// upstream source rather than losing it.
		_ = w.log.Log("LEVEL", "ERROR", "MESSAGE", errors.Wrap(err, "block handler failed").Error())
		return
	}
	if continuation != "" {
		w.continuation = continuation
	}
}

func (w *workerService) wait(ctx context.Context) {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Snapshot reports the worker's in-flight state for a backup.
func (w *workerService) Snapshot() blockqueue.WorkerSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return blockqueue.WorkerSnapshot{
		Block:        w.current,
		Continuation: w.continuation,
	}
}

// Restore reseeds the worker's continuation cursor from a backup
// snapshot. The snapshot's in-flight block is requeued by the
// pipeline, not here.
func (w *workerService) Restore(s blockqueue.WorkerSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.continuation = s.Continuation
}
