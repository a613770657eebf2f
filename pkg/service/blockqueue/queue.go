package blockqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/blocksync/blocksync/pkg/service/store"
)

// Retry budget for store communication failures: an initial attempt
// plus maxRetries retries with exponential backoff. Once exhausted the
// last store error is surfaced to the caller.
const (
	maxRetries  = 4
	baseBackoff = 50 * time.Millisecond
	capBackoff  = 2 * time.Second
)

// ErrInvalidCategory is returned for operations on a category outside
// the closed set.
var ErrInvalidCategory = errors.New("invalid category")

// Ensure queue implements Queue.
var _ Queue = (*queue)(nil)

type queue struct {
	s store.Store
	l log.Logger

	// Serializes same-category operations so a backup observes a
	// stable queue between reading the list and writing the record.
	// Cross-process consistency still rests on the store's per-key
	// atomicity; see Backup.
	mus map[Category]*sync.Mutex
}

// New returns a Queue backed by s.
func New(s store.Store, l log.Logger) Queue {
	mus := make(map[Category]*sync.Mutex, len(Categories()))
	for _, c := range Categories() {
		mus[c] = new(sync.Mutex)
	}
	return &queue{s: s, l: l, mus: mus}
}

// withRetry runs fn under the package retry budget. Connectivity
// failures are retried with exponential backoff; malformed-payload
// errors are surfaced immediately since corruption is not transient.
func (q *queue) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(maxRetries, retry.WithCappedDuration(capBackoff, retry.NewExponential(baseBackoff)))
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if store.IsCorrupt(err) {
			return err
		}
		_ = q.l.Log("LEVEL", "WARN", "MESSAGE", fmt.Sprintf("Store error during %s (attempt %d): %s", op, attempt, err))
		return retry.RetryableError(err)
	})
	return errors.Wrapf(err, "%s failed after %d attempts", op, attempt)
}

// Insert appends block as the newest entry of category's queue.
//
// Insertion order across sequential calls from one caller is preserved
// as FIFO retrieval order.
func (q *queue) Insert(ctx context.Context, block Block, category Category) error {
	if !category.Valid() {
		return errors.Wrapf(ErrInvalidCategory, "category %q", category)
	}
	mu := q.mus[category]
	mu.Lock()
	defer mu.Unlock()

	return q.withRetry(ctx, "insert", func(ctx context.Context) error {
		return q.s.ListPush(ctx, category.queueKey(), block)
	})
}

// Get atomically removes and returns the oldest remaining block for
// category, or (nil, nil) if the queue is empty.
//
// Each stored block is returned to at most one caller; the store's pop
// primitive provides the atomicity.
func (q *queue) Get(ctx context.Context, category Category) (Block, error) {
	if !category.Valid() {
		return nil, errors.Wrapf(ErrInvalidCategory, "category %q", category)
	}
	mu := q.mus[category]
	mu.Lock()
	defer mu.Unlock()

	var data []byte
	err := q.withRetry(ctx, "get", func(ctx context.Context) error {
		var err error
		data, err = q.s.ListPop(ctx, category.queueKey())
		return err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return Block(data), nil
}

// All returns a non-destructive snapshot of category's current queue
// contents, oldest first.
func (q *queue) All(ctx context.Context, category Category) ([]Block, error) {
	if !category.Valid() {
		return nil, errors.Wrapf(ErrInvalidCategory, "category %q", category)
	}
	mu := q.mus[category]
	mu.Lock()
	defer mu.Unlock()

	return q.all(ctx, category)
}

// all reads the queue snapshot without taking the category lock; the
// caller must hold it.
func (q *queue) all(ctx context.Context, category Category) ([]Block, error) {
	var raw [][]byte
	err := q.withRetry(ctx, "getAllBlocks", func(ctx context.Context) error {
		var err error
		raw, err = q.s.ListRange(ctx, category.queueKey())
		return err
	})
	if err != nil {
		return nil, err
	}

	// Stored head-first (newest first); reverse to oldest first.
	blocks := make([]Block, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		blocks = append(blocks, Block(raw[i]))
	}
	return blocks, nil
}
