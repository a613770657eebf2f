// Package blockqueue implements durable per-category FIFO queues over
// an external key-value store, together with the backup/restore
// protocol the pipeline uses to survive restarts.
package blockqueue

import (
	"context"
	"encoding/json"
)

// Block is an opaque, serializable unit of work. Blocks carry no
// identity beyond their serialized content, so duplicate values are
// distinct queue entries.
type Block = json.RawMessage

// WorkerSnapshot captures one worker's in-flight state at backup time:
// the block it is currently processing (nil when idle) and its
// continuation cursor into the upstream source.
type WorkerSnapshot struct {
	Block        Block  `json:"block"`
	Continuation string `json:"continuation"`
}

// UnmarshalJSON normalizes a JSON null block to a nil Block so an idle
// worker round-trips as idle.
func (w *WorkerSnapshot) UnmarshalJSON(data []byte) error {
	type alias WorkerSnapshot
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if string(a.Block) == "null" {
		a.Block = nil
	}
	*w = WorkerSnapshot(a)
	return nil
}

// BackupRecord is a point-in-time snapshot of one category: the worker
// snapshots supplied to Backup and the queue contents observed during
// the same call, oldest first.
type BackupRecord struct {
	Workers []WorkerSnapshot `json:"workers"`
	Blocks  []Block          `json:"blocks"`
}

// Queue wraps the FIFO and backup operations for category-scoped block
// queues.
//
// Insert appends a block as the newest entry of the category's queue;
// Get removes and returns the oldest. A Get on an empty queue returns
// (nil, nil): an empty queue is a normal outcome, distinct from a
// store failure, which is always reported as a non-nil error.
type Queue interface {
	Insert(ctx context.Context, block Block, category Category) error
	Get(ctx context.Context, category Category) (Block, error)
	All(ctx context.Context, category Category) ([]Block, error)
	Backup(ctx context.Context, category Category, workers []WorkerSnapshot) error
	LoadBackup(ctx context.Context) (map[string]BackupRecord, error)
}
