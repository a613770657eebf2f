package blockqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// backupsKey is the hash holding one serialized BackupRecord per
// category, under the field named by Category.BackupKey.
const backupsKey = "backups"

// Backup captures category's current queue contents together with the
// supplied worker snapshots and overwrites the category's backup
// record.
//
// The category lock is held for the whole call, so in-process inserts
// and retrievals cannot move the queue between the snapshot read and
// the record write. A different process mutating the same category can
// still make the written snapshot stale: the record reflects the queue
// as observed during this call, not at the instant the write lands.
//
// The record write is an idempotent overwrite, so a retried write
// never re-reads the queue.
func (q *queue) Backup(ctx context.Context, category Category, workers []WorkerSnapshot) error {
	if !category.Valid() {
		return errors.Wrapf(ErrInvalidCategory, "category %q", category)
	}
	mu := q.mus[category]
	mu.Lock()
	defer mu.Unlock()

	blocks, err := q.all(ctx, category)
	if err != nil {
		return errors.Wrap(err, "unable to snapshot queue for backup")
	}
	if workers == nil {
		workers = []WorkerSnapshot{}
	}

	record := BackupRecord{
		Workers: workers,
		Blocks:  blocks,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WithStack(err)
	}

	err = q.withRetry(ctx, "backup", func(ctx context.Context) error {
		return q.s.HashSet(ctx, backupsKey, category.BackupKey(), data)
	})
	if err != nil {
		return err
	}
	_ = q.l.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Backed up %d blocks and %d worker snapshots for category %s", len(record.Blocks), len(record.Workers), category))
	return nil
}

// LoadBackup reads every category backup record currently stored,
// keyed by Category.BackupKey.
//
// Called once at process start so the pipeline can reseed queues and
// worker cursors; the reseeding itself belongs to the pipeline, not to
// the queue.
func (q *queue) LoadBackup(ctx context.Context) (map[string]BackupRecord, error) {
	var raw map[string][]byte
	err := q.withRetry(ctx, "loadBackup", func(ctx context.Context) error {
		var err error
		raw, err = q.s.HashGetAll(ctx, backupsKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	records := make(map[string]BackupRecord, len(raw))
	for field, data := range raw {
		var r BackupRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, errors.Wrapf(err, "malformed backup record %q", field)
		}
		records[field] = r
	}
	return records, nil
}
