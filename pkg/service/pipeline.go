package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/blocksync/blocksync/pkg/service/blockqueue"
)

const defaultBackupInterval = 30 * time.Second

// Pipeline ties queues and workers together: it restores persisted
// state at startup and periodically backs up every category's queue
// contents and worker cursors.
type Pipeline struct {
	q        blockqueue.Queue
	workers  map[blockqueue.Category][]WorkerService
	log      log.Logger
	interval time.Duration
}

// PipelineConfig contains the configuration for a Pipeline.
type PipelineConfig struct {
	Queue   blockqueue.Queue
	Workers map[blockqueue.Category][]WorkerService
	Log     log.Logger
	// Interval between periodic backups. Defaults to 30s.
	Interval time.Duration
}

// NewPipeline returns a Pipeline.
func NewPipeline(conf PipelineConfig) *Pipeline {
	interval := conf.Interval
	if interval <= 0 {
		interval = defaultBackupInterval
	}
	return &Pipeline{
		q:        conf.Queue,
		workers:  conf.Workers,
		log:      conf.Log,
		interval: interval,
	}
}

// Restore reloads the last backup and reseeds workers and queues.
//
// Worker continuation cursors are restored positionally. In-flight
// blocks from worker snapshots were already consumed from the live
// list, so they are always reinserted. The record's queue contents are
// reseeded only when the category's live list is empty: a list that
// survived the restart is more current than the backup record, and
// reseeding on top of it would process every surviving block twice.
//
// When the live list is empty, in-flight blocks are reinserted ahead
// of the record's queue contents so they are retrieved first. With a
// surviving list they land behind its existing entries instead.
func (p *Pipeline) Restore(ctx context.Context) error {
	records, err := p.q.LoadBackup(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to load backup")
	}

	for _, category := range blockqueue.Categories() {
		record, ok := records[category.BackupKey()]
		if !ok {
			continue
		}

		live, err := p.q.All(ctx, category)
		if err != nil {
			return errors.Wrapf(err, "unable to inspect live queue for category %s", category)
		}

		workers := p.workers[category]
		for i, ws := range record.Workers {
			if i < len(workers) {
				workers[i].Restore(ws)
			}
			if ws.Block != nil {
				if err := p.q.Insert(ctx, ws.Block, category); err != nil {
					return errors.Wrapf(err, "unable to requeue in-flight block for category %s", category)
				}
			}
		}

		if len(live) > 0 {
			_ = p.log.Log("LEVEL", "INFO", "MESSAGE", fmt.Sprintf("Keeping %d surviving blocks for category %s; skipping record reseed", len(live), category))
			continue
		}
		for _, b := range record.Blocks {
			if err := p.q.Insert(ctx, b, category); err != nil {
				return errors.Wrapf(err, "unable to reseed queue for category %s", category)
			}
		}
		_ = p.log.Log("LEVEL", "INFO", "MESSAGE", fmt.Sprintf("Restored %d blocks and %d worker snapshots for category %s", len(record.Blocks), len(record.Workers), category))
	}
	return nil
}

// Run backs up every category on the configured interval until ctx is
// done, then takes one final backup so a clean shutdown loses nothing.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.backupAll(ctx)
		case <-ctx.Done():
			// The run context is already canceled; the shutdown backup
			// gets a short one of its own.
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			p.backupAll(sctx)
			cancel()
			return
		}
	}
}

func (p *Pipeline) backupAll(ctx context.Context) {
	// Every category is backed up, not just the ones with workers: a
	// worker-less category's queue contents still need to survive a
	// restart.
	for _, category := range blockqueue.Categories() {
		workers := p.workers[category]
		snapshots := make([]blockqueue.WorkerSnapshot, 0, len(workers))
		for _, w := range workers {
			snapshots = append(snapshots, w.Snapshot())
		}
		if err := p.q.Backup(ctx, category, snapshots); err != nil {
			_ = p.log.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
		}
	}
}
