package blockqueue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocksync/blocksync/pkg/service/blockqueue"
)

func TestBackupRoundTrip(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue()
	ctx := testContext(t)

	b1 := blockqueue.Block(`{"id":1}`)
	b2 := blockqueue.Block(`{"id":2}`)
	require.NoError(t, q.Insert(ctx, b1, blockqueue.Blocks), "Insert should not error.")
	require.NoError(t, q.Insert(ctx, b2, blockqueue.Blocks), "Insert should not error.")

	workers := []blockqueue.WorkerSnapshot{
		{Block: blockqueue.Block(`{"id":0}`), Continuation: "cursor-3"},
		{Block: nil, Continuation: "cursor-5"},
	}
	require.NoError(t, q.Backup(ctx, blockqueue.Blocks, workers), "Backup should not error.")

	records, err := q.LoadBackup(ctx)
	require.NoError(t, err, "LoadBackup should not error.")
	record, ok := records[blockqueue.Blocks.BackupKey()]
	require.True(t, ok, "Backup record should be keyed by BLOCKS-backup.")
	assert.Equal(t, []blockqueue.Block{b1, b2}, record.Blocks, "Backed-up blocks should match the queue, oldest first.")
	require.Len(t, record.Workers, 2, "Both worker snapshots should survive the round trip.")
	assert.JSONEq(t, `{"id":0}`, string(record.Workers[0].Block), "In-flight block should survive the round trip.")
	assert.Equal(t, "cursor-3", record.Workers[0].Continuation, "First continuation should survive.")
	assert.Nil(t, record.Workers[1].Block, "Idle worker should have no block.")
	assert.Equal(t, "cursor-5", record.Workers[1].Continuation, "Second continuation should survive.")
}

func TestBackupSingleWorkerScenario(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue()
	ctx := testContext(t)

	b2 := blockqueue.Block(`{"id":2}`)
	require.NoError(t, q.Insert(ctx, b2, blockqueue.Blocks), "Insert should not error.")

	workers := []blockqueue.WorkerSnapshot{
		{Block: b2, Continuation: "cursor-7"},
	}
	require.NoError(t, q.Backup(ctx, blockqueue.Blocks, workers), "Backup should not error.")

	records, err := q.LoadBackup(ctx)
	require.NoError(t, err, "LoadBackup should not error.")
	record, ok := records["BLOCKS-backup"]
	require.True(t, ok, "Record should be stored under BLOCKS-backup.")
	assert.Equal(t, []blockqueue.Block{b2}, record.Blocks, "Queue contents should be captured.")
	require.Len(t, record.Workers, 1, "Single worker snapshot should be captured.")
	assert.JSONEq(t, `{"id":2}`, string(record.Workers[0].Block), "Worker block should be captured.")
	assert.Equal(t, "cursor-7", record.Workers[0].Continuation, "Continuation cursor should be captured.")
}

func TestBackupOverwrites(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue()
	ctx := testContext(t)

	require.NoError(t, q.Insert(ctx, blockqueue.Block(`{"id":1}`), blockqueue.Blocks), "Insert should not error.")
	require.NoError(t, q.Backup(ctx, blockqueue.Blocks, nil), "First backup should not error.")

	_, err := q.Get(ctx, blockqueue.Blocks)
	require.NoError(t, err, "Get should not error.")
	workers := []blockqueue.WorkerSnapshot{{Continuation: "cursor-9"}}
	require.NoError(t, q.Backup(ctx, blockqueue.Blocks, workers), "Second backup should not error.")

	records, err := q.LoadBackup(ctx)
	require.NoError(t, err, "LoadBackup should not error.")
	record := records[blockqueue.Blocks.BackupKey()]
	assert.Empty(t, record.Blocks, "Later backup should fully replace the earlier record.")
	require.Len(t, record.Workers, 1, "Later worker snapshots should replace earlier ones.")
	assert.Equal(t, "cursor-9", record.Workers[0].Continuation, "Continuation from the later backup should win.")
}

func TestBackupIsolation(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue()
	ctx := testContext(t)

	require.NoError(t, q.Insert(ctx, blockqueue.Block(`{"id":1}`), blockqueue.Blocks), "Insert should not error.")
	require.NoError(t, q.Insert(ctx, blockqueue.Block(`{"h":"0x1"}`), blockqueue.Transactions), "Insert should not error.")
	require.NoError(t, q.Backup(ctx, blockqueue.Blocks, nil), "Backup of BLOCKS should not error.")
	require.NoError(t, q.Backup(ctx, blockqueue.Transactions, nil), "Backup of TRANSACTIONS should not error.")

	records, err := q.LoadBackup(ctx)
	require.NoError(t, err, "LoadBackup should not error.")
	require.Len(t, records, 2, "Each category should have its own record.")
	assert.Equal(t, []blockqueue.Block{blockqueue.Block(`{"id":1}`)}, records["BLOCKS-backup"].Blocks, "BLOCKS record should only hold BLOCKS data.")
	assert.Equal(t, []blockqueue.Block{blockqueue.Block(`{"h":"0x1"}`)}, records["TRANSACTIONS-backup"].Blocks, "TRANSACTIONS record should only hold TRANSACTIONS data.")
}

func TestLoadBackupEmpty(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue()
	ctx := testContext(t)

	records, err := q.LoadBackup(ctx)
	require.NoError(t, err, "LoadBackup with no stored records should not error.")
	assert.Empty(t, records, "No records should be returned when nothing was backed up.")
}

func TestLoadBackupMalformedRecord(t *testing.T) {
	t.Parallel()
	q, s := newTestQueue()
	ctx := testContext(t)

	require.NoError(t, s.HashSet(ctx, "backups", "BLOCKS-backup", []byte("{not json")), "Seeding the mock should not error.")
	_, err := q.LoadBackup(ctx)
	require.Error(t, err, "Malformed stored record should surface an error, not be dropped.")
	assert.Contains(t, err.Error(), "BLOCKS-backup", "Error should name the offending record.")
}

func TestBackupSurfacesOutage(t *testing.T) {
	t.Parallel()
	q, s := newTestQueue()
	ctx := testContext(t)

	s.FailNext("HashGetAll", 100)
	_, err := q.LoadBackup(ctx)
	require.Error(t, err, "LoadBackup must report an outage instead of returning nothing.")

	s.FailNext("HashSet", 100)
	err = q.Backup(ctx, blockqueue.Blocks, nil)
	require.Error(t, err, "Backup must surface a terminal error once the retry budget is spent.")
	assert.Equal(t, 5, s.Calls["HashSet"], "Backup write should stop after the bounded attempts.")
	assert.Equal(t, 1, s.Calls["ListRange"], "Retrying the record write should not re-read the queue.")
}
