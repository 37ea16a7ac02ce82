package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"linkrelay/internal/batch"
	"linkrelay/internal/common"
	"linkrelay/internal/logging"
)

type fakeDir struct {
	known    map[int64]int
	added    []int64
	failWith error
}

func (d *fakeDir) AddUser(ctx context.Context, userID int64, name string) error {
	d.added = append(d.added, userID)
	d.known[userID] = 0
	return nil
}

func (d *fakeDir) IncrementDownloads(ctx context.Context, userID int64) error {
	if d.failWith != nil {
		return d.failWith
	}
	if _, ok := d.known[userID]; !ok {
		return common.ErrNotFound
	}
	d.known[userID]++
	return nil
}

func TestCounters(t *testing.T) {
	c := New()
	c.Uploaded()
	c.Uploaded()
	c.BatchFinished(batch.Report{Processed: 4, Succeeded: 2, Failed: 2, Skipped: 3})
	c.Broadcast()

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.VideosProcessed)
	assert.Equal(t, int64(2), s.Failed)
	assert.Equal(t, int64(1), s.Batches)
	assert.Equal(t, int64(3), s.Skipped)
	assert.Equal(t, int64(1), s.Broadcasts)
	assert.NotEmpty(t, s.Uptime)
}

func TestRecorder_KnownUser(t *testing.T) {
	dir := &fakeDir{known: map[int64]int{1: 0}}
	c := New()
	r := NewRecorder(c, dir, logging.Discard())

	r.RecordDownload(context.Background(), 1)

	assert.Equal(t, 1, dir.known[1])
	assert.Empty(t, dir.added)
	assert.Equal(t, int64(1), c.Snapshot().VideosProcessed)
}

func TestRecorder_AddsUnknownUser(t *testing.T) {
	dir := &fakeDir{known: map[int64]int{}}
	r := NewRecorder(New(), dir, logging.Discard())

	r.RecordDownload(context.Background(), 9)

	assert.Equal(t, []int64{9}, dir.added)
	assert.Equal(t, 1, dir.known[9])
}

func TestRecorder_DirectoryErrorStillCounts(t *testing.T) {
	dir := &fakeDir{known: map[int64]int{}, failWith: errors.New("db down")}
	c := New()
	r := NewRecorder(c, dir, logging.Discard())

	r.RecordDownload(context.Background(), 9)

	assert.Equal(t, int64(1), c.Snapshot().VideosProcessed)
}
