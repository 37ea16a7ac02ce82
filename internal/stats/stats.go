// Package stats keeps process-wide counters for the owner's /stats command
// and the health endpoint. Counters reset on restart; per-user download
// totals live in the user directory.
package stats

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"linkrelay/internal/batch"
	"linkrelay/internal/common"
	"linkrelay/internal/logging"
)

// Counters is safe for concurrent use.
type Counters struct {
	started   time.Time
	uploaded  atomic.Int64
	failed    atomic.Int64
	batches   atomic.Int64
	skipped   atomic.Int64
	broadcast atomic.Int64
}

func New() *Counters {
	return &Counters{started: time.Now()}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	VideosProcessed int64  `json:"videos_processed"`
	Failed          int64  `json:"failed"`
	Batches         int64  `json:"batches"`
	Skipped         int64  `json:"skipped"`
	Broadcasts      int64  `json:"broadcasts"`
	Uptime          string `json:"uptime"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		VideosProcessed: c.uploaded.Load(),
		Failed:          c.failed.Load(),
		Batches:         c.batches.Load(),
		Skipped:         c.skipped.Load(),
		Broadcasts:      c.broadcast.Load(),
		Uptime:          time.Since(c.started).Truncate(time.Second).String(),
	}
}

// Uploaded counts one successful upload.
func (c *Counters) Uploaded() {
	c.uploaded.Add(1)
}

// BatchFinished folds a batch report into the totals. Successes are already
// counted by Uploaded.
func (c *Counters) BatchFinished(r batch.Report) {
	c.batches.Add(1)
	c.failed.Add(int64(r.Failed))
	c.skipped.Add(int64(r.Skipped))
}

func (c *Counters) Broadcast() {
	c.broadcast.Add(1)
}

// Incrementer is the slice of the user directory the recorder needs.
type Incrementer interface {
	AddUser(ctx context.Context, userID int64, displayName string) error
	IncrementDownloads(ctx context.Context, userID int64) error
}

// Recorder implements batch.Recorder on top of the counters and the user
// directory.
type Recorder struct {
	counters *Counters
	dir      Incrementer
	log      logging.Logger
}

func NewRecorder(counters *Counters, dir Incrementer, log logging.Logger) *Recorder {
	return &Recorder{counters: counters, dir: dir, log: log}
}

// RecordDownload never fails the batch; directory errors are logged.
func (r *Recorder) RecordDownload(ctx context.Context, userID int64) {
	r.counters.Uploaded()

	err := r.dir.IncrementDownloads(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		// Authorised users may upload without ever sending /start.
		if err = r.dir.AddUser(ctx, userID, ""); err == nil {
			err = r.dir.IncrementDownloads(ctx, userID)
		}
	}
	if err != nil {
		r.log.Warn(ctx, "recording download", "user_id", userID, "error", err)
	}
}
