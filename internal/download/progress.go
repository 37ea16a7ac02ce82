package download

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"linkrelay/internal/logging"
	"linkrelay/internal/media"
)

// ProgressSink receives progress snapshots for display. Delivery is best
// effort: errors are logged and otherwise ignored.
type ProgressSink interface {
	ReportProgress(ctx context.Context, p media.Progress) error
}

// forwarder decouples the engine from the sink. The engine offers snapshots
// without ever blocking; a single goroutine delivers the newest one, at most
// once per interval.
type forwarder struct {
	ch     chan media.Progress
	done   chan struct{}
	cancel context.CancelFunc
	drain  time.Duration
}

// defaultDrain bounds how long close waits for an in-flight sink call.
const defaultDrain = 2 * time.Second

func newForwarder(ctx context.Context, sink ProgressSink, interval, drain time.Duration, log logging.Logger) *forwarder {
	if drain <= 0 {
		drain = defaultDrain
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &forwarder{
		ch:     make(chan media.Progress, 1),
		done:   make(chan struct{}),
		cancel: cancel,
		drain:  drain,
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	go func() {
		defer close(f.done)
		for p := range f.ch {
			if sink == nil || ctx.Err() != nil || !limiter.Allow() {
				continue
			}
			if err := sink.ReportProgress(ctx, p); err != nil {
				log.Debug(ctx, "progress update dropped", "error", err)
			}
		}
	}()

	return f
}

// offer replaces any undelivered snapshot with p.
func (f *forwarder) offer(p media.Progress) {
	for {
		select {
		case f.ch <- p:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// close stops delivery and waits, at most f.drain, for an in-flight sink call
// to return. Sinks that ignore ctx are abandoned after that.
func (f *forwarder) close() {
	f.cancel()
	close(f.ch)

	t := time.NewTimer(f.drain)
	defer t.Stop()
	select {
	case <-f.done:
	case <-t.C:
	}
}
