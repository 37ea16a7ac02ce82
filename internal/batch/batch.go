// Package batch drives parsed link entries through the fetcher one at a
// time, uploading and deleting each staged file before moving on.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkrelay/internal/common"
	"linkrelay/internal/download"
	"linkrelay/internal/logging"
	"linkrelay/internal/media"
)

// Fetcher produces one staged file per request.
type Fetcher interface {
	Fetch(ctx context.Context, req media.DownloadRequest, sink download.ProgressSink) media.DownloadResult
}

// Destination is where an upload goes: a channel when Channel is set,
// otherwise the originating chat.
type Destination struct {
	ChatID  int64
	Channel string
}

// Upload describes one file handed to the messaging transport.
type Upload struct {
	To        Destination
	FilePath  string
	Caption   string
	Thumbnail string // opaque transport handle; empty for none
}

// Uploader sends a staged file. A flood-control rejection is reported as a
// *common.RateLimitError.
type Uploader interface {
	Upload(ctx context.Context, u Upload) error
}

// Message is a previously sent status message that can be rewritten.
type Message interface {
	Edit(ctx context.Context, text string) error
}

// Sink posts status messages to the requesting chat.
type Sink interface {
	Post(ctx context.Context, text string) (Message, error)
}

// Recorder is told about every successful upload.
type Recorder interface {
	RecordDownload(ctx context.Context, userID int64)
}

// Options tunes the orchestrator.
type Options struct {
	// Delay separates consecutive items.
	Delay time.Duration
	// MaxLinks truncates larger batches. Zero disables the cap.
	MaxLinks int
	// SizeLimit is passed to every fetch.
	SizeLimit int64
	// MaxUploadAttempts bounds rate-limit retries of a single upload.
	MaxUploadAttempts int
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Request is one batch: the entries of a single source file or a single
// direct link.
type Request struct {
	UserID  int64
	ChatID  int64
	Entries []media.LinkEntry
	Prefs   media.UserPreferences
	// SourcePath is deleted once the batch finishes, whatever the outcome.
	SourcePath string
}

// Report summarises a finished batch.
type Report struct {
	ID        string
	Total     int // entries received, before the cap
	Processed int
	Succeeded int
	Failed    int
	Skipped   int // entries dropped by the cap
}

// Summary renders the completion message.
func (r Report) Summary() string {
	var b strings.Builder
	b.WriteString("✅ Process Complete!\n\n")
	fmt.Fprintf(&b, "📦 Processed: %d\n", r.Processed)
	fmt.Fprintf(&b, "🎉 Succeeded: %d\n", r.Succeeded)
	fmt.Fprintf(&b, "❌ Failed: %d", r.Failed)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "\n⏭️ Skipped: %d", r.Skipped)
	}
	return b.String()
}

// Orchestrator runs batches. It holds no per-batch state, so concurrent Run
// calls for different users are safe.
type Orchestrator struct {
	fetcher  Fetcher
	uploader Uploader
	recorder Recorder
	captions Captioner
	opts     Options
	log      logging.Logger
}

func New(fetcher Fetcher, uploader Uploader, recorder Recorder, captions Captioner, opts Options, log logging.Logger) *Orchestrator {
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.MaxUploadAttempts <= 0 {
		opts.MaxUploadAttempts = 5
	}
	return &Orchestrator{
		fetcher:  fetcher,
		uploader: uploader,
		recorder: recorder,
		captions: captions,
		opts:     opts,
		log:      log,
	}
}

// Run processes req.Entries strictly in order. A failed item is reported and
// counted, and the next item is attempted. Only ctx cancellation stops a batch
// early.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) Report {
	report := Report{ID: uuid.NewString(), Total: len(req.Entries)}
	log := o.log.With("batch_id", report.ID, "user_id", req.UserID)

	if req.SourcePath != "" {
		defer func() {
			if err := os.Remove(req.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn(ctx, "removing batch source", "path", req.SourcePath, "error", err)
			}
		}()
	}

	entries := req.Entries
	if o.opts.MaxLinks > 0 && len(entries) > o.opts.MaxLinks {
		report.Skipped = len(entries) - o.opts.MaxLinks
		entries = entries[:o.opts.MaxLinks]
		o.post(ctx, sink, fmt.Sprintf("⚠️ Batch limited to %d links; %d skipped.", o.opts.MaxLinks, report.Skipped))
	}

	quality := req.Prefs.Quality
	if !quality.Valid() {
		quality = media.DefaultQuality
	}

	log.Info(ctx, "batch started", "entries", len(entries), "skipped", report.Skipped)

	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		index := i + 1

		if o.runItem(ctx, log, req, entry, index, len(entries), quality, sink) {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Processed++

		if index < len(entries) && o.opts.Delay > 0 {
			if err := o.opts.Sleep(ctx, o.opts.Delay); err != nil {
				break
			}
		}
	}

	log.Info(ctx, "batch finished",
		"processed", report.Processed, "succeeded", report.Succeeded, "failed", report.Failed)
	return report
}

// runItem fetches, uploads and removes one entry. It reports success.
func (o *Orchestrator) runItem(ctx context.Context, log logging.Logger, req Request, entry media.LinkEntry, index, total int, quality media.Quality, sink Sink) bool {
	title := entry.Title
	if title == "" {
		title = media.PlaceholderTitle(index)
	}
	log = log.With("index", index, "title", title)

	status := o.post(ctx, sink, fmt.Sprintf(
		"📥 Processing %d/%d\n🎬 Title: %s\n🔗 URL: %s\n\n⏳ Downloading...",
		index, total, title, shorten(entry.URL, 50)))

	res := o.fetcher.Fetch(ctx, media.DownloadRequest{
		URL:       entry.URL,
		Name:      title,
		Quality:   quality,
		SizeLimit: o.opts.SizeLimit,
	}, &progressSink{msg: status, title: title})

	var staged media.Success
	switch r := res.(type) {
	case media.Failure:
		log.Warn(ctx, "item failed", "reason", r.Reason.String(), "message", r.Message)
		o.edit(ctx, log, status, fmt.Sprintf("❌ Failed to download: %s\n%s", title, r.String()))
		return false
	case media.Success:
		staged = r
	default:
		log.Error(ctx, "unexpected fetch result", "result", fmt.Sprintf("%T", res))
		return false
	}

	// The staged file is deleted whatever happens to the upload.
	defer func() {
		if err := os.Remove(staged.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error(ctx, "removing staged file", "path", staged.FilePath, "error", err)
		}
	}()

	o.edit(ctx, log, status, fmt.Sprintf("📤 Uploading %s...", title))

	err := o.upload(ctx, log, status, Upload{
		To:        Destination{ChatID: req.ChatID, Channel: req.Prefs.Channel},
		FilePath:  staged.FilePath,
		Caption:   o.captions.Render(req.Prefs.CaptionTemplate, title, index),
		Thumbnail: req.Prefs.ThumbnailRef,
	})
	if err != nil {
		log.Warn(ctx, "upload failed", "error", err)
		o.edit(ctx, log, status, fmt.Sprintf("❌ Upload failed: %s\n%v", title, err))
		return false
	}

	if o.recorder != nil {
		o.recorder.RecordDownload(ctx, req.UserID)
	}
	o.edit(ctx, log, status, fmt.Sprintf("✅ Uploaded: %s", title))
	return true
}

// upload retries from the upload step after each rate-limit signal, waiting
// exactly the duration the transport asked for.
func (o *Orchestrator) upload(ctx context.Context, log logging.Logger, status Message, u Upload) error {
	for attempt := 1; ; attempt++ {
		err := o.uploader.Upload(ctx, u)
		wait, limited := common.RetryAfter(err)
		if !limited || attempt >= o.opts.MaxUploadAttempts {
			return err
		}

		log.Info(ctx, "upload rate limited", "wait", wait, "attempt", attempt)
		o.edit(ctx, log, status, fmt.Sprintf("⏳ Flood wait: retrying in %s...", wait))
		if err := o.opts.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) post(ctx context.Context, sink Sink, text string) Message {
	msg, err := sink.Post(ctx, text)
	if err != nil {
		o.log.Debug(ctx, "status post failed", "error", err)
		return nopMessage{}
	}
	return msg
}

func (o *Orchestrator) edit(ctx context.Context, log logging.Logger, msg Message, text string) {
	if err := msg.Edit(ctx, text); err != nil {
		log.Debug(ctx, "status edit failed", "error", err)
	}
}

type nopMessage struct{}

func (nopMessage) Edit(context.Context, string) error { return nil }

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
