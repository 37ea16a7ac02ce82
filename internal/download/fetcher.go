package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"linkrelay/internal/httputil"
	"linkrelay/internal/logging"
	"linkrelay/internal/media"
)

const targetExt = "mp4"

// Options configures a Fetcher.
type Options struct {
	// Dir is the staging directory. It must exist.
	Dir string
	// Alternates lists container extensions probed when the engine did not
	// leave the expected .mp4 behind.
	Alternates []string
	// DefaultReferer is sent to hosts without a platform-specific referer.
	DefaultReferer string
	// ProgressInterval throttles sink updates. Zero forwards every snapshot.
	ProgressInterval time.Duration
	// ProgressDrain bounds how long Fetch waits for a progress update still
	// in flight when the engine finishes. Zero means two seconds.
	ProgressDrain time.Duration
}

// Fetcher turns a DownloadRequest into exactly one staged file or a Failure.
type Fetcher struct {
	engine    Engine
	opts      Options
	artifacts *regexp.Regexp
	log       logging.Logger
}

func NewFetcher(engine Engine, opts Options, log logging.Logger) *Fetcher {
	return &Fetcher{
		engine:    engine,
		opts:      opts,
		artifacts: artifactPattern(opts.Alternates),
		log:       log,
	}
}

// Dir returns the staging directory.
func (f *Fetcher) Dir() string {
	return f.opts.Dir
}

// Fetch downloads req.URL. On Success the caller owns the returned file. On
// Failure nothing belonging to the request is left in the staging directory.
func (f *Fetcher) Fetch(ctx context.Context, req media.DownloadRequest, sink ProgressSink) media.DownloadResult {
	if err := httputil.ValidateURL(req.URL); err != nil {
		return media.Failure{Reason: media.Unsupported, Message: err.Error()}
	}

	stem, err := httputil.SafeDownloadPath(f.opts.Dir, req.Name)
	if err != nil {
		return media.Failure{Reason: media.ExtractionFailed, Message: err.Error()}
	}

	headers := req.Headers
	if headers == nil {
		headers = httputil.BrowserHeaders(req.URL, f.opts.DefaultReferer)
	}

	log := f.log.With("url", req.URL, "stem", filepath.Base(stem))
	log.Debug(ctx, "fetch started", "quality", req.Quality.String())

	fwd := newForwarder(ctx, sink, f.opts.ProgressInterval, f.opts.ProgressDrain, log)
	err = f.engine.Run(ctx, Job{
		URL:     req.URL,
		Stem:    stem,
		Format:  req.Quality.FormatSelector(),
		Headers: headers,
	}, fwd.offer)
	fwd.close()

	if err != nil {
		f.removeArtifacts(stem)
		failure := classify(err)
		log.Warn(ctx, "fetch failed", "reason", failure.Reason.String(), "error", err)
		return failure
	}

	path, err := f.resolveOutput(stem)
	if err != nil {
		f.removeArtifacts(stem)
		log.Warn(ctx, "fetch produced no usable file", "error", err)
		return media.Failure{Reason: media.ExtractionFailed, Message: err.Error()}
	}

	info, err := os.Stat(path)
	if err != nil {
		f.removeArtifacts(stem)
		return media.Failure{Reason: media.ExtractionFailed, Message: err.Error()}
	}

	if req.SizeLimit > 0 && info.Size() > req.SizeLimit {
		f.removeArtifacts(stem)
		log.Info(ctx, "fetch exceeded size limit", "size", info.Size(), "limit", req.SizeLimit)
		return media.Failure{
			Reason:  media.SizeExceeded,
			Message: fmt.Sprintf("%s exceeds the %s limit", humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(req.SizeLimit))),
		}
	}

	log.Info(ctx, "fetch finished", "size", info.Size())
	return media.Success{FilePath: path, FileSize: info.Size(), Format: targetExt}
}

// Probe returns metadata for url without downloading it.
func (f *Fetcher) Probe(ctx context.Context, url string) (*media.VideoInfo, error) {
	if err := httputil.ValidateURL(url); err != nil {
		return nil, err
	}
	return f.engine.Probe(ctx, url, httputil.BrowserHeaders(url, f.opts.DefaultReferer))
}

// resolveOutput finds what the engine actually wrote. The expected .mp4 wins;
// otherwise the first alternate found is renamed, not re-encoded, to .mp4.
func (f *Fetcher) resolveOutput(stem string) (string, error) {
	want := stem + "." + targetExt
	if fileExists(want) {
		return want, nil
	}

	for _, ext := range f.opts.Alternates {
		alt := stem + "." + strings.TrimPrefix(ext, ".")
		if !fileExists(alt) {
			continue
		}
		if alt == want {
			return want, nil
		}
		if err := os.Rename(alt, want); err != nil {
			return "", fmt.Errorf("renaming %s: %w", filepath.Base(alt), err)
		}
		return want, nil
	}

	return "", errNoOutput
}

// classify maps an engine error onto a failure reason.
func classify(err error) media.Failure {
	msg := err.Error()
	var engErr *EngineError
	if errors.As(err, &engErr) {
		if line := engErr.LastLine(); line != "" {
			msg = line
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return media.Failure{Reason: media.NetworkTimeout, Message: msg}
	case engErr != nil && strings.Contains(engErr.Output, "Unsupported URL"):
		return media.Failure{Reason: media.Unsupported, Message: msg}
	case engErr != nil && containsAny(strings.ToLower(engErr.Output), "timed out", "timeout"):
		return media.Failure{Reason: media.NetworkTimeout, Message: msg}
	default:
		return media.Failure{Reason: media.ExtractionFailed, Message: msg}
	}
}

// mediaExtensions are containers and side files yt-dlp may leave behind for
// a stem, in addition to the configured alternates.
var mediaExtensions = []string{
	"mp4", "mkv", "webm", "ts", "m4a", "m4v", "mov", "flv", "3gp",
	"mp3", "aac", "opus", "ogg", "jpg", "png", "webp", "vtt", "srt",
}

// artifactPattern matches what may follow "stem" in an engine artifact name:
// an optional format ID (".f137", ".fhls-720p") or ".temp", a known extension,
// and an optional ".part", ".part-FragN" or ".ytdl" suffix.
func artifactPattern(alternates []string) *regexp.Regexp {
	exts := make([]string, 0, len(mediaExtensions)+len(alternates))
	for _, ext := range append(slices.Clone(mediaExtensions), alternates...) {
		if ext = strings.TrimPrefix(ext, "."); ext != "" {
			exts = append(exts, regexp.QuoteMeta(ext))
		}
	}
	return regexp.MustCompile(`(?i)^(?:\.f[0-9a-z_-]*[0-9][0-9a-z_-]*)?(?:\.temp)?\.(?:` +
		strings.Join(exts, "|") + `)(?:\.part(?:-frag[0-9]+)?|\.ytdl)?$|^\.part(?:-frag[0-9]+)?$`)
}

// removeArtifacts deletes the files the engine wrote for stem: finished,
// partial or intermediate output. Other files sharing the prefix are kept.
func (f *Fetcher) removeArtifacts(stem string) {
	dir, base := filepath.Split(stem)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		rest, ok := strings.CutPrefix(e.Name(), base)
		if e.IsDir() || !ok || !f.artifacts.MatchString(rest) {
			continue
		}
		os.Remove(filepath.Join(dir, e.Name()))
	}
}

// CleanStaging removes every regular file in dir and returns how many were
// removed. Used at startup to drop leftovers from a previous run.
func CleanStaging(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading staging dir: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
