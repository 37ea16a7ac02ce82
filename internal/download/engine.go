// Package download runs the external extraction engine and turns its output
// into a single staged media file or a classified failure.
package download

import (
	"context"
	"fmt"
	"strings"

	"linkrelay/internal/media"
)

// Job is one engine invocation.
type Job struct {
	URL     string
	Stem    string // absolute output path without extension
	Format  string // format-selection expression
	Headers map[string]string
}

// ProgressFunc receives partial transfer snapshots. The engine calls it from
// its own goroutine and never after Run returns.
type ProgressFunc func(media.Progress)

// Engine is the media-extraction capability. Run writes the media to
// Job.Stem plus an extension of the engine's choosing.
type Engine interface {
	Run(ctx context.Context, job Job, progress ProgressFunc) error
	Probe(ctx context.Context, url string, headers map[string]string) (*media.VideoInfo, error)
}

// EngineError is returned by an engine that exited unsuccessfully. Output
// holds the tail of its diagnostic output.
type EngineError struct {
	Output string
	Err    error
}

func (e *EngineError) Error() string {
	if msg := e.LastLine(); msg != "" {
		return fmt.Sprintf("%v: %s", e.Err, msg)
	}
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// LastLine returns the last non-empty output line, usually the engine's
// "ERROR: ..." summary.
func (e *EngineError) LastLine() string {
	lines := strings.Split(strings.TrimSpace(e.Output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
