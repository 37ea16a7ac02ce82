package download

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"

	"linkrelay/internal/media"
)

const (
	progressPrefix = "progress|"
	progressTmpl   = "download:" + progressPrefix +
		"%(progress.downloaded_bytes)s|%(progress.total_bytes)s|%(progress.total_bytes_estimate)s|" +
		"%(progress._percent_str)s|%(progress._speed_str)s|%(progress._eta_str)s"

	// maxOutputTail bounds the diagnostic output kept for error messages.
	maxOutputTail = 8 << 10

	maxDescription = 500
)

// YTDLP drives the yt-dlp binary with explicit argument slices; no shell is
// involved.
type YTDLP struct {
	path               string
	externalDownloader string
}

// NewYTDLP locates the binary. name may be a bare command or a path.
// externalDownloader, when set (e.g. "ffmpeg"), replaces the native
// segment downloader.
func NewYTDLP(name, externalDownloader string) (*YTDLP, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return &YTDLP{path: path, externalDownloader: externalDownloader}, nil
}

// Args builds the download argument list for job.
func (y *YTDLP) Args(job Job) []string {
	args := []string{
		"--format", job.Format,
		"--output", outputTemplate(job.Stem),
		"--merge-output-format", "mp4",
		"--remux-video", "mp4",
		"--no-playlist",
		"--no-check-certificate",
		"--hls-prefer-native",
		"--hls-use-mpegts",
		"--concurrent-fragments", "5",
		"--retries", "10",
		"--fragment-retries", "10",
		"--socket-timeout", "30",
		"--http-chunk-size", "10M",
		"--quiet", "--no-warnings",
		"--progress", "--newline",
		"--progress-template", progressTmpl,
	}

	if y.externalDownloader != "" {
		args = append(args,
			"--downloader", y.externalDownloader,
			"--downloader-args", y.externalDownloader+":-loglevel quiet -stats -protocol_whitelist file,http,https,tcp,tls,crypto",
		)
	}

	args = append(args, headerArgs(job.Headers)...)
	return append(args, "--", job.URL)
}

// outputTemplate escapes stem so yt-dlp writes it literally; "%" starts a
// template field.
func outputTemplate(stem string) string {
	return strings.ReplaceAll(stem, "%", "%%") + ".%(ext)s"
}

func headerArgs(headers map[string]string) []string {
	var args []string
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		args = append(args, "--add-header", k+":"+headers[k])
	}
	return args
}

// Run executes one download. Progress lines on stdout are parsed and handed
// to progress; everything on stderr is kept for the error message.
func (y *YTDLP) Run(ctx context.Context, job Job, progress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, y.path, y.Args(job)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	tail := &tailBuffer{max: maxOutputTail}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting yt-dlp: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if p, ok := parseProgress(line); ok {
			if progress != nil {
				progress(p)
			}
			continue
		}
		tail.Write([]byte(line + "\n"))
	}
	// Drain whatever the scanner left so the process never blocks on a full pipe.
	io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &EngineError{Output: tail.String(), Err: err}
	}
	return nil
}

// rawInfo mirrors the subset of --dump-json output that VideoInfo keeps.
// Fields are pointers because yt-dlp emits null for unknown values.
type rawInfo struct {
	Title       *string  `json:"title"`
	Duration    *float64 `json:"duration"`
	Uploader    *string  `json:"uploader"`
	Thumbnail   *string  `json:"thumbnail"`
	Description *string  `json:"description"`
	ViewCount   *int64   `json:"view_count"`
	LikeCount   *int64   `json:"like_count"`
}

// Probe returns metadata without downloading.
func (y *YTDLP) Probe(ctx context.Context, url string, headers map[string]string) (*media.VideoInfo, error) {
	args := []string{"--dump-json", "--no-download", "--no-playlist", "--no-warnings", "--no-check-certificate"}
	args = append(args, headerArgs(headers)...)
	args = append(args, "--", url)

	cmd := exec.CommandContext(ctx, y.path, args...)
	tail := &tailBuffer{max: maxOutputTail}
	cmd.Stderr = tail

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &EngineError{Output: tail.String(), Err: err}
	}

	return decodeInfo(out)
}

func decodeInfo(data []byte) (*media.VideoInfo, error) {
	// Playlists produce one object per line; the first entry describes the link.
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}

	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding yt-dlp info: %w", err)
	}

	info := &media.VideoInfo{Title: "Unknown", Uploader: "Unknown"}
	if raw.Title != nil && *raw.Title != "" {
		info.Title = *raw.Title
	}
	if raw.Uploader != nil && *raw.Uploader != "" {
		info.Uploader = *raw.Uploader
	}
	if raw.Duration != nil {
		info.Duration = *raw.Duration
	}
	if raw.Thumbnail != nil {
		info.Thumbnail = *raw.Thumbnail
	}
	if raw.Description != nil {
		info.Description = truncateRunes(*raw.Description, maxDescription)
	}
	if raw.ViewCount != nil {
		info.ViewCount = *raw.ViewCount
	}
	if raw.LikeCount != nil {
		info.LikeCount = *raw.LikeCount
	}
	return info, nil
}

// parseProgress decodes one line produced by progressTmpl. yt-dlp prints
// "NA" for unknown fields.
func parseProgress(line string) (media.Progress, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), progressPrefix)
	if !ok {
		return media.Progress{}, false
	}
	fields := strings.Split(rest, "|")
	if len(fields) != 6 {
		return media.Progress{}, false
	}

	p := media.Progress{
		Downloaded: parseBytes(fields[0]),
		Total:      parseBytes(fields[1]),
		Percent:    naToEmpty(fields[3]),
		Speed:      naToEmpty(fields[4]),
		ETA:        naToEmpty(fields[5]),
	}
	if p.Total == 0 {
		p.Total = parseBytes(fields[2])
	}
	return p, true
}

func parseBytes(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// Estimates are printed as floats.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func naToEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" || s == "N/A" {
		return ""
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

var errNoOutput = errors.New("engine reported success but produced no output file")
