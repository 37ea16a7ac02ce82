package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkrelay/internal/logging"
	"linkrelay/internal/media"
)

// fakeEngine writes files into the staging directory instead of running yt-dlp.
type fakeEngine struct {
	ext      string // extension of the produced file; empty writes nothing
	size     int
	extra    []string // additional artifacts written next to the output
	err      error
	progress int // number of progress snapshots to emit
	// afterProgress runs once all snapshots are offered.
	afterProgress func()

	mu   sync.Mutex
	jobs []Job
}

func (e *fakeEngine) Run(ctx context.Context, job Job, progress ProgressFunc) error {
	e.mu.Lock()
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()

	for i := 0; i < e.progress; i++ {
		progress(media.Progress{Downloaded: int64(i), Total: int64(e.progress)})
	}
	if e.afterProgress != nil {
		e.afterProgress()
	}
	for _, ext := range e.extra {
		if err := os.WriteFile(job.Stem+"."+ext, []byte("x"), 0o644); err != nil {
			return err
		}
	}
	if e.ext != "" {
		if err := os.WriteFile(job.Stem+"."+e.ext, make([]byte, e.size), 0o644); err != nil {
			return err
		}
	}
	return e.err
}

func (e *fakeEngine) Probe(ctx context.Context, url string, headers map[string]string) (*media.VideoInfo, error) {
	return &media.VideoInfo{Title: "Probed " + url}, nil
}

func newTestFetcher(t *testing.T, engine Engine) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFetcher(engine, Options{
		Dir:        dir,
		Alternates: []string{"mkv", "webm", "mp4", "ts"},
	}, logging.Discard()), dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetch_Success(t *testing.T) {
	engine := &fakeEngine{ext: "mp4", size: 100}
	f, dir := newTestFetcher(t, engine)

	res := f.Fetch(context.Background(), media.DownloadRequest{
		URL:     "https://a.com/x",
		Name:    "Lecture 1: Intro",
		Quality: media.Q480,
	}, nil)

	ok, isSuccess := res.(media.Success)
	require.True(t, isSuccess, "got %#v", res)
	assert.Equal(t, filepath.Join(dir, "Lecture 1 Intro.mp4"), ok.FilePath)
	assert.EqualValues(t, 100, ok.FileSize)
	assert.Equal(t, "mp4", ok.Format)

	require.Len(t, engine.jobs, 1)
	job := engine.jobs[0]
	assert.Equal(t, "bestvideo[height<=480]+bestaudio/best[height<=480]", job.Format)
	assert.Equal(t, filepath.Join(dir, "Lecture 1 Intro"), job.Stem)
	assert.NotEmpty(t, job.Headers["User-Agent"], "browser headers filled in")
}

func TestFetch_RenamesAlternateContainer(t *testing.T) {
	engine := &fakeEngine{ext: "mkv", size: 10}
	f, dir := newTestFetcher(t, engine)

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Clip"}, nil)

	ok, isSuccess := res.(media.Success)
	require.True(t, isSuccess, "got %#v", res)
	assert.Equal(t, filepath.Join(dir, "Clip.mp4"), ok.FilePath)
	assert.Equal(t, []string{"Clip.mp4"}, dirEntries(t, dir))
}

func TestFetch_ConfigurableAlternates(t *testing.T) {
	engine := &fakeEngine{ext: "flv", size: 10}
	dir := t.TempDir()
	f := NewFetcher(engine, Options{Dir: dir, Alternates: []string{"flv"}}, logging.Discard())

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Clip"}, nil)
	_, isSuccess := res.(media.Success)
	assert.True(t, isSuccess, "got %#v", res)

	f = NewFetcher(&fakeEngine{ext: "flv", size: 10}, Options{Dir: t.TempDir()}, logging.Discard())
	res = f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Clip"}, nil)
	fail, isFailure := res.(media.Failure)
	require.True(t, isFailure, "got %#v", res)
	assert.Equal(t, media.ExtractionFailed, fail.Reason)
}

func TestFetch_SizeExceededLeavesNothing(t *testing.T) {
	engine := &fakeEngine{ext: "mp4", size: 2048}
	f, dir := newTestFetcher(t, engine)

	res := f.Fetch(context.Background(), media.DownloadRequest{
		URL:       "https://a.com/x",
		Name:      "Big",
		SizeLimit: 1024,
	}, nil)

	fail, isFailure := res.(media.Failure)
	require.True(t, isFailure, "got %#v", res)
	assert.Equal(t, media.SizeExceeded, fail.Reason)
	assert.Contains(t, fail.Message, "KiB")
	assert.Empty(t, dirEntries(t, dir))
}

func TestFetch_PercentInTitleIsKeptLiterally(t *testing.T) {
	engine := &fakeEngine{ext: "mp4", size: 10}
	f, dir := newTestFetcher(t, engine)

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Lesson %(id)s 100%"}, nil)

	ok, isSuccess := res.(media.Success)
	require.True(t, isSuccess, "got %#v", res)
	assert.Equal(t, filepath.Join(dir, "Lesson %(id)s 100%.mp4"), ok.FilePath)
	require.Len(t, engine.jobs, 1)
	assert.Equal(t, filepath.Join(dir, "Lesson %(id)s 100%"), engine.jobs[0].Stem)
}

func TestFetch_FailureRemovesOnlyItsOwnArtifacts(t *testing.T) {
	engine := &fakeEngine{
		extra: []string{"f137.mp4.part", "f140.m4a", "mp4.part", "part", "part-Frag3", "temp.mp4", "mp4.ytdl", "mkv"},
		err:   errors.New("exit status 1"),
	}
	f, dir := newTestFetcher(t, engine)

	others := []string{"Intro 2.mp4", "Intro.Part 2.mp4", "Intro.final.mp4", "Introduction.mkv", "links_1_2.txt"}
	for _, name := range others {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Intro"}, nil)

	_, isFailure := res.(media.Failure)
	require.True(t, isFailure, "got %#v", res)
	assert.ElementsMatch(t, others, dirEntries(t, dir))
}

func TestFetch_SizeAtLimitSucceeds(t *testing.T) {
	f, _ := newTestFetcher(t, &fakeEngine{ext: "mp4", size: 1024})

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Edge", SizeLimit: 1024}, nil)
	_, isSuccess := res.(media.Success)
	assert.True(t, isSuccess, "got %#v", res)
}

func TestFetch_FailureClassification(t *testing.T) {
	exitErr := errors.New("exit status 1")
	tests := []struct {
		name   string
		err    error
		reason media.FailureReason
	}{
		{"unsupported", &EngineError{Output: "ERROR: Unsupported URL: https://a.com/x\n", Err: exitErr}, media.Unsupported},
		{"timed out", &EngineError{Output: "ERROR: Read timed out.\n", Err: exitErr}, media.NetworkTimeout},
		{"deadline", context.DeadlineExceeded, media.NetworkTimeout},
		{"generic", &EngineError{Output: "ERROR: [generic] Unable to extract\n", Err: exitErr}, media.ExtractionFailed},
		{"plain error", errors.New("boom"), media.ExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{err: tt.err, extra: []string{"mp4.part", "f137.mp4"}}
			f, dir := newTestFetcher(t, engine)
			// An unrelated file must survive the artifact cleanup.
			require.NoError(t, os.WriteFile(filepath.Join(dir, "Other.mp4"), nil, 0o644))

			res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Broken"}, nil)

			fail, isFailure := res.(media.Failure)
			require.True(t, isFailure, "got %#v", res)
			assert.Equal(t, tt.reason, fail.Reason)
			assert.NotEmpty(t, fail.Message)
			assert.Equal(t, []string{"Other.mp4"}, dirEntries(t, dir))
		})
	}
}

func TestFetch_EngineErrorMessageIsLastLine(t *testing.T) {
	engine := &fakeEngine{err: &EngineError{
		Output: "WARNING: something\nERROR: [generic] Unable to extract\n\n",
		Err:    errors.New("exit status 1"),
	}}
	f, _ := newTestFetcher(t, engine)

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "x"}, nil)
	assert.Equal(t, media.Failure{Reason: media.ExtractionFailed, Message: "ERROR: [generic] Unable to extract"}, res)
}

func TestFetch_RejectsNonHTTPURL(t *testing.T) {
	engine := &fakeEngine{ext: "mp4"}
	f, _ := newTestFetcher(t, engine)

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "ftp://a.com/x", Name: "x"}, nil)
	fail, isFailure := res.(media.Failure)
	require.True(t, isFailure)
	assert.Equal(t, media.Unsupported, fail.Reason)
	assert.Empty(t, engine.jobs, "engine must not run")
}

func TestFetch_NoOutputIsFailure(t *testing.T) {
	f, dir := newTestFetcher(t, &fakeEngine{})

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "Ghost"}, nil)
	fail, isFailure := res.(media.Failure)
	require.True(t, isFailure)
	assert.Equal(t, media.ExtractionFailed, fail.Reason)
	assert.Empty(t, dirEntries(t, dir))
}

type blockingSink struct {
	calls atomic.Int32
}

func (s *blockingSink) ReportProgress(ctx context.Context, p media.Progress) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestFetch_SlowSinkDoesNotBlockEngine(t *testing.T) {
	engine := &fakeEngine{ext: "mp4", size: 1, progress: 1000}
	f, _ := newTestFetcher(t, engine)
	sink := &blockingSink{}

	done := make(chan media.DownloadResult, 1)
	go func() {
		done <- f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "x"}, sink)
	}()

	select {
	case res := <-done:
		_, isSuccess := res.(media.Success)
		assert.True(t, isSuccess)
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch blocked on a slow progress sink")
	}
	assert.LessOrEqual(t, sink.calls.Load(), int32(1))
}

// stuckSink ignores cancellation until released.
type stuckSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stuckSink) ReportProgress(ctx context.Context, p media.Progress) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return nil
}

func TestFetch_StuckSinkDelaysResultAtMostDrain(t *testing.T) {
	sink := &stuckSink{started: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(sink.release) })

	engine := &fakeEngine{ext: "mp4", size: 1, progress: 1, afterProgress: func() {
		select {
		case <-sink.started:
		case <-time.After(5 * time.Second):
		}
	}}
	dir := t.TempDir()
	f := NewFetcher(engine, Options{Dir: dir, ProgressDrain: 50 * time.Millisecond}, logging.Discard())

	done := make(chan media.DownloadResult, 1)
	go func() {
		done <- f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "x"}, sink)
	}()

	select {
	case res := <-done:
		_, isSuccess := res.(media.Success)
		assert.True(t, isSuccess, "got %#v", res)
	case <-time.After(3 * time.Second):
		t.Fatal("Fetch waited on a stuck progress update")
	}
}

type errSink struct {
	calls     atomic.Int32
	delivered chan struct{}
}

func (s *errSink) ReportProgress(ctx context.Context, p media.Progress) error {
	s.calls.Add(1)
	select {
	case s.delivered <- struct{}{}:
	default:
	}
	return errors.New("message to edit not found")
}

func TestFetch_SinkErrorsIgnored(t *testing.T) {
	sink := &errSink{delivered: make(chan struct{}, 1)}
	engine := &fakeEngine{ext: "mp4", size: 1, progress: 3, afterProgress: func() {
		select {
		case <-sink.delivered:
		case <-time.After(5 * time.Second):
		}
	}}
	f, _ := newTestFetcher(t, engine)

	res := f.Fetch(context.Background(), media.DownloadRequest{URL: "https://a.com/x", Name: "x"}, sink)
	_, isSuccess := res.(media.Success)
	assert.True(t, isSuccess)
	assert.GreaterOrEqual(t, sink.calls.Load(), int32(1))
}

func TestProbe(t *testing.T) {
	f, _ := newTestFetcher(t, &fakeEngine{})

	info, err := f.Probe(context.Background(), "https://a.com/x")
	require.NoError(t, err)
	assert.Equal(t, "Probed https://a.com/x", info.Title)

	_, err = f.Probe(context.Background(), "javascript:alert(1)")
	assert.Error(t, err)
}

func TestCleanStaging(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mkv.part", "links.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "keep"), 0o755))

	n, err := CleanStaging(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"keep"}, dirEntries(t, dir))

	n, err = CleanStaging(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Zero(t, n)
}
