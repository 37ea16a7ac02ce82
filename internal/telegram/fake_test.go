package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"linkrelay/internal/batch"
	"linkrelay/internal/logging"
	"linkrelay/internal/media"
	"linkrelay/internal/prefs"
	"linkrelay/internal/stats"
	"linkrelay/internal/userdir"
)

// fakeAPI records every request and hands out increasing message IDs.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []tgbotapi.Chattable
	nextID  int
	fileURL string
	// fail, when set, may reject a request before it is recorded as delivered.
	fail func(c tgbotapi.Chattable) error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.calls = append(f.calls, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(c); err != nil {
			return nil, err
		}
	}
	f.calls = append(f.calls, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

// texts returns the text of every sent or edited message, in order.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeAPI) videos() []tgbotapi.VideoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.VideoConfig
	for _, c := range f.calls {
		if v, ok := c.(tgbotapi.VideoConfig); ok {
			out = append(out, v)
		}
	}
	return out
}

func (f *fakeAPI) callsOfType(match func(tgbotapi.Chattable) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if match(c) {
			n++
		}
	}
	return n
}

type fakeRunner struct {
	requests []batch.Request
	report   batch.Report
	panicMsg string
}

func (r *fakeRunner) Run(ctx context.Context, req batch.Request, sink batch.Sink) batch.Report {
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	r.requests = append(r.requests, req)
	rep := r.report
	rep.Total = len(req.Entries)
	return rep
}

type fakeProber struct {
	info *media.VideoInfo
	err  error
}

func (p fakeProber) Probe(ctx context.Context, url string) (*media.VideoInfo, error) {
	return p.info, p.err
}

const (
	ownerID = int64(100)
	userID  = int64(200)
	guestID = int64(300)
)

// recordingDir notes which users were touched.
type recordingDir struct {
	userdir.Directory

	mu      sync.Mutex
	touched []int64
}

func (d *recordingDir) Touch(ctx context.Context, userID int64) error {
	d.mu.Lock()
	d.touched = append(d.touched, userID)
	d.mu.Unlock()
	return d.Directory.Touch(ctx, userID)
}

func (d *recordingDir) touchedIDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.touched...)
}

type harness struct {
	bot     *Bot
	api     *fakeAPI
	runner  *fakeRunner
	prefs   *prefs.Store
	users   *recordingDir
	staging string
	slept   []time.Duration
}

// newHarness serves files keyed by file ID from files.
func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	api := &fakeAPI{fileURL: srv.URL}
	staging := t.TempDir()
	store, err := userdir.OpenJSON(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	users := &recordingDir{Directory: store}

	h := &harness{
		api:     api,
		runner:  &fakeRunner{report: batch.Report{Processed: 1, Succeeded: 1}},
		prefs:   prefs.NewStore(media.Q720),
		users:   users,
		staging: staging,
	}

	log := logging.Discard()
	h.bot = NewBot(Deps{
		Transport: NewTransport(api, staging, log),
		Runner:    h.runner,
		Prober:    fakeProber{info: &media.VideoInfo{Title: "Probed Title"}},
		Prefs:     h.prefs,
		Pending:   prefs.NewPending(),
		Users:     users,
		Counters:  stats.New(),
	}, Settings{
		BotName:    "relaybot",
		OwnerID:    ownerID,
		Authorized: func(id int64) bool { return id == ownerID || id == userID },
		Developer:  "dev",
		Support:    "@support",
		StagingDir: staging,
	}, log)
	h.bot.sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

func (h *harness) send(msg *tgbotapi.Message) {
	h.bot.Handle(context.Background(), tgbotapi.Update{Message: msg})
}

func textMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "Ann", UserName: "ann"},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
	}
}

func commandMessage(from int64, text string) *tgbotapi.Message {
	msg := textMessage(from, text)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	return msg
}

func documentMessage(from int64, fileID, name string) *tgbotapi.Message {
	msg := textMessage(from, "")
	msg.MessageID = 7
	msg.Document = &tgbotapi.Document{FileID: fileID, FileName: name}
	return msg
}

func callback(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: from, FirstName: "Ann"},
		Message: &tgbotapi.Message{MessageID: 50, Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	}}
}
