package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"linkrelay/internal/batch"
	"linkrelay/internal/common"
	"linkrelay/internal/logging"
	"linkrelay/internal/media"
	"linkrelay/internal/prefs"
	"linkrelay/internal/stats"
	"linkrelay/internal/userdir"
)

// Runner executes one batch. *batch.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req batch.Request, sink batch.Sink) batch.Report
}

// Prober looks up media metadata without downloading.
type Prober interface {
	Probe(ctx context.Context, url string) (*media.VideoInfo, error)
}

// Settings are the bot's static parameters.
type Settings struct {
	BotName        string
	OwnerID        int64
	Authorized     func(userID int64) bool
	Developer      string
	Support        string
	StagingDir     string
	MaxSourceSize  int64
	BroadcastDelay time.Duration
}

// Bot handles updates. Each update runs on its own goroutine, so a long batch
// for one user never delays another user's commands.
type Bot struct {
	transport *Transport
	runner    Runner
	prober    Prober
	prefs     *prefs.Store
	pending   *prefs.Pending
	users     userdir.Directory
	counters  *stats.Counters
	settings  Settings
	log       logging.Logger

	sleep func(ctx context.Context, d time.Duration) error
	wg    sync.WaitGroup
}

// Deps groups the collaborators of a Bot.
type Deps struct {
	Transport *Transport
	Runner    Runner
	Prober    Prober
	Prefs     *prefs.Store
	Pending   *prefs.Pending
	Users     userdir.Directory
	Counters  *stats.Counters
}

func NewBot(deps Deps, settings Settings, log logging.Logger) *Bot {
	if settings.Authorized == nil {
		owner := settings.OwnerID
		settings.Authorized = func(id int64) bool { return id == owner }
	}
	if settings.MaxSourceSize <= 0 {
		settings.MaxSourceSize = 10 << 20
	}
	return &Bot{
		transport: deps.Transport,
		runner:    deps.Runner,
		prober:    deps.Prober,
		prefs:     deps.Prefs,
		pending:   deps.Pending,
		users:     deps.Users,
		counters:  deps.Counters,
		settings:  settings,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Run consumes updates until ctx is cancelled or the channel closes, then
// waits for in-flight handlers to return.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	b.log.Info(ctx, "bot started", "bot", b.settings.BotName)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, u)
			}()
		}
	}
}

// Handle processes one update. A panic is logged and reported to the user as
// a generic error; it never takes down the process.
func (b *Bot) Handle(ctx context.Context, u tgbotapi.Update) {
	chatID := chatOf(u)
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(ctx, "handler panic", "panic", fmt.Sprint(r), "update_id", u.UpdateID, "stack", string(debug.Stack()))
			if chatID != 0 {
				b.reply(ctx, chatID, textGenericError)
			}
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func chatOf(u tgbotapi.Update) int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// authorize rejects callers outside the allow-list.
func (b *Bot) authorize(userID int64) error {
	if !b.settings.Authorized(userID) {
		return common.ErrUnauthorized
	}
	return nil
}

// touch refreshes the caller's last-seen time. Users who never sent /start
// have no record to refresh.
func (b *Bot) touch(ctx context.Context, userID int64) {
	if err := b.users.Touch(ctx, userID); err != nil && !errors.Is(err, common.ErrNotFound) {
		b.log.Warn(ctx, "refreshing last seen", "user_id", userID, "error", err)
	}
}

func (b *Bot) isOwner(userID int64) bool {
	return userID == b.settings.OwnerID
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	log := b.log.With("user_id", userID, "chat_id", msg.Chat.ID)

	if err := b.authorize(userID); err != nil {
		log.Info(ctx, "rejected message", "error", err)
		b.reply(ctx, msg.Chat.ID, textUnauthorized)
		return
	}
	b.touch(ctx, userID)

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, log, msg)
	case msg.Document != nil:
		b.handleDocument(ctx, log, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Text != "":
		b.handleText(ctx, log, msg)
	}
}

// reply sends text and logs failures; the caller has nothing better to do
// with them.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) *Status {
	status, err := b.transport.Send(ctx, chatID, text)
	if err != nil {
		b.log.Warn(ctx, "sending reply", "chat_id", chatID, "error", err)
		return nil
	}
	return status
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
