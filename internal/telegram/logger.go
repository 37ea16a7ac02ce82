package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"linkrelay/internal/logging"
)

// libraryLogger routes the Bot API client's own log lines into the relay's
// structured logger at debug level.
type libraryLogger struct {
	log logging.Logger
}

func (l libraryLogger) Println(v ...interface{}) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l libraryLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Connect authenticates with the Bot API. An empty endpoint uses the public
// server; a custom one follows the client's "https://host/bot%s/%s" format.
func Connect(token, endpoint string, log logging.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(libraryLogger{log: log.With("component", "tgbotapi")}); err != nil {
		return nil, fmt.Errorf("setting bot api logger: %w", err)
	}

	var (
		api *tgbotapi.BotAPI
		err error
	)
	if endpoint == "" {
		api, err = tgbotapi.NewBotAPI(token)
	} else {
		api, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return api, nil
}

// Updates starts long polling. The channel stops receiving once ctx is done.
func Updates(ctx context.Context, api *tgbotapi.BotAPI) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := api.GetUpdatesChan(cfg)

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()
	return updates
}
