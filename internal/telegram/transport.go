// Package telegram connects the relay to the Telegram Bot API: the transport
// that batch uploads go through, and the bot that turns updates into
// commands, settings changes and batches.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"linkrelay/internal/batch"
	"linkrelay/internal/common"
	"linkrelay/internal/httputil"
	"linkrelay/internal/logging"
)

// maxThumbnailSize is the Bot API limit for custom video thumbnails.
const maxThumbnailSize = 200 << 10

// API is the part of *tgbotapi.BotAPI the relay uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Transport adapts API to the batch package's Uploader and Sink.
type Transport struct {
	api     API
	client  *http.Client
	staging string
	log     logging.Logger
}

// NewTransport uses staging for thumbnails fetched before an upload.
func NewTransport(api API, staging string, log logging.Logger) *Transport {
	return &Transport{
		api:     api,
		client:  httputil.NewClient(2 * time.Minute),
		staging: staging,
		log:     log,
	}
}

// mapError turns a flood-control rejection into *common.RateLimitError.
func mapError(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return &common.RateLimitError{Wait: time.Duration(tgErr.RetryAfter) * time.Second, Err: err}
	}
	return err
}

// Send delivers a plain text message.
func (t *Transport) Send(ctx context.Context, chatID int64, text string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sent, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return nil, mapError(err)
	}
	return &Status{t: t, chatID: chatID, messageID: sent.MessageID}, nil
}

// Sink posts status messages to chatID.
func (t *Transport) Sink(chatID int64) batch.Sink {
	return chatSink{t: t, chatID: chatID}
}

type chatSink struct {
	t      *Transport
	chatID int64
}

func (s chatSink) Post(ctx context.Context, text string) (batch.Message, error) {
	status, err := s.t.Send(ctx, s.chatID, text)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Status is a sent message that can be rewritten or removed.
type Status struct {
	t         *Transport
	chatID    int64
	messageID int
}

func (m *Status) Edit(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.t.api.Send(tgbotapi.NewEditMessageText(m.chatID, m.messageID, text))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return mapError(err)
}

func (m *Status) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.t.api.Request(tgbotapi.NewDeleteMessage(m.chatID, m.messageID))
	return mapError(err)
}

// Upload sends the staged file as a streamable video.
func (t *Transport) Upload(ctx context.Context, u batch.Upload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	video := tgbotapi.NewVideo(u.To.ChatID, tgbotapi.FilePath(u.FilePath))
	video.Caption = u.Caption
	video.SupportsStreaming = true
	if err := route(&video.BaseChat, u.To); err != nil {
		return err
	}

	if u.Thumbnail != "" {
		thumb, err := t.fetchThumbnail(ctx, u.Thumbnail)
		if err != nil {
			// The video still goes out without its thumbnail.
			t.log.Warn(ctx, "thumbnail unavailable, uploading without it", "error", err)
		} else {
			defer os.Remove(thumb)
			video.Thumb = tgbotapi.FilePath(thumb)
		}
	}

	if _, err := t.api.Send(video); err != nil {
		return mapError(err)
	}
	return nil
}

// route points a request at the channel when one is set. Channels are either
// "@name" or a numeric chat ID.
func route(chat *tgbotapi.BaseChat, to batch.Destination) error {
	if to.Channel == "" {
		return nil
	}
	if strings.HasPrefix(to.Channel, "@") {
		chat.ChatID = 0
		chat.ChannelUsername = to.Channel
		return nil
	}
	id, err := strconv.ParseInt(to.Channel, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid channel %q", to.Channel)
	}
	chat.ChatID = id
	return nil
}

// fetchThumbnail downloads a stored photo so it can be attached as a new file;
// the Bot API does not accept file IDs for thumbnails.
func (t *Transport) fetchThumbnail(ctx context.Context, fileID string) (string, error) {
	f, err := os.CreateTemp(t.staging, "thumb-*.jpg")
	if err != nil {
		return "", fmt.Errorf("creating thumbnail file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := t.Download(ctx, fileID, path, maxThumbnailSize); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Download saves an inbound attachment to dst. limit caps its size in bytes.
func (t *Transport) Download(ctx context.Context, fileID, dst string, limit int64) error {
	url, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("resolving file: %w", mapError(err))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if _, err := httputil.DownloadFile(ctx, t.client, url, dst, limit); err != nil {
		return err
	}
	return nil
}

// Answer acknowledges a callback query, optionally with a toast.
func (t *Transport) Answer(callbackID, text string) error {
	_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
	return mapError(err)
}

// Copy re-sends an existing message to another chat.
func (t *Transport) Copy(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	return mapError(err)
}

// SendMarkup sends text with an inline keyboard.
func (t *Transport) SendMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	_, err := t.api.Send(msg)
	return mapError(err)
}

// EditMarkup rewrites a message and its inline keyboard.
func (t *Transport) EditMarkup(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	_, err := t.api.Send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return mapError(err)
}
