package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"linkrelay/internal/batch"
	"linkrelay/internal/common"
	"linkrelay/internal/extract"
	"linkrelay/internal/logging"
	"linkrelay/internal/media"
)

var sourceExtensions = map[string]bool{".txt": true, ".html": true, ".htm": true}

// handleDocument downloads a link list, parses it and runs it as one batch.
func (b *Bot) handleDocument(ctx context.Context, log logging.Logger, msg *tgbotapi.Message) {
	doc := msg.Document
	chatID, userID := msg.Chat.ID, msg.From.ID

	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if !sourceExtensions[ext] {
		b.reply(ctx, chatID, textUnknownFile)
		return
	}
	if int64(doc.FileSize) > b.settings.MaxSourceSize {
		b.reply(ctx, chatID, "❌ File too large for a link list.")
		return
	}

	status := b.reply(ctx, chatID, "📥 Reading file...")

	dst := filepath.Join(b.settings.StagingDir, fmt.Sprintf("links_%d_%d%s", userID, msg.MessageID, ext))
	if err := b.transport.Download(ctx, doc.FileID, dst, b.settings.MaxSourceSize); err != nil {
		log.Warn(ctx, "downloading link list", "file", doc.FileName, "error", err)
		b.update(ctx, chatID, status, "❌ Could not download the file. Please try again.")
		return
	}

	entries, err := parseSource(dst, doc.FileName)
	if err != nil {
		os.Remove(dst)
		log.Info(ctx, "link list rejected", "file", doc.FileName, "error", err)
		b.update(ctx, chatID, status, textNoLinks)
		return
	}

	log.Info(ctx, "link list parsed", "file", doc.FileName, "entries", len(entries))
	b.update(ctx, chatID, status, fmt.Sprintf("📋 Found %d videos\n\n⏳ Starting...", len(entries)))

	report := b.runner.Run(ctx, batch.Request{
		UserID:     userID,
		ChatID:     chatID,
		Entries:    entries,
		Prefs:      b.prefs.Get(userID),
		SourcePath: dst,
	}, b.transport.Sink(chatID))

	b.counters.BatchFinished(report)
	b.update(ctx, chatID, status, report.Summary())
}

// parseSource reads a saved link list. An empty result is common.ErrParseEmpty.
func parseSource(path, name string) ([]media.LinkEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading link list: %w", err)
	}
	entries := extract.Source(name, data)
	if len(entries) == 0 {
		return nil, common.ErrParseEmpty
	}
	return entries, nil
}

// handleLink runs a single URL as a one-entry batch, named after the media
// title when the probe finds one.
func (b *Bot) handleLink(ctx context.Context, log logging.Logger, msg *tgbotapi.Message, url string) {
	chatID, userID := msg.Chat.ID, msg.From.ID

	status := b.reply(ctx, chatID, "🔍 Fetching video info...")

	title := media.PlaceholderTitle(1)
	if info, err := b.prober.Probe(ctx, url); err != nil {
		log.Debug(ctx, "probe failed, using placeholder title", "url", url, "error", err)
	} else if info.Title != "" && info.Title != "Unknown" {
		title = info.Title
	}

	if status != nil {
		if err := status.Delete(ctx); err != nil {
			log.Debug(ctx, "deleting probe status", "error", err)
		}
	}

	report := b.runner.Run(ctx, batch.Request{
		UserID:  userID,
		ChatID:  chatID,
		Entries: []media.LinkEntry{{URL: url, Title: title}},
		Prefs:   b.prefs.Get(userID),
	}, b.transport.Sink(chatID))

	b.counters.BatchFinished(report)
}

// update edits status, or sends text fresh when there is no status message.
func (b *Bot) update(ctx context.Context, chatID int64, status *Status, text string) {
	if status != nil {
		if err := status.Edit(ctx, text); err == nil {
			return
		}
	}
	b.reply(ctx, chatID, text)
}
