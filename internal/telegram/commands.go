package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"linkrelay/internal/common"
	"linkrelay/internal/logging"
	"linkrelay/internal/media"
	"linkrelay/internal/prefs"
)

// Callback data carried by inline buttons.
const (
	cbStart         = "start"
	cbSettings      = "settings"
	cbHelp          = "help"
	cbStats         = "stats"
	cbAbout         = "about"
	cbSetThumb      = "set_thumb"
	cbRemoveThumb   = "remove_thumb"
	cbSetChannel    = "set_channel"
	cbRemoveChannel = "remove_channel"
	cbSetCaption    = "set_caption"
	cbRemoveCaption = "remove_caption"
	cbQualityPrefix = "quality_"
)

func (b *Bot) handleCommand(ctx context.Context, log logging.Logger, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.pending.Cancel(userID)
		name := msg.From.UserName
		if name == "" {
			name = msg.From.FirstName
		}
		if err := b.users.AddUser(ctx, userID, name); err != nil {
			log.Warn(ctx, "adding user", "error", err)
		}
		b.sendMarkup(ctx, chatID, welcomeText(msg.From.FirstName, b.settings.BotName), startKeyboard())

	case "help":
		b.reply(ctx, chatID, helpText())

	case "about":
		b.reply(ctx, chatID, aboutText(b.settings.BotName, b.settings.Developer, b.settings.Support))

	case "settings":
		p := b.prefs.Get(userID)
		b.sendMarkup(ctx, chatID, settingsText(p), settingsKeyboard(p))

	case "stats":
		if !b.isOwner(userID) {
			b.reply(ctx, chatID, textOwnerOnly)
			return
		}
		b.reply(ctx, chatID, b.statsReport(ctx))

	case "broadcast":
		if !b.isOwner(userID) {
			b.reply(ctx, chatID, textOwnerOnly)
			return
		}
		b.broadcast(ctx, log, msg, args)

	case "set_thumbnail":
		if reply := msg.ReplyToMessage; reply != nil && len(reply.Photo) > 0 {
			b.prefs.SetThumbnail(userID, pickThumbnail(reply.Photo))
			b.reply(ctx, chatID, textThumbnailSet)
			return
		}
		b.pending.Expect(userID, prefs.AwaitThumbnail)
		b.reply(ctx, chatID, textAskThumbnail)

	case "remove_thumbnail":
		b.prefs.SetThumbnail(userID, "")
		b.reply(ctx, chatID, textThumbnailRemoved)

	case "set_channel":
		if args == "" {
			b.pending.Expect(userID, prefs.AwaitChannel)
			b.reply(ctx, chatID, textAskChannel)
			return
		}
		b.setChannel(ctx, userID, chatID, args)

	case "remove_channel":
		b.prefs.SetChannel(userID, "")
		b.reply(ctx, chatID, textChannelRemoved)

	case "set_caption":
		if args == "" {
			b.pending.Expect(userID, prefs.AwaitCaption)
			b.reply(ctx, chatID, textAskCaption)
			return
		}
		b.prefs.SetCaption(userID, args)
		b.reply(ctx, chatID, textCaptionSet)

	case "remove_caption":
		b.prefs.SetCaption(userID, "")
		b.reply(ctx, chatID, textCaptionRemoved)

	case "set_quality":
		q, err := media.ParseQuality(args)
		if err != nil {
			b.reply(ctx, chatID, textBadQuality)
			return
		}
		b.prefs.SetQuality(userID, q)
		b.reply(ctx, chatID, "✅ Quality set to "+q.String()+"p")

	case "cancel":
		if b.pending.Cancel(userID) {
			b.reply(ctx, chatID, textCancelled)
		} else {
			b.reply(ctx, chatID, textNothingToCancel)
		}

	default:
		b.reply(ctx, chatID, textHint)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	userID := cq.From.ID
	chatID, messageID := cq.Message.Chat.ID, cq.Message.MessageID

	if err := b.authorize(userID); err != nil {
		b.answer(ctx, cq.ID, "⛔ Not authorized")
		return
	}
	b.touch(ctx, userID)

	var toast string
	switch data := cq.Data; {
	case data == cbStart:
		b.editMarkup(ctx, chatID, messageID, welcomeText(cq.From.FirstName, b.settings.BotName), startKeyboard())

	case data == cbHelp:
		b.editMarkup(ctx, chatID, messageID, helpText(), backKeyboard())

	case data == cbAbout:
		b.editMarkup(ctx, chatID, messageID,
			aboutText(b.settings.BotName, b.settings.Developer, b.settings.Support), backKeyboard())

	case data == cbStats:
		if !b.isOwner(userID) {
			toast = textOwnerOnly
			break
		}
		b.editMarkup(ctx, chatID, messageID, b.statsReport(ctx), backKeyboard())

	case data == cbSettings:
		b.showSettings(ctx, userID, chatID, messageID)

	case data == cbSetThumb:
		b.pending.Expect(userID, prefs.AwaitThumbnail)
		b.reply(ctx, chatID, textAskThumbnail)

	case data == cbSetChannel:
		b.pending.Expect(userID, prefs.AwaitChannel)
		b.reply(ctx, chatID, textAskChannel)

	case data == cbSetCaption:
		b.pending.Expect(userID, prefs.AwaitCaption)
		b.reply(ctx, chatID, textAskCaption)

	case data == cbRemoveThumb:
		b.prefs.SetThumbnail(userID, "")
		toast = textThumbnailRemoved
		b.showSettings(ctx, userID, chatID, messageID)

	case data == cbRemoveChannel:
		b.prefs.SetChannel(userID, "")
		toast = textChannelRemoved
		b.showSettings(ctx, userID, chatID, messageID)

	case data == cbRemoveCaption:
		b.prefs.SetCaption(userID, "")
		toast = textCaptionRemoved
		b.showSettings(ctx, userID, chatID, messageID)

	case strings.HasPrefix(data, cbQualityPrefix):
		q, err := media.ParseQuality(strings.TrimPrefix(data, cbQualityPrefix))
		if err != nil {
			toast = textBadQuality
			break
		}
		b.prefs.SetQuality(userID, q)
		toast = "✅ Quality set to " + q.String() + "p"
		b.showSettings(ctx, userID, chatID, messageID)
	}

	b.answer(ctx, cq.ID, toast)
}

func (b *Bot) showSettings(ctx context.Context, userID, chatID int64, messageID int) {
	p := b.prefs.Get(userID)
	b.editMarkup(ctx, chatID, messageID, settingsText(p), settingsKeyboard(p))
}

// handlePhoto completes a pending thumbnail prompt.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	if b.pending.Peek(userID) != prefs.AwaitThumbnail {
		b.reply(ctx, chatID, textPhotoWithoutAsk)
		return
	}
	b.pending.Take(userID)
	b.prefs.SetThumbnail(userID, pickThumbnail(msg.Photo))
	b.reply(ctx, chatID, textThumbnailSet)
}

// handleText completes a pending channel or caption prompt, or treats the
// text as a direct link.
func (b *Bot) handleText(ctx context.Context, log logging.Logger, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch b.pending.Peek(userID) {
	case prefs.AwaitChannel:
		b.pending.Take(userID)
		b.setChannel(ctx, userID, chatID, text)
		return
	case prefs.AwaitCaption:
		b.pending.Take(userID)
		b.prefs.SetCaption(userID, text)
		b.reply(ctx, chatID, textCaptionSet)
		return
	}

	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		b.handleLink(ctx, log, msg, strings.Fields(text)[0])
		return
	}
	b.reply(ctx, chatID, textHint)
}

func (b *Bot) setChannel(ctx context.Context, userID, chatID int64, raw string) {
	channel, ok := normalizeChannel(raw)
	if !ok {
		b.reply(ctx, chatID, textBadChannel)
		return
	}
	b.prefs.SetChannel(userID, channel)
	b.reply(ctx, chatID, "✅ Channel set to "+channel)
}

// normalizeChannel accepts "@name", "t.me/name" links and numeric chat IDs.
func normalizeChannel(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(s, prefix) {
			s = "@" + strings.TrimPrefix(s, prefix)
			break
		}
	}

	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, id < 0
	}

	name, ok := strings.CutPrefix(s, "@")
	if !ok || len(name) < 4 || len(name) > 32 {
		return "", false
	}
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", false
		}
	}
	return s, true
}

// pickThumbnail chooses the largest photo size that fits the thumbnail limit,
// or the smallest one when none does.
func pickThumbnail(sizes []tgbotapi.PhotoSize) string {
	best := -1
	for i, ps := range sizes {
		if ps.FileSize > 0 && ps.FileSize <= maxThumbnailSize &&
			(best < 0 || ps.Width*ps.Height > sizes[best].Width*sizes[best].Height) {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	return sizes[best].FileID
}

func (b *Bot) statsReport(ctx context.Context) string {
	recs, err := b.users.ListUsers(ctx)
	if err != nil {
		b.log.Warn(ctx, "listing users", "error", err)
	}
	var downloads uint64
	for _, r := range recs {
		downloads += r.TotalDownloads
	}
	snap := b.counters.Snapshot()
	return statsText(len(recs), snap.VideosProcessed, downloads, snap.Uptime)
}

// broadcast copies the replied-to message, or sends args as text, to every
// known user. A rate-limited send is retried once after the mandated wait.
func (b *Bot) broadcast(ctx context.Context, log logging.Logger, msg *tgbotapi.Message, text string) {
	chatID := msg.Chat.ID
	reply := msg.ReplyToMessage
	if reply == nil && text == "" {
		b.reply(ctx, chatID, "ℹ️ Usage: /broadcast <message>, or reply to a message with /broadcast")
		return
	}

	ids, err := b.users.AllUsers(ctx)
	if err != nil {
		log.Error(ctx, "loading broadcast recipients", "error", err)
		b.reply(ctx, chatID, textGenericError)
		return
	}

	status := b.reply(ctx, chatID, "📢 Broadcasting to "+strconv.Itoa(len(ids))+" users...")
	b.counters.Broadcast()

	send := func(to int64) error {
		if reply != nil {
			return b.transport.Copy(ctx, to, chatID, reply.MessageID)
		}
		_, err := b.transport.Send(ctx, to, text)
		return err
	}

	var success, failed int
	for i, id := range ids {
		err := send(id)
		if wait, limited := common.RetryAfter(err); limited {
			if b.sleep(ctx, wait) == nil {
				err = send(id)
			}
		}
		if err != nil {
			log.Debug(ctx, "broadcast delivery failed", "to", id, "error", err)
			failed++
		} else {
			success++
		}

		if ctx.Err() != nil {
			break
		}
		if i < len(ids)-1 && b.settings.BroadcastDelay > 0 {
			if b.sleep(ctx, b.settings.BroadcastDelay) != nil {
				break
			}
		}
	}

	log.Info(ctx, "broadcast finished", "success", success, "failed", failed)
	summary := broadcastSummary(success, failed)
	if status == nil || status.Edit(ctx, summary) != nil {
		b.reply(ctx, chatID, summary)
	}
}

func (b *Bot) sendMarkup(ctx context.Context, chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if err := b.transport.SendMarkup(chatID, text, markup); err != nil {
		b.log.Warn(ctx, "sending message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) editMarkup(ctx context.Context, chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if err := b.transport.EditMarkup(chatID, messageID, text, markup); err != nil {
		b.log.Warn(ctx, "editing message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.transport.Answer(callbackID, text); err != nil {
		b.log.Debug(ctx, "answering callback", "error", err)
	}
}
