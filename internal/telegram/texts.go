package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"linkrelay/internal/media"
)

const (
	textUnauthorized = "⛔ You are not authorized to use this bot.\n\nContact the owner for access."
	textOwnerOnly    = "⛔ This command is for the bot owner only."
	textGenericError = "❌ Something went wrong. Please try again later."
	textUnknownFile  = "❌ Please send a .txt or .html file with video links."
	textNoLinks      = "❌ No valid video links found in the file!"
	textHint         = "ℹ️ Send me a .txt file with video links, or a direct video URL.\n\nUse /help for details."

	textCancelled       = "✅ Cancelled."
	textNothingToCancel = "ℹ️ Nothing to cancel."

	textAskThumbnail = "🖼 Send me the image to use as the video thumbnail.\n\nSend /cancel to abort."
	textAskChannel   = "📢 Send me the channel to upload to, as @username or numeric ID.\nThe bot must be an admin there.\n\nSend /cancel to abort."
	textAskCaption   = "📝 Send me the caption template.\n\nPlaceholders: {title}, {index}\nSend /cancel to abort."

	textThumbnailSet     = "✅ Thumbnail saved!"
	textThumbnailRemoved = "✅ Thumbnail removed."
	textChannelRemoved   = "✅ Channel removed. Videos will be sent here."
	textCaptionSet       = "✅ Caption saved!"
	textCaptionRemoved   = "✅ Caption reset to default."
	textBadChannel       = "❌ Invalid channel. Use @username or a numeric ID such as -1001234567890."
	textBadQuality       = "❌ Invalid quality. Choose one of: 360, 480, 720, 1080."
	textPhotoWithoutAsk  = "ℹ️ To use this image as a thumbnail, send /set_thumbnail first."
)

func welcomeText(firstName, botName string) string {
	return fmt.Sprintf(`👋 Hello %s!

I am @%s. I download videos from links and upload them back to you.

📄 Send a .txt or .html file with links to process a batch.
🔗 Send a single video URL to download it directly.

Use the buttons below to get started.`, firstName, botName)
}

func helpText() string {
	return `📖 How to use

1️⃣ Batch download
Send a .txt file where each line is one of:
  Title:https://example.com/video.m3u8
  https://example.com/video.mp4
Lines starting with # are ignored. A "Title: ..." line right after a URL names it.
HTML files are accepted too; every link becomes an entry.

2️⃣ Direct link
Send a video URL and it is downloaded and uploaded right away.

⚙️ Settings
/settings - view and change your preferences
/set_thumbnail - reply to an image or send one after
/set_channel @channel - upload to a channel
/set_caption text - custom caption with {title} and {index}
/set_quality 720 - 360, 480, 720 or 1080
/remove_thumbnail, /remove_channel, /remove_caption
/cancel - abort a pending prompt`
}

func aboutText(botName, developer, support string) string {
	return fmt.Sprintf(`ℹ️ About

🤖 Bot: @%s
👨‍💻 Developer: %s
💬 Support: %s

⚙️ Engine: yt-dlp + ffmpeg`, botName, developer, support)
}

func settingsText(p media.UserPreferences) string {
	var b strings.Builder
	b.WriteString("⚙️ Your Settings\n\n")

	if p.ThumbnailRef != "" {
		b.WriteString("🖼 Thumbnail: ✅ Set\n")
	} else {
		b.WriteString("🖼 Thumbnail: ❌ Not set\n")
	}
	if p.Channel != "" {
		fmt.Fprintf(&b, "📢 Channel: %s\n", p.Channel)
	} else {
		b.WriteString("📢 Channel: ❌ Not set\n")
	}
	if p.CaptionTemplate != "" {
		fmt.Fprintf(&b, "📝 Caption: %s\n", p.CaptionTemplate)
	} else {
		b.WriteString("📝 Caption: Default\n")
	}
	fmt.Fprintf(&b, "🎬 Quality: %sp", p.Quality)
	return b.String()
}

func statsText(users int, videos int64, downloads uint64, uptime string) string {
	return fmt.Sprintf(`📊 Bot Statistics

👥 Total Users: %d
📹 Videos Processed: %d
⬇️ Total Downloads: %d
⏱ Uptime: %s`, users, videos, downloads, uptime)
}

func broadcastSummary(success, failed int) string {
	return fmt.Sprintf("📢 Broadcast complete!\n\n✅ Success: %d\n❌ Failed: %d", success, failed)
}

func startKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Settings", cbSettings),
			tgbotapi.NewInlineKeyboardButtonData("📊 Stats", cbStats),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📖 Help", cbHelp),
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ About", cbAbout),
		),
	)
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Back", cbStart)),
	)
}

func settingsKeyboard(p media.UserPreferences) tgbotapi.InlineKeyboardMarkup {
	qualities := make([]tgbotapi.InlineKeyboardButton, 0, len(media.Qualities))
	for _, q := range media.Qualities {
		label := q.String() + "p"
		if q == p.Quality {
			label = "✅ " + label
		}
		qualities = append(qualities, tgbotapi.NewInlineKeyboardButtonData(label, cbQualityPrefix+q.String()))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🖼 Set Thumbnail", cbSetThumb),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Remove", cbRemoveThumb),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📢 Set Channel", cbSetChannel),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Remove", cbRemoveChannel),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Set Caption", cbSetCaption),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Remove", cbRemoveCaption),
		),
		qualities,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Back", cbStart)),
	)
}
