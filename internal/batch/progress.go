package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"linkrelay/internal/media"
)

// progressSink renders download progress into the item's status message.
type progressSink struct {
	msg   Message
	title string
}

func (s *progressSink) ReportProgress(ctx context.Context, p media.Progress) error {
	return s.msg.Edit(ctx, FormatProgress(s.title, p))
}

// FormatProgress renders a progress snapshot for a status message.
func FormatProgress(title string, p media.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Downloading: %s\n\n", title)
	fmt.Fprintf(&b, "Progress: %s\n", orNA(p.Percent))
	if p.Total > 0 {
		fmt.Fprintf(&b, "%s\n", bar(p.Downloaded, p.Total, 20))
		fmt.Fprintf(&b, "📊 %s / %s\n", humanize.IBytes(uint64(max(p.Downloaded, 0))), humanize.IBytes(uint64(p.Total)))
	}
	fmt.Fprintf(&b, "Speed: %s\n", orNA(p.Speed))
	fmt.Fprintf(&b, "ETA: %s", orNA(p.ETA))
	return b.String()
}

func bar(done, total int64, width int) string {
	filled := int(int64(width) * done / total)
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
