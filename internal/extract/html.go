package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"linkrelay/internal/media"
)

// HTML extracts every absolute http(s) anchor from an HTML document, in
// document order, titled by its anchor text. Unreadable input yields nil.
func HTML(r io.Reader) []media.LinkEntry {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil
	}

	var entries []media.LinkEntry
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !hasScheme(href) {
			return
		}

		title := strings.Join(strings.Fields(s.Text()), " ")
		if title == "" {
			title = strings.TrimSpace(s.AttrOr("title", ""))
		}
		if title == "" {
			title = media.PlaceholderTitle(len(entries) + 1)
		}
		entries = append(entries, media.LinkEntry{URL: href, Title: title})
	})

	return entries
}
