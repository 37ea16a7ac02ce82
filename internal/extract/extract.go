// Package extract turns user-supplied batch sources into ordered link entries.
// Parsing is heuristic and tolerant: malformed input yields fewer entries,
// never an error.
package extract

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"linkrelay/internal/media"
)

var (
	// titleURLPattern finds the colon that joins a title to its URL.
	titleURLPattern = regexp.MustCompile(`:\s*https?://`)

	// salvagePattern matches any URL-looking token anywhere in the text.
	salvagePattern = regexp.MustCompile(`https?://[^\s]+`)

	// bulletPattern strips list decorations ("1.", "2)", "-", "*", "•", ">") before a URL.
	bulletPattern = regexp.MustCompile(`^(?:\d+[.)]|[-*•>])\s*`)
)

// Source extracts entries from an uploaded file, picking the HTML parser for
// .html/.htm names and the line-oriented text parser otherwise.
func Source(name string, data []byte) []media.LinkEntry {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		if entries := HTML(bytes.NewReader(data)); len(entries) > 0 {
			return entries
		}
	}
	return Links(string(data))
}

// Links parses a text blob. Layers are tried in order and the first one that
// yields entries wins: line scan, paired blocks, then URL salvage.
func Links(text string) []media.LinkEntry {
	text = strings.TrimPrefix(text, "\uFEFF")
	lines := strings.Split(strings.TrimSpace(text), "\n")

	if entries := scanLines(lines); len(entries) > 0 {
		return entries
	}
	if entries := scanPairs(lines); len(entries) > 0 {
		return entries
	}
	return salvage(text)
}

// scanLines handles "title:url" lines and bare URL lines. A "Title: ..." line
// directly following a bare URL names that URL.
func scanLines(lines []string) []media.LinkEntry {
	var entries []media.LinkEntry
	untitled := -1 // index of a bare URL entry still waiting for a Title: line

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if hasScheme(line) {
			entries = append(entries, media.LinkEntry{
				URL:   line,
				Title: media.PlaceholderTitle(len(entries) + 1),
			})
			untitled = len(entries) - 1
			continue
		}

		if loc := titleURLPattern.FindStringIndex(line); loc != nil {
			title := strings.TrimSpace(line[:loc[0]])
			url := strings.TrimSpace(line[loc[0]+1:])
			if title == "" {
				title = media.PlaceholderTitle(len(entries) + 1)
			}
			entries = append(entries, media.LinkEntry{URL: url, Title: title})
			untitled = -1
			continue
		}

		if title, ok := titleLine(line); ok && untitled >= 0 {
			if title != "" {
				entries[untitled].Title = title
			}
			untitled = -1
		}
	}

	return entries
}

// scanPairs treats the input as blocks: a URL line (optionally decorated with a
// list bullet) opens an entry and the next "Title: ..." or plain text line names it.
func scanPairs(lines []string) []media.LinkEntry {
	var (
		entries []media.LinkEntry
		url     string
		title   string
	)

	flush := func() {
		if url == "" {
			return
		}
		if title == "" {
			title = media.PlaceholderTitle(len(entries) + 1)
		}
		entries = append(entries, media.LinkEntry{URL: url, Title: title})
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if candidate := bulletPattern.ReplaceAllString(line, ""); hasScheme(candidate) {
			flush()
			url, title = strings.Fields(candidate)[0], ""
			continue
		}

		if t, ok := titleLine(line); ok {
			title = t
			continue
		}

		if url != "" && title == "" {
			title = line
		}
	}
	flush()

	return entries
}

// salvage pulls every URL-looking token out of the text.
func salvage(text string) []media.LinkEntry {
	urls := salvagePattern.FindAllString(text, -1)
	entries := make([]media.LinkEntry, 0, len(urls))
	for i, u := range urls {
		entries = append(entries, media.LinkEntry{URL: u, Title: media.PlaceholderTitle(i + 1)})
	}
	return entries
}

func hasScheme(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// titleLine recognises "Title: <text>" (case-insensitive).
func titleLine(line string) (string, bool) {
	if len(line) < len("title:") || !strings.EqualFold(line[:len("title:")], "title:") {
		return "", false
	}
	return strings.TrimSpace(line[len("title:"):]), true
}
