package batch

import (
	"strconv"
	"strings"
)

// Captioner renders upload captions. Templates may use {title} and {index};
// the default caption may also use {developer} and {bot}.
type Captioner struct {
	Default   string
	Developer string
	BotName   string
}

// Render fills template, or the default caption when template is empty.
func (c Captioner) Render(template, title string, index int) string {
	if template == "" {
		template = c.Default
	}
	if template == "" {
		return title
	}
	r := strings.NewReplacer(
		"{title}", title,
		"{index}", strconv.Itoa(index),
		"{developer}", c.Developer,
		"{bot}", c.BotName,
	)
	return r.Replace(template)
}
