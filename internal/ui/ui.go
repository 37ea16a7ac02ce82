// Package ui renders command output. On a terminal it draws styled tables
// with lipgloss; otherwise it writes plain tab-separated lines that are easy
// to pipe into other tools.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Printer writes either styled or plain output.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter styles output only when f is a terminal.
func NewPrinter(f *os.File) *Printer {
	return &Printer{w: f, styled: term.IsTerminal(int(f.Fd()))}
}

// NewPlainPrinter never styles. Used for pipes and in tests.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Styled reports whether output is decorated.
func (p *Printer) Styled() bool {
	return p.styled
}

// Title prints a heading line.
func (p *Printer) Title(s string) {
	if p.styled {
		fmt.Fprintln(p.w, titleStyle.Render(s))
		return
	}
	fmt.Fprintln(p.w, s)
}

// Table prints rows under headers. Plain output omits the header row and
// strips tabs and newlines from cells so each row stays one line.
func (p *Printer) Table(headers []string, rows [][]string) {
	if !p.styled {
		for _, row := range rows {
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = strings.NewReplacer("\t", " ", "\n", " ").Replace(c)
			}
			fmt.Fprintln(p.w, strings.Join(cells, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(p.w, t.Render())
}

// Fields prints label/value pairs, one per line.
func (p *Printer) Fields(pairs ...[2]string) {
	width := 0
	for _, kv := range pairs {
		width = max(width, len(kv[0]))
	}
	for _, kv := range pairs {
		label := kv[0] + ":"
		if p.styled {
			label = headerStyle.UnsetPadding().Render(label)
		}
		fmt.Fprintf(p.w, "%s%s %s\n", label, strings.Repeat(" ", width-len(kv[0])), kv[1])
	}
}
