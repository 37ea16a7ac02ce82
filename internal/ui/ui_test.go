package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlainTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Table([]string{"#", "Title", "URL"}, [][]string{
		{"1", "Intro", "https://a.com/x"},
		{"2", "Two\tparts\nhere", "https://b.com/y"},
	})

	want := "1\tIntro\thttps://a.com/x\n2\tTwo parts here\thttps://b.com/y\n"
	if buf.String() != want {
		t.Errorf("Table() = %q, want %q", buf.String(), want)
	}
}

func TestStyledTable(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf, styled: true}

	p.Table([]string{"Title"}, [][]string{{"Intro"}})

	out := buf.String()
	for _, want := range []string{"Title", "Intro"} {
		if !strings.Contains(out, want) {
			t.Errorf("styled table missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n") < 3 {
		t.Errorf("styled table should span several lines:\n%s", out)
	}
}

func TestPlainFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("Users")
	p.Fields([2]string{"Total", "3"}, [2]string{"Downloads", "12"})

	want := "Users\nTotal:     3\nDownloads: 12\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if p.Styled() {
		t.Error("plain printer reports styled")
	}
}
