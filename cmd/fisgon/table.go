package main

import (
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// shortIDLength is the number of ID characters shown in tables. Any
// unique prefix is accepted where a session ID is expected.
const shortIDLength = 8

// newTable returns a table writer rendering to out.
func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func shortID(id string) string {
	return id[:min(shortIDLength, len(id))]
}

// formatTime renders t relative to now, or "-" for a nil time.
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

// ellipsis cuts s to n runes.
func ellipsis(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}
