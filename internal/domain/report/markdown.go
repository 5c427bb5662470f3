// Package report renders trace entries as a markdown document.
package report

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/lighttrace/internal/domain/model"
)

// Title is the first line of every report.
const Title = "# LightTrace Report"

// EmptyPlaceholder is written instead of tables when there are no entries.
const EmptyPlaceholder = "_No trace entries captured._"

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// cellEscaper keeps recorded text literal: table pipes, inline HTML, entity
// references and link brackets are backslash-escaped, line breaks flattened.
var cellEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"<", `\<`,
	">", `\>`,
	"&", `\&`,
	"[", `\[`,
	"]", `\]`,
	"\r\n", " ", "\n", " ", "\r", " ",
)

// Markdown renders entries in the given order. The output depends only on
// the input, so the same sequence always yields the same bytes.
func Markdown(entries []model.Entry) string {
	var b strings.Builder
	b.WriteString(Title)
	b.WriteString("\n\n")

	if len(entries) == 0 {
		b.WriteString(EmptyPlaceholder)
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("Total entries: ")
	b.WriteString(strconv.Itoa(len(entries)))
	b.WriteString("\n\n")

	writeSummary(&b, entries)
	writeEntries(&b, entries)
	return b.String()
}

type categoryStats struct {
	count int
	total time.Duration
	max   time.Duration
}

func writeSummary(b *strings.Builder, entries []model.Entry) {
	stats := make(map[string]*categoryStats)
	for i := range entries {
		s, ok := stats[entries[i].Category]
		if !ok {
			s = &categoryStats{}
			stats[entries[i].Category] = s
		}
		s.count++
		s.total += entries[i].Duration
		if entries[i].Duration > s.max {
			s.max = entries[i].Duration
		}
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Count | Total (ms) | Max (ms) |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, name := range names {
		s := stats[name]
		writeRow(b, cell(name), strconv.Itoa(s.count), millis(s.total), millis(s.max))
	}
	b.WriteString("\n")
}

func writeEntries(b *strings.Builder, entries []model.Entry) {
	b.WriteString("## Entries\n\n")
	b.WriteString("| # | Time | Category | Operation | Status | Duration (ms) | Details |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i := range entries {
		e := &entries[i]
		writeRow(b,
			strconv.Itoa(i+1),
			e.Timestamp.UTC().Format(timeLayout),
			cell(e.Category),
			cell(e.Operation),
			cell(e.Status),
			millis(e.Duration),
			cell(details(e)),
		)
	}
}

func writeRow(b *strings.Builder, cells ...string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(c)
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

// details joins the message and attributes sorted by key.
func details(e *model.Entry) string {
	parts := make([]string, 0, len(e.Attributes)+1)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+e.Attributes[k])
	}
	return strings.Join(parts, ", ")
}

func cell(s string) string {
	return cellEscaper.Replace(s)
}

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64)
}
