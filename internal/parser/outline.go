package parser

import (
	"path/filepath"
	"strings"

	"github.com/dgallion1/esgcompare/internal/document"
)

// outline accumulates text under a heading stack and emits one segment per
// run of text between headings.
type outline struct {
	doc   *document.Document
	stack []heading
	text  strings.Builder
	page  int
}

type heading struct {
	title string
	level int
}

func newOutline(filename string) *outline {
	return &outline{doc: &document.Document{Source: filename, Title: titleFromName(filename)}}
}

// heading closes the current run and opens a section at level.
func (o *outline) heading(level int, title string) {
	o.flush()
	for len(o.stack) > 0 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	o.stack = append(o.stack, heading{title: title, level: level})
}

// add appends a paragraph to the current run.
func (o *outline) add(t string) {
	o.write(t, "\n\n")
}

// addLine appends a line, such as a table row, to the current run.
func (o *outline) addLine(t string) {
	o.write(t, "\n")
}

func (o *outline) write(t, sep string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if o.text.Len() > 0 {
		o.text.WriteString(sep)
	}
	o.text.WriteString(t)
}

func (o *outline) flush() {
	t := strings.TrimSpace(o.text.String())
	o.text.Reset()
	if t == "" {
		return
	}
	var section []string
	for _, h := range o.stack {
		section = append(section, h.title)
	}
	o.doc.Segments = append(o.doc.Segments, document.Segment{Text: t, Page: o.page, Section: section})
}

func (o *outline) done() *document.Document {
	o.flush()
	return o.doc
}

func titleFromName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// tableRow renders table cells as one pipe-separated line.
func tableRow(cells []string) string {
	var kept []string
	for _, c := range cells {
		c = strings.Join(strings.Fields(c), " ")
		kept = append(kept, c)
	}
	line := strings.Join(kept, " | ")
	if strings.Trim(line, " |") == "" {
		return ""
	}
	return line
}
