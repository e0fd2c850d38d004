package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/esgcompare/internal/document"
)

// TextParser handles plain text files. Text containing form feeds (as
// written by pdftotext) is numbered by page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := &document.Document{Source: filename, Title: titleFromName(filename)}

	pages := []string{string(src)}
	paged := strings.Contains(pages[0], "\f")
	if paged {
		pages = splitPages(pages[0])
	}
	for i, page := range pages {
		paras, err := paragraphs(page)
		if err != nil {
			return nil, err
		}
		n := 0
		if paged {
			n = i + 1
		}
		for _, para := range paras {
			doc.Segments = append(doc.Segments, document.Segment{Text: para, Page: n})
		}
	}
	return doc, nil
}

// paragraphs splits text on blank lines.
func paragraphs(text string) ([]string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []string
	var current strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out, scanner.Err()
}
