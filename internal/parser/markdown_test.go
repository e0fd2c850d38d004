package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestMarkdownParser_HeadingSections(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "doc" {
		t.Errorf("expected title %q, got %q", "doc", doc.Title)
	}
	if len(doc.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(doc.Segments))
	}

	want := []struct {
		text    string
		section []string
	}{
		{"Intro text.", []string{"Title"}},
		{"Section A content.", []string{"Title", "Section A"}},
		{"Subsection A1 content.", []string{"Title", "Section A", "Subsection A1"}},
		{"Section B content.", []string{"Title", "Section B"}},
	}
	for i, w := range want {
		seg := doc.Segments[i]
		if seg.Text != w.text {
			t.Errorf("segment[%d]: expected text %q, got %q", i, w.text, seg.Text)
		}
		if !reflect.DeepEqual(seg.Section, w.section) {
			t.Errorf("segment[%d]: expected section %v, got %v", i, w.section, seg.Section)
		}
	}
}

func TestMarkdownParser_NoHeadings(t *testing.T) {
	input := `Just some plain text.

Another paragraph here.`

	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Segments) != 1 {
		t.Fatalf("expected 1 segment for headingless markdown, got %d", len(doc.Segments))
	}
	text := doc.Segments[0].Text
	if text != "Just some plain text.\n\nAnother paragraph here." {
		t.Errorf("unexpected text %q", text)
	}
	if len(doc.Segments[0].Section) != 0 {
		t.Errorf("expected no section, got %v", doc.Segments[0].Section)
	}
}

func TestMarkdownParser_Table(t *testing.T) {
	input := "# Environment\n\n| Metric | 2023 | Unit |\n| --- | --- | --- |\n| Scope 1 | 1,000 | tCO2e |\n| Water | N/A | ML |\n"

	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "esg.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(doc.Segments))
	}
	want := "Metric | 2023 | Unit\nScope 1 | 1,000 | tCO2e\nWater | N/A | ML"
	if doc.Segments[0].Text != want {
		t.Errorf("expected %q, got %q", want, doc.Segments[0].Text)
	}
}

func TestMarkdownParser_CodeBlock(t *testing.T) {
	input := "# Data\n\nList:\n\n```\nscope_1=1000\nscope_2=500\n```\n\nMore text after code.\n"

	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(input), "data.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(doc.Segments))
	}
	text := doc.Segments[0].Text
	if !strings.Contains(text, "scope_1=1000") {
		t.Errorf("expected code block content in text, got %q", text)
	}
	if !strings.Contains(text, "More text after code.") {
		t.Errorf("expected post-code text, got %q", text)
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	doc, err := p.Parse(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Segments) != 0 {
		t.Errorf("expected 0 segments for empty input, got %d", len(doc.Segments))
	}
}

func TestMarkdownParser_TitleStripping(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"readme.md", "readme"},
		{"notes.markdown", "notes"},
		{"dir/plain.md", "plain"},
	}
	p := &MarkdownParser{}
	for _, tt := range tests {
		doc, err := p.Parse(strings.NewReader("text"), tt.filename)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.filename, err)
		}
		if doc.Title != tt.want {
			t.Errorf("filename=%q: expected title %q, got %q", tt.filename, tt.want, doc.Title)
		}
	}
}
