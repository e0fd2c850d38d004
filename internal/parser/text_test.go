package parser

import (
	"strings"
	"testing"
)

func TestTextParser_BasicParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", doc.Title)
	}
	if len(doc.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(doc.Segments))
	}

	want := []string{
		"First paragraph line one.\nFirst paragraph line two.",
		"Second paragraph.",
		"Third paragraph.",
	}
	for i, w := range want {
		if doc.Segments[i].Text != w {
			t.Errorf("segment[%d]: expected %q, got %q", i, w, doc.Segments[i].Text)
		}
		if doc.Segments[i].Page != 0 {
			t.Errorf("segment[%d]: expected no page, got %d", i, doc.Segments[i].Page)
		}
	}
}

func TestTextParser_FormFeedsNumberPages(t *testing.T) {
	input := "Cover page.\fScope 1 emissions 1,000 tCO2e\n\nWater 20 ML\fAppendix."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "report.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(doc.Segments))
	}
	wantPages := []int{1, 2, 2, 3}
	for i, w := range wantPages {
		if doc.Segments[i].Page != w {
			t.Errorf("segment[%d]: expected page %d, got %d", i, w, doc.Segments[i].Page)
		}
	}
	if got := doc.Pages(); got != 3 {
		t.Errorf("expected 3 pages, got %d", got)
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "empty" {
		t.Errorf("expected title %q, got %q", "empty", doc.Title)
	}
	if len(doc.Segments) != 0 {
		t.Errorf("expected 0 segments for empty input, got %d", len(doc.Segments))
	}
}

func TestTextParser_MultipleBlankLines(t *testing.T) {
	// Runs of blank or whitespace-only lines never produce empty segments.
	input := "Para one.\n\n   \n\nPara two."
	p := &TextParser{}
	doc, err := p.Parse(strings.NewReader(input), "gaps.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(doc.Segments))
	}
}

func TestCSVParser_RepeatsHeaderPerBatch(t *testing.T) {
	var b strings.Builder
	b.WriteString("Metric,Value,Unit\n")
	for i := 0; i < csvBatchSize+5; i++ {
		b.WriteString("Scope 1 emissions,1000,tCO2e\n")
	}
	p := &CSVParser{}
	doc, err := p.Parse(strings.NewReader(b.String()), "data.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(doc.Segments))
	}
	for i, seg := range doc.Segments {
		if !strings.HasPrefix(seg.Text, "Metric | Value | Unit\n") {
			t.Errorf("segment[%d] missing header: %q", i, seg.Text)
		}
	}
	if got := doc.Segments[1].Section; len(got) != 1 || got[0] != "Rows 42-46" {
		t.Errorf("unexpected section %v", got)
	}
	if !strings.Contains(doc.Segments[0].Text, "Scope 1 emissions | 1000 | tCO2e") {
		t.Errorf("expected pipe-separated row, got %q", doc.Segments[0].Text)
	}
}

func TestCSVParser_Empty(t *testing.T) {
	p := &CSVParser{}
	doc, err := p.Parse(strings.NewReader(""), "empty.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Segments) != 0 {
		t.Errorf("expected no segments, got %d", len(doc.Segments))
	}
}

func TestForFile(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"a.txt", false},
		{"a.MD", false},
		{"a.csv", false},
		{"a.htm", false},
		{"a.pdf", false},
		{"a.docx", false},
		{"a.xlsx", true},
		{"noext", true},
	}
	for _, tt := range tests {
		_, err := ForFile(tt.name, Options{})
		if (err != nil) != tt.wantErr {
			t.Errorf("ForFile(%q): err=%v, wantErr=%v", tt.name, err, tt.wantErr)
		}
		if IsSupportedExtension(tt.name) == tt.wantErr {
			t.Errorf("IsSupportedExtension(%q) = %v", tt.name, !tt.wantErr)
		}
	}
}

func TestTableRow(t *testing.T) {
	if got := tableRow([]string{" Scope 1 ", "1,000", "tCO2e"}); got != "Scope 1 | 1,000 | tCO2e" {
		t.Errorf("got %q", got)
	}
	if got := tableRow([]string{"", "  ", ""}); got != "" {
		t.Errorf("expected empty row, got %q", got)
	}
}
