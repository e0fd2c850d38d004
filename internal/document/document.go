package document

import "strings"

// Document is the extracted text of one disclosure file.
type Document struct {
	Source   string    // Original file name
	Title    string    // Title from metadata, or the file name without extension
	Segments []Segment // Text in reading order
}

// Segment is a run of text with its position in the source.
type Segment struct {
	Text    string   // Segment text
	Page    int      // Source page (0 if N/A)
	Section []string // Heading path, e.g. ["Environment", "Climate", "Emissions"]
}

// Text joins every segment in order.
func (d *Document) Text() string {
	var sb strings.Builder
	for _, s := range d.Segments {
		if s.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Pages returns the highest page number seen, or 0 for unpaged formats.
func (d *Document) Pages() int {
	n := 0
	for _, s := range d.Segments {
		if s.Page > n {
			n = s.Page
		}
	}
	return n
}

// Chunk is one part of a document sent to the extraction service.
type Chunk struct {
	Text      string   // Chunk text content
	Index     int      // Sequence number within document
	Section   []string // Heading path of the first segment in the chunk
	PageStart int
	PageEnd   int
}
