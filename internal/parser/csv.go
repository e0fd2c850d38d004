package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/esgcompare/internal/document"
)

// CSVParser handles CSV files, typically an ESG data table exported from a
// report. Rows are rendered as pipe-separated lines under the header row.
type CSVParser struct{}

const csvBatchSize = 40

func (p *CSVParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := &document.Document{Source: filename, Title: titleFromName(filename)}
	if len(records) == 0 {
		return doc, nil
	}

	// First row is headers; repeat them in every batch so each part stands
	// alone.
	header := tableRow(records[0])
	dataRows := records[1:]

	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := i + csvBatchSize
		if end > len(dataRows) {
			end = len(dataRows)
		}

		var text strings.Builder
		text.WriteString(header)
		for _, row := range dataRows[i:end] {
			if line := tableRow(row); line != "" {
				text.WriteString("\n")
				text.WriteString(line)
			}
		}

		doc.Segments = append(doc.Segments, document.Segment{
			Text:    text.String(),
			Section: []string{fmt.Sprintf("Rows %d-%d", i+2, end+1)}, // 1-indexed, skip header
		})
	}
	return doc, nil
}
