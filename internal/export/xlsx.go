package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/esgcompare/internal/metric"
	"github.com/dgallion1/esgcompare/internal/reconcile"
)

const (
	comparisonSheet = "Comparison"
	documentsSheet  = "Documents"
	metricsSheet    = "Metrics"
)

// TableXLSX returns the comparison as an XLSX workbook. Values are numeric
// cells so the sheet can be charted and summed.
func TableXLSX(t reconcile.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := useSheet(f, comparisonSheet); err != nil {
		return nil, err
	}
	writeRow(f, comparisonSheet, 1, toAny(tableHeader(t)))
	for i, row := range t.Rows {
		vals := []any{string(row.Pillar), row.Category, row.DisplayLabel, row.Unit, row.Period}
		for _, cell := range row.Cells {
			switch {
			case cell.State == reconcile.CellValue && (cell.Unit == "" || cell.Unit == row.Unit):
				vals = append(vals, cell.Value)
			default:
				vals = append(vals, cellText(cell, row.Unit))
			}
		}
		writeRow(f, comparisonSheet, i+2, vals)
	}
	_ = f.SetColWidth(comparisonSheet, "A", "B", 18)
	_ = f.SetColWidth(comparisonSheet, "C", "C", 40)
	_ = f.SetColWidth(comparisonSheet, "D", "E", 12)
	if n := len(t.Columns); n > 0 {
		first, _ := excelize.ColumnNumberToName(6)
		last, _ := excelize.ColumnNumberToName(5 + n)
		_ = f.SetColWidth(comparisonSheet, first, last, 20)
	}

	if _, err := f.NewSheet(documentsSheet); err != nil {
		return nil, err
	}
	writeRow(f, documentsSheet, 1, []any{"Document", "Fingerprint"})
	for i, c := range t.Columns {
		writeRow(f, documentsSheet, i+2, []any{c.Name, c.Fingerprint.String()})
	}
	_ = f.SetColWidth(documentsSheet, "A", "A", 40)
	_ = f.SetColWidth(documentsSheet, "B", "B", 70)

	return write(f)
}

// SetXLSX returns one document's records as an XLSX workbook.
func SetXLSX(s metric.Set) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := useSheet(f, metricsSheet); err != nil {
		return nil, err
	}
	writeRow(f, metricsSheet, 1, toAny(setHeader))
	for i, r := range s.Records {
		vals := toAny(setRow(r))
		if r.State == metric.Reported {
			vals[3] = r.Value
		}
		if r.Page > 0 {
			vals[6] = r.Page
		}
		writeRow(f, metricsSheet, i+2, vals)
	}
	_ = f.SetColWidth(metricsSheet, "A", "A", 18)
	_ = f.SetColWidth(metricsSheet, "B", "B", 40)
	_ = f.SetColWidth(metricsSheet, "H", "H", 40)
	return write(f)
}

// useSheet renames the default sheet and makes it active.
func useSheet(f *excelize.File, name string) error {
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	index, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, vals []any) {
	for i, v := range vals {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func write(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
