// Package export renders comparison tables and metric sets for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/esgcompare/internal/metric"
	"github.com/dgallion1/esgcompare/internal/reconcile"
)

// Format is an output encoding.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts json, csv or xlsx, case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return JSON, nil
	case JSON, CSV, XLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Ext returns the file extension of the format, with the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// NotReported is the text written for a document that named a metric
// without giving a value.
const NotReported = "not reported"

// Table writes t to w in format f.
func Table(w io.Writer, t reconcile.Table, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case CSV:
		return tableCSV(w, t)
	case XLSX:
		data, err := TableXLSX(t)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

func tableHeader(t reconcile.Table) []string {
	header := []string{"Pillar", "Category", "Metric", "Unit", "Period"}
	for _, c := range t.Columns {
		header = append(header, c.Name)
	}
	return header
}

func tableCSV(w io.Writer, t reconcile.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader(t)); err != nil {
		return err
	}
	for _, row := range t.Rows {
		rec := []string{string(row.Pillar), row.Category, row.DisplayLabel, row.Unit, row.Period}
		for _, cell := range row.Cells {
			rec = append(rec, cellText(cell, row.Unit))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cellText renders a cell; the unit is spelled out only when it differs
// from the row's.
func cellText(c reconcile.Cell, rowUnit string) string {
	switch c.State {
	case reconcile.CellValue:
		s := formatValue(c.Value)
		if c.Unit != "" && c.Unit != rowUnit {
			s += " " + c.Unit
		}
		return s
	case reconcile.CellNotReported:
		return NotReported
	default:
		return ""
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Set writes one document's normalized records to w in format f.
func Set(w io.Writer, s metric.Set, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case CSV:
		return setCSV(w, s)
	case XLSX:
		data, err := SetXLSX(s)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

var setHeader = []string{"Category", "Metric", "State", "Value", "Unit", "Period", "Page", "Raw label", "Raw value", "Raw unit", "Issues"}

func setRow(r metric.Record) []string {
	value := ""
	if r.State == metric.Reported {
		value = formatValue(r.Value)
	}
	page := ""
	if r.Page > 0 {
		page = strconv.Itoa(r.Page)
	}
	return []string{
		r.Category, r.DisplayLabel, string(r.State), value, r.Unit, r.Period, page,
		r.RawLabel, r.RawValue, r.RawUnit, strings.Join(r.Issues, "; "),
	}
}

func setCSV(w io.Writer, s metric.Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(setHeader); err != nil {
		return err
	}
	for _, r := range s.Records {
		if err := cw.Write(setRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
