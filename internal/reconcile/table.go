package reconcile

import (
	"sort"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// CellState marks what a comparison cell holds.
type CellState string

const (
	CellValue       CellState = "value"
	CellNotReported CellState = "not_reported"
	CellEmpty       CellState = "empty"
)

// Column identifies one compared document.
type Column struct {
	Name        string             `json:"name"`
	Fingerprint metric.Fingerprint `json:"fingerprint"`
}

// Cell is one document's entry in a comparison row.
type Cell struct {
	State            CellState `json:"state"`
	Value            float64   `json:"value"`
	Unit             string    `json:"unit,omitempty"`
	UnitUnrecognized bool      `json:"unit_unrecognized,omitempty"`
	Period           string    `json:"period,omitempty"`
	Page             int       `json:"page,omitempty"`
	RawLabel         string    `json:"raw_label,omitempty"`
	RawValue         string    `json:"raw_value,omitempty"`
}

// Row is one metric found in at least two documents.
type Row struct {
	Label        string        `json:"label"`
	DisplayLabel string        `json:"display_label"`
	Category     string        `json:"category,omitempty"`
	Pillar       metric.Pillar `json:"pillar,omitempty"`
	Unit         string        `json:"unit,omitempty"`
	Period       string        `json:"period,omitempty"`
	Documents    int           `json:"documents"`
	Cells        []Cell        `json:"cells"`
}

// Table is the cross-document comparison. It is derived on demand and never
// stored.
type Table struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Reconcile builds the comparison table for the given documents. No
// documents yields an empty table. Documents sharing a fingerprint share the
// first one's column.
func (r *Reconciler) Reconcile(docs []Document) Table {
	docs = distinct(docs)
	t := Table{Columns: make([]Column, len(docs)), Rows: []Row{}}
	for i, d := range docs {
		t.Columns[i] = Column{Name: d.Name, Fingerprint: d.Set.Fingerprint}
	}
	if len(docs) == 0 {
		return t
	}

	// Records without a usable value never join a class; they only mark a
	// document as having named the metric.
	held := make([]map[string]metric.Record, len(docs))
	for i, d := range docs {
		held[i] = make(map[string]metric.Record)
		for _, rec := range d.Set.Records {
			if rec.State != metric.Reported && rec.CanonicalLabel != "" {
				held[i][rec.CanonicalLabel] = rec
			}
		}
	}

	for _, c := range r.Classes(docs) {
		if c.Documents() < 2 {
			continue
		}
		t.Rows = append(t.Rows, buildRow(c, len(docs), held))
	}

	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if pa, pb := pillarRank(a.Pillar), pillarRank(b.Pillar); pa != pb {
			return pa < pb
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return newerPeriod(a.Period, b.Period)
	})
	return t
}

func buildRow(c Class, ncols int, held []map[string]metric.Record) Row {
	row := Row{
		Label:        c.Label,
		DisplayLabel: c.DisplayLabel,
		Category:     c.Category,
		Pillar:       metric.PillarOf(c.Category),
		Documents:    c.Documents(),
		Cells:        make([]Cell, ncols),
	}
	for i := range row.Cells {
		row.Cells[i] = Cell{State: CellEmpty}
	}

	units := make(map[string]int)
	periods := make(map[string]int)
	for _, m := range c.Members {
		rec := m.Record
		row.Cells[m.Document] = Cell{
			State:            CellValue,
			Value:            rec.Value,
			Unit:             rec.Unit,
			UnitUnrecognized: rec.UnitUnrecognized,
			Period:           rec.Period,
			Page:             rec.Page,
			RawLabel:         rec.RawLabel,
		}
		units[rec.Unit]++
		if rec.Period != "" {
			periods[rec.Period]++
		}
	}
	row.Unit = mostFrequent(units, false)
	row.Period = mostFrequent(periods, true)

	for i := range row.Cells {
		if row.Cells[i].State != CellEmpty {
			continue
		}
		for _, l := range c.Labels {
			if rec, ok := held[i][l]; ok {
				row.Cells[i] = Cell{
					State:    CellNotReported,
					Unit:     rec.Unit,
					Period:   rec.Period,
					Page:     rec.Page,
					RawLabel: rec.RawLabel,
					RawValue: rec.RawValue,
				}
				break
			}
		}
	}
	return row
}

func pillarRank(p metric.Pillar) int {
	switch p {
	case metric.Environmental:
		return 0
	case metric.Social:
		return 1
	case metric.Governance:
		return 2
	}
	return 3
}

// FilterPillar returns a copy of the table holding only rows of one pillar.
func (t Table) FilterPillar(p metric.Pillar) Table {
	out := Table{Columns: t.Columns, Rows: []Row{}}
	for _, row := range t.Rows {
		if row.Pillar == p {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}
