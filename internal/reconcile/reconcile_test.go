package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/esgcompare/internal/metric"
	"github.com/dgallion1/esgcompare/internal/normalize"
)

var norm = normalize.New(metric.DefaultSchema())

func doc(name string, raws ...metric.RawRecord) Document {
	return Document{Name: name, Set: norm.Normalize(raws, metric.Fingerprint("fp-"+name))}
}

func raw(label string, value any, unit string) metric.RawRecord {
	return metric.RawRecord{Label: label, Value: value, Unit: unit, Period: 2023.0}
}

func TestReconcile_SharedMetricFormsOneRow(t *testing.T) {
	table := New(0).Reconcile([]Document{
		doc("a", raw("Scope 1 GHG Emissions", 1000.0, "tCO2e")),
		doc("b", raw("Scope 1 GHG Emissions", 1500.0, "tCO2e")),
	})

	require.Len(t, table.Columns, 2)
	assert.Equal(t, "a", table.Columns[0].Name)
	assert.Equal(t, metric.Fingerprint("fp-b"), table.Columns[1].Fingerprint)

	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, "scope 1 ghg emissions", row.Label)
	assert.Equal(t, "Scope 1 GHG Emissions", row.DisplayLabel)
	assert.Equal(t, metric.GHGEmissions, row.Category)
	assert.Equal(t, metric.Environmental, row.Pillar)
	assert.Equal(t, normalize.UnitTCO2e, row.Unit)
	assert.Equal(t, "2023", row.Period)
	assert.Equal(t, 2, row.Documents)
	require.Len(t, row.Cells, 2)
	assert.Equal(t, CellValue, row.Cells[0].State)
	assert.Equal(t, 1000.0, row.Cells[0].Value)
	assert.Equal(t, CellValue, row.Cells[1].State)
	assert.Equal(t, 1500.0, row.Cells[1].Value)
}

func TestReconcile_SingleDocumentMetricDropped(t *testing.T) {
	table := New(0).Reconcile([]Document{
		doc("x", raw("Water Withdrawal (ML)", 200.0, "")),
		doc("y", raw("Scope 1 emissions", 5.0, "tCO2e")),
	})
	assert.Len(t, table.Columns, 2)
	assert.Empty(t, table.Rows)
	assert.True(t, table.Empty())
}

func TestReconcile_NotReportedKeptApart(t *testing.T) {
	r := New(0)
	docs := []Document{
		doc("a", raw("Scope 1 GHG Emissions", 1000.0, "tCO2e")),
		doc("b", raw("Scope 1 GHG Emissions", 1200.0, "tCO2e")),
		doc("c", raw("Scope 1 GHG Emissions", "N/A", "tCO2e")),
	}
	require.Equal(t, metric.NotReported, docs[2].Set.Records[0].State)

	classes := r.Classes(docs)
	require.Len(t, classes, 1)
	assert.Len(t, classes[0].Members, 2)
	for _, m := range classes[0].Members {
		assert.Equal(t, metric.Reported, m.Record.State)
	}

	table := r.Reconcile(docs)
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, 2, row.Documents)
	assert.Equal(t, CellValue, row.Cells[0].State)
	assert.Equal(t, CellValue, row.Cells[1].State)
	assert.Equal(t, CellNotReported, row.Cells[2].State)
	assert.Equal(t, "N/A", row.Cells[2].RawValue)
	assert.Zero(t, row.Cells[2].Value)
}

func TestReconcile_EmptyCellWhenMetricAbsent(t *testing.T) {
	table := New(0).Reconcile([]Document{
		doc("a", raw("Energy consumption", 100.0, "MWh")),
		doc("b", raw("Women in workforce", 40.0, "%")),
		doc("c", raw("Energy consumption", 120.0, "MWh")),
	})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, CellEmpty, table.Rows[0].Cells[1].State)
}

func TestReconcile_FuzzyMergeIsTransitive(t *testing.T) {
	a, b, c := "scope 1 emissions", "scope 1 ghg emissions", "gross scope 1 ghg emissions"
	require.GreaterOrEqual(t, Similarity(a, b), DefaultThreshold)
	require.GreaterOrEqual(t, Similarity(b, c), DefaultThreshold)
	require.Less(t, Similarity(a, c), DefaultThreshold)

	docs := []Document{
		doc("a", raw("Scope 1 emissions", 900.0, "tCO2e")),
		doc("b", raw("Scope 1 GHG emissions", 950.0, "tCO2e")),
		doc("c", raw("Gross Scope 1 GHG emissions", 1.0, "ktCO2e")),
	}
	classes := New(0).Classes(docs)
	require.Len(t, classes, 1)
	assert.Equal(t, 3, classes[0].Documents())
	assert.ElementsMatch(t, []string{a, b, c}, classes[0].Labels)

	table := New(0).Reconcile(docs)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 3, table.Rows[0].Documents)
	assert.Equal(t, 1000.0, table.Rows[0].Cells[2].Value)
}

func TestReconcile_ThresholdOneDisablesFuzzy(t *testing.T) {
	table := New(1).Reconcile([]Document{
		doc("a", raw("Scope 1 emissions", 900.0, "tCO2e")),
		doc("b", raw("Scope 1 GHG emissions", 950.0, "tCO2e")),
	})
	assert.Empty(t, table.Rows)
}

func TestReconcile_DifferentScopesNeverMerge(t *testing.T) {
	r := New(0)
	table := r.Reconcile([]Document{
		doc("a", raw("Scope 1 emissions", 10.0, "tCO2e")),
		doc("b", raw("Scope 2 emissions", 20.0, "tCO2e")),
	})
	assert.Empty(t, table.Rows)

	table = r.Reconcile([]Document{
		doc("a", raw("Scope 1 emissions", 10.0, "tCO2e"), raw("Scope 2 emissions", 11.0, "tCO2e")),
		doc("b", raw("Scope 1 emissions", 20.0, "tCO2e"), raw("Scope 2 emissions", 21.0, "tCO2e")),
	})
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "scope 1 emissions", table.Rows[0].Label)
	assert.Equal(t, 10.0, table.Rows[0].Cells[0].Value)
	assert.Equal(t, "scope 2 emissions", table.Rows[1].Label)
	assert.Equal(t, 21.0, table.Rows[1].Cells[1].Value)
}

func TestReconcile_CategoryMismatchBlocksMerge(t *testing.T) {
	withCategory := func(label, category string) metric.RawRecord {
		r := raw(label, 40.0, "%")
		r.Category = category
		return r
	}
	r := New(0)

	table := r.Reconcile([]Document{
		doc("a", withCategory("Renewable share", "energy")),
		doc("b", withCategory("Renewable shares", "governance")),
	})
	assert.Empty(t, table.Rows)

	table = r.Reconcile([]Document{
		doc("a", withCategory("Renewable share", "energy")),
		doc("b", withCategory("Renewable shares", "energy")),
	})
	assert.Len(t, table.Rows, 1)
}

func TestClasses_AtMostOneRecordPerDocument(t *testing.T) {
	docs := []Document{
		doc("a", raw("Scope 1 emissions", 1.0, "tCO2e"), raw("Scope 1 GHG emissions", 2.0, "tCO2e")),
		doc("b", raw("Scope 1 GHG emissions", 3.0, "tCO2e")),
	}
	classes := New(0).Classes(docs)
	require.Len(t, classes, 2)

	placed := 0
	for _, c := range classes {
		seen := map[int]bool{}
		for _, m := range c.Members {
			assert.False(t, seen[m.Document], "document %d twice in %q", m.Document, c.Label)
			seen[m.Document] = true
			placed++
		}
	}
	assert.Equal(t, 3, placed)

	table := New(0).Reconcile(docs)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "scope 1 ghg emissions", table.Rows[0].Label)
	assert.Equal(t, 2.0, table.Rows[0].Cells[0].Value)
}

func TestReconcile_PeriodsSplitIntoRows(t *testing.T) {
	at := func(value float64, period any) metric.RawRecord {
		r := raw("Scope 1 emissions", value, "tCO2e")
		r.Period = period
		return r
	}
	table := New(0).Reconcile([]Document{
		doc("a", at(10, 2022.0), at(12, 2023.0)),
		doc("b", at(20, "FY2022"), at(22, 2023.0)),
	})
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2023", table.Rows[0].Period)
	assert.Equal(t, 12.0, table.Rows[0].Cells[0].Value)
	assert.Equal(t, 22.0, table.Rows[0].Cells[1].Value)
	assert.Equal(t, 10.0, table.Rows[1].Cells[0].Value)
	assert.Equal(t, "FY2022", table.Rows[1].Cells[1].Period)
}

func TestReconcile_PeriodsAlignBeforeRank(t *testing.T) {
	at := func(value float64, period any) metric.RawRecord {
		r := raw("Scope 1 emissions", value, "tCO2e")
		r.Period = period
		return r
	}
	table := New(0).Reconcile([]Document{
		doc("a", at(100, 2023.0), at(90, 2022.0)),
		doc("b", at(80, 2022.0)),
	})
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, "2022", row.Period)
	assert.Equal(t, 90.0, row.Cells[0].Value)
	assert.Equal(t, "2022", row.Cells[0].Period)
	assert.Equal(t, 80.0, row.Cells[1].Value)

	// Periods no other document reports still pair up by recency.
	table = New(0).Reconcile([]Document{
		doc("a", at(100, 2023.0)),
		doc("b", at(80, 2022.0)),
	})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 100.0, table.Rows[0].Cells[0].Value)
	assert.Equal(t, 80.0, table.Rows[0].Cells[1].Value)
}

func TestReconcile_UnitMismatchBlocksMerge(t *testing.T) {
	r := New(0)
	table := r.Reconcile([]Document{
		doc("a", raw("Female employees (%)", 35.0, "%")),
		doc("b", raw("Female employees", 1200.0, "count")),
	})
	assert.Empty(t, table.Rows)

	table = r.Reconcile([]Document{
		doc("a", raw("Female employees", 35.0, "%")),
		doc("b", raw("Female employees", 1200.0, "count")),
	})
	assert.Empty(t, table.Rows)

	table = r.Reconcile([]Document{
		doc("a", raw("Female employees (%)", 35.0, "%")),
		doc("b", raw("Female employees", 41.0, "%")),
	})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "%", table.Rows[0].Unit)
}

func TestReconcile_UnrecognizedUnitsMustMatch(t *testing.T) {
	r := New(0)
	table := r.Reconcile([]Document{
		doc("a", raw("Packaging recycled", 12.0, "pallets")),
		doc("b", raw("Packaging recycled", 14.0, "crates")),
	})
	assert.Empty(t, table.Rows)

	table = r.Reconcile([]Document{
		doc("a", raw("Packaging recycled", 12.0, "pallets")),
		doc("b", raw("Packaging recycled", 14.0, "pallets")),
	})
	require.Len(t, table.Rows, 1)
	assert.True(t, table.Rows[0].Cells[0].UnitUnrecognized)
}

func TestReconcile_SameFingerprintIsOneColumn(t *testing.T) {
	a := doc("a", raw("Scope 1 emissions", 10.0, "tCO2e"))
	copyOfA := Document{Name: "a-copy", Set: a.Set}
	r := New(0)

	table := r.Reconcile([]Document{a, copyOfA})
	require.Len(t, table.Columns, 1)
	assert.Empty(t, table.Rows)

	for _, c := range r.Classes([]Document{a, copyOfA}) {
		assert.Equal(t, 1, c.Documents())
	}
}

func TestReconcile_NoDocuments(t *testing.T) {
	table := New(0).Reconcile(nil)
	assert.Empty(t, table.Columns)
	assert.NotNil(t, table.Rows)
	assert.True(t, table.Empty())
}

func TestReconcile_RowOrderAndPillarFilter(t *testing.T) {
	set := func(name string, scale float64) Document {
		return doc(name,
			raw("Independent directors", 7*scale, "count"),
			raw("Women in workforce", 40*scale, "%"),
			raw("Scope 1 emissions", 100*scale, "tCO2e"),
		)
	}
	table := New(0).Reconcile([]Document{set("a", 1), set("b", 2)})
	require.Len(t, table.Rows, 3)
	assert.Equal(t, metric.Environmental, table.Rows[0].Pillar)
	assert.Equal(t, metric.Social, table.Rows[1].Pillar)
	assert.Equal(t, metric.Governance, table.Rows[2].Pillar)

	social := table.FilterPillar(metric.Social)
	require.Len(t, social.Rows, 1)
	assert.Equal(t, "women in workforce", social.Rows[0].Label)
	assert.Equal(t, table.Columns, social.Columns)
	assert.Len(t, table.Rows, 3)
}

func TestReconcile_Deterministic(t *testing.T) {
	docs := []Document{
		doc("a", raw("Scope 1 emissions", 1.0, "tCO2e"), raw("Total energy consumption", 5.0, "GWh")),
		doc("b", raw("Scope 1 GHG emissions", 2.0, "tCO2e"), raw("Energy consumption", 6000.0, "MWh")),
		doc("c", raw("Gross scope 1 GHG emissions", 3.0, "tCO2e"), raw("energy consumption", 7.0, "GWh")),
	}
	first := New(0).Reconcile(docs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, New(0).Reconcile(docs))
	}
	require.Len(t, first.Rows, 2)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		over bool
	}{
		{"total energy consumption", "energy consumption", true},
		{"water withdrawal", "water withdrawals", true},
		{"ghg emissions scope 1", "scope 1 ghg emissions", true},
		{"water withdrawal", "water consumption", false},
		{"", "energy", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			s := Similarity(tt.a, tt.b)
			assert.Equal(t, s, Similarity(tt.b, tt.a))
			assert.Equal(t, tt.over, s >= DefaultThreshold, "score %.3f", s)
		})
	}
	assert.Equal(t, 1.0, Similarity("scope 1 emissions", "scope 1 emissions"))
}
