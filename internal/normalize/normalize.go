package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// Normalizer turns raw extraction output into canonical records. It holds
// only the configured schema and is safe for concurrent use.
type Normalizer struct {
	schema metric.Schema
}

func New(schema metric.Schema) *Normalizer {
	return &Normalizer{schema: schema}
}

// Schema returns the categories the normalizer assigns.
func (n *Normalizer) Schema() metric.Schema {
	return n.schema
}

// Normalize produces the metric set for one document. Every input yields one
// record unless a later record with the same label and period replaces it.
// The result depends only on the inputs.
func (n *Normalizer) Normalize(raws []metric.RawRecord, fp metric.Fingerprint) metric.Set {
	records := make([]metric.Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, n.Record(raw, fp))
	}
	return metric.Set{Fingerprint: fp, Records: Dedup(records)}
}

// Record normalizes a single raw record.
func (n *Normalizer) Record(raw metric.RawRecord, fp metric.Fingerprint) metric.Record {
	rec := metric.Record{SourceDocument: fp}

	if raw.Malformed {
		rec.State = metric.Unparsed
		rec.RawValue = raw.Raw
		rec.Issues = []string{"malformed record"}
		return rec
	}

	rec.RawLabel = stringify(raw.Label)
	rec.DisplayLabel = CleanLabel(rec.RawLabel)
	rec.CanonicalLabel = CanonicalLabel(rec.DisplayLabel)
	if rec.CanonicalLabel == "" {
		rec.Issues = append(rec.Issues, "missing label")
	}

	pv := parseValue(raw.Value)
	rec.RawValue = pv.raw
	rec.Issues = append(rec.Issues, pv.issues...)

	rec.RawUnit = strings.Join(strings.Fields(stringify(raw.Unit)), " ")
	unitText := rec.RawUnit
	if notReportedTokens[strings.ToLower(unitText)] {
		unitText = ""
	}
	if unitText == "" {
		unitText = pv.unit
	}
	if unitText == "" {
		unitText = labelUnit(rec.DisplayLabel)
	}

	canonical, factor, known := LookupUnit(unitText)
	switch {
	case known:
		rec.Unit = canonical
	case unitText != "":
		rec.Unit = unitText
		rec.UnitUnrecognized = true
	}

	switch pv.state {
	case metric.Reported:
		if rec.Unit == "" {
			rec.State = metric.Unparsed
			rec.Issues = append(rec.Issues, "missing unit")
			break
		}
		rec.State = metric.Reported
		rec.Value = pv.value
		if known {
			rec.Value = pv.value * factor
		}
	case metric.NotReported:
		rec.State = metric.NotReported
	default:
		rec.State = metric.Unparsed
		rec.Issues = append(rec.Issues, "unparseable value")
	}

	rec.Category = n.category(rec.Unit, stringify(raw.Category), rec.CanonicalLabel)
	rec.Period = NormalizePeriod(raw.Period)
	rec.Page = pageNumber(raw.Page)

	if len(rec.Issues) == 0 {
		rec.Issues = nil
	}
	return rec
}

// category picks, in order: the category implied by the unit, the category
// the service named, and the best keyword match on the label.
func (n *Normalizer) category(unit, rawCategory, label string) string {
	if c := CategoryForUnit(unit); c != "" && n.schema.Has(c) {
		return c
	}

	key := categoryKey(rawCategory)
	var pillar metric.Pillar
	if key != "" {
		for _, c := range n.schema.Categories {
			if key == c.ID || key == categoryKey(c.Name) {
				return c.ID
			}
		}
		pillar, _ = metric.ParsePillar(rawCategory)
	}

	tokens := make(map[string]bool)
	for _, t := range Tokens(label) {
		tokens[t] = true
	}
	best, bestHits := "", 0
	for _, c := range n.schema.Categories {
		if pillar != "" && c.Pillar != pillar {
			continue
		}
		hits := 0
		for _, kw := range c.Keywords {
			if tokens[kw] {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = c.ID, hits
		}
	}
	return best
}

// Dedup keeps the last record for each canonical label and period. Records
// without a label are never merged. Survivors keep their input order.
func Dedup(records []metric.Record) []metric.Record {
	last := make(map[string]int, len(records))
	for i, r := range records {
		if r.CanonicalLabel == "" {
			continue
		}
		last[dedupKey(r)] = i
	}
	out := make([]metric.Record, 0, len(last))
	for i, r := range records {
		if r.CanonicalLabel != "" && last[dedupKey(r)] != i {
			continue
		}
		out = append(out, r)
	}
	return out
}

func dedupKey(r metric.Record) string {
	return r.CanonicalLabel + "\x00" + r.Period
}

// Tokens splits a label into lower-case alphanumeric words.
func Tokens(label string) []string {
	return strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func categoryKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "&", " ")
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), "_")
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func pageNumber(v any) int {
	switch x := v.(type) {
	case float64:
		if x >= 1 && x == math.Trunc(x) && x < math.MaxInt32 {
			return int(x)
		}
	case int:
		if x >= 1 {
			return x
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil && n >= 1 {
			return n
		}
	}
	return 0
}

var labelUnitRe = regexp.MustCompile(`\(([^()]{1,24})\)\s*$`)

// labelUnit returns the unit named in a trailing parenthetical of the label,
// as in "Water withdrawal (ML)", when that text is a known unit.
func labelUnit(label string) string {
	m := labelUnitRe.FindStringSubmatch(label)
	if m == nil {
		return ""
	}
	if _, _, ok := LookupUnit(m[1]); !ok {
		return ""
	}
	return strings.TrimSpace(m[1])
}
