package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// envelopeSchema accepts a list of items, an object wrapping such a list, a
// single record, or an object of lists keyed by category.
const envelopeSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"anyOf": [
		{"type": "array"},
		{"type": "object", "required": ["metrics"], "properties": {"metrics": {"type": "array"}}},
		{"type": "object", "required": ["records"], "properties": {"records": {"type": "array"}}},
		{"type": "object", "required": ["data"], "properties": {"data": {"type": "array"}}},
		{"type": "object", "required": ["results"], "properties": {"results": {"type": "array"}}},
		{"type": "object", "anyOf": [
			{"required": ["metric_name"]}, {"required": ["label"]},
			{"required": ["metric"]}, {"required": ["name"]}
		]},
		{"type": "object", "minProperties": 1, "additionalProperties": {"type": "array"}}
	]
}`

var envelope = mustCompile(envelopeSchema)

func mustCompile(src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return c.MustCompile("envelope.json")
}

var wrapperKeys = []string{"metrics", "records", "data", "results"}

// fieldSynonyms maps accepted JSON keys to record fields. When an object
// carries several keys for one field, the earliest listed wins.
var fieldSynonyms = [][2]string{
	{"metric_name", "label"},
	{"label", "label"},
	{"metric", "label"},
	{"indicator", "label"},
	{"name", "label"},
	{"value", "value"},
	{"amount", "value"},
	{"unit", "unit"},
	{"units", "unit"},
	{"year", "period"},
	{"period", "period"},
	{"reporting_period", "period"},
	{"fiscal_year", "period"},
	{"category", "category"},
	{"page", "page"},
	{"source_page", "page"},
	{"page_number", "page"},
}

var (
	fieldOf   = make(map[string]string, len(fieldSynonyms))
	fieldRank = make(map[string]int, len(fieldSynonyms))
)

func init() {
	for i, kv := range fieldSynonyms {
		fieldOf[kv[0]] = kv[1]
		fieldRank[kv[0]] = i
	}
}

// Labels echoing instructions come from injected document text, not from a
// real table.
var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|` +
		`new\s+instructions)`,
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// DecodeRecords turns a service answer into raw records. It tolerates code
// fences, prose around the JSON, wrapper objects and category-keyed objects.
// Items that are not objects come back as malformed records.
func DecodeRecords(text string) ([]metric.RawRecord, error) {
	v, err := locateJSON(stripCodeBlock(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %s)", ErrMalformedResponse, err, truncate(text, 200))
	}
	v = foldKeys(v)
	if err := envelope.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: unexpected shape: %v", ErrMalformedResponse, err)
	}

	var out []metric.RawRecord
	for _, it := range flatten(v) {
		out = append(out, toRaw(it.value, it.category))
	}
	return out, nil
}

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// locateJSON decodes the first JSON array or object in s, ignoring any text
// before or after it.
func locateJSON(s string) (any, error) {
	start := strings.IndexAny(s, "[{")
	for start >= 0 {
		dec := json.NewDecoder(strings.NewReader(s[start:]))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			return v, nil
		}
		next := strings.IndexAny(s[start+1:], "[{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, fmt.Errorf("no JSON array or object found")
}

// foldKeys normalizes the keys of a top-level object so "Metrics" or
// "GHG Emissions" match like their snake_case forms.
func foldKeys(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[fieldKey(k)] = val
	}
	return out
}

type item struct {
	value    any
	category string
}

func flatten(v any) []item {
	switch t := v.(type) {
	case []any:
		out := make([]item, 0, len(t))
		for _, e := range t {
			out = append(out, item{value: e})
		}
		return out
	case map[string]any:
		for _, k := range wrapperKeys {
			if list, ok := t[k].([]any); ok {
				return flatten(list)
			}
		}
		if isRecord(t) {
			return []item{{value: t}}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []item
		for _, k := range keys {
			list, _ := t[k].([]any)
			for _, e := range list {
				out = append(out, item{value: e, category: k})
			}
		}
		return out
	}
	return nil
}

func isRecord(m map[string]any) bool {
	for k := range m {
		if fieldOf[fieldKey(k)] == "label" {
			return true
		}
	}
	return false
}

func toRaw(v any, category string) metric.RawRecord {
	obj, ok := v.(map[string]any)
	if !ok {
		return malformed(v)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		if _, ok := fieldOf[fieldKey(k)]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := fieldRank[fieldKey(keys[i])], fieldRank[fieldKey(keys[j])]
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	var r metric.RawRecord
	for _, k := range keys {
		val := scalar(obj[k])
		switch fieldOf[fieldKey(k)] {
		case "label":
			setOnce(&r.Label, val)
		case "value":
			setOnce(&r.Value, val)
		case "unit":
			setOnce(&r.Unit, val)
		case "period":
			setOnce(&r.Period, val)
		case "category":
			setOnce(&r.Category, val)
		case "page":
			setOnce(&r.Page, val)
		}
	}
	if r.Category == nil && category != "" {
		r.Category = category
	}
	if s, ok := r.Label.(string); ok && injectionPattern.MatchString(s) {
		return malformed(v)
	}
	return r
}

func setOnce(dst *any, v any) {
	if *dst == nil {
		*dst = v
	}
}

func malformed(v any) metric.RawRecord {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return metric.RawRecord{Malformed: true, Raw: fmt.Sprint(v)}
	}
	return metric.RawRecord{Malformed: true, Raw: strings.TrimSpace(buf.String())}
}

// scalar converts decoded JSON numbers to float64 so downstream code sees
// one numeric type.
func scalar(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

// fieldKey lowercases a JSON key and folds separators to underscores.
func fieldKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonKeyChars.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

var nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)
