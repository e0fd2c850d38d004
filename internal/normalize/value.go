package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// parsedValue is the numeric reading of a raw value field.
type parsedValue struct {
	state  metric.State
	value  float64
	raw    string
	unit   string // unit text that trailed the number inside the value string
	issues []string
}

var notReportedTokens = map[string]bool{
	"":               true,
	"-":              true,
	"--":             true,
	"—":              true,
	"–":              true,
	"n/a":            true,
	"na":             true,
	"n.a.":           true,
	"nr":             true,
	"n.r.":           true,
	"none":           true,
	"null":           true,
	"nil":            true,
	"not reported":   true,
	"not available":  true,
	"not applicable": true,
	"not disclosed":  true,
	"unknown":        true,
}

var approxPrefixes = []string{"approximately", "approx.", "approx", "about", "around", "circa", "c.", "~", "≈"}

var boundPrefixes = []string{"<=", ">=", "≤", "≥", "<", ">"}

// Thousands groups may be separated by comma, apostrophe, underscore or a
// thin/no-break space. A plain space is not a separator.
var numberRe = regexp.MustCompile(`^[+-]?(?:\d{1,3}(?:[,'_\x{00A0}\x{2009}\x{202F}]\d{3})+|\d+)(?:\.\d+)?|^[+-]?\.\d+`)

var groupSeparators = strings.NewReplacer(",", "", "'", "", "_", "", "\u00a0", "", "\u2009", "", "\u202f", "")

var magnitudes = map[string]float64{
	"thousand": 1e3,
	"million":  1e6,
	"mn":       1e6,
	"mio":      1e6,
	"billion":  1e9,
	"bn":       1e9,
}

// parseValue reads a raw value of any JSON type.
func parseValue(v any) parsedValue {
	switch x := v.(type) {
	case nil:
		return parsedValue{state: metric.NotReported}
	case float64:
		return fromFloat(x, strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return fromFloat(float64(x), strconv.FormatFloat(float64(x), 'f', -1, 32))
	case int:
		return fromFloat(float64(x), strconv.Itoa(x))
	case int64:
		return fromFloat(float64(x), strconv.FormatInt(x, 10))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return parsedValue{state: metric.Unparsed, raw: x.String()}
		}
		return fromFloat(f, x.String())
	case string:
		return parseValueString(x)
	case bool:
		return parsedValue{state: metric.Unparsed, raw: strconv.FormatBool(x)}
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return parsedValue{state: metric.Unparsed, raw: fmt.Sprint(x)}
		}
		return parsedValue{state: metric.Unparsed, raw: string(b)}
	}
}

func fromFloat(f float64, raw string) parsedValue {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return parsedValue{state: metric.Unparsed, raw: raw}
	}
	return parsedValue{state: metric.Reported, value: f, raw: raw}
}

func parseValueString(s string) parsedValue {
	pv := parsedValue{raw: strings.TrimSpace(s)}
	t := strings.TrimSpace(s)
	if notReportedTokens[strings.ToLower(t)] {
		pv.state = metric.NotReported
		return pv
	}

	lower := strings.ToLower(t)
	for _, p := range approxPrefixes {
		if strings.HasPrefix(lower, p) {
			t = strings.TrimSpace(t[len(p):])
			pv.issues = append(pv.issues, "approximate value")
			break
		}
	}
	for _, p := range boundPrefixes {
		if strings.HasPrefix(t, p) {
			t = strings.TrimSpace(t[len(p):])
			pv.issues = append(pv.issues, "bounded value "+p)
			break
		}
	}

	negative := false
	if strings.HasPrefix(t, "(") {
		if end := strings.Index(t, ")"); end > 0 {
			inner := strings.TrimSpace(t[1:end])
			if numberRe.MatchString(inner) {
				negative = true
				t = strings.TrimSpace(inner + " " + t[end+1:])
			}
		}
	}
	if strings.HasPrefix(t, "−") {
		t = "-" + t[len("−"):]
	}

	// Leading currency symbol.
	if strings.HasPrefix(t, "$") {
		pv.unit = "$"
		t = strings.TrimSpace(t[1:])
	}

	m := numberRe.FindString(t)
	if m == "" {
		pv.state = metric.Unparsed
		pv.issues = nil
		return pv
	}
	f, err := strconv.ParseFloat(groupSeparators.Replace(m), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		pv.state = metric.Unparsed
		pv.issues = nil
		return pv
	}
	if negative {
		f = -f
	}

	rest := strings.TrimSpace(t[len(m):])
	if strings.HasPrefix(rest, "%") {
		pv.unit = "%"
		rest = strings.TrimSpace(rest[1:])
	}
	if word, tail := firstWord(rest); word != "" {
		if mult, ok := magnitudes[strings.ToLower(word)]; ok {
			f *= mult
			rest = tail
		}
	}
	if strings.HasPrefix(rest, "(") {
		pv.issues = append(pv.issues, "trailing text ignored")
		rest = ""
	}
	if rest != "" {
		if pv.unit == "$" {
			pv.unit = "$" + rest
		} else if pv.unit == "" {
			pv.unit = rest
		}
	}

	pv.state = metric.Reported
	pv.value = f
	return pv
}

func firstWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
