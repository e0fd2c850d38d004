package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	fiscalYearRe = regexp.MustCompile(`(?i)^(?:fy|fiscal\s+year|financial\s+year)\s*'?(\d{4}|\d{2})$`)
	yearRangeRe  = regexp.MustCompile(`^(\d{4})\s*[-/–]\s*(\d{4}|\d{2})$`)
	calYearRe    = regexp.MustCompile(`(?i)^(?:cy|calendar\s+year|year)\s*(\d{4})$`)
	yearRe       = regexp.MustCompile(`^\d{4}$`)
)

// NormalizePeriod maps the spellings of a reporting period onto a small set of
// forms: "2023", "FY2023" and "2022-2023". Anything else is kept trimmed.
func NormalizePeriod(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if x == math.Trunc(x) && x >= 1900 && x <= 2200 {
			return strconv.Itoa(int(x))
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return normalizePeriodString(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func normalizePeriodString(s string) string {
	s = strings.Join(strings.Fields(typographyReplacer.Replace(s)), " ")
	if s == "" {
		return ""
	}
	if yearRe.MatchString(s) {
		return s
	}
	if m := fiscalYearRe.FindStringSubmatch(s); m != nil {
		return "FY" + expandYear(m[1], "20")
	}
	if m := calYearRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := yearRangeRe.FindStringSubmatch(s); m != nil {
		end := expandYear(m[2], m[1][:2])
		return m[1] + "-" + end
	}
	return s
}

func expandYear(y, century string) string {
	if len(y) == 2 {
		return century + y
	}
	return y
}
