package normalize

import (
	"regexp"
	"strings"
)

var typographyReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "′", "'",
	"“", `"`, "”", `"`, "„", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-",
	"₀", "0", "₁", "1", "₂", "2", "₃", "3", "₄", "4",
	"₅", "5", "₆", "6", "₇", "7", "₈", "8", "₉", "9",
	"¹", "1", "²", "2", "³", "3",
	"\u00a0", " ", "\u2009", " ", "\u202f", " ",
)

// Trailing footnote markers: asterisks, daggers, superscript digits, [a], [12].
var footnoteRe = regexp.MustCompile(`\s*(?:\*+|[†‡§¹²³⁰⁴⁵⁶⁷⁸⁹]+|\[[0-9A-Za-z]{1,3}\])$`)

// CleanLabel returns the display form of a raw metric label: typography
// folded to ASCII, trailing footnote markers and colons removed, whitespace
// collapsed. Qualifiers such as "(Scope 1)" are kept. CleanLabel is idempotent.
func CleanLabel(s string) string {
	s = strings.TrimSpace(s)
	for {
		next := strings.TrimRight(footnoteRe.ReplaceAllString(s, ""), " :;")
		if next == s {
			break
		}
		s = next
	}
	s = typographyReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalLabel is the comparison key for a display label.
func CanonicalLabel(display string) string {
	return strings.ToLower(display)
}
