package reconcile

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/dgallion1/esgcompare/internal/normalize"
)

// DefaultThreshold is the label similarity at or above which two classes merge.
const DefaultThreshold = 0.75

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "for": true,
	"from": true, "by": true, "to": true, "on": true, "at": true, "with": true, "per": true,
	"total": true, "overall": true, "reported": true,
}

// labelInfo is a canonical label reduced for comparison: stop words dropped,
// plurals folded, tokens sorted.
type labelInfo struct {
	label   string
	tokens  map[string]bool
	key     string
	numbers string
}

func newLabelInfo(label string) labelInfo {
	info := labelInfo{label: label, tokens: make(map[string]bool)}
	var nums []string
	for _, t := range normalize.Tokens(label) {
		if _, err := strconv.Atoi(t); err == nil {
			nums = append(nums, t)
			info.tokens[t] = true
			continue
		}
		if stopWords[t] {
			continue
		}
		info.tokens[singular(t)] = true
	}
	keys := make([]string, 0, len(info.tokens))
	for t := range info.tokens {
		keys = append(keys, t)
	}
	sort.Strings(keys)
	sort.Strings(nums)
	info.key = strings.Join(keys, " ")
	info.numbers = strings.Join(nums, " ")
	return info
}

func singular(t string) string {
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") {
		return t[:len(t)-1]
	}
	return t
}

// Similarity scores two canonical labels in [0, 1]: the mean of token-set
// Jaccard overlap and normalized edit similarity of the reduced labels.
func Similarity(a, b string) float64 {
	return similarity(newLabelInfo(a), newLabelInfo(b))
}

func similarity(a, b labelInfo) float64 {
	if a.label == b.label {
		return 1
	}
	if a.key == "" || b.key == "" {
		return 0
	}
	if a.key == b.key {
		return 1
	}
	return (jaccard(a.tokens, b.tokens) + levenshtein.Similarity(a.key, b.key, nil)) / 2
}

func jaccard(a, b map[string]bool) float64 {
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// compatible reports whether two labels may denote the same metric at all.
// Labels that differ in their numbers ("scope 1" and "scope 2") never merge.
func compatible(a, b labelInfo) bool {
	return a.numbers == b.numbers
}
