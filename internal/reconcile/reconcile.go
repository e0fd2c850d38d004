package reconcile

import (
	"regexp"
	"sort"

	"github.com/dgallion1/esgcompare/internal/metric"
)

// Document is one successfully resolved input to reconciliation.
type Document struct {
	Name string     `json:"name"`
	Set  metric.Set `json:"-"`
}

// Member is a record placed in an equivalence class, tagged with the index of
// the document it came from.
type Member struct {
	Document int           `json:"document"`
	Record   metric.Record `json:"record"`
}

// Class is a set of records judged to denote the same metric, at most one per
// document.
type Class struct {
	Label        string   `json:"label"`
	DisplayLabel string   `json:"display_label"`
	Category     string   `json:"category,omitempty"`
	Labels       []string `json:"labels"`
	Members      []Member `json:"members"`
}

// Documents counts the distinct documents contributing to the class.
func (c Class) Documents() int {
	seen := make(map[int]bool, len(c.Members))
	for _, m := range c.Members {
		seen[m.Document] = true
	}
	return len(seen)
}

// Reconciler groups records across documents. It is stateless apart from the
// merge threshold.
type Reconciler struct {
	threshold float64
}

// New returns a reconciler merging labels scoring at least threshold. A
// threshold of 1 or more disables fuzzy merging; values <= 0 use the default.
func New(threshold float64) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Reconciler{threshold: threshold}
}

// Threshold returns the merge threshold in use.
func (r *Reconciler) Threshold() float64 {
	return r.threshold
}

// bucket is the set of classes created for one exact canonical label and
// canonical unit.
type bucket struct {
	label string
	unit  string
	ranks [][]Member // ranks[k] holds at most one record of every document
}

// Classes builds every equivalence class, including those with a single
// contributing document.
func (r *Reconciler) Classes(docs []Document) []Class {
	docs = distinct(docs)
	buckets, order := exactBuckets(docs)

	// Each rank of each bucket starts as its own group.
	type group struct {
		info     labelInfo
		category string
		unit     string
		members  []Member
	}
	var groups []*group
	for _, key := range order {
		b := buckets[key]
		info := newLabelInfo(b.label)
		for _, members := range b.ranks {
			groups = append(groups, &group{
				info:     info,
				category: dominantCategory(members),
				unit:     b.unit,
				members:  members,
			})
		}
	}

	parent := make([]int, len(groups))
	docsOf := make([]map[int]bool, len(groups))
	for i, g := range groups {
		parent[i] = i
		docsOf[i] = make(map[int]bool, len(g.members))
		for _, m := range g.members {
			docsOf[i][m.Document] = true
		}
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	if r.threshold < 1 {
		type pair struct {
			i, j  int
			score float64
		}
		var pairs []pair
		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				a, b := groups[i], groups[j]
				if a.info.label == b.info.label {
					continue
				}
				if a.category == "" || a.category != b.category || a.unit != b.unit || !compatible(a.info, b.info) {
					continue
				}
				if s := similarity(a.info, b.info); s >= r.threshold {
					pairs = append(pairs, pair{i, j, s})
				}
			}
		}
		// Strongest pairs first; groups grow transitively in this one pass.
		sort.SliceStable(pairs, func(x, y int) bool { return pairs[x].score > pairs[y].score })
		for _, p := range pairs {
			ri, rj := find(p.i), find(p.j)
			if ri == rj || overlaps(docsOf[ri], docsOf[rj]) {
				continue
			}
			if ri > rj {
				ri, rj = rj, ri
			}
			parent[rj] = ri
			for d := range docsOf[rj] {
				docsOf[ri][d] = true
			}
		}
	}

	byRoot := make(map[int][]Member)
	var roots []int
	for i, g := range groups {
		root := find(i)
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], g.members...)
	}

	classes := make([]Class, 0, len(roots))
	for _, root := range roots {
		members := byRoot[root]
		sort.SliceStable(members, func(x, y int) bool { return members[x].Document < members[y].Document })
		classes = append(classes, newClass(members))
	}
	return classes
}

// distinct drops documents whose content fingerprint repeats an earlier
// one, so a document never confirms a metric against itself.
func distinct(docs []Document) []Document {
	seen := make(map[metric.Fingerprint]bool, len(docs))
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if fp := d.Set.Fingerprint; fp != "" {
			if seen[fp] {
				continue
			}
			seen[fp] = true
		}
		out = append(out, d)
	}
	return out
}

// exactBuckets groups reported records by canonical label and unit. Records
// of different units never share a bucket.
func exactBuckets(docs []Document) (map[string]*bucket, []string) {
	buckets := make(map[string]*bucket)
	perDoc := make(map[string]map[int][]metric.Record)
	var order []string
	for di, doc := range docs {
		for _, rec := range doc.Set.Records {
			if rec.State != metric.Reported || rec.CanonicalLabel == "" {
				continue
			}
			key := rec.CanonicalLabel + "\x00" + rec.Unit
			byDoc, ok := perDoc[key]
			if !ok {
				byDoc = make(map[int][]metric.Record)
				perDoc[key] = byDoc
				buckets[key] = &bucket{label: rec.CanonicalLabel, unit: rec.Unit}
				order = append(order, key)
			}
			byDoc[di] = append(byDoc[di], rec)
		}
	}
	sort.Strings(order)

	for _, key := range order {
		buckets[key].ranks = alignPeriods(perDoc[key], len(docs))
	}
	return buckets, order
}

// alignPeriods lays out one bucket in ranks holding at most one record per
// document. A period reported by two or more documents gets its own rank;
// records left over pair up by recency, newest first.
func alignPeriods(byDoc map[int][]metric.Record, ndocs int) [][]Member {
	holders := make(map[string]map[int]bool)
	for di, recs := range byDoc {
		for _, rec := range recs {
			if holders[rec.Period] == nil {
				holders[rec.Period] = make(map[int]bool)
			}
			holders[rec.Period][di] = true
		}
	}
	var shared []string
	for p, ds := range holders {
		if len(ds) >= 2 {
			shared = append(shared, p)
		}
	}
	sort.Slice(shared, func(x, y int) bool { return newerPeriod(shared[x], shared[y]) })
	rankOf := make(map[string]int, len(shared))
	for k, p := range shared {
		rankOf[p] = k
	}

	ranks := make([][]Member, len(shared))
	leftovers := make([][]metric.Record, ndocs)
	for di := 0; di < ndocs; di++ {
		placed := make(map[string]bool)
		for _, rec := range byDoc[di] {
			if k, ok := rankOf[rec.Period]; ok && !placed[rec.Period] {
				placed[rec.Period] = true
				ranks[k] = append(ranks[k], Member{Document: di, Record: rec})
				continue
			}
			leftovers[di] = append(leftovers[di], rec)
		}
	}

	base := len(ranks)
	for di, recs := range leftovers {
		sort.SliceStable(recs, func(x, y int) bool { return newerPeriod(recs[x].Period, recs[y].Period) })
		for k, rec := range recs {
			if base+k == len(ranks) {
				ranks = append(ranks, nil)
			}
			ranks[base+k] = append(ranks[base+k], Member{Document: di, Record: rec})
		}
	}
	return ranks
}

func newClass(members []Member) Class {
	counts := make(map[string]int)
	display := make(map[string]string)
	for _, m := range members {
		l := m.Record.CanonicalLabel
		counts[l]++
		if _, ok := display[l]; !ok {
			display[l] = m.Record.DisplayLabel
		}
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	rep := labels[0]
	for _, l := range labels[1:] {
		if counts[l] > counts[rep] {
			rep = l
		}
	}
	return Class{
		Label:        rep,
		DisplayLabel: display[rep],
		Category:     dominantCategory(members),
		Labels:       labels,
		Members:      members,
	}
}

// dominantCategory is the most common non-empty category, ties to the
// smallest ID.
func dominantCategory(members []Member) string {
	counts := make(map[string]int)
	for _, m := range members {
		if m.Record.Category != "" {
			counts[m.Record.Category]++
		}
	}
	return mostFrequent(counts, false)
}

// mostFrequent returns the key with the highest count. Ties go to the
// smallest key, or the largest when preferLargest is set.
func mostFrequent(counts map[string]int, preferLargest bool) string {
	best, bestN := "", 0
	for k, n := range counts {
		switch {
		case n > bestN:
			best, bestN = k, n
		case n == bestN && preferLargest && k > best:
			best = k
		case n == bestN && !preferLargest && k < best:
			best = k
		}
	}
	return best
}

var yearRe = regexp.MustCompile(`(19|20|21)\d\d`)

// newerPeriod orders periods by their last year ("2022-2023" counts as 2023),
// falling back to plain string order.
func newerPeriod(a, b string) bool {
	ya, yb := lastYear(a), lastYear(b)
	if ya != yb {
		return ya > yb
	}
	return a > b
}

func lastYear(p string) string {
	all := yearRe.FindAllString(p, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

func overlaps(a, b map[int]bool) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for d := range a {
		if b[d] {
			return true
		}
	}
	return false
}
