package metric

// Fingerprint identifies document content: lowercase hex SHA-256 of the
// whitespace-collapsed text.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short returns a prefix suitable for logs.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// RawRecord is one item as returned by the extraction service. Every field
// is optional and may hold any JSON type; nothing is validated here.
type RawRecord struct {
	Label    any `json:"label,omitempty"`
	Value    any `json:"value,omitempty"`
	Unit     any `json:"unit,omitempty"`
	Period   any `json:"period,omitempty"`
	Category any `json:"category,omitempty"`
	Page     any `json:"page,omitempty"`

	// Malformed is set when the item was not a JSON object at all.
	Malformed bool   `json:"malformed,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// State says whether a record carries a usable number.
type State string

const (
	Reported    State = "reported"
	NotReported State = "not_reported"
	Unparsed    State = "unparsed"
)

// Record is a normalized metric. A Reported record always has Value and Unit.
type Record struct {
	CanonicalLabel string `json:"canonical_label"`
	DisplayLabel   string `json:"display_label"`
	RawLabel       string `json:"raw_label,omitempty"`
	Category       string `json:"category,omitempty"`

	State    State   `json:"state"`
	Value    float64 `json:"value"`
	RawValue string  `json:"raw_value,omitempty"`

	Unit             string `json:"unit,omitempty"`
	RawUnit          string `json:"raw_unit,omitempty"`
	UnitUnrecognized bool   `json:"unit_unrecognized,omitempty"`

	Period         string      `json:"period,omitempty"`
	Page           int         `json:"page,omitempty"`
	SourceDocument Fingerprint `json:"source_document"`

	Issues []string `json:"issues,omitempty"`
}

// Set is the normalized output for one distinct document content. Sets are
// cached and shared between comparisons, so callers must not mutate them.
type Set struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Records     []Record    `json:"records"`
}

// Reported returns the records carrying a usable value.
func (s Set) Reported() []Record {
	var out []Record
	for _, r := range s.Records {
		if r.State == Reported {
			out = append(out, r)
		}
	}
	return out
}

// Counts tallies records by state.
func (s Set) Counts() map[State]int {
	c := map[State]int{Reported: 0, NotReported: 0, Unparsed: 0}
	for _, r := range s.Records {
		c[r.State]++
	}
	return c
}
