package metric

import (
	"fmt"
	"strings"
)

// Pillar is the ESG pillar a category reports under.
type Pillar string

const (
	Environmental Pillar = "Environmental"
	Social        Pillar = "Social"
	Governance    Pillar = "Governance"
)

// ParsePillar accepts "E", "env", "environmental" and so on.
func ParsePillar(s string) (Pillar, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "e", "env", "environment", "environmental":
		return Environmental, true
	case "s", "soc", "social":
		return Social, true
	case "g", "gov", "governance":
		return Governance, true
	}
	return "", false
}

// Category IDs recognized by the extraction schema.
const (
	GHGEmissions        = "ghg_emissions"
	Energy              = "energy"
	Water               = "water"
	Waste               = "waste"
	WorkforceDiversity  = "workforce_diversity"
	HealthSafety        = "health_safety"
	CorporateGovernance = "governance"
)

// Category is one metric family the extraction service is asked for.
type Category struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Pillar      Pillar   `json:"pillar"`
	Description string   `json:"description"`
	Keywords    []string `json:"-"`
}

var knownCategories = []Category{
	{
		ID:          GHGEmissions,
		Name:        "GHG Emissions",
		Pillar:      Environmental,
		Description: "Scope 1, 2 and 3 greenhouse gas emissions and emission intensity",
		Keywords:    []string{"emission", "emissions", "ghg", "co2", "co2e", "carbon", "scope"},
	},
	{
		ID:          Energy,
		Name:        "Energy",
		Pillar:      Environmental,
		Description: "Energy consumption, renewable share and energy intensity",
		Keywords:    []string{"energy", "electricity", "renewable", "fuel", "power"},
	},
	{
		ID:          Water,
		Name:        "Water",
		Pillar:      Environmental,
		Description: "Water withdrawal, consumption, discharge and recycling",
		Keywords:    []string{"water", "withdrawal", "discharge", "wastewater"},
	},
	{
		ID:          Waste,
		Name:        "Waste",
		Pillar:      Environmental,
		Description: "Waste generated, recycled, landfilled and hazardous waste",
		Keywords:    []string{"waste", "landfill", "recycled", "recycling", "hazardous"},
	},
	{
		ID:          WorkforceDiversity,
		Name:        "Workforce & Diversity",
		Pillar:      Social,
		Description: "Headcount, gender and ethnic diversity, turnover and training",
		Keywords:    []string{"employee", "employees", "headcount", "women", "female", "gender", "diversity", "turnover", "training", "workforce"},
	},
	{
		ID:          HealthSafety,
		Name:        "Health & Safety",
		Pillar:      Social,
		Description: "Injury rates, lost time incidents and fatalities",
		Keywords:    []string{"injury", "injuries", "ltifr", "trir", "fatalities", "fatality", "safety", "incident"},
	},
	{
		ID:          CorporateGovernance,
		Name:        "Governance",
		Pillar:      Governance,
		Description: "Board composition, independence, ethics and executive pay",
		Keywords:    []string{"board", "director", "directors", "independent", "ethics", "corruption", "compensation", "governance"},
	},
}

// KnownCategories returns every category the engine can ask for.
func KnownCategories() []Category {
	out := make([]Category, len(knownCategories))
	copy(out, knownCategories)
	return out
}

// Schema is the ordered set of categories requested from the extraction
// service. It is chosen by configuration, never per call.
type Schema struct {
	Categories []Category `json:"categories"`
}

// DefaultSchema requests every known category.
func DefaultSchema() Schema {
	return Schema{Categories: KnownCategories()}
}

// NewSchema builds a schema from category IDs. Unknown IDs are an error.
func NewSchema(ids []string) (Schema, error) {
	if len(ids) == 0 {
		return DefaultSchema(), nil
	}
	var s Schema
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		c, ok := lookup(knownCategories, id)
		if !ok {
			return Schema{}, fmt.Errorf("unknown metric category %q", id)
		}
		seen[id] = true
		s.Categories = append(s.Categories, c)
	}
	if len(s.Categories) == 0 {
		return DefaultSchema(), nil
	}
	return s, nil
}

// Lookup finds a category in the schema by ID.
func (s Schema) Lookup(id string) (Category, bool) {
	return lookup(s.Categories, id)
}

// Has reports whether the schema includes the category.
func (s Schema) Has(id string) bool {
	_, ok := s.Lookup(id)
	return ok
}

// IDs returns the category IDs in schema order.
func (s Schema) IDs() []string {
	ids := make([]string, len(s.Categories))
	for i, c := range s.Categories {
		ids[i] = c.ID
	}
	return ids
}

// PillarOf returns the pillar of a known category, or "" when unknown.
func PillarOf(id string) Pillar {
	if c, ok := lookup(knownCategories, id); ok {
		return c.Pillar
	}
	return ""
}

func lookup(cats []Category, id string) (Category, bool) {
	for _, c := range cats {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
