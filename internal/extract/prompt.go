package extract

import (
	"fmt"
	"strings"

	"github.com/dgallion1/esgcompare/internal/metric"
)

const SystemPrompt = "You are an ESG analyst extracting quantitative sustainability metrics from corporate reports. You must output your response as a valid JSON array."

const ExtractionPrompt = `Extract every quantitative ESG metric reported in the document text below. Return a JSON array. Each element must be an object with these fields:

- "metric_name": the metric as labelled in the report (string)
- "value": the number exactly as written, including thousands separators, or "N/A" when the report states the metric is not reported (string or number)
- "unit": the unit exactly as written, e.g. "tCO2e", "MWh", "m³", "%" (string or null)
- "year": the reporting year or fiscal year the value refers to (string or number)
- "category": one of the category ids listed below (string)
- "page": the page number shown in the nearest [Page N] marker (number or null)

Rules:
- Only extract metrics that belong to one of the listed categories
- Do not convert units or rescale values
- Emit one object per metric per year; tables with several year columns yield several objects
- Prefer figures from data tables over figures mentioned in narrative text
- Return an empty array [] if the text reports none of these metrics

Respond with ONLY the JSON array, no other text.`

// BuildPrompt renders the extraction instructions for schema followed by the
// document text.
func BuildPrompt(schema metric.Schema, text string) string {
	var sb strings.Builder
	sb.WriteString(ExtractionPrompt)
	sb.WriteString("\n\nCategories:\n")
	for _, c := range schema.Categories {
		sb.WriteString(fmt.Sprintf("- %q (%s, %s): %s\n", c.ID, c.Name, c.Pillar, c.Description))
	}
	sb.WriteString("\n---\n")
	sb.WriteString(text)
	return sb.String()
}
