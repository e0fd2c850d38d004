package chunker

import (
	"fmt"
	"strings"

	"github.com/dgallion1/esgcompare/internal/document"
)

// Config controls chunking behavior.
type Config struct {
	PagesPerPart int // Pages grouped into one part for paged documents.
	MaxTokens    int // Token cap per part; longer runs are split.
	ChunkOverlap int // Overlap in tokens when a single segment must be split.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PagesPerPart: 5,
		MaxTokens:    6000,
		ChunkOverlap: 0,
	}
}

// Split groups a document's segments into extraction parts. Paged documents
// are cut every PagesPerPart pages; every part is also capped at MaxTokens.
// Each part carries "[Page N]" markers so the extraction service can cite
// pages, and a section line when the heading path changes.
func Split(doc *document.Document, cfg Config) []document.Chunk {
	def := DefaultConfig()
	if cfg.PagesPerPart <= 0 {
		cfg.PagesPerPart = def.PagesPerPart
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}

	var (
		chunks []document.Chunk
		cur    *part
	)
	emit := func() {
		if cur == nil || cur.tokens == 0 {
			cur = nil
			return
		}
		chunks = append(chunks, cur.chunk(len(chunks)))
		cur = nil
	}

	for _, seg := range doc.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		tokens := EstimateTokens(text)

		// A single segment above the cap is split on its own.
		if tokens > cfg.MaxTokens {
			emit()
			for _, piece := range splitText(text, cfg.MaxTokens, cfg.ChunkOverlap) {
				p := newPart(seg)
				p.add(seg, piece, EstimateTokens(piece))
				chunks = append(chunks, p.chunk(len(chunks)))
			}
			continue
		}

		if cur != nil && !cur.fits(seg, tokens, cfg) {
			emit()
		}
		if cur == nil {
			cur = newPart(seg)
		}
		cur.add(seg, text, tokens)
	}
	emit()
	return chunks
}

// part is a chunk under construction.
type part struct {
	buf       strings.Builder
	tokens    int
	section   []string
	lastSect  string
	pageStart int
	pageEnd   int
	lastPage  int
}

func newPart(first document.Segment) *part {
	return &part{
		section:   copyBreadcrumb(first.Section),
		pageStart: first.Page,
		pageEnd:   first.Page,
		lastPage:  -1,
	}
}

func (p *part) fits(seg document.Segment, tokens int, cfg Config) bool {
	if p.tokens+tokens > cfg.MaxTokens {
		return false
	}
	if seg.Page > 0 && p.pageStart > 0 && seg.Page-p.pageStart >= cfg.PagesPerPart {
		return false
	}
	return true
}

func (p *part) add(seg document.Segment, text string, tokens int) {
	if seg.Page > 0 && seg.Page != p.lastPage {
		p.sep()
		fmt.Fprintf(&p.buf, "[Page %d]", seg.Page)
		p.lastPage = seg.Page
	}
	if sect := strings.Join(seg.Section, " > "); sect != "" && sect != p.lastSect {
		p.sep()
		p.buf.WriteString("## " + sect)
		p.lastSect = sect
	}
	p.sep()
	p.buf.WriteString(text)
	p.tokens += tokens

	if seg.Page > 0 {
		if p.pageStart == 0 || seg.Page < p.pageStart {
			p.pageStart = seg.Page
		}
		if seg.Page > p.pageEnd {
			p.pageEnd = seg.Page
		}
	}
}

func (p *part) sep() {
	if p.buf.Len() > 0 {
		p.buf.WriteString("\n\n")
	}
}

func (p *part) chunk(index int) document.Chunk {
	return document.Chunk{
		Text:      p.buf.String(),
		Index:     index,
		Section:   p.section,
		PageStart: p.pageStart,
		PageEnd:   p.pageEnd,
	}
}

// splitText breaks text into chunks of approximately targetTokens, with overlap.
func splitText(text string, targetTokens, overlapTokens int) []string {
	paragraphs := splitByParagraphs(text)

	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, para := range paragraphs {
		paraTokens := EstimateTokens(para)

		// If a single paragraph exceeds the target, split it further.
		if paraTokens > targetTokens {
			if currentTokens > 0 {
				result = append(result, current.String())
				current.Reset()
				currentTokens = 0
			}
			result = append(result, splitBySentences(para, targetTokens, overlapTokens)...)
			continue
		}

		if currentTokens+paraTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())

			overlap := getOverlapText(current.String(), overlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}
	return result
}

// splitByParagraphs splits on blank lines; table rows stay together.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentences breaks a large paragraph into sentence- or line-based
// chunks. Multi-line paragraphs (tables) are cut between lines.
func splitBySentences(text string, targetTokens, overlapTokens int) []string {
	units, joiner := splitSentences(text), " "
	if strings.Contains(text, "\n") {
		units, joiner = strings.Split(text, "\n"), "\n"
	}

	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, unit := range units {
		unitTokens := EstimateTokens(unit)

		if currentTokens+unitTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())
			overlap := getOverlapText(current.String(), overlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString(joiner)
		}
		current.WriteString(unit)
		currentTokens += unitTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}
	return sentences
}

// getOverlapText extracts the last N tokens worth of text for overlap.
func getOverlapText(text string, targetTokens int) string {
	words := strings.Fields(text)
	targetWords := int(float64(targetTokens) / 1.33)
	if targetWords <= 0 || len(words) <= targetWords {
		return ""
	}
	return strings.Join(words[len(words)-targetWords:], " ")
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
