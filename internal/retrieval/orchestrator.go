package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"emsadvisor/internal/corpus"
	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
	"emsadvisor/internal/search"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Reference document codes included by result augmentation.
const (
	dosingReferenceCode      = "1309" // MCG 1309 Color Code Drug Doses
	baseContactReferenceCode = "1301" // MCG 1301 Base Hospital Contact Requirements
)

// primaryMetadataHits bounds how many leading hits contribute to the
// critical-metadata block, to avoid context pollution from weak matches.
const primaryMetadataHits = 3

var (
	weightPattern    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:kg|kilos?|kilograms?)\b`)
	queryCodePattern = regexp.MustCompile(`(?i)\b(?:TP|protocol|MCG)?\s*(\d{4})(-P)?\b`)
	dosingHint       = regexp.MustCompile(`(?i)\b(dose|dosing|dosage|how much|mg|mcg)\b`)
	baseContactHint  = regexp.MustCompile(`(?i)\bbase\s+(hospital\s+)?contact\b|\bcontact\s+base\b`)
)

// contextRenderer is the slice of goldmark.Markdown the orchestrator uses.
// A renderer that fails degrades to the unstructured context.
type contextRenderer interface {
	Convert(source []byte, writer io.Writer, opts ...parser.ParseOption) error
}

// Orchestrator runs search, enriches results with critical protocol metadata
// and pediatric weight-based dosing, and assembles the LLM context string.
type Orchestrator struct {
	expander *search.Expander
	index    *search.Index
	store    *corpus.Store
	metadata *corpus.MetadataStore
	dosing   *dosing.Registry

	defaultLimit int
	markdown     contextRenderer
}

// NewOrchestrator wires the retrieval orchestrator.
func NewOrchestrator(expander *search.Expander, index *search.Index, store *corpus.Store, metadata *corpus.MetadataStore, registry *dosing.Registry, defaultLimit int) *Orchestrator {
	if defaultLimit <= 0 {
		defaultLimit = search.DefaultResultLimit
	}
	return &Orchestrator{
		expander:     expander,
		index:        index,
		store:        store,
		metadata:     metadata,
		dosing:       registry,
		defaultLimit: defaultLimit,
		markdown:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Search retrieves documents for the query and assembles the context string.
// Metadata and rendering failures degrade the result; they never fail it.
func (o *Orchestrator) Search(ctx context.Context, query string, maxChunks int) (models.RetrievalResult, error) {
	if maxChunks <= 0 {
		maxChunks = o.defaultLimit
	}

	expanded := o.expander.Expand(query)
	hits, err := o.index.Search(ctx, expanded, maxChunks)
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("retrieval search failed: %w", err)
	}

	result := models.RetrievalResult{Hits: hits}

	// Result augmentation runs before assembly so augmented documents
	// contribute content to the context.
	o.augment(query, &result)

	metadataBlock := o.criticalMetadataBlock(result.Hits, &result)
	pediatricBlock := o.pediatricBlock(query)

	var body strings.Builder
	for _, doc := range result.Hits {
		body.WriteString(fmt.Sprintf("=== %s ===\n%s\n\n", doc.Title, doc.Content))
	}

	plain := metadataBlock + body.String()
	rendered := o.renderStructured(plain)
	if rendered.Degraded {
		result.Degraded = append(result.Degraded, "render")
		slog.Debug("structured rendering degraded", "reason", rendered.Reason)
	}

	// The pediatric block is prepended after rendering so it survives verbatim.
	result.Context = pediatricBlock + rendered.Text
	result.ContextHTML = rendered.HTML
	return result, nil
}

// criticalMetadataBlock emits base-contact, positioning, transport, warning
// and contraindication lines for the primary matched protocols. Metadata for
// protocols outside the leading hits is skipped to avoid context pollution.
func (o *Orchestrator) criticalMetadataBlock(hits []models.Document, result *models.RetrievalResult) string {
	if o.metadata.Degraded() {
		result.Degraded = append(result.Degraded, "metadata")
		return ""
	}

	var sb strings.Builder
	n := len(hits)
	if n > primaryMetadataHits {
		n = primaryMetadataHits
	}
	for _, doc := range hits[:n] {
		code := corpus.ProtocolCodeOf(doc)
		if code == "" || !corpus.RequiresBaseContact(code) {
			continue
		}
		md, ok := o.metadata.ByProtocolCode(code)
		if !ok {
			continue
		}

		sb.WriteString(fmt.Sprintf("CRITICAL: TP %s requires BASE HOSPITAL CONTACT.\n", code))
		for _, c := range md.BaseContactCriteria {
			sb.WriteString(fmt.Sprintf("- Base contact criteria: %s\n", c))
		}
		for _, s := range md.BaseContactScenarios {
			sb.WriteString(fmt.Sprintf("- Base contact scenario: %s\n", s))
		}
		if md.Positioning != "" {
			sb.WriteString(fmt.Sprintf("- Positioning: %s\n", md.Positioning))
		}
		for _, t := range md.TransportDestination {
			sb.WriteString(fmt.Sprintf("- Transport destination: %s\n", t))
		}
		for _, w := range md.Warnings {
			sb.WriteString(fmt.Sprintf("- WARNING: %s\n", w))
		}
		for _, c := range md.Contraindications {
			sb.WriteString(fmt.Sprintf("- CONTRAINDICATION: %s\n", c))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// pediatricBlock emits weight-based dosing lines when the query pairs a
// weight with a recognized medication.
func (o *Orchestrator) pediatricBlock(query string) string {
	m := weightPattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	weight, err := strconv.ParseFloat(m[1], 64)
	if err != nil || weight <= 0 {
		return ""
	}

	lower := strings.ToLower(query)
	var matched []string
	for _, drug := range o.dosing.Drugs() {
		if strings.Contains(lower, drug) {
			matched = append(matched, drug)
		}
	}
	for _, word := range strings.Fields(lower) {
		if dosing.IsBrand(word) {
			matched = append(matched, dosing.Canonical(word))
		}
	}
	if len(matched) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("PEDIATRIC WEIGHT-BASED DOSING (%s kg):\n", m[1]))
	seen := make(map[string]bool)
	for _, drug := range matched {
		if seen[drug] {
			continue
		}
		seen[drug] = true
		calc, ok := o.dosing.Calculate(drug, dosing.Input{WeightKg: weight})
		if !ok {
			continue
		}
		for _, rec := range calc.Recommendations {
			sb.WriteString("- " + dosing.FormatRecommendation(rec, calc.Citations) + "\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// augment applies the three result-augmentation rules: bare protocol codes in
// the query pull their documents in, dosing queries get the dosing reference
// first, and explicit base-contact queries get the base-contact reference.
func (o *Orchestrator) augment(query string, result *models.RetrievalResult) {
	present := make(map[string]bool, len(result.Hits))
	for _, doc := range result.Hits {
		present[doc.ID] = true
	}

	add := func(doc models.Document, first bool) {
		if present[doc.ID] {
			if !first {
				return
			}
			// Already present: move to the front.
			for i, d := range result.Hits {
				if d.ID == doc.ID && i > 0 {
					copy(result.Hits[1:i+1], result.Hits[:i])
					result.Hits[0] = doc
					break
				}
			}
			return
		}
		present[doc.ID] = true
		if first {
			result.Hits = append([]models.Document{doc}, result.Hits...)
		} else {
			result.Hits = append(result.Hits, doc)
		}
	}

	for _, m := range queryCodePattern.FindAllStringSubmatch(query, -1) {
		code := corpus.NormalizeCode(m[1] + m[2])
		if !corpus.IsAuthoritativeCode(code) {
			continue
		}
		for _, doc := range o.store.ByProtocolCode(code) {
			add(doc, false)
		}
	}

	if o.suggestsDosing(query, result.Hits) {
		for _, doc := range o.store.ByProtocolCode(dosingReferenceCode) {
			add(doc, true)
		}
	}

	if baseContactHint.MatchString(query) {
		for _, doc := range o.store.ByProtocolCode(baseContactReferenceCode) {
			add(doc, false)
		}
	}
}

func (o *Orchestrator) suggestsDosing(query string, hits []models.Document) bool {
	if dosingHint.MatchString(query) {
		return true
	}
	lower := strings.ToLower(query)
	for _, drug := range o.dosing.Drugs() {
		if strings.Contains(lower, drug) {
			return true
		}
	}
	for _, doc := range hits {
		for _, kw := range doc.Keywords {
			if strings.EqualFold(kw, "dosing") {
				return true
			}
		}
	}
	return false
}

// renderStructured post-processes the assembled text into a markdown
// rendering and converts it to HTML for transcript surfaces. Any failure
// falls back silently to the unstructured context; rendering must never
// abort retrieval.
func (o *Orchestrator) renderStructured(plain string) models.RenderOutcome {
	if strings.TrimSpace(plain) == "" {
		return models.RenderOutcome{Text: plain}
	}

	var sb strings.Builder
	for _, line := range strings.Split(plain, "\n") {
		switch {
		case strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " ==="):
			sb.WriteString("## " + strings.TrimSuffix(strings.TrimPrefix(line, "=== "), " ===") + "\n")
		case strings.HasPrefix(line, "CRITICAL:"):
			sb.WriteString("**" + line + "**\n")
		default:
			sb.WriteString(line + "\n")
		}
	}
	structured := sb.String()

	var buf bytes.Buffer
	if err := o.markdown.Convert([]byte(structured), &buf); err != nil {
		return models.RenderOutcome{Text: plain, Degraded: true, Reason: err.Error()}
	}
	return models.RenderOutcome{Text: structured, HTML: buf.String()}
}
