package models

import "time"

// Document is an indexed unit of protocol text. Documents are loaded once at
// warm-up, cached in memory and never mutated afterwards.
type Document struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Content     string   `json:"content"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	DocFieldID       = "id"
	DocFieldTitle    = "title"
	DocFieldCategory = "category"
	DocFieldKeywords = "keywords"
	DocFieldContent  = "content"
)

// Protocol is the authoritative record behind a Document.
// At most one record per TPCode family has IsCurrent=true.
type Protocol struct {
	TPCode              string     `json:"tp_code"` // four digits, optional "-P" pediatric suffix
	Name                string     `json:"name"`
	Category            string     `json:"category"`
	Version             string     `json:"version"`
	EffectiveDate       time.Time  `json:"effective_date"`
	ExpirationDate      *time.Time `json:"expiration_date,omitempty"`
	IsCurrent           bool       `json:"is_current"`
	FullText            string     `json:"full_text"`
	Keywords            []string   `json:"keywords,omitempty"`
	BaseContactRequired bool       `json:"base_contact_required"`
	Warnings            []string   `json:"warnings,omitempty"`
	Contraindications   []string   `json:"contraindications,omitempty"`
}

// Expired reports whether the protocol's expiration date has passed.
func (p *Protocol) Expired(now time.Time) bool {
	return p.ExpirationDate != nil && p.ExpirationDate.Before(now)
}

// ProtocolMetadata is the subset view of a Protocol loaded from the metadata
// side table and cross-referenced by document id, so retrieval never re-parses
// full protocol text per query.
type ProtocolMetadata struct {
	DocumentID           string   `json:"document_id"`
	TPCode               string   `json:"tp_code"`
	BaseContactRequired  bool     `json:"base_contact_required"`
	BaseContactCriteria  []string `json:"base_contact_criteria,omitempty"`
	BaseContactScenarios []string `json:"base_contact_scenarios,omitempty"`
	Positioning          string   `json:"positioning,omitempty"`
	TransportDestination []string `json:"transport_destination,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	Contraindications    []string `json:"contraindications,omitempty"`
}

// RetrievalResult is the produced contract to the orchestration layer: the
// assembled LLM context plus the documents that back it.
type RetrievalResult struct {
	Context     string     `json:"context"`
	ContextHTML string     `json:"context_html,omitempty"` // HTML rendering of the context, empty when rendering degraded
	Hits        []Document `json:"hits"`
	Degraded    []string   `json:"degraded,omitempty"` // names of degrade paths taken, e.g. "metadata", "render"
}

// RenderOutcome is the explicit result of the structured-rendering step.
// A rendering failure degrades to the unstructured context, never an error.
type RenderOutcome struct {
	Text     string
	HTML     string
	Degraded bool
	Reason   string
}

// MetadataLoad is the explicit result of a metadata side-table load.
type MetadataLoad struct {
	Entries  map[string]ProtocolMetadata
	Degraded bool
	Reason   string
}
