package validation

import (
	"fmt"
	"regexp"
	"strings"

	"emsadvisor/internal/corpus"
	"emsadvisor/internal/models"
)

// Codes emitted by the protocol-citation validator.
const (
	CodeInvalidProtocol      = "INVALID_PROTOCOL"
	CodeProtocolNameMismatch = "PROTOCOL_NAME_MISMATCH"
)

var (
	tpCitationPattern  = regexp.MustCompile(`(?i)\b(?:TP|Protocol)\s+(\d{4})(-P)?\b`)
	mcgCitationPattern = regexp.MustCompile(`(?i)\bMCG\s+(\d{4})\b`)
	nonAlnumPattern    = regexp.MustCompile(`[^a-z0-9 ]+`)
)

// Citation is one protocol reference extracted from text.
type Citation struct {
	Code string // normalized, e.g. "1210" or "1210-P"
	Span string // the text as written
	Pos  int    // byte offset of the citation in the text
}

// ExtractCitations finds every TP/Protocol/MCG citation in text.
func ExtractCitations(text string) []Citation {
	var cites []Citation
	for _, pattern := range []*regexp.Regexp{tpCitationPattern, mcgCitationPattern} {
		for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
			span := text[m[0]:m[1]]
			code := text[m[2]:m[3]]
			if len(m) > 5 && m[4] >= 0 {
				code += text[m[4]:m[5]]
			}
			cites = append(cites, Citation{Code: corpus.NormalizeCode(code), Span: span, Pos: m[0]})
		}
	}
	return cites
}

// ValidateProtocolCitations checks every citation in text against the
// authoritative protocol-code set. Unknown codes are hard errors; a valid
// code whose surrounding text names a materially different protocol is a
// warning, using normalized substring comparison to tolerate paraphrase.
func ValidateProtocolCitations(text string) *models.ValidationResult {
	result := models.NewValidationResult()

	for _, cite := range ExtractCitations(text) {
		if !corpus.IsAuthoritativeCode(cite.Code) {
			result.AddError(CodeInvalidProtocol,
				fmt.Sprintf("INVALID PROTOCOL: %s cites code %s, which is not in the protocol manual and may be hallucinated", cite.Span, cite.Code),
				models.SeverityCritical,
				map[string]string{"citation": cite.Code})
			continue
		}

		onRecord, _ := corpus.ProtocolName(cite.Code)
		if mismatch, named := surroundingNameMismatch(text, cite, onRecord); mismatch {
			result.AddWarning(CodeProtocolNameMismatch,
				fmt.Sprintf("%s is %q on record, but the surrounding text names %q", cite.Span, onRecord, named),
				map[string]string{"citation": cite.Code, "on_record": onRecord, "named": named})
		}
	}
	return result
}

// surroundingNameMismatch reports whether the text around a citation names a
// different known protocol while the on-record name is absent.
func surroundingNameMismatch(text string, cite Citation, onRecord string) (bool, string) {
	start := cite.Pos - 60
	if start < 0 {
		start = 0
	}
	end := cite.Pos + len(cite.Span) + 60
	if end > len(text) {
		end = len(text)
	}
	window := normalizeForComparison(text[start:end])

	if strings.Contains(window, normalizeForComparison(onRecord)) {
		return false, ""
	}
	for _, code := range corpus.AuthoritativeCodes() {
		if corpus.NormalizeCode(code) == cite.Code {
			continue
		}
		name, _ := corpus.ProtocolName(code)
		if name == onRecord || name == "" {
			continue
		}
		if strings.Contains(window, normalizeForComparison(name)) {
			return true, name
		}
	}
	return false, ""
}

func normalizeForComparison(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
