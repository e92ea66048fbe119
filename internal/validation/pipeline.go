package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"emsadvisor/internal/corpus"
	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
)

// Stage names, in execution order. Stages for a single request run strictly
// sequentially; each consumes the previous stage's output.
const (
	StagePreRetrieval    = "pre-retrieval"
	StageDuringRetrieval = "during-retrieval"
	StagePreResponse     = "pre-response"
	StagePostResponse    = "post-response"
)

// Error and warning codes emitted by the pipeline stages.
const (
	CodeMedicationWithoutProtocol = "MEDICATION_WITHOUT_PROTOCOL"
	CodeVagueQuery                = "VAGUE_QUERY"
	CodeDeprecatedProtocol        = "DEPRECATED_PROTOCOL"
	CodeProtocolExpired           = "PROTOCOL_EXPIRED"
	CodeIncompleteProtocol        = "INCOMPLETE_PROTOCOL"
	CodeCriticalWarningsPresent   = "CRITICAL_WARNINGS_PRESENT"
	CodeUnretrievedCitation       = "UNRETRIEVED_CITATION"
	CodeContextMedicationError    = "CONTEXT_MEDICATION_ERROR"
	CodeMissingBaseContact        = "MISSING_BASE_CONTACT"
	CodeHallucinatedCitation      = "HALLUCINATED_CITATION"
	CodeMissingBaseContactReq     = "MISSING_BASE_CONTACT_REQUIREMENT"
	CodeDoseOutOfRange            = "DOSE_OUT_OF_RANGE"
	CodeResponseContradictions    = "RESPONSE_CONTRADICTIONS"
)

// minProtocolTextLength is the shortest full text accepted as a complete
// protocol record.
const minProtocolTextLength = 50

// queryNormalizations fixes the common field typos and abbreviations before
// anything downstream sees the query.
var queryNormalizations = map[string]string{
	"cant": "can't",
	"wont": "won't",
	"sob":  "shortness of breath",
	"gcs":  "glasgow coma scale",
	"loc":  "level of consciousness",
	"etoh": "alcohol",
	"abd":  "abdominal",
	"fx":   "fracture",
	"hx":   "history",
	"tx":   "treatment",
	"pt":   "patient",
}

// vagueTerms flag queries lacking clinical specificity when nothing more
// specific accompanies them.
var vagueTerms = map[string]bool{
	"pain": true, "sick": true, "help": true, "hurt": true,
	"emergency": true, "unwell": true, "ill": true, "bad": true,
}

var (
	baseContactPhrase = regexp.MustCompile(
		`(?i)\bcontact\s+(?:the\s+)?base(?:\s+hospital)?\b|\bbase\s+hospital\s+contact\b|\bcall\s+(?:the\s+)?base\b`)
	directivePattern = regexp.MustCompile(
		`(?i)\b(give|administer|apply|perform|start|transport)\s+([a-z][a-z-]+)`)
	negatedDirectivePattern = regexp.MustCompile(
		`(?i)\b(?:do\s+not|don't|never)\s+(give|administer|apply|perform|start|transport)\s+([a-z][a-z-]+)`)
)

// Pipeline is the four-stage validation state machine bracketing the
// query → retrieval → LLM context → LLM response lifecycle. Stages mutate no
// global state except the monitor.
type Pipeline struct {
	registry *dosing.Registry
	monitor  *Monitor
	now      func() time.Time
}

// NewPipeline wires the pipeline. monitor may be nil.
func NewPipeline(registry *dosing.Registry, monitor *Monitor) *Pipeline {
	return &Pipeline{registry: registry, monitor: monitor, now: time.Now}
}

func (p *Pipeline) record(stage string, started time.Time, result *models.ValidationResult) {
	if p.monitor == nil {
		return
	}
	p.monitor.Record(stage, result, p.now().Sub(started))
}

// PreRetrieval is Stage 1: query normalization and intent extraction. It
// never hard-fails; downstream stages always still run.
func (p *Pipeline) PreRetrieval(query string) *models.ValidationResult {
	started := p.now()
	result := models.NewValidationResult()
	defer func() { p.record(StagePreRetrieval, started, result) }()

	normalized := NormalizeQuery(query)

	codes := ExtractCitations(normalized)
	var medications []string
	for _, f := range ExtractMedications(normalized) {
		if f.Class != "unrecognized" {
			medications = append(medications, f.Canonical)
		}
	}

	result.Metadata = map[string]string{"normalized_query": normalized}
	if len(codes) > 0 {
		var cs []string
		for _, c := range codes {
			cs = append(cs, c.Code)
		}
		result.Metadata["protocol_codes"] = strings.Join(cs, ",")
	}
	if len(medications) > 0 {
		result.Metadata["medications"] = strings.Join(medications, ",")
	}

	if len(medications) > 0 && len(codes) == 0 {
		result.AddWarning(CodeMedicationWithoutProtocol,
			fmt.Sprintf("medication mentioned with no protocol context: %s", strings.Join(medications, ", ")), nil)
	}

	words := strings.Fields(strings.ToLower(normalized))
	if len(words) <= 2 && len(medications) == 0 && len(codes) == 0 {
		for _, w := range words {
			if vagueTerms[strings.Trim(w, ".,!?")] {
				result.AddWarning(CodeVagueQuery,
					"query lacks clinical specificity; include mechanism, symptoms or impression", nil)
				break
			}
		}
	}
	return result
}

// NormalizeQuery applies the typo/abbreviation table word by word and
// collapses whitespace.
func NormalizeQuery(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		key := strings.ToLower(strings.Trim(f, ".,;:!?"))
		if repl, ok := queryNormalizations[key]; ok {
			fields[i] = repl
		}
	}
	return strings.Join(fields, " ")
}

// DuringRetrieval is Stage 2: validates the retrieved protocol records
// themselves.
func (p *Pipeline) DuringRetrieval(protocols []models.Protocol) *models.ValidationResult {
	started := p.now()
	result := models.NewValidationResult()
	defer func() { p.record(StageDuringRetrieval, started, result) }()

	now := p.now()
	for _, proto := range protocols {
		ctx := map[string]string{"tp_code": proto.TPCode}

		if !proto.IsCurrent {
			result.AddError(CodeDeprecatedProtocol,
				fmt.Sprintf("TP %s (%s) is deprecated; a newer version supersedes it", proto.TPCode, proto.Name),
				models.SeverityCritical, ctx)
		}
		if proto.Expired(now) {
			result.AddError(CodeProtocolExpired,
				fmt.Sprintf("TP %s expired on %s", proto.TPCode, proto.ExpirationDate.Format("2006-01-02")),
				models.SeverityError, ctx)
		}
		if len(proto.FullText) < minProtocolTextLength {
			result.AddError(CodeIncompleteProtocol,
				fmt.Sprintf("TP %s text is %d characters; the record looks truncated", proto.TPCode, len(proto.FullText)),
				models.SeverityError, ctx)
		}
		if len(proto.Warnings) > 0 {
			result.AddWarning(CodeCriticalWarningsPresent,
				fmt.Sprintf("TP %s carries warnings: %s", proto.TPCode, strings.Join(proto.Warnings, "; ")), ctx)
		}
	}
	return result
}

// PreResponse is Stage 3: validates the assembled LLM context before it is
// sent, against the protocols actually retrieved.
func (p *Pipeline) PreResponse(context string, retrieved []models.Protocol) *models.ValidationResult {
	started := p.now()
	result := models.NewValidationResult()
	defer func() { p.record(StagePreResponse, started, result) }()

	retrievedCodes := codeSet(retrieved)

	for _, cite := range ExtractCitations(context) {
		if !retrievedCodes[cite.Code] {
			result.AddError(CodeUnretrievedCitation,
				fmt.Sprintf("context cites %s but that protocol was not retrieved", cite.Span),
				models.SeverityCritical,
				map[string]string{"citation": cite.Code})
		}
	}

	for _, f := range ExtractMedications(context) {
		if f.Class == "unauthorized" {
			result.AddError(CodeContextMedicationError,
				fmt.Sprintf("context names unauthorized medication %s; formulary alternative is %s", f.Canonical, f.Substitute),
				models.SeverityCritical,
				map[string]string{"medication": f.Canonical, "substitute": f.Substitute})
		}
	}

	p.checkBaseContact(context, retrieved, result, CodeMissingBaseContact)
	return result
}

// PostResponse is Stage 4: validates the generated text against the
// retrieved protocols before it may reach the end user.
func (p *Pipeline) PostResponse(text string, retrieved []models.Protocol) *models.ValidationResult {
	started := p.now()
	result := models.NewValidationResult()
	defer func() { p.record(StagePostResponse, started, result) }()

	retrievedCodes := codeSet(retrieved)

	for _, cite := range ExtractCitations(text) {
		if !retrievedCodes[cite.Code] {
			result.AddError(CodeHallucinatedCitation,
				fmt.Sprintf("response cites %s, which was not among the retrieved protocols", cite.Span),
				models.SeverityCritical,
				map[string]string{"citation": cite.Code})
		}
	}

	result.Merge(ValidateMedications(text))

	p.checkBaseContact(text, retrieved, result, CodeMissingBaseContactReq)

	for _, mention := range ExtractDoseMentions(text, p.registry) {
		if out, detail := CheckDoseRange(mention, p.registry); out {
			result.AddError(CodeDoseOutOfRange,
				fmt.Sprintf("%q is outside the accepted range; %s", mention.Span, detail),
				models.SeverityCritical,
				map[string]string{"medication": mention.Canonical, "span": mention.Span})
		}
	}

	for _, object := range contradictedDirectives(text) {
		result.AddError(CodeResponseContradictions,
			fmt.Sprintf("response both directs and forbids the same action for %q", object),
			models.SeverityError,
			map[string]string{"object": object})
	}
	return result
}

func (p *Pipeline) checkBaseContact(text string, retrieved []models.Protocol, result *models.ValidationResult, code string) {
	required := false
	var requiredBy string
	for _, proto := range retrieved {
		if proto.BaseContactRequired || corpus.RequiresBaseContact(proto.TPCode) {
			required = true
			requiredBy = proto.TPCode
			break
		}
	}
	if !required || baseContactPhrase.MatchString(text) {
		return
	}
	result.AddError(code,
		fmt.Sprintf("TP %s requires base hospital contact, but the text carries no contact instruction", requiredBy),
		models.SeverityCritical,
		map[string]string{"tp_code": requiredBy})
}

// contradictedDirectives finds actions the text both directs and forbids,
// e.g. "give epinephrine" alongside "do not give epinephrine".
func contradictedDirectives(text string) []string {
	forbidden := make(map[string]bool)
	for _, m := range negatedDirectivePattern.FindAllStringSubmatch(text, -1) {
		forbidden[strings.ToLower(m[1])+" "+strings.ToLower(m[2])] = true
	}
	if len(forbidden) == 0 {
		return nil
	}

	negated := negatedDirectivePattern.ReplaceAllString(text, "")
	seen := make(map[string]bool)
	var out []string
	for _, m := range directivePattern.FindAllStringSubmatch(negated, -1) {
		action := strings.ToLower(m[1]) + " " + strings.ToLower(m[2])
		if forbidden[action] && !seen[action] {
			seen[action] = true
			out = append(out, strings.ToLower(m[2]))
		}
	}
	return out
}

func codeSet(protocols []models.Protocol) map[string]bool {
	set := make(map[string]bool, len(protocols))
	for _, p := range protocols {
		set[corpus.NormalizeCode(p.TPCode)] = true
	}
	return set
}
