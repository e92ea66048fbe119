package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
)

// denyList names medications that must never appear in advice, regardless of
// context. Kept separate from the formulary tables so the guardrail stays a
// last line of defense even if those tables change.
var denyList = []string{
	"lorazepam", "diazepam", "alprazolam", "clonazepam",
	"haloperidol", "meperidine", "hydromorphone", "propofol",
}

// outOfScopePhrases mark responses that drift outside prehospital protocol
// guidance.
var outOfScopePhrases = []string{
	"consult your physician",
	"seek medical advice",
	"i am not a doctor",
	"this is not medical advice",
	"beyond the scope of",
	"legal advice",
	"schedule an appointment",
}

// sceneSafetyRedFlags suggest unsafe retreat or approach guidance.
var sceneSafetyRedFlags = []string{
	"even if the scene is unsafe",
	"do not wait for law enforcement",
	"enter the scene before",
	"ignore scene safety",
	"approach the patient regardless",
}

// pediatricMarkers are the dosing references a pediatric answer must carry.
var pediatricMarkers = []string{"mcg 1309", "color code", "broselow"}

var pediatricContextPattern = regexp.MustCompile(
	`(?i)\b(pediatric|paediatric|child|children|infant|toddler|neonate|kg\b.*\b(year|month)s?\s+old|(year|month)s?\s+old)\b`)

var adultDoseCitations = []string{"MCG 1309", "PCM formulary"}

// Guardrail is the post-response safety net, independent of the staged
// pipeline. It detects violations and produces corrected text spans; it
// never returns an error — any internal failure degrades to "no correction
// available" for that match.
type Guardrail struct {
	registry *dosing.Registry
}

// NewGuardrail wires the guardrail engine.
func NewGuardrail(registry *dosing.Registry) *Guardrail {
	return &Guardrail{registry: registry}
}

// Evaluate runs every detection over the final generated text.
func (g *Guardrail) Evaluate(text string) *models.GuardrailCheck {
	check := &models.GuardrailCheck{}
	lower := strings.ToLower(text)

	for _, med := range denyList {
		if strings.Contains(lower, med) {
			check.ContainsUnauthorizedMed = true
			note := fmt.Sprintf("unauthorized medication %q in response", med)
			if sub, ok := SubstituteFor(med); ok {
				note += fmt.Sprintf("; formulary alternative is %s", sub)
			}
			check.Notes = append(check.Notes, note)
		}
	}

	check.PCMCitationsPresent = len(ExtractCitations(text)) > 0
	if !check.PCMCitationsPresent {
		check.Notes = append(check.Notes, "response cites no protocol (TP/MCG) reference")
	}

	for _, phrase := range outOfScopePhrases {
		if strings.Contains(lower, phrase) {
			check.OutsideScope = true
			check.Notes = append(check.Notes, fmt.Sprintf("out-of-scope phrasing: %q", phrase))
			break
		}
	}

	if pediatricContextPattern.MatchString(text) && !containsAny(lower, pediatricMarkers) {
		check.PediatricMarkerMissing = true
		check.Notes = append(check.Notes, "pediatric context without a pediatric dosing marker (MCG 1309 / color code / Broselow)")
	}

	for _, flag := range sceneSafetyRedFlags {
		if strings.Contains(lower, flag) {
			check.SceneSafetyConcern = true
			check.Notes = append(check.Notes, fmt.Sprintf("scene safety red flag: %q", flag))
			break
		}
	}

	g.checkDoses(text, check)
	return check
}

// checkDoses compares each stated dose against the accepted adult dose set.
// A stated quantity outside tolerance of every accepted recommendation yields
// a correction pairing the original span with the full accepted set.
func (g *Guardrail) checkDoses(text string, check *models.GuardrailCheck) {
	for _, mention := range ExtractDoseMentions(text, g.registry) {
		recs := g.registry.AdultRecommendations(mention.Canonical)
		if len(recs) == 0 {
			// No accepted dose set on record; nothing to correct against.
			continue
		}

		accepted := false
		for _, rec := range recs {
			stated, ok := convertUnit(mention.Amount, mention.Unit, rec.Unit)
			if !ok {
				continue
			}
			if math.Abs(stated-rec.Dose) <= tolerance(rec.Dose) {
				accepted = true
				break
			}
			// Doses under the maximum are within the accepted adult window.
			if r, found := g.registry.Range(mention.Canonical, rec.Route); found && withinRange(stated, r) {
				accepted = true
				break
			}
		}
		if accepted {
			continue
		}

		check.DosingIssues = append(check.DosingIssues, models.DosingIssue{
			Medication: mention.Canonical,
			Stated:     mention.Amount,
			Unit:       mention.Unit,
			Span:       mention.Span,
			Detail:     fmt.Sprintf("stated %g %s matches no accepted recommendation", mention.Amount, mention.Unit),
		})

		if suggestion := replacementFor(mention, recs); suggestion != "" {
			check.Corrections = append(check.Corrections, models.Correction{
				Original:  mention.Span,
				Suggested: suggestion,
				Citations: adultDoseCitations,
			})
		}
	}
}

// replacementFor renders the accepted dose/route combinations as replacement
// text. An empty return means no correction is available for the match.
func replacementFor(mention DoseMention, recs []models.DoseRecommendation) string {
	var parts []string
	for _, rec := range recs {
		parts = append(parts, dosing.FormatRecommendation(rec, nil))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("accepted dosing for %s: %s", mention.Canonical, strings.Join(parts, "; "))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
