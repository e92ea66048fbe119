package validation

import (
	"fmt"
	"regexp"
	"strings"

	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
)

// Error and warning codes emitted by the medication validator.
const (
	CodeUnauthorizedMedication = "UNAUTHORIZED_MEDICATION"
	CodeUnrecognizedMedication = "UNRECOGNIZED_MEDICATION"
)

// authorizedMedications is the formulary: medications providers may
// administer under standing orders or base direction.
var authorizedMedications = map[string]bool{
	"epinephrine":        true,
	"midazolam":          true,
	"fentanyl":           true,
	"naloxone":           true,
	"amiodarone":         true,
	"adenosine":          true,
	"albuterol":          true,
	"morphine":           true,
	"dextrose":           true,
	"glucose":            true,
	"diphenhydramine":    true,
	"aspirin":            true,
	"nitroglycerin":      true,
	"atropine":           true,
	"glucagon":           true,
	"ondansetron":        true,
	"oxygen":             true,
	"calcium chloride":   true,
	"sodium bicarbonate": true,
	"normal saline":      true,
	"lidocaine":          true,
}

// unauthorizedMedications maps explicitly out-of-formulary medications to the
// in-formulary substitute to suggest.
var unauthorizedMedications = map[string]string{
	"lorazepam":     "midazolam",
	"diazepam":      "midazolam",
	"alprazolam":    "midazolam",
	"clonazepam":    "midazolam",
	"haloperidol":   "midazolam",
	"meperidine":    "fentanyl",
	"hydromorphone": "fentanyl",
	"ketorolac":     "fentanyl",
	"phenytoin":     "midazolam",
	"propofol":      "midazolam",
}

// drugSuffixes are the morphological endings used to spot medication-like
// tokens in free text.
var drugSuffixes = []string{"ine", "ol", "lam", "pam", "xone", "caine", "cillin"}

// suffixStopwords are common words carrying a drug-like suffix that must not
// be flagged, to avoid false positives on non-drug text.
var suffixStopwords = map[string]bool{
	"protocol": true, "protocols": true, "control": true, "alcohol": true,
	"school": true, "tool": true, "cool": true, "patrol": true, "pool": true,
	"line": true, "guideline": true, "baseline": true, "deadline": true,
	"online": true, "spine": true, "routine": true, "medicine": true,
	"determine": true, "examine": true, "machine": true, "decline": true,
	"combine": true, "define": true, "imagine": true, "saline": true,
	"fine": true, "nine": true, "mine": true, "wine": true, "magazine": true,
	"vaseline": true, "gasoline": true, "symbol": true, "aerosol": true,
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z-]+`)

// MedicationFinding classifies one medication-like token.
type MedicationFinding struct {
	Token      string
	Canonical  string
	Class      string // "authorized", "unauthorized", "unrecognized"
	Substitute string // set for unauthorized findings
}

// ExtractMedications scans text for medication-like tokens: known formulary
// and deny-list names directly, plus unknown tokens matching the suffix
// heuristics. Deterministic; no I/O.
func ExtractMedications(text string) []MedicationFinding {
	var findings []MedicationFinding
	seen := make(map[string]bool)

	for _, token := range wordPattern.FindAllString(text, -1) {
		lower := strings.ToLower(token)
		canonical := dosing.Canonical(lower)
		if seen[canonical] {
			continue
		}

		switch {
		case authorizedMedications[canonical]:
			findings = append(findings, MedicationFinding{Token: token, Canonical: canonical, Class: "authorized"})
		case unauthorizedMedications[canonical] != "":
			findings = append(findings, MedicationFinding{
				Token:      token,
				Canonical:  canonical,
				Class:      "unauthorized",
				Substitute: unauthorizedMedications[canonical],
			})
		case hasDrugSuffix(lower) && !suffixStopwords[lower] && len(lower) >= 6:
			findings = append(findings, MedicationFinding{Token: token, Canonical: canonical, Class: "unrecognized"})
		default:
			continue
		}
		seen[canonical] = true
	}
	return findings
}

func hasDrugSuffix(word string) bool {
	for _, suffix := range drugSuffixes {
		if strings.HasSuffix(word, suffix) {
			return true
		}
	}
	return false
}

// ValidateMedications checks every medication named in text against the
// formulary. Unauthorized medications are critical errors carrying a
// suggested substitute; unrecognized drug-like tokens are warnings only.
func ValidateMedications(text string) *models.ValidationResult {
	result := models.NewValidationResult()

	var authorized []string
	for _, f := range ExtractMedications(text) {
		switch f.Class {
		case "authorized":
			authorized = append(authorized, f.Canonical)
		case "unauthorized":
			result.AddError(CodeUnauthorizedMedication,
				fmt.Sprintf("%s is not in the formulary; the in-formulary alternative is %s", f.Canonical, f.Substitute),
				models.SeverityCritical,
				map[string]string{"medication": f.Canonical, "substitute": f.Substitute})
		case "unrecognized":
			result.AddWarning(CodeUnrecognizedMedication,
				fmt.Sprintf("%q is not a recognized formulary medication", f.Token),
				map[string]string{"token": f.Token})
		}
	}
	if len(authorized) > 0 {
		if result.Metadata == nil {
			result.Metadata = make(map[string]string)
		}
		result.Metadata["medications"] = strings.Join(authorized, ",")
	}
	return result
}

// IsAuthorizedMedication reports whether name (brand or generic) is in the
// formulary.
func IsAuthorizedMedication(name string) bool {
	return authorizedMedications[dosing.Canonical(name)]
}

// SubstituteFor returns the suggested in-formulary substitute for an
// unauthorized medication.
func SubstituteFor(name string) (string, bool) {
	sub, ok := unauthorizedMedications[dosing.Canonical(name)]
	return sub, ok
}
