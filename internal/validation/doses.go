package validation

import (
	"regexp"
	"strconv"
	"strings"

	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
)

// Dose tolerance policy: stated doses within 15% of an accepted value pass,
// with a minimum absolute tolerance for very small doses.
const (
	doseTolerancePct = 0.15
	doseToleranceAbs = 0.05
)

var doseMentionPattern = regexp.MustCompile(
	`(?i)\b([a-z][a-z-]{3,})\s+(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|units?)\b(?:\s+(iv|io|im|in|neb|po|sl))?`)

// DoseMention is one <drug> <amount> <unit> triple found in text, with the
// route when stated.
type DoseMention struct {
	Drug      string
	Canonical string
	Amount    float64
	Unit      string
	Route     string
	Span      string
}

// ExtractDoseMentions finds dose triples for known medications in text.
// Triples naming unknown drugs are skipped; the medication validator covers
// those separately.
func ExtractDoseMentions(text string, registry *dosing.Registry) []DoseMention {
	var out []DoseMention
	for _, m := range doseMentionPattern.FindAllStringSubmatch(text, -1) {
		canonical := dosing.Canonical(m[1])
		if !registry.Known(canonical) && !IsAuthorizedMedication(canonical) {
			if _, unauthorized := SubstituteFor(canonical); !unauthorized {
				continue
			}
		}
		amount, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out = append(out, DoseMention{
			Drug:      m[1],
			Canonical: canonical,
			Amount:    amount,
			Unit:      strings.ToLower(m[3]),
			Route:     strings.ToUpper(m[4]),
			Span:      strings.TrimSpace(m[0]),
		})
	}
	return out
}

// CheckDoseRange reports whether a stated dose falls outside every accepted
// range for the drug (the stated route's range when recognized, all routes
// otherwise). Returns false when the registry has no data to check against.
func CheckDoseRange(m DoseMention, registry *dosing.Registry) (outOfRange bool, detail string) {
	ranges := registry.Ranges(m.Canonical)
	if len(ranges) == 0 {
		return false, ""
	}

	checked := 0
	var last models.DoseRange
	for _, r := range ranges {
		if m.Route != "" && !strings.EqualFold(r.Route, m.Route) {
			continue
		}
		stated, ok := convertUnit(m.Amount, m.Unit, r.Unit)
		if !ok {
			continue
		}
		checked++
		last = r
		if withinRange(stated, r) {
			return false, ""
		}
	}
	if checked == 0 {
		// Stated route or unit matched nothing on record; fall back to any route.
		for _, r := range ranges {
			stated, ok := convertUnit(m.Amount, m.Unit, r.Unit)
			if !ok {
				continue
			}
			checked++
			last = r
			if withinRange(stated, r) {
				return false, ""
			}
		}
	}
	if checked == 0 {
		return false, ""
	}

	// The detail names the range the dose was actually compared against.
	return true, formatRangeDetail(m, last)
}

func withinRange(stated float64, r models.DoseRange) bool {
	lowTol := tolerance(r.Min)
	highTol := tolerance(r.Max)
	return stated >= r.Min-lowTol && stated <= r.Max+highTol
}

func tolerance(v float64) float64 {
	tol := v * doseTolerancePct
	if tol < doseToleranceAbs {
		tol = doseToleranceAbs
	}
	return tol
}

// convertUnit converts between mass units; returns false for incompatible
// units so volume doses are never compared against mass ranges.
func convertUnit(amount float64, from, to string) (float64, bool) {
	from, to = strings.ToLower(from), strings.ToLower(to)
	if from == to {
		return amount, true
	}
	factors := map[string]float64{"mcg": 0.001, "mg": 1, "g": 1000}
	f, okFrom := factors[from]
	t, okTo := factors[to]
	if !okFrom || !okTo {
		return 0, false
	}
	return amount * f / t, true
}

func formatRangeDetail(m DoseMention, r models.DoseRange) string {
	var sb strings.Builder
	sb.WriteString(m.Canonical)
	sb.WriteString(" accepted range is ")
	sb.WriteString(strconv.FormatFloat(r.Min, 'f', -1, 64))
	sb.WriteString("-")
	sb.WriteString(strconv.FormatFloat(r.Max, 'f', -1, 64))
	sb.WriteString(" ")
	sb.WriteString(r.Unit)
	sb.WriteString(" ")
	sb.WriteString(r.Route)
	return sb.String()
}
