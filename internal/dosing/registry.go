package dosing

import (
	"fmt"
	"sort"
	"strings"

	"emsadvisor/internal/models"
)

// ReferenceAdultWeightKg anchors guardrail dose checks when no patient weight
// is stated in the text.
const ReferenceAdultWeightKg = 70.0

// Input carries the parameters of a dose calculation.
type Input struct {
	WeightKg float64
	Scenario string // e.g. "cardiac-arrest", "anaphylaxis"; "" for the default rule
}

// adultRange is the accepted adult dose window for one drug and route.
type adultRange struct {
	route string
	min   float64
	max   float64
	unit  string
	note  string
}

// pediatricRule computes a weight-based pediatric dose with an absolute cap.
type pediatricRule struct {
	route    string
	perKg    float64
	cap      float64
	unit     string
	scenario string // "" applies to all scenarios
	note     string
}

var adultRanges = map[string][]adultRange{
	"epinephrine": {
		{route: "IV", min: 0.1, max: 1.0, unit: "mg", note: "cardiac arrest: 1 mg IV/IO"},
		{route: "IM", min: 0.3, max: 0.5, unit: "mg", note: "anaphylaxis"},
	},
	"midazolam": {
		{route: "IV", min: 1, max: 5, unit: "mg"},
		{route: "IM", min: 5, max: 10, unit: "mg"},
		{route: "IN", min: 5, max: 10, unit: "mg"},
	},
	"fentanyl": {
		{route: "IV", min: 25, max: 100, unit: "mcg"},
		{route: "IN", min: 50, max: 100, unit: "mcg"},
	},
	"naloxone": {
		{route: "IV", min: 0.4, max: 2, unit: "mg"},
		{route: "IN", min: 2, max: 4, unit: "mg"},
	},
	"amiodarone": {
		{route: "IV", min: 150, max: 300, unit: "mg"},
	},
	"adenosine": {
		{route: "IV", min: 6, max: 12, unit: "mg"},
	},
	"albuterol": {
		{route: "NEB", min: 2.5, max: 5, unit: "mg"},
	},
	"morphine": {
		{route: "IV", min: 2, max: 10, unit: "mg"},
	},
	"dextrose": {
		{route: "IV", min: 12.5, max: 25, unit: "g"},
	},
	"diphenhydramine": {
		{route: "IV", min: 25, max: 50, unit: "mg"},
		{route: "IM", min: 25, max: 50, unit: "mg"},
	},
	"aspirin": {
		{route: "PO", min: 162, max: 325, unit: "mg"},
	},
	"nitroglycerin": {
		{route: "SL", min: 0.3, max: 0.4, unit: "mg"},
	},
	"atropine": {
		{route: "IV", min: 0.5, max: 1, unit: "mg"},
	},
	"glucagon": {
		{route: "IM", min: 1, max: 1, unit: "mg"},
	},
	"ondansetron": {
		{route: "IV", min: 4, max: 8, unit: "mg"},
	},
}

var pediatricRules = map[string][]pediatricRule{
	"epinephrine": {
		{route: "IV", perKg: 0.01, cap: 1, unit: "mg", scenario: "cardiac-arrest"},
		{route: "IM", perKg: 0.01, cap: 0.3, unit: "mg"},
	},
	"midazolam": {
		{route: "IV", perKg: 0.1, cap: 5, unit: "mg"},
		{route: "IM", perKg: 0.1, cap: 5, unit: "mg"},
	},
	"fentanyl": {
		{route: "IV", perKg: 1, cap: 50, unit: "mcg"},
		{route: "IN", perKg: 1.5, cap: 75, unit: "mcg"},
	},
	"naloxone": {
		{route: "IV", perKg: 0.1, cap: 2, unit: "mg"},
	},
	"amiodarone": {
		{route: "IV", perKg: 5, cap: 300, unit: "mg"},
	},
	"adenosine": {
		{route: "IV", perKg: 0.1, cap: 6, unit: "mg"},
	},
	"dextrose": {
		{route: "IV", perKg: 0.5, cap: 25, unit: "g", note: "D10 preferred"},
	},
	"diphenhydramine": {
		{route: "IV", perKg: 1, cap: 50, unit: "mg"},
	},
	"morphine": {
		{route: "IV", perKg: 0.1, cap: 5, unit: "mg"},
	},
}

var pediatricCitations = []string{"MCG 1309"}

// Registry answers dose calculations and range lookups from the static
// formulary tables. Pure and deterministic.
type Registry struct{}

// NewRegistry returns the dosing registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Known reports whether the registry carries dose data for the drug.
func (r *Registry) Known(drug string) bool {
	key := strings.ToLower(strings.TrimSpace(drug))
	_, adult := adultRanges[key]
	_, peds := pediatricRules[key]
	return adult || peds
}

// Drugs returns the sorted set of drugs the registry knows.
func (r *Registry) Drugs() []string {
	seen := make(map[string]bool)
	for d := range adultRanges {
		seen[d] = true
	}
	for d := range pediatricRules {
		seen[d] = true
	}
	drugs := make([]string, 0, len(seen))
	for d := range seen {
		drugs = append(drugs, d)
	}
	sort.Strings(drugs)
	return drugs
}

// Calculate computes weight-based pediatric recommendations for the drug.
// Each recommendation line cites its source authority.
func (r *Registry) Calculate(drug string, in Input) (models.DoseCalculation, bool) {
	key := strings.ToLower(strings.TrimSpace(drug))
	rules, ok := pediatricRules[key]
	if !ok || in.WeightKg <= 0 {
		return models.DoseCalculation{}, false
	}

	var recs []models.DoseRecommendation
	for _, rule := range rules {
		if rule.scenario != "" && in.Scenario != "" && rule.scenario != in.Scenario {
			continue
		}
		dose := rule.perKg * in.WeightKg
		if rule.cap > 0 && dose > rule.cap {
			dose = rule.cap
		}
		note := rule.note
		if rule.scenario != "" {
			note = strings.TrimSpace(note + " " + rule.scenario)
		}
		recs = append(recs, models.DoseRecommendation{
			Medication: key,
			Route:      rule.route,
			Dose:       dose,
			Unit:       rule.unit,
			MaxDose:    rule.cap,
			Note:       note,
		})
	}
	if len(recs) == 0 {
		return models.DoseCalculation{}, false
	}
	return models.DoseCalculation{Recommendations: recs, Citations: pediatricCitations}, true
}

// AdultRecommendations returns the accepted adult dose set for the drug,
// one recommendation per route, anchored at the range maximum.
func (r *Registry) AdultRecommendations(drug string) []models.DoseRecommendation {
	key := strings.ToLower(strings.TrimSpace(drug))
	ranges, ok := adultRanges[key]
	if !ok {
		return nil
	}
	recs := make([]models.DoseRecommendation, 0, len(ranges))
	for _, ar := range ranges {
		recs = append(recs, models.DoseRecommendation{
			Medication: key,
			Route:      ar.route,
			Dose:       ar.max,
			Unit:       ar.unit,
			MaxDose:    ar.max,
			Note:       ar.note,
		})
	}
	return recs
}

// Range returns the accepted adult window for a drug and route.
func (r *Registry) Range(drug, route string) (models.DoseRange, bool) {
	key := strings.ToLower(strings.TrimSpace(drug))
	for _, ar := range adultRanges[key] {
		if strings.EqualFold(ar.route, route) {
			return models.DoseRange{Route: ar.route, Min: ar.min, Max: ar.max, Unit: ar.unit}, true
		}
	}
	return models.DoseRange{}, false
}

// Ranges returns every accepted adult window for a drug.
func (r *Registry) Ranges(drug string) []models.DoseRange {
	key := strings.ToLower(strings.TrimSpace(drug))
	ranges := adultRanges[key]
	out := make([]models.DoseRange, 0, len(ranges))
	for _, ar := range ranges {
		out = append(out, models.DoseRange{Route: ar.route, Min: ar.min, Max: ar.max, Unit: ar.unit})
	}
	return out
}

// FormatRecommendation renders one recommendation line with its citations.
func FormatRecommendation(rec models.DoseRecommendation, citations []string) string {
	line := fmt.Sprintf("%s %s %s %s", rec.Medication, trimFloat(rec.Dose), rec.Unit, rec.Route)
	if rec.Note != "" {
		line += " (" + rec.Note + ")"
	}
	if len(citations) > 0 {
		line += " [" + strings.Join(citations, ", ") + "]"
	}
	return line
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
