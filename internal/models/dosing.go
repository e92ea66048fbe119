package models

// DoseRecommendation is a single accepted dose/route combination produced by
// the dosing registry.
type DoseRecommendation struct {
	Medication string  `json:"medication"`
	Route      string  `json:"route"`
	Dose       float64 `json:"dose"`
	Unit       string  `json:"unit"`
	MaxDose    float64 `json:"max_dose,omitempty"` // absolute cap, 0 when none
	Note       string  `json:"note,omitempty"`
}

// DoseCalculation is the dosing registry output for a medication/weight pair.
type DoseCalculation struct {
	Recommendations []DoseRecommendation `json:"recommendations"`
	Citations       []string             `json:"citations"`
}

// DoseRange is the accepted min/max for a medication and route, used for
// range-checking doses stated in generated text.
type DoseRange struct {
	Route string  `json:"route"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Unit  string  `json:"unit"`
}
