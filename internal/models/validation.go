package models

// Severity grades a validation error.
type Severity string

const (
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ValidationError is a structured error emitted by a validator or pipeline stage.
type ValidationError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Severity Severity          `json:"severity"`
	Context  map[string]string `json:"context,omitempty"`
}

// ValidationWarning is advisory; it never blocks a response.
type ValidationWarning struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// ValidationResult is the output of any validator or pipeline stage.
// Valid is false exactly when a critical-severity error is present.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
	Metadata map[string]string   `json:"metadata,omitempty"`
}

// NewValidationResult returns a result that starts valid with no findings.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// AddError appends an error and recomputes Valid.
func (r *ValidationResult) AddError(code, message string, severity Severity, ctx map[string]string) {
	r.Errors = append(r.Errors, ValidationError{Code: code, Message: message, Severity: severity, Context: ctx})
	if severity == SeverityCritical {
		r.Valid = false
	}
}

// AddWarning appends an advisory warning.
func (r *ValidationResult) AddWarning(code, message string, ctx map[string]string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Code: code, Message: message, Context: ctx})
}

// HasCritical reports whether any critical-severity error is present.
func (r *ValidationResult) HasCritical() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HasError reports whether an error with the given code is present.
func (r *ValidationResult) HasError(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// HasWarning reports whether a warning with the given code is present.
func (r *ValidationResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Merge folds another result into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.Valid {
		r.Valid = false
	}
}

// DosingIssue describes a dose stated in generated text that falls outside
// every accepted recommendation for the medication.
type DosingIssue struct {
	Medication string  `json:"medication"`
	Stated     float64 `json:"stated"`
	Unit       string  `json:"unit"`
	Span       string  `json:"span"` // original text span
	Detail     string  `json:"detail"`
}

// Correction pairs an original text span with replacement text and the
// citations supporting the replacement.
type Correction struct {
	Original  string   `json:"original"`
	Suggested string   `json:"suggested"`
	Citations []string `json:"citations,omitempty"`
}

// GuardrailCheck is the post-hoc safety-net result over final generated text.
type GuardrailCheck struct {
	PCMCitationsPresent     bool          `json:"pcm_citations_present"`
	ContainsUnauthorizedMed bool          `json:"contains_unauthorized_med"`
	OutsideScope            bool          `json:"outside_scope"`
	PediatricMarkerMissing  bool          `json:"pediatric_marker_missing"`
	SceneSafetyConcern      bool          `json:"scene_safety_concern"`
	DosingIssues            []DosingIssue `json:"dosing_issues,omitempty"`
	Corrections             []Correction  `json:"corrections,omitempty"`
	Notes                   []string      `json:"notes,omitempty"`
}

// Flagged reports whether any detection fired.
func (g *GuardrailCheck) Flagged() bool {
	return g.ContainsUnauthorizedMed || g.OutsideScope || g.PediatricMarkerMissing ||
		g.SceneSafetyConcern || !g.PCMCitationsPresent || len(g.DosingIssues) > 0
}
