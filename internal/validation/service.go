package validation

import (
	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
)

// FinalOutcome is the combined result of Stage-4 gating and the guardrail
// pass over one generated response.
type FinalOutcome struct {
	Stage4    *models.ValidationResult `json:"stage4"`
	Guardrail *models.GuardrailCheck   `json:"guardrail,omitempty"`
	Blocked   bool                     `json:"blocked"`
}

// Service composes the pipeline and the guardrail with a fixed precedence:
// pipeline gating runs first, and the guardrail correction pass only runs on
// text that already passed Stage 4 without critical errors. A blocked
// response is never corrected; it is withheld.
type Service struct {
	pipeline  *Pipeline
	guardrail *Guardrail
}

// NewService wires the validation service.
func NewService(registry *dosing.Registry, monitor *Monitor) *Service {
	return &Service{
		pipeline:  NewPipeline(registry, monitor),
		guardrail: NewGuardrail(registry),
	}
}

// Pipeline exposes the staged pipeline for the retrieval lifecycle.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// FinalizeResponse gates the generated text through Stage 4 and, when it
// passes, runs the guardrail over it.
func (s *Service) FinalizeResponse(text string, retrieved []models.Protocol) FinalOutcome {
	stage4 := s.pipeline.PostResponse(text, retrieved)
	if stage4.HasCritical() {
		return FinalOutcome{Stage4: stage4, Blocked: true}
	}
	return FinalOutcome{
		Stage4:    stage4,
		Guardrail: s.guardrail.Evaluate(text),
	}
}
