package validation

import (
	"testing"

	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
)

func TestFinalizeResponse_BlocksOnCritical(t *testing.T) {
	svc := NewService(dosing.NewRegistry(), nil)
	retrieved := []models.Protocol{currentProtocol("1237", "respiratory distress")}

	out := svc.FinalizeResponse("Per TP 9999, give albuterol 5 mg NEB.", retrieved)

	if !out.Blocked {
		t.Fatal("response with a hallucinated citation was not blocked")
	}
	if out.Guardrail != nil {
		t.Error("guardrail ran on a blocked response")
	}
	if !out.Stage4.HasError(CodeHallucinatedCitation) {
		t.Errorf("stage 4 findings = %+v", out.Stage4.Errors)
	}
}

func TestFinalizeResponse_GuardrailRunsOnPass(t *testing.T) {
	svc := NewService(dosing.NewRegistry(), nil)
	retrieved := []models.Protocol{currentProtocol("1237", "respiratory distress")}

	out := svc.FinalizeResponse("Per TP 1237, administer albuterol 5 mg NEB and reassess.", retrieved)

	if out.Blocked {
		t.Fatalf("clean response blocked: %+v", out.Stage4.Errors)
	}
	if out.Guardrail == nil {
		t.Fatal("guardrail did not run on a passing response")
	}
	if out.Guardrail.Flagged() {
		t.Errorf("guardrail flagged a clean response: %+v", out.Guardrail)
	}
}

func TestFinalizeResponse_AdvisoryErrorsDoNotBlock(t *testing.T) {
	svc := NewService(dosing.NewRegistry(), nil)
	retrieved := []models.Protocol{currentProtocol("1237", "respiratory distress")}

	// A directive contradiction is advisory; the guardrail still runs.
	text := "Per TP 1237, give albuterol 5 mg NEB. Do not give albuterol if allergic."
	out := svc.FinalizeResponse(text, retrieved)

	if out.Blocked {
		t.Fatal("advisory-severity finding blocked the response")
	}
	if !out.Stage4.HasError(CodeResponseContradictions) {
		t.Errorf("stage 4 findings = %+v", out.Stage4.Errors)
	}
	if out.Guardrail == nil {
		t.Error("guardrail skipped despite no critical findings")
	}
}

func TestFinalizeResponse_GuardrailFlagsWhatStage4Passes(t *testing.T) {
	svc := NewService(dosing.NewRegistry(), nil)

	// A missing pediatric dosing marker is invisible to Stage 4 but the
	// guardrail catches it on the surviving text.
	retrieved := []models.Protocol{currentProtocol("1210-P", "cardiac arrest")}
	out := svc.FinalizeResponse(
		"Per TP 1210-P, for a 3 year old give epinephrine 0.3 mg IV. Contact Base Hospital.", retrieved)

	if out.Blocked {
		t.Fatalf("response blocked by stage 4: %+v", out.Stage4.Errors)
	}
	if out.Guardrail == nil {
		t.Fatal("guardrail did not run")
	}
	if !out.Guardrail.PediatricMarkerMissing {
		t.Errorf("pediatric marker gap not flagged: %+v", out.Guardrail)
	}
}
