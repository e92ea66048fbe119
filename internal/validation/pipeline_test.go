package validation

import (
	"strings"
	"testing"
	"time"

	"emsadvisor/internal/dosing"
	"emsadvisor/internal/models"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(dosing.NewRegistry(), nil)
}

func currentProtocol(code, name string) models.Protocol {
	return models.Protocol{
		TPCode:    code,
		Name:      name,
		IsCurrent: true,
		FullText:  strings.Repeat("Protocol step. ", 10),
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"pt cant breathe", "patient can't breathe"},
		{"sob after fall", "shortness of breath after fall"},
		{"GCS 8 and dropping", "glasgow coma scale 8 and dropping"},
		{"  extra   spaces  ", "extra spaces"},
		{"chest pain", "chest pain"},
	}
	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPreRetrieval_NeverHardFails(t *testing.T) {
	p := newTestPipeline()
	for _, q := range []string{"", "pain", "lorazepam dose", "TP 9999 steps", "pt cant breathe sob"} {
		if result := p.PreRetrieval(q); !result.Valid {
			t.Errorf("PreRetrieval(%q) hard-failed: %+v", q, result.Errors)
		}
	}
}

func TestPreRetrieval_IntentExtraction(t *testing.T) {
	p := newTestPipeline()
	result := p.PreRetrieval("epinephrine dose per TP 1210")

	if got := result.Metadata["protocol_codes"]; got != "1210" {
		t.Errorf("protocol_codes = %q, want 1210", got)
	}
	if got := result.Metadata["medications"]; got != "epinephrine" {
		t.Errorf("medications = %q, want epinephrine", got)
	}
	if result.HasWarning(CodeMedicationWithoutProtocol) {
		t.Error("medication with protocol context still warned")
	}
}

func TestPreRetrieval_MedicationWithoutProtocol(t *testing.T) {
	p := newTestPipeline()
	result := p.PreRetrieval("how much midazolam for an adult")

	if !result.HasWarning(CodeMedicationWithoutProtocol) {
		t.Errorf("missing %s warning: %+v", CodeMedicationWithoutProtocol, result.Warnings)
	}
}

func TestPreRetrieval_VagueQuery(t *testing.T) {
	p := newTestPipeline()

	if result := p.PreRetrieval("pain"); !result.HasWarning(CodeVagueQuery) {
		t.Errorf("vague one-word query not flagged: %+v", result.Warnings)
	}
	// Specific multi-word queries are not vague even when a vague word appears.
	if result := p.PreRetrieval("crushing chest pain radiating to left arm"); result.HasWarning(CodeVagueQuery) {
		t.Error("specific query flagged as vague")
	}
}

func TestDuringRetrieval(t *testing.T) {
	p := newTestPipeline()
	expired := time.Now().Add(-24 * time.Hour)

	deprecated := currentProtocol("1210", "cardiac arrest")
	deprecated.IsCurrent = false

	expiredProto := currentProtocol("1211", "cardiac chest pain")
	expiredProto.ExpirationDate = &expired

	truncated := currentProtocol("1237", "respiratory distress")
	truncated.FullText = "short"

	warned := currentProtocol("1241", "overdose poisoning")
	warned.Warnings = []string{"Naloxone may precipitate withdrawal"}

	result := p.DuringRetrieval([]models.Protocol{deprecated, expiredProto, truncated, warned})

	if result.Valid {
		t.Fatal("deprecated protocol must invalidate the result")
	}
	if !result.HasError(CodeDeprecatedProtocol) {
		t.Errorf("missing %s", CodeDeprecatedProtocol)
	}
	if !result.HasError(CodeProtocolExpired) {
		t.Errorf("missing %s", CodeProtocolExpired)
	}
	if !result.HasError(CodeIncompleteProtocol) {
		t.Errorf("missing %s", CodeIncompleteProtocol)
	}
	if !result.HasWarning(CodeCriticalWarningsPresent) {
		t.Errorf("missing %s warning", CodeCriticalWarningsPresent)
	}

	// Expired and incomplete are advisory severities; only the deprecated
	// record carries critical weight here.
	for _, e := range result.Errors {
		switch e.Code {
		case CodeProtocolExpired, CodeIncompleteProtocol:
			if e.Severity != models.SeverityError {
				t.Errorf("%s severity = %s, want error", e.Code, e.Severity)
			}
		case CodeDeprecatedProtocol:
			if e.Severity != models.SeverityCritical {
				t.Errorf("%s severity = %s, want critical", e.Code, e.Severity)
			}
		}
	}
}

func TestDuringRetrieval_CleanRecords(t *testing.T) {
	p := newTestPipeline()
	result := p.DuringRetrieval([]models.Protocol{currentProtocol("1210", "cardiac arrest")})
	if !result.Valid || len(result.Errors) != 0 {
		t.Errorf("clean record produced findings: %+v", result.Errors)
	}
}

func TestPreResponse_UnretrievedCitation(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1210", "cardiac arrest")}

	context := "Per TP 1210 begin compressions. Contact base hospital. See also TP 1211 for chest pain."
	result := p.PreResponse(context, retrieved)

	if result.Valid {
		t.Fatal("unretrieved citation must invalidate the context")
	}
	if !result.HasError(CodeUnretrievedCitation) {
		t.Fatalf("missing %s: %+v", CodeUnretrievedCitation, result.Errors)
	}
	for _, e := range result.Errors {
		if e.Code == CodeUnretrievedCitation && e.Context["citation"] != "1211" {
			t.Errorf("flagged citation = %q, want 1211", e.Context["citation"])
		}
	}
}

func TestPreResponse_ContextMedicationError(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1231", "seizure")}

	result := p.PreResponse("Per TP 1231 consider diazepam for status epilepticus.", retrieved)
	if !result.HasError(CodeContextMedicationError) {
		t.Errorf("missing %s: %+v", CodeContextMedicationError, result.Errors)
	}
}

func TestPreResponse_MissingBaseContact(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1210", "cardiac arrest")}

	result := p.PreResponse("Per TP 1210 begin compressions and defibrillate.", retrieved)
	if !result.HasError(CodeMissingBaseContact) {
		t.Fatalf("missing %s: %+v", CodeMissingBaseContact, result.Errors)
	}

	withContact := "Per TP 1210 begin compressions. Contact the Base Hospital for termination orders."
	if result := p.PreResponse(withContact, retrieved); result.HasError(CodeMissingBaseContact) {
		t.Error("contact instruction present but still flagged")
	}
}

func TestPostResponse_HallucinatedCitation(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1210", "cardiac arrest")}

	text := "Per TP 9999, give epinephrine 1 mg IV. Contact base hospital."
	result := p.PostResponse(text, retrieved)

	if result.Valid {
		t.Fatal("hallucinated citation must invalidate the response")
	}
	if !result.HasError(CodeHallucinatedCitation) {
		t.Fatalf("missing %s: %+v", CodeHallucinatedCitation, result.Errors)
	}
	for _, e := range result.Errors {
		if e.Code == CodeHallucinatedCitation && e.Context["citation"] != "9999" {
			t.Errorf("flagged citation = %q, want 9999", e.Context["citation"])
		}
	}
}

func TestPostResponse_DoseOutOfRange(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1210", "cardiac arrest")}

	text := "Per TP 1210, give epinephrine 5 mg IV. Contact base hospital."
	result := p.PostResponse(text, retrieved)

	if result.Valid {
		t.Fatal("out-of-range dose must invalidate the response")
	}
	if !result.HasError(CodeDoseOutOfRange) {
		t.Fatalf("missing %s: %+v", CodeDoseOutOfRange, result.Errors)
	}
}

func TestPostResponse_BaseContactRequirement(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1210", "cardiac arrest")}

	without := "Per TP 1210, give epinephrine 1 mg IV and continue compressions."
	result := p.PostResponse(without, retrieved)
	if !result.HasError(CodeMissingBaseContactReq) {
		t.Fatalf("missing %s: %+v", CodeMissingBaseContactReq, result.Errors)
	}

	with := without + " Contact Base Hospital for further orders."
	result = p.PostResponse(with, retrieved)
	if result.HasError(CodeMissingBaseContactReq) {
		t.Error("contact phrase present but requirement still flagged")
	}
	if !result.Valid {
		t.Errorf("compliant response still invalid: %+v", result.Errors)
	}
}

func TestPostResponse_Contradictions(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1237", "respiratory distress")}

	text := "Per TP 1237, give albuterol 5 mg NEB. Do not give albuterol if the patient is tachycardic. Contact base hospital."
	result := p.PostResponse(text, retrieved)

	if !result.HasError(CodeResponseContradictions) {
		t.Fatalf("missing %s: %+v", CodeResponseContradictions, result.Errors)
	}
	// Contradictions are advisory-severity; they flag review, not a block.
	for _, e := range result.Errors {
		if e.Code == CodeResponseContradictions && e.Severity != models.SeverityError {
			t.Errorf("severity = %s, want error", e.Severity)
		}
	}
}

func TestPostResponse_CleanResponse(t *testing.T) {
	p := newTestPipeline()
	retrieved := []models.Protocol{currentProtocol("1237", "respiratory distress")}

	text := "Per TP 1237, administer albuterol 5 mg NEB and reassess breath sounds during transport."
	result := p.PostResponse(text, retrieved)
	if !result.Valid {
		t.Errorf("clean response invalidated: %+v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}
}

func TestPipeline_RecordsToMonitor(t *testing.T) {
	monitor := NewMonitor()
	p := NewPipeline(dosing.NewRegistry(), monitor)

	p.PreRetrieval("chest pain")
	p.PostResponse("Per TP 9999 do things.", nil)

	metrics := monitor.Export()
	if metrics.Total != 2 {
		t.Fatalf("monitor recorded %d samples, want 2", metrics.Total)
	}
	if metrics.Failure != 1 {
		t.Errorf("failures = %d, want 1", metrics.Failure)
	}
}
