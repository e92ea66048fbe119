package validation

import (
	"strings"
	"testing"
)

func TestExtractCitations(t *testing.T) {
	text := "Per TP 1210, begin compressions. Pediatric dosing per MCG 1309; see also Protocol 1211 and TP 1210-P."
	cites := ExtractCitations(text)

	got := make(map[string]bool, len(cites))
	for _, c := range cites {
		got[c.Code] = true
	}
	for _, want := range []string{"1210", "1309", "1211", "1210-P"} {
		if !got[want] {
			t.Errorf("missing citation %s in %v", want, cites)
		}
	}
}

func TestValidateProtocolCitations_UnknownCode(t *testing.T) {
	result := ValidateProtocolCitations("Follow TP 9999 for this presentation.")

	if result.Valid {
		t.Fatal("unknown protocol code must invalidate the result")
	}
	if !result.HasError(CodeInvalidProtocol) {
		t.Fatalf("missing %s error: %+v", CodeInvalidProtocol, result.Errors)
	}
	for _, e := range result.Errors {
		if e.Code != CodeInvalidProtocol {
			continue
		}
		if !strings.Contains(e.Message, "INVALID PROTOCOL") {
			t.Errorf("message missing INVALID PROTOCOL marker: %q", e.Message)
		}
		if !strings.Contains(e.Message, "9999") {
			t.Errorf("message missing the offending code: %q", e.Message)
		}
		if e.Context["citation"] != "9999" {
			t.Errorf("context citation = %q, want 9999", e.Context["citation"])
		}
	}
}

func TestValidateProtocolCitations_ValidCode(t *testing.T) {
	result := ValidateProtocolCitations("Treat per TP 1210 cardiac arrest protocol.")

	if !result.Valid {
		t.Fatalf("valid citation flagged: %+v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", result.Warnings)
	}
}

func TestValidateProtocolCitations_NameMismatchWarning(t *testing.T) {
	// TP 1210 is cardiac arrest on record; the surrounding text names the
	// respiratory distress protocol instead.
	result := ValidateProtocolCitations("Manage respiratory distress per TP 1210 with albuterol.")

	if !result.Valid {
		t.Fatalf("mismatch must warn, not error: %+v", result.Errors)
	}
	if !result.HasWarning(CodeProtocolNameMismatch) {
		t.Fatalf("missing %s warning: %+v", CodeProtocolNameMismatch, result.Warnings)
	}
	for _, w := range result.Warnings {
		if w.Code == CodeProtocolNameMismatch && w.Context["citation"] != "1210" {
			t.Errorf("warning context = %+v", w.Context)
		}
	}
}

func TestValidateProtocolCitations_NoCitations(t *testing.T) {
	result := ValidateProtocolCitations("Position of comfort, monitor vitals, transport.")
	if !result.Valid || len(result.Errors) != 0 {
		t.Errorf("text without citations produced findings: %+v", result.Errors)
	}
}

func TestValidateProtocolCitations_PediatricVariant(t *testing.T) {
	result := ValidateProtocolCitations("Use TP 1210-P for pediatric cardiac arrest.")
	if !result.Valid {
		t.Fatalf("pediatric variant flagged as invalid: %+v", result.Errors)
	}
}
