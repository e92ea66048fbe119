package corpus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"emsadvisor/internal/models"
)

func writeMetadata(t *testing.T, entries []models.ProtocolMetadata) string {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestMetadataLookup(t *testing.T) {
	path := writeMetadata(t, []models.ProtocolMetadata{
		{
			DocumentID:          "tp-1210",
			TPCode:              "1210",
			BaseContactRequired: true,
			BaseContactCriteria: []string{"Persistent ventricular fibrillation"},
			Warnings:            []string{"Do not interrupt compressions"},
		},
		{DocumentID: "tp-1237", TPCode: "1237"},
	})

	m := NewMetadataStore(path)
	if m.Degraded() {
		t.Fatal("store degraded on a valid file")
	}

	md, ok := m.Lookup("tp-1210")
	if !ok {
		t.Fatal("Lookup(tp-1210) missed")
	}
	if !md.BaseContactRequired {
		t.Error("BaseContactRequired lost in load")
	}
	if len(md.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %d", len(md.Warnings))
	}

	if _, ok := m.Lookup("tp-nope"); ok {
		t.Error("Lookup of unknown id succeeded")
	}

	byCode, ok := m.ByProtocolCode("1210")
	if !ok || byCode.DocumentID != "tp-1210" {
		t.Errorf("ByProtocolCode(1210) = %+v, ok=%v", byCode, ok)
	}
}

func TestMetadataDegradesOnMissingFile(t *testing.T) {
	m := NewMetadataStore(filepath.Join(t.TempDir(), "absent.json"))

	load := m.Load()
	if !load.Degraded {
		t.Fatal("expected degraded load for missing file")
	}
	if load.Reason == "" {
		t.Error("degraded load carries no reason")
	}
	if _, ok := m.Lookup("anything"); ok {
		t.Error("Lookup succeeded on degraded store")
	}
	if !m.Degraded() {
		t.Error("Degraded() false after failed load")
	}
}

func TestMetadataDegradesOnBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewMetadataStore(path)
	if !m.Load().Degraded {
		t.Fatal("expected degraded load for unparseable file")
	}
}
