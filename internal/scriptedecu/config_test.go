package scriptedecu

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
name: engine
requestId: 0x7E0
responseId: 0x7E8
raw:
  "3E 00": "7E 00"
readDataByIdentifier:
  "F190": "01 02 03"
  programming:
    "F190": "AA BB CC"
  extended:
    "F190": "EE FF"
seed:
  "01": "11 22 33 44"
pgns:
  "65226": "01 02 03 04 05 06 07 08"
  "CAFE00#XX *": "@echoPayload"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.ecu.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfigFlatAndNestedDID(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "engine" {
		t.Fatalf("got name %q", cfg.Name)
	}
	if cfg.ReadDataByIdentifier.Default["F190"] != "01 02 03" {
		t.Fatalf("default DID missing, got %q", cfg.ReadDataByIdentifier.Default["F190"])
	}
	if cfg.ReadDataByIdentifier.Programming["F190"] != "AA BB CC" {
		t.Fatalf("programming DID missing, got %q", cfg.ReadDataByIdentifier.Programming["F190"])
	}
	if cfg.ReadDataByIdentifier.Extended["F190"] != "EE FF" {
		t.Fatalf("extended DID missing, got %q", cfg.ReadDataByIdentifier.Extended["F190"])
	}
	if cfg.BroadcastID == nil || *cfg.BroadcastID != DefaultBroadcastID {
		t.Fatalf("expected default broadcast id, got %v", cfg.BroadcastID)
	}
}

func TestLoadConfigPGNEntryShapes(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	bare, ok := cfg.PGNs["65226"]
	if !ok {
		t.Fatalf("expected bare PGN entry")
	}
	if bare.Payload != "01 02 03 04 05 06 07 08" {
		t.Fatalf("got payload %q", bare.Payload)
	}

	tree, ok := cfg.PGNs["CAFE00#XX *"]
	if !ok {
		t.Fatalf("expected tree-form PGN entry")
	}
	if tree.Payload != "@echoPayload" {
		t.Fatalf("got payload %q", tree.Payload)
	}
}

func TestLoadConfigCycleTimeForm(t *testing.T) {
	const cfgText = `
name: cyclic
pgns:
  "61444":
    payload: "01 02 03 04 05 06 07 08"
    cycleTime: 100
`
	path := writeTempConfig(t, cfgText)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	entry := cfg.PGNs["61444"]
	if entry.CycleMs != 100 {
		t.Fatalf("got cycleMs %d, want 100", entry.CycleMs)
	}
}
