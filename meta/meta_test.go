package meta

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(m.Phases) != 0 {
		t.Fatalf("expected empty metadata, got %+v", m.Phases)
	}
	if m.Completed(PhaseExtract) {
		t.Fatal("expected extract phase to be incomplete")
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata")

	m, err := Load(path)
	if err != nil {
		t.Fatalf("load: %s", err)
	}
	if err := m.SetExtract(ExtractSummary{Vout: 10, LastProcessedBlock: "abc"}); err != nil {
		t.Fatalf("set extract: %s", err)
	}
	if err := m.SetGroup(PhaseGroupVout, GroupSummary{Documents: 5}); err != nil {
		t.Fatalf("set group: %s", err)
	}
	if err := m.Save(path); err != nil {
		t.Fatalf("save: %s", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %s", err)
	}
	if !reloaded.Completed(PhaseExtract) || !reloaded.Completed(PhaseGroupVout) {
		t.Fatal("expected both phases completed after reload")
	}
	extract, ok, err := reloaded.Extract()
	if err != nil || !ok {
		t.Fatalf("extract: ok=%v err=%s", ok, err)
	}
	if extract.Vout != 10 || extract.LastProcessedBlock != "abc" {
		t.Fatalf("unexpected extract summary: %+v", extract)
	}
}

func TestClearFromRemovesPhaseAndLater(t *testing.T) {
	m := &Metadata{Phases: map[string]json.RawMessage{}}
	for _, p := range Order() {
		_ = m.SetGroup(p, GroupSummary{Documents: 1})
	}
	m.ClearFrom(PhaseGroupVinSpent)

	if !m.Completed(PhaseGroupVout) || !m.Completed(PhaseGroupCoinbase) {
		t.Fatal("expected phases before the cut point to remain completed")
	}
	for _, p := range []string{PhaseGroupVinSpent, PhaseGroupVinTxid, PhaseGroupAddress, PhaseGroupBlock} {
		if m.Completed(p) {
			t.Fatalf("expected %s to be cleared", p)
		}
	}
}

func TestClearEmptiesEverything(t *testing.T) {
	m := &Metadata{Phases: map[string]json.RawMessage{}}
	_ = m.SetExtract(ExtractSummary{Vout: 1})
	m.Clear()
	if m.Completed(PhaseExtract) {
		t.Fatal("expected metadata to be empty after Clear")
	}
}
