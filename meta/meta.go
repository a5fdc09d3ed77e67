// Package meta implements the Metadata Checkpoint: a single JSON file
// recording, per phase, either the Extractor's summary or a Grouper's
// document count. Its presence is what lets a rerun skip already-completed
// phases and resume mid-pipeline after an interruption.
package meta

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Phase names, in the strict order §4.8 mandates.
const (
	PhaseExtract       = "extract"
	PhaseSort          = "sort"
	PhaseGroupVout     = "group_vout"
	PhaseGroupCoinbase = "group_coinbase"
	PhaseGroupVinSpent = "group_vin_spent"
	PhaseGroupVinTxid  = "group_vin_txid"
	PhaseGroupAddress  = "group_address"
	PhaseGroupBlock    = "group_block"
)

// Order lists every phase in pipeline order.
func Order() []string {
	return []string{
		PhaseExtract, PhaseSort,
		PhaseGroupVout, PhaseGroupCoinbase, PhaseGroupVinSpent,
		PhaseGroupVinTxid, PhaseGroupAddress, PhaseGroupBlock,
	}
}

// ExtractSummary is the extract phase's checkpoint payload.
type ExtractSummary struct {
	Vout              int64  `json:"vout"`
	VinSpent          int64  `json:"vin_spent"`
	VinTxid           int64  `json:"vin_txid"`
	Coinbase          int64  `json:"coinbase"`
	Address           int64  `json:"address"`
	Block             int64  `json:"block"`
	LastProcessedBlock string `json:"last-processed-block"`
	NextBlockHash     string `json:"next-block-hash,omitempty"`
	Limit             int64  `json:"limit"`
}

// GroupSummary is a grouper phase's checkpoint payload.
type GroupSummary struct {
	Documents int64 `json:"documents"`
	Skipped   int64 `json:"skipped"`
}

// Metadata is the in-memory form of the checkpoint file.
type Metadata struct {
	Phases map[string]json.RawMessage `json:"phases"`
}

// Load reads path, returning an empty Metadata (not an error) if the file
// doesn't exist yet — the contract for a first run.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Metadata{Phases: map[string]json.RawMessage{}}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading metadata file %q", path)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing metadata file %q", path)
	}
	if m.Phases == nil {
		m.Phases = map[string]json.RawMessage{}
	}
	return &m, nil
}

// Save writes m atomically: serialize to a temp file in the same
// directory, then rename over the destination, so a crash mid-write never
// leaves a truncated checkpoint behind.
func (m *Metadata) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding metadata")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".metadata-*.tmp")
	if err != nil {
		return errors.Wrapf(err, "creating temp metadata file in %q", dir)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "writing temp metadata file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "closing temp metadata file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming temp metadata file onto %q", path)
	}
	return nil
}

// Completed reports whether a phase already has a checkpoint entry.
func (m *Metadata) Completed(phase string) bool {
	_, ok := m.Phases[phase]
	return ok
}

// SetExtract records the extract phase's summary.
func (m *Metadata) SetExtract(summary ExtractSummary) error {
	return m.set(PhaseExtract, summary)
}

// Extract returns the extract phase's summary, if recorded.
func (m *Metadata) Extract() (ExtractSummary, bool, error) {
	var s ExtractSummary
	ok, err := m.get(PhaseExtract, &s)
	return s, ok, err
}

// SetGroup records a grouper phase's summary.
func (m *Metadata) SetGroup(phase string, summary GroupSummary) error {
	return m.set(phase, summary)
}

// Group returns a grouper phase's summary, if recorded.
func (m *Metadata) Group(phase string) (GroupSummary, bool, error) {
	var s GroupSummary
	ok, err := m.get(phase, &s)
	return s, ok, err
}

func (m *Metadata) set(phase string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s summary", phase)
	}
	if m.Phases == nil {
		m.Phases = map[string]json.RawMessage{}
	}
	m.Phases[phase] = data
	return nil
}

func (m *Metadata) get(phase string, out interface{}) (bool, error) {
	raw, ok := m.Phases[phase]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "decoding %s summary", phase)
	}
	return true, nil
}

// ClearFrom removes the checkpoint entries for phase and every phase after
// it in pipeline order — the effect of --phase X forcing re-execution from
// X onward.
func (m *Metadata) ClearFrom(phase string) {
	order := Order()
	idx := -1
	for i, p := range order {
		if p == phase {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	for _, p := range order[idx:] {
		delete(m.Phases, p)
	}
}

// Clear empties the metadata entirely — the effect of --regenerate.
func (m *Metadata) Clear() {
	m.Phases = map[string]json.RawMessage{}
}
