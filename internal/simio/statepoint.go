package simio

import (
	"encoding/json"
	"fmt"
	"os"
)

// Statepoint is the simulator's result artifact: a combined eigenvalue
// plus the tally results hyperslab and the side tables naming the
// material, nuclide, and score identity of each bin.
//
// Results is indexed [material bin][(nuclide, reaction) bin]
// [realization]; the (nuclide, reaction) axis is nuclide-major in the
// order of the Nuclides and Scores tables. Realization 0 carries the
// accumulated sum used by the ingester.
//
// The artifact is written once by the simulator and then read
// concurrently by every rank; reads are plain read-only opens.
type Statepoint struct {
	KCombined float64       `json:"k_combined"`
	Materials []string      `json:"materials"`
	Nuclides  []string      `json:"nuclides"`
	Scores    []string      `json:"scores"`
	Results   [][][]float64 `json:"results"`
}

// StatepointName returns the artifact name the simulator produces for
// the given batch count.
func StatepointName(batches int) string {
	return fmt.Sprintf("statepoint.%d.json", batches)
}

// ReadStatepoint opens and decodes the result artifact at path.
func ReadStatepoint(path string) (*Statepoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statepoint: %w", err)
	}
	var sp Statepoint
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("parse statepoint %s: %w", path, err)
	}
	if len(sp.Results) != len(sp.Materials) {
		return nil, fmt.Errorf("statepoint %s: %d result rows for %d material bins", path, len(sp.Results), len(sp.Materials))
	}
	return &sp, nil
}

// WriteStatepoint encodes a statepoint at path. The production
// simulator writes its own artifact; this writer exists for stub
// simulators and fixtures.
func WriteStatepoint(path string, sp *Statepoint) error {
	data, err := json.MarshalIndent(sp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
