// Package testutil provides shared test infrastructure for the battle
// engine: the golden match fixtures and their loader.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// GoldenMatches represents the structure of testdata/golden_matches.json.
type GoldenMatches struct {
	Matches []GoldenMatch `json:"matches"`
}

// GoldenMatch is one scripted match and its expected outcome.
type GoldenMatch struct {
	Name       string              `json:"name"`
	GridSide   int                 `json:"grid_side"`
	StartingHP int                 `json:"starting_hp"`
	MaxRounds  int                 `json:"max_rounds"`
	Seed       int64               `json:"seed"`
	Sides      []string            `json:"sides"`
	Placements []GoldenPlacement   `json:"placements"`
	Scripts    map[string][]string `json:"scripts"`
	Expected   GoldenOutcome       `json:"expected"`
}

// GoldenPlacement pins one starting unit.
type GoldenPlacement struct {
	Side int `json:"side"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// GoldenOutcome is the expected end state.
type GoldenOutcome struct {
	Turns     int            `json:"turns"`
	Rounds    int            `json:"rounds"`
	Reason    string         `json:"reason"`
	Winner    string         `json:"winner"`
	Survivors map[string]int `json:"survivors"`
	Live      []GoldenUnit   `json:"live"`
	Records   int            `json:"records"`
}

// GoldenUnit is a live unit at the end of a match, in live order.
type GoldenUnit struct {
	Controller string `json:"controller"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	HP         int    `json:"hp"`
}

// Reply returns the n-th scripted bytecode of controller for the unit whose
// 4-digit id is unit. Scripts repeat; {id} is replaced by unit.
func (m GoldenMatch) Reply(controller string, n int, unit string) string {
	script := m.Scripts[controller]
	if len(script) == 0 {
		return "0x0000" + unit + "00"
	}
	return "0x" + strings.ReplaceAll(script[n%len(script)], "{id}", unit)
}

// LoadGoldenMatches loads the golden fixtures from the testdata directory.
// The path is resolved relative to this source file: battle/internal/testutil/ → testdata/.
func LoadGoldenMatches(t *testing.T) *GoldenMatches {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "golden_matches.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden matches: %v", err)
	}

	var matches GoldenMatches
	if err := json.Unmarshal(data, &matches); err != nil {
		t.Fatalf("Failed to parse golden matches: %v", err)
	}
	return &matches
}
