package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// ReadSeed decodes a JSON snapshot from path and fills in the fields a
// hand-written seed usually leaves out: player status, team budgets from
// the rules, and remaining budgets of teams that have bought nobody.
func ReadSeed(path string) (*squad.Snapshot, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return DecodeSnapshot(data)
}

// DecodeSnapshot decodes and normalizes a JSON snapshot.
func DecodeSnapshot(data []byte) (*squad.Snapshot, error) {
	var s squad.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	seen := make(map[string]bool, len(s.Players)+len(s.Teams))
	for i := range s.Players {
		p := &s.Players[i]
		if p.ID == "" || seen["p/"+p.ID] {
			return nil, fmt.Errorf("player %d: missing or duplicate id %q", i, p.ID)
		}
		seen["p/"+p.ID] = true
		if p.Status == "" {
			p.Status = squad.Available
		}
	}
	for i := range s.Teams {
		t := &s.Teams[i]
		if t.ID == "" || seen["t/"+t.ID] {
			return nil, fmt.Errorf("team %d: missing or duplicate id %q", i, t.ID)
		}
		seen["t/"+t.ID] = true
		if t.TotalBudget == 0 {
			t.TotalBudget = s.Rules.TotalBudget
		}
		if t.RemainingBudget == 0 && len(t.Roster) == 0 {
			t.RemainingBudget = t.TotalBudget
		}
	}

	if err := squad.CheckLedger(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
