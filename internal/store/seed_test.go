package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jensholdgaard/squad-auction/internal/squad"
	"github.com/jensholdgaard/squad-auction/internal/store"
)

func TestReadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	body := `{
  "tournament_name": "Premier League",
  "rules": {"total_budget": 1000, "max_players": 15},
  "teams": [{"id": "t1", "name": "Falcons"}, {"id": "t2", "name": "Hawks", "total_budget": 800}],
  "players": [{"id": "p1", "name": "A", "role": "Batsman", "base_price": 50}]
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := store.ReadSeed(path)
	if err != nil {
		t.Fatalf("ReadSeed() error = %v", err)
	}
	if got := s.Team("t1"); got.TotalBudget != 1000 || got.RemainingBudget != 1000 {
		t.Errorf("t1 budget = %d/%d, want 1000/1000", got.RemainingBudget, got.TotalBudget)
	}
	if got := s.Team("t2"); got.TotalBudget != 800 || got.RemainingBudget != 800 {
		t.Errorf("t2 budget = %d/%d, want 800/800", got.RemainingBudget, got.TotalBudget)
	}
	if got := s.Player("p1").Status; got != squad.Available {
		t.Errorf("status = %q, want %q", got, squad.Available)
	}
}

func TestDecodeSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "duplicate player", body: `{"players": [{"id": "p1"}, {"id": "p1"}]}`},
		{name: "missing team id", body: `{"teams": [{"name": "Falcons"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.DecodeSnapshot([]byte(tt.body)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestDecodeSnapshot_LedgerMismatch(t *testing.T) {
	_, err := store.DecodeSnapshot([]byte(`{"teams": [{"id": "t1", "total_budget": 100, "remaining_budget": 40}]}`))
	if !errors.Is(err, squad.ErrLedgerMismatch) {
		t.Errorf("error = %v, want ErrLedgerMismatch", err)
	}
}

func TestReadSeed_FileNotFound(t *testing.T) {
	if _, err := store.ReadSeed("/nonexistent/seed.json"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}
