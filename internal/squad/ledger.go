package squad

import (
	"errors"
	"fmt"
)

// ErrLedgerMismatch is returned by CheckLedger when a team's books do not
// balance.
var ErrLedgerMismatch = errors.New("ledger mismatch")

// Spent returns the sum of sold prices of the team's roster.
func Spent(t *Team, players []Player) int64 {
	var spent int64
	for _, p := range RosterOf(t, players) {
		if p.SoldPrice != nil {
			spent += *p.SoldPrice
		}
	}
	return spent
}

// CheckLedger verifies that every team's remaining budget equals its total
// budget minus what it has spent, and that sold players point back at the
// team holding them.
func CheckLedger(s *Snapshot) error {
	owner := make(map[string]string)
	for i := range s.Teams {
		t := &s.Teams[i]
		if got, want := t.RemainingBudget, t.TotalBudget-Spent(t, s.Players); got != want {
			return fmt.Errorf("%w: team %s remaining %d, want %d", ErrLedgerMismatch, t.ID, got, want)
		}
		for _, id := range t.Roster {
			if prev, dup := owner[id]; dup {
				return fmt.Errorf("%w: player %s on rosters of %s and %s", ErrLedgerMismatch, id, prev, t.ID)
			}
			owner[id] = t.ID
		}
	}
	for i := range s.Players {
		p := &s.Players[i]
		sold := p.Status == Sold
		if sold != (p.SoldPrice != nil && p.SoldTo != nil) {
			return fmt.Errorf("%w: player %s status %s with sold fields %v/%v", ErrLedgerMismatch, p.ID, p.Status, p.SoldPrice != nil, p.SoldTo != nil)
		}
		if sold && owner[p.ID] != *p.SoldTo {
			return fmt.Errorf("%w: player %s sold to %s but held by %q", ErrLedgerMismatch, p.ID, *p.SoldTo, owner[p.ID])
		}
	}
	return nil
}
