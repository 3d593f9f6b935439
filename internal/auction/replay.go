package auction

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/squad-auction/internal/clock"
	"github.com/jensholdgaard/squad-auction/internal/event"
	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// ErrCorruptStream is returned when an event cannot be applied to the
// state it follows.
var ErrCorruptStream = errors.New("corrupt event stream")

// Replay rebuilds an auction from a base snapshot and the events recorded
// after it. Events at or below the base version are skipped, so a stream
// loaded from the start can be replayed onto a checkpoint.
func Replay(id string, base *squad.Snapshot, events []event.Event, tp trace.TracerProvider, clk clock.Clock) (*Auction, error) {
	state := base.Clone()
	for _, e := range events {
		if e.Version <= state.Version {
			continue
		}
		if e.Version != state.Version+1 {
			return nil, fmt.Errorf("%w: expected version %d, got %d", ErrCorruptStream, state.Version+1, e.Version)
		}
		if err := apply(state, e); err != nil {
			return nil, err
		}
	}
	return New(id, state, tp, clk), nil
}

// apply mutates s according to e. It checks every reference before the
// first write, so a failed apply leaves s unchanged.
func apply(s *squad.Snapshot, e event.Event) error {
	switch e.Type {
	case event.RoundStarted:
		var d event.RoundStartedData
		if err := decode(e, &d); err != nil {
			return err
		}
		if s.Player(d.PlayerID) == nil {
			return corrupt(e, "unknown player %s", d.PlayerID)
		}
		s.Round = squad.Round{ItemID: d.PlayerID, CurrentBid: d.OpeningBid, Version: s.Round.Version + 1}

	case event.RoundBidPlaced:
		var d event.BidPlacedData
		if err := decode(e, &d); err != nil {
			return err
		}
		if !s.Round.Active() {
			return corrupt(e, "no round")
		}
		r := &s.Round
		r.Stack = append(r.Stack, squad.BidState{Bid: r.CurrentBid, LeaderID: r.LeaderID})
		r.CurrentBid = d.Amount
		r.LeaderID = d.TeamID
		r.Version++

	case event.RoundBidUndone:
		r := &s.Round
		if len(r.Stack) == 0 {
			return corrupt(e, "empty bid stack")
		}
		prev := r.Stack[len(r.Stack)-1]
		r.Stack = r.Stack[:len(r.Stack)-1]
		r.CurrentBid = prev.Bid
		r.LeaderID = prev.LeaderID
		r.Version++

	case event.RoundSold:
		var d event.RoundSoldData
		if err := decode(e, &d); err != nil {
			return err
		}
		p, t := s.Player(d.PlayerID), s.Team(d.TeamID)
		if p == nil || t == nil {
			return corrupt(e, "unknown player %s or team %s", d.PlayerID, d.TeamID)
		}
		t.RemainingBudget -= d.Amount
		t.Roster = append(t.Roster, p.ID)
		price, owner := d.Amount, d.TeamID
		p.Status = squad.Sold
		p.SoldPrice = &price
		p.SoldTo = &owner
		s.History = append([]squad.Settlement{{
			ID:        d.SettlementID,
			PlayerID:  d.PlayerID,
			SoldPrice: d.Amount,
			TeamID:    d.TeamID,
			Timestamp: d.SoldAt,
		}}, s.History...)
		s.Round = closed(s.Round)

	case event.RoundPassed:
		p := s.CurrentPlayer()
		if p == nil {
			return corrupt(e, "no round")
		}
		p.Status = squad.Unsold
		s.Round = closed(s.Round)

	case event.RoundCancelled:
		s.Round = closed(s.Round)

	case event.PlayerReleased:
		var d event.PlayerReleasedData
		if err := decode(e, &d); err != nil {
			return err
		}
		p, t := s.Player(d.PlayerID), s.Team(d.TeamID)
		if p == nil || t == nil {
			return corrupt(e, "unknown player %s or team %s", d.PlayerID, d.TeamID)
		}
		t.RemainingBudget += d.Refund
		roster := t.Roster[:0]
		for _, id := range t.Roster {
			if id != d.PlayerID {
				roster = append(roster, id)
			}
		}
		t.Roster = roster
		p.Status = squad.Unsold
		p.SoldPrice = nil
		p.SoldTo = nil

	case event.TeamBudgetUpdated:
		var d event.TeamBudgetUpdatedData
		if err := decode(e, &d); err != nil {
			return err
		}
		t := s.Team(d.TeamID)
		if t == nil {
			return corrupt(e, "unknown team %s", d.TeamID)
		}
		t.RemainingBudget += d.TotalBudget - t.TotalBudget
		t.TotalBudget = d.TotalBudget

	default:
		return corrupt(e, "unknown event type")
	}

	s.Version = e.Version
	return nil
}

// closed returns the idle round that follows r. The version keeps counting
// so that a version observed in one round never matches a later one.
func closed(r squad.Round) squad.Round {
	return squad.Round{Version: r.Version + 1}
}

func decode(e event.Event, v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: decoding %s v%d: %v", ErrCorruptStream, e.Type, e.Version, err)
	}
	return nil
}

func corrupt(e event.Event, format string, args ...any) error {
	return fmt.Errorf("%w: %s v%d: %s", ErrCorruptStream, e.Type, e.Version, fmt.Sprintf(format, args...))
}
