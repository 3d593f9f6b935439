package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/squad-auction/internal/clock"
	"github.com/jensholdgaard/squad-auction/internal/event"
	"github.com/jensholdgaard/squad-auction/internal/squad"
)

const instrumentationName = "github.com/jensholdgaard/squad-auction/internal/auction"

// Errors returned by auction transitions. A transition that returns an
// error leaves the state untouched.
var (
	ErrRoundInProgress    = errors.New("a round is already in progress")
	ErrNoRound            = errors.New("no round in progress")
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrUnknownTeam        = errors.New("unknown team")
	ErrPlayerNotAvailable = errors.New("player is not available for auction")
	ErrBidTooLow          = errors.New("bid must exceed the current bid")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrStaleBid           = errors.New("bid was placed against a stale round version")
	ErrNothingToUndo      = errors.New("no bid to undo")
	ErrNoLeader           = errors.New("no bid has been placed")
	ErrHasLeader          = errors.New("cannot pass a player with a standing bid")
	ErrNotSold            = errors.New("player is not sold")
	ErrNotOwner           = errors.New("player is not owned by team")
	ErrBudgetBelowSpent   = errors.New("total budget is below the amount already spent")
	ErrSquadFull          = errors.New("squad is full")
)

// AnyVersion skips the optimistic round version check in PlaceBid. Any
// negative version does the same.
const AnyVersion int64 = -1

// Auction is the aggregate root for one auction: its teams, players, the
// round in progress and the settlement history. Every successful
// transition records an event. It is safe for concurrent use.
type Auction struct {
	mu sync.RWMutex

	ID    string
	state *squad.Snapshot

	events []event.Event
	tracer trace.Tracer
	clock  clock.Clock
}

// New wraps state in an Auction. The Auction takes ownership of state.
func New(id string, state *squad.Snapshot, tp trace.TracerProvider, clk clock.Clock) *Auction {
	return &Auction{
		ID:     id,
		state:  state,
		tracer: tp.Tracer(instrumentationName),
		clock:  clk,
	}
}

// Version returns the version of the last applied event.
func (a *Auction) Version() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Version
}

// Snapshot returns a deep copy of the current state.
func (a *Auction) Snapshot() *squad.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Clone()
}

// Round returns a copy of the round state.
func (a *Auction) Round() squad.Round {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r := a.state.Round
	r.Stack = append([]squad.BidState(nil), r.Stack...)
	return r
}

// Read calls fn with the live state under a read lock. fn must not retain
// or modify the snapshot.
func (a *Auction) Read(fn func(s *squad.Snapshot)) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn(a.state)
}

// StartRound opens bidding on a player at its effective base price.
func (a *Auction) StartRound(ctx context.Context, playerID string) error {
	_, span := a.tracer.Start(ctx, "Auction.StartRound",
		trace.WithAttributes(attribute.String("player.id", playerID)),
	)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Round.Active() {
		return fail(span, ErrRoundInProgress)
	}
	p := a.state.Player(playerID)
	if p == nil {
		return fail(span, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID))
	}
	if p.Status == squad.Sold {
		return fail(span, fmt.Errorf("%w: %s is %s", ErrPlayerNotAvailable, playerID, p.Status))
	}

	return a.record(event.RoundStarted, event.RoundStartedData{
		PlayerID:   playerID,
		OpeningBid: a.state.Rules.BasePriceFor(p),
	})
}

// PlaceBid raises the current bid to amount on behalf of teamID. Pass the
// round version the bidder observed as expectedVersion, or AnyVersion.
// Squad-rule feasibility is the caller's concern; PlaceBid only enforces
// monotonic bidding and the team's purse.
func (a *Auction) PlaceBid(ctx context.Context, teamID string, amount, expectedVersion int64) error {
	_, span := a.tracer.Start(ctx, "Auction.PlaceBid",
		trace.WithAttributes(
			attribute.String("team.id", teamID),
			attribute.Int64("bid.amount", amount),
		),
	)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	round := a.state.Round
	if !round.Active() {
		return fail(span, ErrNoRound)
	}
	t := a.state.Team(teamID)
	if t == nil {
		return fail(span, fmt.Errorf("%w: %s", ErrUnknownTeam, teamID))
	}
	if expectedVersion >= 0 && expectedVersion != round.Version {
		return fail(span, fmt.Errorf("%w: observed %d, current %d", ErrStaleBid, expectedVersion, round.Version))
	}
	if amount <= round.CurrentBid {
		return fail(span, fmt.Errorf("%w: %d <= %d", ErrBidTooLow, amount, round.CurrentBid))
	}
	if t.RemainingBudget < amount {
		return fail(span, fmt.Errorf("%w: %s has %d", ErrInsufficientBudget, teamID, t.RemainingBudget))
	}

	return a.record(event.RoundBidPlaced, event.BidPlacedData{TeamID: teamID, Amount: amount})
}

// UndoBid restores the bid and leader in force before the last bid.
func (a *Auction) UndoBid(ctx context.Context) error {
	_, span := a.tracer.Start(ctx, "Auction.UndoBid")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.Round.Active() {
		return fail(span, ErrNoRound)
	}
	if len(a.state.Round.Stack) == 0 {
		return fail(span, ErrNothingToUndo)
	}
	return a.record(event.RoundBidUndone, struct{}{})
}

// Sell settles the round: the leading team pays the current bid and the
// player joins its roster. The squad size is checked again because other
// sales may have filled the leader's squad since its bid.
func (a *Auction) Sell(ctx context.Context) (squad.Settlement, error) {
	_, span := a.tracer.Start(ctx, "Auction.Sell")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	round := a.state.Round
	if !round.Active() {
		return squad.Settlement{}, fail(span, ErrNoRound)
	}
	if round.LeaderID == "" {
		return squad.Settlement{}, fail(span, ErrNoLeader)
	}
	if t := a.state.Team(round.LeaderID); t != nil && a.state.Rules.MaxPlayers > 0 && len(t.Roster) >= a.state.Rules.MaxPlayers {
		return squad.Settlement{}, fail(span, fmt.Errorf("%w: %s already has %d players", ErrSquadFull, t.Name, len(t.Roster)))
	}

	data := event.RoundSoldData{
		SettlementID: uuid.NewString(),
		PlayerID:     round.ItemID,
		TeamID:       round.LeaderID,
		Amount:       round.CurrentBid,
		SoldAt:       a.clock.Now().UTC(),
	}
	if err := a.record(event.RoundSold, data); err != nil {
		return squad.Settlement{}, fail(span, err)
	}

	span.SetAttributes(
		attribute.String("player.id", data.PlayerID),
		attribute.String("team.id", data.TeamID),
		attribute.Int64("sale.amount", data.Amount),
	)
	return a.state.History[0], nil
}

// Pass marks the player of a round without bids as unsold.
func (a *Auction) Pass(ctx context.Context) error {
	_, span := a.tracer.Start(ctx, "Auction.Pass")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.Round.Active() {
		return fail(span, ErrNoRound)
	}
	if a.state.Round.LeaderID != "" {
		return fail(span, ErrHasLeader)
	}
	return a.record(event.RoundPassed, struct{}{})
}

// CancelRound discards the round. The player keeps its status and can be
// put up again later.
func (a *Auction) CancelRound(ctx context.Context) error {
	_, span := a.tracer.Start(ctx, "Auction.CancelRound")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.Round.Active() {
		return fail(span, ErrNoRound)
	}
	return a.record(event.RoundCancelled, struct{}{})
}

// ReleasePlayer reverses a sale: the team is refunded and the player
// returns to the pool as unsold.
func (a *Auction) ReleasePlayer(ctx context.Context, playerID, teamID string) error {
	_, span := a.tracer.Start(ctx, "Auction.ReleasePlayer",
		trace.WithAttributes(
			attribute.String("player.id", playerID),
			attribute.String("team.id", teamID),
		),
	)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.state.Player(playerID)
	if p == nil {
		return fail(span, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID))
	}
	t := a.state.Team(teamID)
	if t == nil {
		return fail(span, fmt.Errorf("%w: %s", ErrUnknownTeam, teamID))
	}
	if p.Status != squad.Sold || p.SoldPrice == nil || p.SoldTo == nil {
		return fail(span, fmt.Errorf("%w: %s", ErrNotSold, playerID))
	}
	if *p.SoldTo != teamID || !t.Owns(playerID) {
		return fail(span, fmt.Errorf("%w: %s, %s", ErrNotOwner, playerID, teamID))
	}

	return a.record(event.PlayerReleased, event.PlayerReleasedData{
		PlayerID: playerID,
		TeamID:   teamID,
		Refund:   *p.SoldPrice,
	})
}

// UpdateTeamBudget changes a team's total budget, moving its remaining
// budget by the same delta so that past spending is preserved.
func (a *Auction) UpdateTeamBudget(ctx context.Context, teamID string, total int64) error {
	_, span := a.tracer.Start(ctx, "Auction.UpdateTeamBudget",
		trace.WithAttributes(
			attribute.String("team.id", teamID),
			attribute.Int64("budget.total", total),
		),
	)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.state.Team(teamID)
	if t == nil {
		return fail(span, fmt.Errorf("%w: %s", ErrUnknownTeam, teamID))
	}
	if t.RemainingBudget+(total-t.TotalBudget) < 0 {
		return fail(span, fmt.Errorf("%w: %s has spent %d", ErrBudgetBelowSpent, teamID, t.TotalBudget-t.RemainingBudget))
	}

	return a.record(event.TeamBudgetUpdated, event.TeamBudgetUpdatedData{TeamID: teamID, TotalBudget: total})
}

// PendingEvents returns uncommitted events and clears the buffer.
func (a *Auction) PendingEvents() []event.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	events := a.events
	a.events = nil
	return events
}

// RequeueEvents puts events that could not be persisted back in front of
// the buffer, so that the next PendingEvents returns them in order.
func (a *Auction) RequeueEvents(events []event.Event) {
	if len(events) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(append([]event.Event(nil), events...), a.events...)
}

// record applies a new event to the state and buffers it. Callers hold
// the write lock and have checked every precondition.
func (a *Auction) record(t event.Type, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling %s payload: %w", t, err)
	}
	e := event.Event{
		AggregateID: a.ID,
		Type:        t,
		Data:        data,
		Version:     a.state.Version + 1,
		CreatedAt:   a.clock.Now().UTC(),
	}
	if err := apply(a.state, e); err != nil {
		return err
	}
	a.events = append(a.events, e)
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
