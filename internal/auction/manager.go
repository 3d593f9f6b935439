package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/squad-auction/internal/clock"
	"github.com/jensholdgaard/squad-auction/internal/feasibility"
	"github.com/jensholdgaard/squad-auction/internal/squad"
	"github.com/jensholdgaard/squad-auction/internal/store"
)

var (
	// ErrNotRecovered is returned by Manager operations called before Recover.
	ErrNotRecovered = errors.New("auction state has not been recovered")
	// ErrInvalidIncrement is returned by Raise for a negative increment.
	ErrInvalidIncrement = errors.New("increment must not be negative")
)

// preferredRung is the ladder position Raise uses when no increment is given.
const preferredRung = 2

// Publisher forwards completed sales to downstream consumers.
type Publisher interface {
	PublishSettlement(ctx context.Context, auctionID string, s squad.Settlement) error
}

// TeamReserve summarizes how much of a team's purse is committed to its
// mandatory squad minimums.
type TeamReserve struct {
	TeamID          string `json:"team_id"`
	RemainingBudget int64  `json:"remaining_budget"`
	MinimumReserve  int64  `json:"minimum_reserve"`
	ReserveMoney    int64  `json:"reserve_money"`
	// MaxBid is the largest opening commitment that keeps ReserveMoney intact.
	MaxBid int64 `json:"max_bid"`
}

// Manager coordinates the auction aggregate with persistence, publishing
// and telemetry. State-changing calls are serialized; queries run
// concurrently with them.
type Manager struct {
	mu        sync.Mutex
	auctionID string
	auction   atomic.Pointer[Auction]

	repos     *store.Repositories
	publisher Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	tp        trace.TracerProvider
	clock     clock.Clock

	bids        metric.Int64Counter
	denied      metric.Int64Counter
	settlements metric.Int64Counter
	salePrice   metric.Int64Histogram
}

// NewManager creates a new auction Manager for auctionID.
func NewManager(auctionID string, repos *store.Repositories, pub Publisher, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Manager, error) {
	meter := mp.Meter(instrumentationName)

	bids, err := meter.Int64Counter("auction.bids",
		metric.WithDescription("Accepted bids"))
	if err != nil {
		return nil, fmt.Errorf("creating bids counter: %w", err)
	}
	denied, err := meter.Int64Counter("auction.bids.denied",
		metric.WithDescription("Bids rejected by the squad feasibility check"))
	if err != nil {
		return nil, fmt.Errorf("creating denied counter: %w", err)
	}
	settlements, err := meter.Int64Counter("auction.settlements",
		metric.WithDescription("Completed sales"))
	if err != nil {
		return nil, fmt.Errorf("creating settlements counter: %w", err)
	}
	salePrice, err := meter.Int64Histogram("auction.sale_price",
		metric.WithDescription("Settled sale prices"))
	if err != nil {
		return nil, fmt.Errorf("creating sale price histogram: %w", err)
	}

	return &Manager{
		auctionID:   auctionID,
		repos:       repos,
		publisher:   pub,
		logger:      logger.With(slog.String("auction_id", auctionID)),
		tracer:      tp.Tracer(instrumentationName),
		tp:          tp,
		clock:       clk,
		bids:        bids,
		denied:      denied,
		settlements: settlements,
		salePrice:   salePrice,
	}, nil
}

// AuctionID returns the ID of the managed auction.
func (m *Manager) AuctionID() string { return m.auctionID }

// Recover rebuilds the auction from its latest checkpoint and the events
// recorded after it. Without a checkpoint it starts from seed, or from an
// empty snapshot when seed is nil. It is used on leader startup to restore
// state after a failover.
func (m *Manager) Recover(ctx context.Context, seed *squad.Snapshot) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Recover")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	base, err := m.repos.Snapshots.Load(ctx, m.auctionID)
	checkpointed := err == nil
	switch {
	case checkpointed:
	case errors.Is(err, store.ErrNotFound):
		base = seed
		if base == nil {
			base = &squad.Snapshot{}
		}
	default:
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	events, err := m.repos.Events.LoadAfter(ctx, m.auctionID, base.Version)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}

	a, err := Replay(m.auctionID, base, events, m.tp, m.clock)
	if err != nil {
		return fmt.Errorf("replaying events: %w", err)
	}
	m.auction.Store(a)

	snap := a.Snapshot()
	if err := squad.CheckLedger(snap); err != nil {
		m.logger.WarnContext(ctx, "recovered state does not balance", slog.Any("error", err))
	}
	if !checkpointed || len(events) > 0 {
		m.checkpoint(ctx, snap)
	}

	m.logger.InfoContext(ctx, "auction recovery complete",
		slog.Bool("from_checkpoint", checkpointed),
		slog.Int("replayed_events", len(events)),
		slog.Int("version", snap.Version),
		slog.Int("teams", len(snap.Teams)),
		slog.Int("players", len(snap.Players)),
	)
	return nil
}

// StartRound opens bidding on a player.
func (m *Manager) StartRound(ctx context.Context, playerID string) (squad.Round, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.StartRound",
		trace.WithAttributes(attribute.String("player.id", playerID)),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.current()
	if err != nil {
		return squad.Round{}, err
	}
	if err := a.StartRound(ctx, playerID); err != nil {
		return squad.Round{}, err
	}
	m.commit(ctx, a)

	round := a.Round()
	m.logger.InfoContext(ctx, "round started",
		slog.String("player_id", playerID),
		slog.Int64("opening_bid", round.CurrentBid),
	)
	return round, nil
}

// PlaceBid validates the bid against the team's squad rules and, when
// allowed, records it. A denial is returned as a *feasibility.DeniedError.
func (m *Manager) PlaceBid(ctx context.Context, teamID string, amount, expectedVersion int64) (squad.Round, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("team.id", teamID),
			attribute.Int64("bid.amount", amount),
		),
	)
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.current()
	if err != nil {
		return squad.Round{}, err
	}
	if err := m.placeBid(ctx, a, teamID, amount, expectedVersion); err != nil {
		return squad.Round{}, err
	}
	return a.Round(), nil
}

// Raise bids the current bid plus increment for teamID. An increment of
// zero uses the preferred rung of the player's bid ladder.
func (m *Manager) Raise(ctx context.Context, teamID string, increment int64) (squad.Round, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Raise",
		trace.WithAttributes(
			attribute.String("team.id", teamID),
			attribute.Int64("bid.increment", increment),
		),
	)
	defer span.End()

	if increment < 0 {
		return squad.Round{}, ErrInvalidIncrement
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.current()
	if err != nil {
		return squad.Round{}, err
	}

	var round squad.Round
	a.Read(func(s *squad.Snapshot) {
		round = s.Round
		if p := s.CurrentPlayer(); p != nil && increment == 0 {
			increment = PreferredIncrement(s.Rules.IncrementsFor(p))
		}
	})
	if !round.Active() {
		return squad.Round{}, ErrNoRound
	}

	if err := m.placeBid(ctx, a, teamID, round.CurrentBid+increment, round.Version); err != nil {
		return squad.Round{}, err
	}
	return a.Round(), nil
}

// PreferredIncrement returns the ladder rung Raise uses by default.
func PreferredIncrement(ladder []int64) int64 {
	if len(ladder) == 0 {
		return 0
	}
	return ladder[min(preferredRung, len(ladder)-1)]
}

func (m *Manager) placeBid(ctx context.Context, a *Auction, teamID string, amount, expectedVersion int64) error {
	var (
		verdict feasibility.Verdict
		lookup  error
	)
	a.Read(func(s *squad.Snapshot) {
		verdict, lookup = m.validate(s, teamID, amount)
	})
	if lookup != nil {
		return lookup
	}
	if !verdict.Allowed {
		m.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(verdict.Code))))
		m.logger.InfoContext(ctx, "bid denied",
			slog.String("team_id", teamID),
			slog.Int64("amount", amount),
			slog.String("code", string(verdict.Code)),
			slog.String("reason", verdict.Reason),
		)
		return verdict.Err()
	}

	if err := a.PlaceBid(ctx, teamID, amount, expectedVersion); err != nil {
		return err
	}
	m.bids.Add(ctx, 1)
	m.commit(ctx, a)

	m.logger.InfoContext(ctx, "bid placed",
		slog.String("team_id", teamID),
		slog.Int64("amount", amount),
	)
	return nil
}

// validate runs the feasibility check for the player on the block.
func (m *Manager) validate(s *squad.Snapshot, teamID string, amount int64) (feasibility.Verdict, error) {
	candidate := s.CurrentPlayer()
	if candidate == nil {
		return feasibility.Verdict{}, ErrNoRound
	}
	team := s.Team(teamID)
	if team == nil {
		return feasibility.Verdict{}, fmt.Errorf("%w: %s", ErrUnknownTeam, teamID)
	}
	return feasibility.Validate(team, candidate, amount, s.Rules, s.Players, s.Taxonomy), nil
}

// UndoBid reverts the last bid of the round.
func (m *Manager) UndoBid(ctx context.Context) (squad.Round, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.UndoBid")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.current()
	if err != nil {
		return squad.Round{}, err
	}
	if err := a.UndoBid(ctx); err != nil {
		return squad.Round{}, err
	}
	m.commit(ctx, a)

	round := a.Round()
	m.logger.InfoContext(ctx, "bid undone",
		slog.Int64("current_bid", round.CurrentBid),
		slog.String("leader_id", round.LeaderID),
	)
	return round, nil
}

// Sell settles the round in favour of the leading team, records the
// settlement and publishes it.
func (m *Manager) Sell(ctx context.Context) (squad.Settlement, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Sell")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.current()
	if err != nil {
		return squad.Settlement{}, err
	}

	settlement, err := a.Sell(ctx)
	if err != nil {
		return squad.Settlement{}, err
	}

	m.settlements.Add(ctx, 1)
	m.salePrice.Record(ctx, settlement.SoldPrice)
	m.commit(ctx, a)

	if err := m.repos.Settlements.Record(ctx, m.auctionID, settlement); err != nil {
		m.logger.ErrorContext(ctx, "failed to record settlement",
			slog.String("settlement_id", settlement.ID),
			slog.Any("error", err),
		)
	}
	if err := m.publisher.PublishSettlement(ctx, m.auctionID, settlement); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish settlement",
			slog.String("settlement_id", settlement.ID),
			slog.Any("error", err),
		)
	}

	m.logger.InfoContext(ctx, "player sold",
		slog.String("settlement_id", settlement.ID),
		slog.String("player_id", settlement.PlayerID),
		slog.String("team_id", settlement.TeamID),
		slog.Int64("amount", settlement.SoldPrice),
	)
	return settlement, nil
}

// Pass marks the player on the block as unsold.
func (m *Manager) Pass(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Pass")
	defer span.End()

	return m.transition(ctx, "player passed", func(a *Auction) error { return a.Pass(ctx) })
}

// CancelRound abandons the round without changing the player's status.
func (m *Manager) CancelRound(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.CancelRound")
	defer span.End()

	return m.transition(ctx, "round cancelled", func(a *Auction) error { return a.CancelRound(ctx) })
}

// ReleasePlayer reverses a sale and refunds the team.
func (m *Manager) ReleasePlayer(ctx context.Context, playerID, teamID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.ReleasePlayer",
		trace.WithAttributes(
			attribute.String("player.id", playerID),
			attribute.String("team.id", teamID),
		),
	)
	defer span.End()

	return m.transition(ctx, "player released", func(a *Auction) error {
		return a.ReleasePlayer(ctx, playerID, teamID)
	}, slog.String("player_id", playerID), slog.String("team_id", teamID))
}

// UpdateTeamBudget changes a team's total budget.
func (m *Manager) UpdateTeamBudget(ctx context.Context, teamID string, total int64) error {
	ctx, span := m.tracer.Start(ctx, "Manager.UpdateTeamBudget",
		trace.WithAttributes(
			attribute.String("team.id", teamID),
			attribute.Int64("budget.total", total),
		),
	)
	defer span.End()

	return m.transition(ctx, "team budget updated", func(a *Auction) error {
		return a.UpdateTeamBudget(ctx, teamID, total)
	}, slog.String("team_id", teamID), slog.Int64("total_budget", total))
}

func (m *Manager) transition(ctx context.Context, msg string, fn func(a *Auction) error, attrs ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.current()
	if err != nil {
		return err
	}
	if err := fn(a); err != nil {
		return err
	}
	m.commit(ctx, a)
	m.logger.InfoContext(ctx, msg, attrs...)
	return nil
}

// Snapshot returns a deep copy of the auction state.
func (m *Manager) Snapshot() (*squad.Snapshot, error) {
	a, err := m.current()
	if err != nil {
		return nil, err
	}
	return a.Snapshot(), nil
}

// Eligibility reports whether teamID may bid amount for the player on
// the block, without placing the bid.
func (m *Manager) Eligibility(ctx context.Context, teamID string, amount int64) (feasibility.Verdict, error) {
	_, span := m.tracer.Start(ctx, "Manager.Eligibility",
		trace.WithAttributes(
			attribute.String("team.id", teamID),
			attribute.Int64("bid.amount", amount),
		),
	)
	defer span.End()

	a, err := m.current()
	if err != nil {
		return feasibility.Verdict{}, err
	}

	var (
		verdict feasibility.Verdict
		lookup  error
	)
	a.Read(func(s *squad.Snapshot) {
		verdict, lookup = m.validate(s, teamID, amount)
	})
	return verdict, lookup
}

// Reserve reports the reserve figures of teamID.
func (m *Manager) Reserve(ctx context.Context, teamID string) (TeamReserve, error) {
	_, span := m.tracer.Start(ctx, "Manager.Reserve",
		trace.WithAttributes(attribute.String("team.id", teamID)),
	)
	defer span.End()

	a, err := m.current()
	if err != nil {
		return TeamReserve{}, err
	}

	var (
		out    TeamReserve
		lookup error
	)
	a.Read(func(s *squad.Snapshot) {
		out, lookup = ReserveOf(s, teamID)
	})
	return out, lookup
}

// ReserveOf computes the reserve figures of teamID in s.
func ReserveOf(s *squad.Snapshot, teamID string) (TeamReserve, error) {
	t := s.Team(teamID)
	if t == nil {
		return TeamReserve{}, fmt.Errorf("%w: %s", ErrUnknownTeam, teamID)
	}
	money := feasibility.ReserveMoney(t, s.Rules, s.Players, s.Taxonomy)
	return TeamReserve{
		TeamID:          t.ID,
		RemainingBudget: t.RemainingBudget,
		MinimumReserve:  feasibility.MinimumReserve(t, s.Rules, s.Players, s.Taxonomy, nil),
		ReserveMoney:    money,
		MaxBid:          max(0, t.RemainingBudget-money),
	}, nil
}

// Settlements returns the settlement log, newest first.
func (m *Manager) Settlements(ctx context.Context) ([]squad.Settlement, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Settlements")
	defer span.End()

	out, err := m.repos.Settlements.List(ctx, m.auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing settlements: %w", err)
	}
	return out, nil
}

// current returns the aggregate. Writers call it while holding m.mu.
func (m *Manager) current() (*Auction, error) {
	a := m.auction.Load()
	if a == nil {
		return nil, ErrNotRecovered
	}
	return a, nil
}

// commit persists pending events and, once the round is over, a fresh
// checkpoint. Failures are logged and never undo the transition: events
// that could not be appended stay buffered and are retried first on the
// next commit, so the stored stream never has a gap.
func (m *Manager) commit(ctx context.Context, a *Auction) {
	if events := a.PendingEvents(); len(events) > 0 {
		if err := m.repos.Events.Append(ctx, events...); err != nil {
			a.RequeueEvents(events)
			m.logger.ErrorContext(ctx, "failed to persist events, will retry",
				slog.Int("pending", len(events)),
				slog.Int("from_version", events[0].Version),
				slog.Any("error", err),
			)
		}
	}
	if snap := a.Snapshot(); !snap.Round.Active() {
		m.checkpoint(ctx, snap)
	}
}

func (m *Manager) checkpoint(ctx context.Context, snap *squad.Snapshot) {
	if err := m.repos.Snapshots.Save(ctx, m.auctionID, snap); err != nil {
		m.logger.ErrorContext(ctx, "failed to save checkpoint",
			slog.Int("version", snap.Version),
			slog.Any("error", err),
		)
	}
}
