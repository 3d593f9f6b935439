package auction_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/squad-auction/internal/auction"
	"github.com/jensholdgaard/squad-auction/internal/clock"
	"github.com/jensholdgaard/squad-auction/internal/event"
	"github.com/jensholdgaard/squad-auction/internal/feasibility"
	"github.com/jensholdgaard/squad-auction/internal/squad"
	"github.com/jensholdgaard/squad-auction/internal/store"
)

// --- mock helpers ---

type mockEventStore struct {
	mu       sync.Mutex
	events   []event.Event
	appendFn func(events ...event.Event) error
}

func (m *mockEventStore) Append(_ context.Context, events ...event.Event) error {
	if m.appendFn != nil {
		return m.appendFn(events...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	return m.LoadAfter(ctx, aggregateID, 0)
}

func (m *mockEventStore) LoadAfter(_ context.Context, aggregateID string, version int) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []event.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID && e.Version > version {
			result = append(result, e)
		}
	}
	return result, nil
}

type mockSnapshotRepo struct {
	snapshots map[string]*squad.Snapshot
	saves     int
	err       error
}

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{snapshots: make(map[string]*squad.Snapshot)}
}

func (m *mockSnapshotRepo) Load(_ context.Context, auctionID string) (*squad.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.snapshots[auctionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *mockSnapshotRepo) Save(_ context.Context, auctionID string, s *squad.Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.snapshots[auctionID] = s.Clone()
	return nil
}

type mockSettlementRepo struct {
	settlements []squad.Settlement
	err         error
}

func (m *mockSettlementRepo) Record(_ context.Context, _ string, s squad.Settlement) error {
	if m.err != nil {
		return m.err
	}
	m.settlements = append([]squad.Settlement{s}, m.settlements...)
	return nil
}

func (m *mockSettlementRepo) List(_ context.Context, _ string) ([]squad.Settlement, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settlements, nil
}

type mockPublisher struct {
	published []squad.Settlement
	err       error
}

func (m *mockPublisher) PublishSettlement(_ context.Context, _ string, s squad.Settlement) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, s)
	return nil
}

type fixture struct {
	events      *mockEventStore
	snapshots   *mockSnapshotRepo
	settlements *mockSettlementRepo
	publisher   *mockPublisher
	mgr         *auction.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		events:      &mockEventStore{},
		snapshots:   newMockSnapshotRepo(),
		settlements: &mockSettlementRepo{},
		publisher:   &mockPublisher{},
	}
	repos := &store.Repositories{
		Snapshots:   f.snapshots,
		Settlements: f.settlements,
		Events:      f.events,
	}
	mgr, err := auction.NewManager("ipl-2026", repos, f.publisher, slog.Default(),
		noop.NewTracerProvider(), metricnoop.NewMeterProvider(), clock.NewMock(testNow))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	f.mgr = mgr
	return f
}

// recovered returns a fixture whose manager was seeded with a two-team
// auction where each team must field one Bowler in a squad of two.
func recovered(t *testing.T) *fixture {
	t.Helper()
	return recoveredWith(t, nil)
}

func recoveredWith(t *testing.T, mutate func(s *squad.Snapshot)) *fixture {
	t.Helper()
	f := newFixture(t)
	seed := newSnapshot()
	seed.Rules.MaxPlayers = 2
	seed.Rules.Roles = map[squad.Role]squad.Limit{squad.Bowler: {Min: 1}}
	if mutate != nil {
		mutate(seed)
	}
	if err := f.mgr.Recover(context.Background(), seed); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	return f
}

// --- tests ---

func TestManager_NotRecovered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.mgr.StartRound(ctx, "p1"); !errors.Is(err, auction.ErrNotRecovered) {
		t.Errorf("StartRound() error = %v, want ErrNotRecovered", err)
	}
	if _, err := f.mgr.Snapshot(); !errors.Is(err, auction.ErrNotRecovered) {
		t.Errorf("Snapshot() error = %v, want ErrNotRecovered", err)
	}
	if _, err := f.mgr.Reserve(ctx, "t1"); !errors.Is(err, auction.ErrNotRecovered) {
		t.Errorf("Reserve() error = %v, want ErrNotRecovered", err)
	}
}

func TestManager_Recover_FromSeed(t *testing.T) {
	f := recovered(t)

	snap, err := f.mgr.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Teams) != 2 || len(snap.Players) != 4 {
		t.Errorf("snapshot has %d teams and %d players, want 2 and 4", len(snap.Teams), len(snap.Players))
	}
	if _, ok := f.snapshots.snapshots["ipl-2026"]; !ok {
		t.Error("expected the seed to be checkpointed")
	}
}

func TestManager_Recover_Empty(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.Recover(context.Background(), nil); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	snap, err := f.mgr.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Teams) != 0 || snap.Version != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
}

func TestManager_Recover_ReplaysAfterCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	if _, err := f.mgr.StartRound(ctx, "p2"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PlaceBid(ctx, "t1", 200, auction.AnyVersion); err != nil {
		t.Fatal(err)
	}
	live, _ := f.mgr.Snapshot()

	// The round is still open, so the newest events exist only in the log.
	if cp := f.snapshots.snapshots["ipl-2026"]; cp.Version >= live.Version {
		t.Fatalf("checkpoint version %d should trail live version %d", cp.Version, live.Version)
	}

	// A new leader with the same stores picks up exactly where we left off.
	repos := &store.Repositories{Snapshots: f.snapshots, Settlements: f.settlements, Events: f.events}
	next, err := auction.NewManager("ipl-2026", repos, f.publisher, slog.Default(),
		noop.NewTracerProvider(), metricnoop.NewMeterProvider(), clock.NewMock(testNow))
	if err != nil {
		t.Fatal(err)
	}
	if err := next.Recover(ctx, nil); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	got, _ := next.Snapshot()
	if got.Version != live.Version || got.Round.CurrentBid != 200 || got.Round.LeaderID != "t1" {
		t.Errorf("recovered round = %+v at v%d, want bid 200 by t1 at v%d", got.Round, got.Version, live.Version)
	}
}

func TestManager_Recover_LoadError(t *testing.T) {
	f := newFixture(t)
	f.snapshots.err = fmt.Errorf("connection refused")

	if err := f.mgr.Recover(context.Background(), nil); err == nil {
		t.Fatal("expected error when the checkpoint cannot be loaded")
	}
}

func TestManager_PlaceBid_Denied(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	// t1 buys a Batsman; its last slot must go to a Bowler.
	if _, err := f.mgr.StartRound(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PlaceBid(ctx, "t1", 150, auction.AnyVersion); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Sell(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := f.mgr.StartRound(ctx, "p3"); err != nil {
		t.Fatal(err)
	}
	before, _ := f.mgr.Snapshot()

	_, err := f.mgr.PlaceBid(ctx, "t1", 95, auction.AnyVersion)
	if !errors.Is(err, feasibility.ErrBidDenied) {
		t.Fatalf("PlaceBid() error = %v, want ErrBidDenied", err)
	}
	var denied *feasibility.DeniedError
	if !errors.As(err, &denied) || denied.Verdict.Code != feasibility.CodeRoleSlots {
		t.Errorf("denial = %+v, want role slots", denied)
	}

	after, _ := f.mgr.Snapshot()
	if after.Round.LeaderID != before.Round.LeaderID || after.Round.CurrentBid != before.Round.CurrentBid {
		t.Error("denied bid changed the round")
	}

	// t2 has an empty squad and may bid.
	round, err := f.mgr.PlaceBid(ctx, "t2", 95, auction.AnyVersion)
	if err != nil {
		t.Fatalf("PlaceBid(t2) error = %v", err)
	}
	if round.LeaderID != "t2" || round.CurrentBid != 95 {
		t.Errorf("round = %+v, want t2 leading at 95", round)
	}
}

func TestManager_PlaceBid_Errors(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	if _, err := f.mgr.PlaceBid(ctx, "t1", 100, auction.AnyVersion); !errors.Is(err, auction.ErrNoRound) {
		t.Errorf("PlaceBid() while idle error = %v, want ErrNoRound", err)
	}
	if _, err := f.mgr.StartRound(ctx, "p2"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PlaceBid(ctx, "t9", 200, auction.AnyVersion); !errors.Is(err, auction.ErrUnknownTeam) {
		t.Errorf("PlaceBid() unknown team error = %v, want ErrUnknownTeam", err)
	}
	if _, err := f.mgr.PlaceBid(ctx, "t1", 150, auction.AnyVersion); !errors.Is(err, auction.ErrBidTooLow) {
		t.Errorf("PlaceBid() at opening bid error = %v, want ErrBidTooLow", err)
	}
}

func TestManager_Raise(t *testing.T) {
	ctx := context.Background()
	f := recoveredWith(t, func(s *squad.Snapshot) {
		s.Rules.BidIncrements = []int64{10, 20, 50, 100}
	})

	if _, err := f.mgr.StartRound(ctx, "p3"); err != nil {
		t.Fatal(err)
	}

	round, err := f.mgr.Raise(ctx, "t1", 25)
	if err != nil {
		t.Fatalf("Raise(25) error = %v", err)
	}
	if round.CurrentBid != 75 || round.LeaderID != "t1" {
		t.Errorf("round = %+v, want t1 leading at 75", round)
	}

	// Without an increment the preferred rung of the ladder is used.
	round, err = f.mgr.Raise(ctx, "t2", 0)
	if err != nil {
		t.Fatalf("Raise(0) error = %v", err)
	}
	if round.CurrentBid != 125 || round.LeaderID != "t2" {
		t.Errorf("round = %+v, want t2 leading at 125", round)
	}

	if _, err := f.mgr.Raise(ctx, "t1", -5); !errors.Is(err, auction.ErrInvalidIncrement) {
		t.Errorf("Raise(-5) error = %v, want ErrInvalidIncrement", err)
	}
}

func TestManager_Raise_NoRound(t *testing.T) {
	f := recovered(t)
	if _, err := f.mgr.Raise(context.Background(), "t1", 10); !errors.Is(err, auction.ErrNoRound) {
		t.Errorf("Raise() error = %v, want ErrNoRound", err)
	}
}

func TestPreferredIncrement(t *testing.T) {
	tests := []struct {
		ladder []int64
		want   int64
	}{
		{ladder: nil, want: 0},
		{ladder: []int64{10}, want: 10},
		{ladder: []int64{10, 20}, want: 20},
		{ladder: []int64{10, 20, 50, 100}, want: 50},
	}
	for _, tt := range tests {
		if got := auction.PreferredIncrement(tt.ladder); got != tt.want {
			t.Errorf("PreferredIncrement(%v) = %d, want %d", tt.ladder, got, tt.want)
		}
	}
}

func TestManager_Sell(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	if _, err := f.mgr.StartRound(ctx, "p2"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PlaceBid(ctx, "t1", 500, auction.AnyVersion); err != nil {
		t.Fatal(err)
	}
	s, err := f.mgr.Sell(ctx)
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}

	if len(f.settlements.settlements) != 1 || f.settlements.settlements[0].ID != s.ID {
		t.Errorf("recorded settlements = %+v, want [%s]", f.settlements.settlements, s.ID)
	}
	if len(f.publisher.published) != 1 || f.publisher.published[0].SoldPrice != 500 {
		t.Errorf("published = %+v, want one sale at 500", f.publisher.published)
	}

	snap, _ := f.mgr.Snapshot()
	if cp := f.snapshots.snapshots["ipl-2026"]; cp.Version != snap.Version {
		t.Errorf("checkpoint version = %d, want %d", cp.Version, snap.Version)
	}
	if got, _ := f.events.Load(ctx, "ipl-2026"); len(got) != snap.Version {
		t.Errorf("event log has %d events, want %d", len(got), snap.Version)
	}

	list, err := f.mgr.Settlements(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("Settlements() = %v, %v", list, err)
	}
}

func TestManager_PlaceBid_SquadFull(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	sales := []struct {
		playerID string
		amount   int64
	}{
		{playerID: "p2", amount: 200},
		{playerID: "p4", amount: 100},
	}
	for _, sale := range sales {
		if _, err := f.mgr.StartRound(ctx, sale.playerID); err != nil {
			t.Fatal(err)
		}
		if _, err := f.mgr.PlaceBid(ctx, "t1", sale.amount, auction.AnyVersion); err != nil {
			t.Fatal(err)
		}
		if _, err := f.mgr.Sell(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := f.mgr.StartRound(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	_, err := f.mgr.PlaceBid(ctx, "t1", 150, auction.AnyVersion)
	var denied *feasibility.DeniedError
	if !errors.As(err, &denied) || denied.Verdict.Code != feasibility.CodeSquadFull {
		t.Fatalf("PlaceBid() for a full squad error = %v, want squad full denial", err)
	}
}

func TestManager_Sell_PersistenceFailuresDoNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)
	f.events.appendFn = func(...event.Event) error { return fmt.Errorf("db write error") }
	f.settlements.err = fmt.Errorf("db write error")
	f.snapshots.err = fmt.Errorf("db write error")
	f.publisher.err = fmt.Errorf("broker unavailable")

	if _, err := f.mgr.StartRound(ctx, "p3"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PlaceBid(ctx, "t2", 80, auction.AnyVersion); err != nil {
		t.Fatal(err)
	}
	s, err := f.mgr.Sell(ctx)
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}

	snap, _ := f.mgr.Snapshot()
	if p := snap.Player("p3"); p.Status != squad.Sold || *p.SoldTo != "t2" {
		t.Errorf("player = %+v, want sold to t2", p)
	}
	if snap.History[0].ID != s.ID {
		t.Error("settlement missing from history")
	}
}

func TestManager_FailedAppendIsRetried(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	if _, err := f.mgr.StartRound(ctx, "p3"); err != nil {
		t.Fatal(err)
	}

	// The store is down for one bid in the middle of the round.
	f.events.appendFn = func(...event.Event) error { return fmt.Errorf("db write error") }
	if _, err := f.mgr.PlaceBid(ctx, "t2", 80, auction.AnyVersion); err != nil {
		t.Fatalf("PlaceBid() with a failing store error = %v", err)
	}
	f.events.appendFn = nil

	if _, err := f.mgr.PlaceBid(ctx, "t1", 90, auction.AnyVersion); err != nil {
		t.Fatal(err)
	}
	live, _ := f.mgr.Snapshot()

	for i, e := range f.events.events {
		if e.Version != i+1 {
			t.Fatalf("stored versions = %v, want 1..%d without gaps", versions(f.events.events), live.Version)
		}
	}
	if n := len(f.events.events); n != live.Version {
		t.Fatalf("stored %d events, want %d", n, live.Version)
	}

	// The process stops before the round ends, so no checkpoint covers the
	// bids; a new leader rebuilds them from the log.
	repos := &store.Repositories{Snapshots: f.snapshots, Settlements: f.settlements, Events: f.events}
	next, err := auction.NewManager("ipl-2026", repos, f.publisher, slog.Default(),
		noop.NewTracerProvider(), metricnoop.NewMeterProvider(), clock.NewMock(testNow))
	if err != nil {
		t.Fatal(err)
	}
	if err := next.Recover(ctx, nil); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	got, _ := next.Snapshot()
	if got.Version != live.Version || got.Round.CurrentBid != 90 || got.Round.LeaderID != "t1" || len(got.Round.Stack) != 2 {
		t.Errorf("recovered round = %+v at v%d, want bid 90 by t1 over two bids at v%d", got.Round, got.Version, live.Version)
	}
}

func versions(events []event.Event) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.Version
	}
	return out
}

func TestManager_ReleaseAndBudget(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	if _, err := f.mgr.StartRound(ctx, "p2"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PlaceBid(ctx, "t1", 300, auction.AnyVersion); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Sell(ctx); err != nil {
		t.Fatal(err)
	}

	if err := f.mgr.UpdateTeamBudget(ctx, "t1", 1500); err != nil {
		t.Fatalf("UpdateTeamBudget() error = %v", err)
	}
	if err := f.mgr.ReleasePlayer(ctx, "p2", "t1"); err != nil {
		t.Fatalf("ReleasePlayer() error = %v", err)
	}
	if err := f.mgr.ReleasePlayer(ctx, "p2", "t1"); !errors.Is(err, auction.ErrNotSold) {
		t.Errorf("second ReleasePlayer() error = %v, want ErrNotSold", err)
	}

	snap, _ := f.mgr.Snapshot()
	if team := snap.Team("t1"); team.RemainingBudget != 1500 || team.TotalBudget != 1500 {
		t.Errorf("t1 budget = %d/%d, want 1500/1500", team.RemainingBudget, team.TotalBudget)
	}
	if err := squad.CheckLedger(snap); err != nil {
		t.Errorf("CheckLedger() = %v", err)
	}
}

func TestManager_PassAndCancel(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	if _, err := f.mgr.StartRound(ctx, "p3"); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.Pass(ctx); err != nil {
		t.Fatalf("Pass() error = %v", err)
	}
	if _, err := f.mgr.StartRound(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.UndoBid(ctx); !errors.Is(err, auction.ErrNothingToUndo) {
		t.Errorf("UndoBid() error = %v, want ErrNothingToUndo", err)
	}
	if err := f.mgr.CancelRound(ctx); err != nil {
		t.Fatalf("CancelRound() error = %v", err)
	}
	if err := f.mgr.CancelRound(ctx); !errors.Is(err, auction.ErrNoRound) {
		t.Errorf("second CancelRound() error = %v, want ErrNoRound", err)
	}

	snap, _ := f.mgr.Snapshot()
	if got := snap.Player("p3").Status; got != squad.Unsold {
		t.Errorf("p3 status = %q, want Unsold", got)
	}
	if got := snap.Player("p1").Status; got != squad.Available {
		t.Errorf("p1 status = %q, want Available", got)
	}
}

func TestManager_EligibilityAndReserve(t *testing.T) {
	ctx := context.Background()
	f := recovered(t)

	if _, err := f.mgr.Eligibility(ctx, "t1", 100); !errors.Is(err, auction.ErrNoRound) {
		t.Errorf("Eligibility() while idle error = %v, want ErrNoRound", err)
	}

	r, err := f.mgr.Reserve(ctx, "t1")
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	// One Bowler is mandatory at the default base price of 50.
	if r.MinimumReserve != 50 || r.ReserveMoney != 50 || r.MaxBid != 950 {
		t.Errorf("Reserve() = %+v, want reserve 50 and max bid 950", r)
	}
	if _, err := f.mgr.Reserve(ctx, "t9"); !errors.Is(err, auction.ErrUnknownTeam) {
		t.Errorf("Reserve(t9) error = %v, want ErrUnknownTeam", err)
	}

	if _, err := f.mgr.StartRound(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	v, err := f.mgr.Eligibility(ctx, "t1", 951)
	if err != nil {
		t.Fatal(err)
	}
	if v.Allowed || v.Code != feasibility.CodeReserve {
		t.Errorf("Eligibility(951) = %+v, want reserve denial", v)
	}
	v, err = f.mgr.Eligibility(ctx, "t1", 950)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Allowed {
		t.Errorf("Eligibility(950) = %+v, want allowed", v)
	}
}
