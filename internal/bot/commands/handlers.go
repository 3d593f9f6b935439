package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/jensholdgaard/squad-auction/internal/auction"
	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// historyLimit caps the sales listed by /history.
const historyLimit = 10

func say(format string, args ...any) result {
	return result{Reply: Reply{Content: fmt.Sprintf(format, args...)}}
}

func fail(err error) result {
	return result{err: err}
}

func (h *Handlers) handleRoundStart(ctx context.Context, opts options) result {
	round, err := h.mgr.StartRound(ctx, opts.str("player"))
	if err != nil {
		return fail(err)
	}
	snap, err := h.mgr.Snapshot()
	if err != nil {
		return fail(err)
	}
	if p := snap.Player(round.ItemID); p != nil {
		return say("**%s** (%s) is on the block. Opening bid: **%s**", p.Name, p.Role, formatAmount(round.CurrentBid))
	}
	return say("**%s** is on the block. Opening bid: **%s**", round.ItemID, formatAmount(round.CurrentBid))
}

func (h *Handlers) handleBid(ctx context.Context, opts options) result {
	round, err := h.mgr.PlaceBid(ctx, opts.str("team"), opts.num("amount", 0), opts.num("version", auction.AnyVersion))
	if err != nil {
		return fail(err)
	}
	return h.leading(round)
}

func (h *Handlers) handleRaise(ctx context.Context, opts options) result {
	round, err := h.mgr.Raise(ctx, opts.str("team"), opts.num("increment", 0))
	if err != nil {
		return fail(err)
	}
	return h.leading(round)
}

func (h *Handlers) handleUndo(ctx context.Context, _ options) result {
	round, err := h.mgr.UndoBid(ctx)
	if err != nil {
		return fail(err)
	}
	if round.LeaderID == "" {
		return say("Bid undone. No bids yet, opening bid **%s**.", formatAmount(round.CurrentBid))
	}
	return h.leading(round)
}

func (h *Handlers) leading(round squad.Round) result {
	name := round.LeaderID
	if snap, err := h.mgr.Snapshot(); err == nil {
		if t := snap.Team(round.LeaderID); t != nil {
			name = t.Name
		}
	}
	return say("**%s** leads with **%s** (round version %d)", name, formatAmount(round.CurrentBid), round.Version)
}

func (h *Handlers) handleSell(ctx context.Context, _ options) result {
	s, err := h.mgr.Sell(ctx)
	if err != nil {
		return fail(err)
	}
	snap, err := h.mgr.Snapshot()
	if err != nil {
		return fail(err)
	}
	player, team := s.PlayerID, s.TeamID
	if p := snap.Player(s.PlayerID); p != nil {
		player = p.Name
	}
	var remaining int64
	if t := snap.Team(s.TeamID); t != nil {
		team, remaining = t.Name, t.RemainingBudget
	}
	return say("SOLD! **%s** to **%s** for **%s**. Remaining purse: %s", player, team, formatAmount(s.SoldPrice), formatAmount(remaining))
}

func (h *Handlers) handlePass(ctx context.Context, _ options) result {
	if err := h.mgr.Pass(ctx); err != nil {
		return fail(err)
	}
	return say("Player passed and marked unsold.")
}

func (h *Handlers) handleRoundCancel(ctx context.Context, _ options) result {
	if err := h.mgr.CancelRound(ctx); err != nil {
		return fail(err)
	}
	return say("Round cancelled.")
}

func (h *Handlers) handleRelease(ctx context.Context, opts options) result {
	playerID, teamID := opts.str("player"), opts.str("team")
	if err := h.mgr.ReleasePlayer(ctx, playerID, teamID); err != nil {
		return fail(err)
	}
	return say("Released `%s` from `%s` and refunded the sale price.", playerID, teamID)
}

func (h *Handlers) handleTeamBudget(ctx context.Context, opts options) result {
	teamID, total := opts.str("team"), opts.num("total", 0)
	if err := h.mgr.UpdateTeamBudget(ctx, teamID, total); err != nil {
		return fail(err)
	}
	res, err := h.mgr.Reserve(ctx, teamID)
	if err != nil {
		return fail(err)
	}
	return say("Budget of `%s` set to **%s**. Remaining purse: %s", teamID, formatAmount(total), formatAmount(res.RemainingBudget))
}

func (h *Handlers) handleRound(_ context.Context, _ options) result {
	snap, err := h.mgr.Snapshot()
	if err != nil {
		return fail(err)
	}
	p := snap.CurrentPlayer()
	if p == nil {
		return result{Reply: Reply{Content: "No round in progress.", Ephemeral: true}}
	}
	leader := "no bids yet"
	if t := snap.Team(snap.Round.LeaderID); t != nil {
		leader = "led by **" + t.Name + "**"
	}
	return result{Reply: Reply{
		Content: fmt.Sprintf("**%s** (%s): **%s**, %s (round version %d)",
			p.Name, p.Role, formatAmount(snap.Round.CurrentBid), leader, snap.Round.Version),
		Ephemeral: true,
	}}
}

func (h *Handlers) handleSquad(ctx context.Context, opts options) result {
	res, err := h.mgr.Reserve(ctx, opts.str("team"))
	if err != nil {
		return fail(err)
	}
	snap, err := h.mgr.Snapshot()
	if err != nil {
		return fail(err)
	}
	t := snap.Team(res.TeamID)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: %d players, purse %s of %s\n", t.Name, len(t.Roster), formatAmount(t.RemainingBudget), formatAmount(t.TotalBudget))
	fmt.Fprintf(&b, "Reserve for mandatory slots: %s, max opening bid: %s\n", formatAmount(res.ReserveMoney), formatAmount(res.MaxBid))
	for _, p := range squad.RosterOf(t, snap.Players) {
		var price int64
		if p.SoldPrice != nil {
			price = *p.SoldPrice
		}
		fmt.Fprintf(&b, "- %s (%s) %s\n", p.Name, p.Role, formatAmount(price))
	}
	return result{Reply: Reply{Content: b.String(), Ephemeral: true}}
}

func (h *Handlers) handleCanBid(ctx context.Context, opts options) result {
	v, err := h.mgr.Eligibility(ctx, opts.str("team"), opts.num("amount", 0))
	if err != nil {
		return fail(err)
	}
	if !v.Allowed {
		return result{Reply: Reply{Content: "No: " + v.Reason, Ephemeral: true}}
	}
	return result{Reply: Reply{
		Content:   fmt.Sprintf("Yes. %s would remain against a reserve of %s.", formatAmount(v.RemainingPurse), formatAmount(v.MinimumReserve)),
		Ephemeral: true,
	}}
}

func (h *Handlers) handleHistory(_ context.Context, _ options) result {
	snap, err := h.mgr.Snapshot()
	if err != nil {
		return fail(err)
	}
	if len(snap.History) == 0 {
		return result{Reply: Reply{Content: "No sales yet.", Ephemeral: true}}
	}

	var b strings.Builder
	b.WriteString("**Latest sales:**\n")
	for idx, s := range snap.History {
		if idx == historyLimit {
			break
		}
		player, team := s.PlayerID, s.TeamID
		if p := snap.Player(s.PlayerID); p != nil {
			player = p.Name
		}
		if t := snap.Team(s.TeamID); t != nil {
			team = t.Name
		}
		fmt.Fprintf(&b, "%d. %s to %s for %s\n", idx+1, player, team, formatAmount(s.SoldPrice))
	}
	return result{Reply: Reply{Content: b.String(), Ephemeral: true}}
}
