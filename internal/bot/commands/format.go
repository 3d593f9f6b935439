package commands

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/jensholdgaard/squad-auction/internal/auction"
	"github.com/jensholdgaard/squad-auction/internal/feasibility"
)

// userErrors maps auction errors to messages shown in Discord.
var userErrors = []struct {
	err error
	msg string
}{
	{auction.ErrNotRecovered, "This bot instance is not running the auction right now. Try again in a moment."},
	{auction.ErrRoundInProgress, "A round is already in progress. Sell, pass or cancel it first."},
	{auction.ErrNoRound, "No round in progress."},
	{auction.ErrUnknownPlayer, "Unknown player."},
	{auction.ErrUnknownTeam, "Unknown team."},
	{auction.ErrPlayerNotAvailable, "That player has already been sold."},
	{auction.ErrBidTooLow, "Bids must be higher than the current bid."},
	{auction.ErrInsufficientBudget, "The team cannot afford that bid."},
	{auction.ErrStaleBid, "Another bid landed first. Check /round and bid again."},
	{auction.ErrNothingToUndo, "There is no bid to undo."},
	{auction.ErrNoLeader, "Nobody has bid yet. Use /pass to mark the player unsold."},
	{auction.ErrHasLeader, "There is a standing bid. Sell, undo or cancel instead."},
	{auction.ErrNotSold, "That player is not sold."},
	{auction.ErrNotOwner, "That player does not belong to this team."},
	{auction.ErrBudgetBelowSpent, "The new budget is less than the team has already spent."},
	{auction.ErrSquadFull, "The leading team's squad is already full."},
	{auction.ErrInvalidIncrement, "The increment must not be negative."},
}

// failure turns err into a reply. Errors without a user message are
// logged and reported generically.
func (h *Handlers) failure(ctx context.Context, logger *slog.Logger, command string, err error) Reply {
	var denied *feasibility.DeniedError
	if errors.As(err, &denied) {
		return Reply{Content: "Bid rejected: " + denied.Verdict.Reason, Ephemeral: true}
	}
	for _, ue := range userErrors {
		if errors.Is(err, ue.err) {
			return Reply{Content: ue.msg, Ephemeral: true}
		}
	}
	logger.ErrorContext(ctx, "command failed",
		slog.String("command", command),
		slog.Any("error", err),
	)
	return Reply{Content: "Something went wrong. The error has been logged.", Ephemeral: true}
}

// formatAmount renders n with thousands separators, e.g. 2,500,000.
func formatAmount(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + s
}
