package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jensholdgaard/squad-auction/internal/auction"
	"github.com/jensholdgaard/squad-auction/internal/feasibility"
	"github.com/jensholdgaard/squad-auction/internal/store"
)

// newReserveCmd checks budgets against a snapshot file without a running
// auction, e.g. to vet a seed before the event.
func newReserveCmd() *cobra.Command {
	var (
		snapshotPath string
		teamID       string
		playerID     string
		amount       int64
	)

	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Show reserve money per team, or check a single bid, against a snapshot file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := store.ReadSeed(snapshotPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if playerID != "" {
				if teamID == "" {
					return fmt.Errorf("--team is required with --player")
				}
				t := snap.Team(teamID)
				if t == nil {
					return fmt.Errorf("%w: %s", auction.ErrUnknownTeam, teamID)
				}
				p := snap.Player(playerID)
				if p == nil {
					return fmt.Errorf("%w: %s", auction.ErrUnknownPlayer, playerID)
				}
				if amount <= 0 {
					amount = snap.Rules.BasePriceFor(p)
				}
				v := feasibility.Validate(t, p, amount, snap.Rules, snap.Players, snap.Taxonomy)
				if v.Allowed {
					fmt.Fprintf(out, "allowed: %s may bid %d for %s (purse after bid %d, reserve %d)\n",
						t.Name, amount, p.Name, v.RemainingPurse, v.MinimumReserve)
					return nil
				}
				fmt.Fprintf(out, "denied (%s): %s\n", v.Code, v.Reason)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TEAM\tREMAINING\tMIN RESERVE\tRESERVE MONEY\tMAX BID")
			for _, t := range snap.Teams {
				if teamID != "" && t.ID != teamID {
					continue
				}
				r, err := auction.ReserveOf(snap, t.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", t.ID, r.RemainingBudget, r.MinimumReserve, r.ReserveMoney, r.MaxBid)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "snapshot JSON file")
	cmd.Flags().StringVarP(&teamID, "team", "t", "", "team ID")
	cmd.Flags().StringVarP(&playerID, "player", "p", "", "player ID to check a bid for")
	cmd.Flags().Int64VarP(&amount, "amount", "a", 0, "bid amount (default: the player's opening price)")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}
