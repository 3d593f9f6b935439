package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// SettlementRepo implements store.SettlementRepository using database/sql.
type SettlementRepo struct {
	db *sql.DB
}

// NewSettlementRepo returns a new SettlementRepo.
func NewSettlementRepo(db *sql.DB) *SettlementRepo {
	return &SettlementRepo{db: db}
}

func (r *SettlementRepo) Record(ctx context.Context, auctionID string, s squad.Settlement) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settlements (id, auction_id, player_id, team_id, sold_price, sold_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		s.ID, auctionID, s.PlayerID, s.TeamID, s.SoldPrice, s.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording settlement: %w", err)
	}
	return nil
}

func (r *SettlementRepo) List(ctx context.Context, auctionID string) ([]squad.Settlement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, player_id, team_id, sold_price, sold_at
		 FROM settlements WHERE auction_id = ? ORDER BY seq DESC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing settlements: %w", err)
	}
	defer rows.Close()

	out := []squad.Settlement{}
	for rows.Next() {
		var s squad.Settlement
		var soldAt string
		if err := rows.Scan(&s.ID, &s.PlayerID, &s.TeamID, &s.SoldPrice, &soldAt); err != nil {
			return nil, fmt.Errorf("scanning settlement: %w", err)
		}
		if s.Timestamp, err = time.Parse(time.RFC3339Nano, soldAt); err != nil {
			return nil, fmt.Errorf("parsing settlement time %q: %w", soldAt, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settlements: %w", err)
	}
	return out, nil
}

