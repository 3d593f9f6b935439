package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// SettlementRepo implements store.SettlementRepository with sqlx.
type SettlementRepo struct {
	db *sqlx.DB
}

// NewSettlementRepo returns a new SettlementRepo.
func NewSettlementRepo(db *sqlx.DB) *SettlementRepo {
	return &SettlementRepo{db: db}
}

type settlementRow struct {
	ID        string    `db:"id"`
	PlayerID  string    `db:"player_id"`
	TeamID    string    `db:"team_id"`
	SoldPrice int64     `db:"sold_price"`
	SoldAt    time.Time `db:"sold_at"`
}

func (r *SettlementRepo) Record(ctx context.Context, auctionID string, s squad.Settlement) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settlements (id, auction_id, player_id, team_id, sold_price, sold_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		s.ID, auctionID, s.PlayerID, s.TeamID, s.SoldPrice, s.Timestamp)
	if err != nil {
		return fmt.Errorf("recording settlement: %w", err)
	}
	return nil
}

func (r *SettlementRepo) List(ctx context.Context, auctionID string) ([]squad.Settlement, error) {
	var rows []settlementRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, player_id, team_id, sold_price, sold_at
		 FROM settlements WHERE auction_id = $1 ORDER BY seq DESC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing settlements: %w", err)
	}

	out := make([]squad.Settlement, len(rows))
	for i, row := range rows {
		out[i] = squad.Settlement{
			ID:        row.ID,
			PlayerID:  row.PlayerID,
			SoldPrice: row.SoldPrice,
			TeamID:    row.TeamID,
			Timestamp: row.SoldAt.UTC(),
		}
	}
	return out, nil
}
