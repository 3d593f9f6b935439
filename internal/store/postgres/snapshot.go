package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/squad-auction/internal/clock"
	"github.com/jensholdgaard/squad-auction/internal/squad"
	"github.com/jensholdgaard/squad-auction/internal/store"
)

// SnapshotRepo implements store.SnapshotRepository with sqlx.
type SnapshotRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewSnapshotRepo returns a new SnapshotRepo.
func NewSnapshotRepo(db *sqlx.DB, clk clock.Clock) *SnapshotRepo {
	return &SnapshotRepo{db: db, clock: clk}
}

func (r *SnapshotRepo) Load(ctx context.Context, auctionID string) (*squad.Snapshot, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT data FROM snapshots WHERE auction_id = $1`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", auctionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var s squad.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, auctionID string, s *squad.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (auction_id, version, data, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (auction_id) DO UPDATE SET version = EXCLUDED.version, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		auctionID, s.Version, data, r.clock.Now())
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}
