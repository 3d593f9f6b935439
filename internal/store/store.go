package store

import (
	"context"
	"errors"

	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SnapshotRepository stores the latest checkpoint of an auction. Save
// replaces the previous checkpoint as a whole.
type SnapshotRepository interface {
	Load(ctx context.Context, auctionID string) (*squad.Snapshot, error)
	Save(ctx context.Context, auctionID string, s *squad.Snapshot) error
}

// SettlementRepository is an append-only log of completed sales.
type SettlementRepository interface {
	Record(ctx context.Context, auctionID string, s squad.Settlement) error
	// List returns the settlements of an auction, newest first.
	List(ctx context.Context, auctionID string) ([]squad.Settlement, error)
}
