package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	RoundStarted   Type = "round.started"
	RoundBidPlaced Type = "round.bid_placed"
	RoundBidUndone Type = "round.bid_undone"
	RoundSold      Type = "round.sold"
	RoundPassed    Type = "round.passed"
	RoundCancelled Type = "round.cancelled"

	PlayerReleased Type = "player.released"

	TeamBudgetUpdated Type = "team.budget_updated"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// RoundStartedData is the payload for RoundStarted events.
type RoundStartedData struct {
	PlayerID   string `json:"player_id"`
	OpeningBid int64  `json:"opening_bid"`
}

// BidPlacedData is the payload for RoundBidPlaced events.
type BidPlacedData struct {
	TeamID string `json:"team_id"`
	Amount int64  `json:"amount"`
}

// RoundSoldData is the payload for RoundSold events.
type RoundSoldData struct {
	SettlementID string    `json:"settlement_id"`
	PlayerID     string    `json:"player_id"`
	TeamID       string    `json:"team_id"`
	Amount       int64     `json:"amount"`
	SoldAt       time.Time `json:"sold_at"`
}

// PlayerReleasedData is the payload for PlayerReleased events.
type PlayerReleasedData struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	Refund   int64  `json:"refund"`
}

// TeamBudgetUpdatedData is the payload for TeamBudgetUpdated events.
type TeamBudgetUpdatedData struct {
	TeamID      string `json:"team_id"`
	TotalBudget int64  `json:"total_budget"`
}
