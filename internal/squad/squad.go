// Package squad holds the auction's data model: players up for sale, the
// teams bidding for them, the squad-composition rules and the state of the
// round in progress.
package squad

import (
	"sort"
	"time"
)

// Role is the playing role of a player.
type Role string

const (
	Batsman      Role = "Batsman"
	Bowler       Role = "Bowler"
	AllRounder   Role = "All-Rounder"
	WicketKeeper Role = "Wicket Keeper"
)

// Roles lists every role in canonical order.
var Roles = []Role{Batsman, Bowler, AllRounder, WicketKeeper}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Status is the sale status of a player.
type Status string

const (
	Available Status = "Available"
	Sold      Status = "Sold"
	Unsold    Status = "Unsold"
)

// Player is an item put up for auction.
type Player struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Role       Role              `json:"role"`
	BasePrice  int64             `json:"base_price"`
	Categories map[string]string `json:"categories,omitempty"`
	Status     Status            `json:"status"`
	SoldPrice  *int64            `json:"sold_price,omitempty"`
	SoldTo     *string           `json:"sold_to,omitempty"`
}

// HasCategoryValue reports whether any of the player's category labels
// carries value.
func (p *Player) HasCategoryValue(value string) bool {
	for _, v := range p.Categories {
		if v == value {
			return true
		}
	}
	return false
}

// CategoryLabels returns the player's category labels in sorted order.
func (p *Player) CategoryLabels() []string {
	labels := make([]string, 0, len(p.Categories))
	for l := range p.Categories {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Team is a bidder with a purse and a roster.
type Team struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	TotalBudget     int64    `json:"total_budget"`
	RemainingBudget int64    `json:"remaining_budget"`
	Roster          []string `json:"roster"`
}

// Owns reports whether playerID is on the team's roster.
func (t *Team) Owns(playerID string) bool {
	for _, id := range t.Roster {
		if id == playerID {
			return true
		}
	}
	return false
}

// BidState is one entry of the round's undo stack.
type BidState struct {
	Bid      int64  `json:"bid"`
	LeaderID string `json:"leader_id,omitempty"`
}

// Round is the state of the round in progress. An empty ItemID means no
// round is running.
type Round struct {
	ItemID     string     `json:"item_id,omitempty"`
	CurrentBid int64      `json:"current_bid"`
	LeaderID   string     `json:"leader_id,omitempty"`
	Stack      []BidState `json:"stack,omitempty"`
	// Version counts round starts, accepted bids, undos and round endings
	// over the whole auction. Callers pass the version they observed to
	// detect a stale view.
	Version int64 `json:"version"`
}

// Active reports whether a round is in progress.
func (r Round) Active() bool { return r.ItemID != "" }

// Settlement records one completed sale.
type Settlement struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"player_id"`
	SoldPrice int64     `json:"sold_price"`
	TeamID    string    `json:"team_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Taxonomy is the tournament-defined set of category labels and the
// values each label may take.
type Taxonomy struct {
	Labels  []string            `json:"labels,omitempty"`
	Options map[string][]string `json:"options,omitempty"`
}

// LabelOf returns the label under which value is listed.
func (t Taxonomy) LabelOf(value string) (string, bool) {
	for _, label := range t.Labels {
		for _, opt := range t.Options[label] {
			if opt == value {
				return label, true
			}
		}
	}
	return "", false
}

// Snapshot is the complete auction state.
type Snapshot struct {
	TournamentName string       `json:"tournament_name"`
	Teams          []Team       `json:"teams"`
	Players        []Player     `json:"players"`
	Round          Round        `json:"round"`
	// History is newest first.
	History  []Settlement `json:"history"`
	Rules    Rules        `json:"rules"`
	Taxonomy Taxonomy     `json:"taxonomy"`
	// Version is the event stream version this snapshot reflects.
	Version int `json:"version"`
}

// Team returns the team with the given ID, or nil.
func (s *Snapshot) Team(id string) *Team {
	for i := range s.Teams {
		if s.Teams[i].ID == id {
			return &s.Teams[i]
		}
	}
	return nil
}

// Player returns the player with the given ID, or nil.
func (s *Snapshot) Player(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// CurrentPlayer returns the player of the round in progress, or nil.
func (s *Snapshot) CurrentPlayer() *Player {
	if !s.Round.Active() {
		return nil
	}
	return s.Player(s.Round.ItemID)
}

// RosterOf resolves a team's roster into players. Unknown IDs are skipped.
func RosterOf(t *Team, players []Player) []*Player {
	byID := make(map[string]*Player, len(players))
	for i := range players {
		byID[players[i].ID] = &players[i]
	}
	out := make([]*Player, 0, len(t.Roster))
	for _, id := range t.Roster {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s

	c.Teams = make([]Team, len(s.Teams))
	for i, t := range s.Teams {
		t.Roster = append([]string(nil), t.Roster...)
		c.Teams[i] = t
	}

	c.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		if p.Categories != nil {
			cats := make(map[string]string, len(p.Categories))
			for k, v := range p.Categories {
				cats[k] = v
			}
			p.Categories = cats
		}
		if p.SoldPrice != nil {
			v := *p.SoldPrice
			p.SoldPrice = &v
		}
		if p.SoldTo != nil {
			v := *p.SoldTo
			p.SoldTo = &v
		}
		c.Players[i] = p
	}

	c.Round.Stack = append([]BidState(nil), s.Round.Stack...)
	c.History = append([]Settlement(nil), s.History...)
	c.Rules = s.Rules.clone()
	c.Taxonomy = s.Taxonomy.clone()
	return &c
}

func (t Taxonomy) clone() Taxonomy {
	c := Taxonomy{Labels: append([]string(nil), t.Labels...)}
	if t.Options != nil {
		c.Options = make(map[string][]string, len(t.Options))
		for k, v := range t.Options {
			c.Options[k] = append([]string(nil), v...)
		}
	}
	return c
}
