package squad_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jensholdgaard/squad-auction/internal/squad"
)

func price(v int64) *int64   { return &v }
func team(id string) *string { return &id }

func TestRules_BasePriceFor(t *testing.T) {
	rules := squad.Rules{
		DefaultBasePrice: 100,
		Categories: map[string]squad.CategoryRule{
			"Icon":   {BasePrice: 500},
			"Female": {BasePrice: 200},
		},
	}

	assert.Equal(t, int64(300), rules.BasePriceFor(&squad.Player{BasePrice: 300, Categories: map[string]string{"Tier": "Icon"}}))
	assert.Equal(t, int64(500), rules.BasePriceFor(&squad.Player{Categories: map[string]string{"Tier": "Icon", "Gender": "Female"}}))
	assert.Equal(t, int64(100), rules.BasePriceFor(&squad.Player{}))
	assert.Equal(t, squad.FallbackBasePrice, squad.Rules{}.BasePriceFor(&squad.Player{}))
}

func TestRules_IncrementsFor(t *testing.T) {
	rules := squad.Rules{
		BidIncrements: []int64{10, 20},
		Categories: map[string]squad.CategoryRule{
			"Icon": {Increments: []int64{50, 100}},
		},
	}

	assert.Equal(t, []int64{50, 100}, rules.IncrementsFor(&squad.Player{Categories: map[string]string{"Tier": "Icon"}}))
	assert.Equal(t, []int64{10, 20}, rules.IncrementsFor(&squad.Player{}))
	assert.Equal(t, squad.FallbackIncrements, squad.Rules{}.IncrementsFor(nil))
	assert.Equal(t, int64(10), rules.LeastIncrement())
	assert.Zero(t, squad.Rules{}.LeastIncrement())
}

func TestSnapshot_Clone(t *testing.T) {
	s := &squad.Snapshot{
		Teams:   []squad.Team{{ID: "t1", TotalBudget: 100, RemainingBudget: 60, Roster: []string{"p1"}}},
		Players: []squad.Player{{ID: "p1", Status: squad.Sold, SoldPrice: price(40), SoldTo: team("t1"), Categories: map[string]string{"Gender": "Male"}}},
		Round:   squad.Round{ItemID: "p2", Stack: []squad.BidState{{Bid: 10}}},
		Rules:   squad.Rules{Roles: map[squad.Role]squad.Limit{squad.Bowler: {Min: 1}}},
	}

	c := s.Clone()
	c.Teams[0].Roster[0] = "changed"
	*c.Players[0].SoldPrice = 1
	c.Players[0].Categories["Gender"] = "Female"
	c.Round.Stack[0].Bid = 99
	c.Rules.Roles[squad.Bowler] = squad.Limit{Min: 5}

	assert.Equal(t, "p1", s.Teams[0].Roster[0])
	assert.Equal(t, int64(40), *s.Players[0].SoldPrice)
	assert.Equal(t, "Male", s.Players[0].Categories["Gender"])
	assert.Equal(t, int64(10), s.Round.Stack[0].Bid)
	assert.Equal(t, 1, s.Rules.Roles[squad.Bowler].Min)
}

func TestCheckLedger(t *testing.T) {
	tests := []struct {
		name    string
		snap    *squad.Snapshot
		wantErr bool
	}{
		{
			name: "balanced",
			snap: &squad.Snapshot{
				Teams:   []squad.Team{{ID: "t1", TotalBudget: 100, RemainingBudget: 60, Roster: []string{"p1"}}},
				Players: []squad.Player{{ID: "p1", Status: squad.Sold, SoldPrice: price(40), SoldTo: team("t1")}},
			},
		},
		{
			name: "remaining does not match spend",
			snap: &squad.Snapshot{
				Teams:   []squad.Team{{ID: "t1", TotalBudget: 100, RemainingBudget: 100, Roster: []string{"p1"}}},
				Players: []squad.Player{{ID: "p1", Status: squad.Sold, SoldPrice: price(40), SoldTo: team("t1")}},
			},
			wantErr: true,
		},
		{
			name: "sold without price",
			snap: &squad.Snapshot{
				Players: []squad.Player{{ID: "p1", Status: squad.Sold}},
			},
			wantErr: true,
		},
		{
			name: "sold to a team that does not hold it",
			snap: &squad.Snapshot{
				Teams:   []squad.Team{{ID: "t1", TotalBudget: 100, RemainingBudget: 100}},
				Players: []squad.Player{{ID: "p1", Status: squad.Sold, SoldPrice: price(0), SoldTo: team("t1")}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := squad.CheckLedger(tt.snap)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, squad.ErrLedgerMismatch))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTaxonomy_LabelOf(t *testing.T) {
	tax := squad.Taxonomy{
		Labels:  []string{"Gender", "Tier"},
		Options: map[string][]string{"Gender": {"Male", "Female"}, "Tier": {"Icon"}},
	}
	label, ok := tax.LabelOf("Icon")
	assert.True(t, ok)
	assert.Equal(t, "Tier", label)

	_, ok = tax.LabelOf("Unknown")
	assert.False(t, ok)
}
