package squad

import "sort"

// FallbackBasePrice is used when the rules set no default base price.
const FallbackBasePrice int64 = 2_000_000

// FallbackIncrements is the bid ladder used when no increments are configured.
var FallbackIncrements = []int64{500_000, 1_000_000, 2_000_000, 5_000_000, 10_000_000}

// Limit bounds a count. Zero means unset.
type Limit struct {
	Min int `json:"min,omitempty" yaml:"min"`
	Max int `json:"max,omitempty" yaml:"max"`
}

// CategoryRule constrains the players carrying one category value.
type CategoryRule struct {
	Min        int     `json:"min,omitempty" yaml:"min"`
	Max        int     `json:"max,omitempty" yaml:"max"`
	BasePrice  int64   `json:"base_price,omitempty" yaml:"base_price"`
	Increments []int64 `json:"increments,omitempty" yaml:"increments"`
}

// Rules is the squad-composition contract every team must honour.
type Rules struct {
	MinPlayers int            `json:"min_players,omitempty" yaml:"min_players"`
	MaxPlayers int            `json:"max_players,omitempty" yaml:"max_players"`
	Roles      map[Role]Limit `json:"roles,omitempty" yaml:"roles"`
	// Categories is keyed by category value, e.g. "Female".
	Categories       map[string]CategoryRule `json:"categories,omitempty" yaml:"categories"`
	DefaultBasePrice int64                   `json:"default_base_price,omitempty" yaml:"default_base_price"`
	BidIncrements    []int64                 `json:"bid_increments,omitempty" yaml:"bid_increments"`
	TotalBudget      int64                   `json:"total_budget,omitempty" yaml:"total_budget"`
}

// EffectiveDefaultBasePrice returns DefaultBasePrice or FallbackBasePrice.
func (r Rules) EffectiveDefaultBasePrice() int64 {
	if r.DefaultBasePrice > 0 {
		return r.DefaultBasePrice
	}
	return FallbackBasePrice
}

// UnitCost is the price assumed for one more player carrying value.
func (r Rules) UnitCost(value string) int64 {
	if rule, ok := r.Categories[value]; ok && rule.BasePrice > 0 {
		return rule.BasePrice
	}
	return r.EffectiveDefaultBasePrice()
}

// BasePriceFor returns the opening price of a round for p: its own base
// price, else the highest category override it carries, else the default.
func (r Rules) BasePriceFor(p *Player) int64 {
	if p.BasePrice > 0 {
		return p.BasePrice
	}
	var best int64
	for _, v := range p.Categories {
		if rule, ok := r.Categories[v]; ok && rule.BasePrice > best {
			best = rule.BasePrice
		}
	}
	if best > 0 {
		return best
	}
	return r.EffectiveDefaultBasePrice()
}

// IncrementsFor returns the bid ladder that applies to p.
func (r Rules) IncrementsFor(p *Player) []int64 {
	if p != nil {
		for _, label := range p.CategoryLabels() {
			if rule, ok := r.Categories[p.Categories[label]]; ok && len(rule.Increments) > 0 {
				return rule.Increments
			}
		}
	}
	if len(r.BidIncrements) > 0 {
		return r.BidIncrements
	}
	return FallbackIncrements
}

// LeastIncrement returns the smallest configured global increment, or 0.
func (r Rules) LeastIncrement() int64 {
	if len(r.BidIncrements) == 0 {
		return 0
	}
	least := r.BidIncrements[0]
	for _, inc := range r.BidIncrements[1:] {
		if inc < least {
			least = inc
		}
	}
	return least
}

// CategoryValues returns the values that have a rule, sorted.
func (r Rules) CategoryValues() []string {
	values := make([]string, 0, len(r.Categories))
	for v := range r.Categories {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func (r Rules) clone() Rules {
	c := r
	if r.Roles != nil {
		c.Roles = make(map[Role]Limit, len(r.Roles))
		for k, v := range r.Roles {
			c.Roles[k] = v
		}
	}
	if r.Categories != nil {
		c.Categories = make(map[string]CategoryRule, len(r.Categories))
		for k, v := range r.Categories {
			v.Increments = append([]int64(nil), v.Increments...)
			c.Categories[k] = v
		}
	}
	c.BidIncrements = append([]int64(nil), r.BidIncrements...)
	return c
}
