// Package feasibility decides whether a team can afford a bid without
// making its mandatory squad minimums unattainable.
//
// MinimumReserve is an overlap-optimistic estimate. Obligations are grouped
// into lists (one per category label, one for all role minimums) and merged
// slot by slot, keeping the most expensive obligation of each slot, on the
// assumption that a single future purchase may satisfy one obligation from
// every list at once. It is not a worst-case matching certificate and can
// under-estimate the true reserve; changing that changes which bids are
// accepted.
package feasibility

import (
	"sort"

	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// MinimumReserve returns the budget team must keep unspent to still meet
// every mandatory minimum of rules. When candidate is non-nil it is counted
// as already bought.
func MinimumReserve(team *squad.Team, rules squad.Rules, players []squad.Player, tax squad.Taxonomy, candidate *squad.Player) int64 {
	roster := squad.RosterOf(team, players)
	lists := obligations(roster, rules, tax, candidate)

	slots := 0
	for _, l := range lists {
		if len(l) > slots {
			slots = len(l)
		}
	}

	var reserve int64
	for i := 0; i < slots; i++ {
		var tallest int64
		for _, l := range lists {
			if i < len(l) && l[i] > tallest {
				tallest = l[i]
			}
		}
		reserve += tallest
	}

	picked := len(team.Roster)
	if candidate != nil {
		picked++
	}
	if needed := rules.MinPlayers - picked; needed > slots {
		reserve += int64(needed-slots) * rules.EffectiveDefaultBasePrice()
	}
	return reserve
}

// ReserveMoney is the reserve a team must hold before any candidate is
// considered, padded by the smallest bid increment so that it can still
// open bidding on a later player.
func ReserveMoney(team *squad.Team, rules squad.Rules, players []squad.Player, tax squad.Taxonomy) int64 {
	return MinimumReserve(team, rules, players, tax, nil) + rules.LeastIncrement()
}

// obligations builds the per-constraint cost lists, each sorted most
// expensive first.
func obligations(roster []*squad.Player, rules squad.Rules, tax squad.Taxonomy, candidate *squad.Player) [][]int64 {
	var lists [][]int64
	listed := make(map[string]bool)

	for _, label := range tax.Labels {
		var list []int64
		for _, opt := range tax.Options[label] {
			listed[opt] = true
			rule, ok := rules.Categories[opt]
			if !ok || rule.Min == 0 {
				continue
			}
			current := 0
			for _, p := range roster {
				if p.Categories[label] == opt {
					current++
				}
			}
			if candidate != nil && candidate.Categories[label] == opt {
				current++
			}
			list = appendCopies(list, rule.Min-current, rules.UnitCost(opt))
		}
		lists = appendSorted(lists, list)
	}

	// Category values with a minimum that the taxonomy does not list get a
	// list of their own.
	for _, value := range rules.CategoryValues() {
		rule := rules.Categories[value]
		if listed[value] || rule.Min == 0 {
			continue
		}
		current := 0
		for _, p := range roster {
			if p.HasCategoryValue(value) {
				current++
			}
		}
		if candidate != nil && candidate.HasCategoryValue(value) {
			current++
		}
		lists = appendSorted(lists, appendCopies(nil, rule.Min-current, rules.UnitCost(value)))
	}

	var roleList []int64
	for _, role := range squad.Roles {
		limit := rules.Roles[role]
		if limit.Min == 0 {
			continue
		}
		current := countRole(roster, role)
		if candidate != nil && candidate.Role == role {
			current++
		}
		roleList = appendCopies(roleList, limit.Min-current, rules.EffectiveDefaultBasePrice())
	}
	return appendSorted(lists, roleList)
}

func appendCopies(list []int64, n int, cost int64) []int64 {
	for i := 0; i < n; i++ {
		list = append(list, cost)
	}
	return list
}

func appendSorted(lists [][]int64, list []int64) [][]int64 {
	if len(list) == 0 {
		return lists
	}
	sort.Slice(list, func(i, j int) bool { return list[i] > list[j] })
	return append(lists, list)
}

func countRole(roster []*squad.Player, role squad.Role) int {
	n := 0
	for _, p := range roster {
		if p.Role == role {
			n++
		}
	}
	return n
}
