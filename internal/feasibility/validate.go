package feasibility

import (
	"errors"
	"fmt"

	"github.com/jensholdgaard/squad-auction/internal/squad"
)

// ErrBidDenied is wrapped by every DeniedError.
var ErrBidDenied = errors.New("bid denied")

// Code identifies which constraint denied a bid.
type Code string

const (
	CodeAllowed            Code = ""
	CodeInsufficientBudget Code = "insufficient_budget"
	CodeSquadFull          Code = "squad_full"
	CodeRoleCap            Code = "role_cap"
	CodeCategoryCap        Code = "category_cap"
	CodeRoleSlots          Code = "role_slots"
	CodeCategorySlots      Code = "category_slots"
	CodeReserve            Code = "reserve"
)

// Verdict is the outcome of Validate. MinimumReserve and RemainingPurse are
// set when the reserve check ran, i.e. on allowed bids and CodeReserve
// denials.
type Verdict struct {
	Allowed        bool   `json:"allowed"`
	Code           Code   `json:"code,omitempty"`
	Reason         string `json:"reason,omitempty"`
	MinimumReserve int64  `json:"minimum_reserve,omitempty"`
	RemainingPurse int64  `json:"remaining_purse,omitempty"`
}

// Err returns nil for an allowed verdict and a *DeniedError otherwise.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return &DeniedError{Verdict: v}
}

// DeniedError carries the verdict of a denied bid.
type DeniedError struct {
	Verdict Verdict
}

func (e *DeniedError) Error() string { return e.Verdict.Reason }

func (e *DeniedError) Unwrap() error { return ErrBidDenied }

func deny(code Code, format string, args ...any) Verdict {
	return Verdict{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks whether team may bid amount for candidate. Checks run in
// a fixed order and the first failure is reported. Validate has no side
// effects; callers must re-check at settlement since later bids change
// team state.
func Validate(team *squad.Team, candidate *squad.Player, amount int64, rules squad.Rules, players []squad.Player, tax squad.Taxonomy) Verdict {
	if amount > team.RemainingBudget {
		return deny(CodeInsufficientBudget, "Team %s does not have enough budget to place this bid.", team.Name)
	}

	if rules.MaxPlayers > 0 && len(team.Roster) >= rules.MaxPlayers {
		return deny(CodeSquadFull, "Team %s already has the maximum of %d players.", team.Name, rules.MaxPlayers)
	}

	roster := squad.RosterOf(team, players)

	if limit := rules.Roles[candidate.Role]; limit.Max > 0 && countRole(roster, candidate.Role) >= limit.Max {
		return deny(CodeRoleCap, "Team %s already has the maximum of %d %s players.", team.Name, limit.Max, candidate.Role)
	}

	for _, label := range candidate.CategoryLabels() {
		value := candidate.Categories[label]
		rule, ok := rules.Categories[value]
		if !ok || rule.Max == 0 {
			continue
		}
		current := 0
		for _, p := range roster {
			if p.Categories[label] == value {
				current++
			}
		}
		if current >= rule.Max {
			return deny(CodeCategoryCap, "Team %s already has the maximum of %d %s players.", team.Name, rule.Max, value)
		}
	}

	if rules.MaxPlayers > 0 {
		slotsAfterThis := rules.MaxPlayers - (len(team.Roster) + 1)

		roleNeeded := 0
		for _, role := range squad.Roles {
			limit := rules.Roles[role]
			if limit.Min == 0 {
				continue
			}
			current := countRole(roster, role)
			if candidate.Role == role {
				current++
			}
			roleNeeded += max(0, limit.Min-current)
		}

		categoryNeeded := 0
		for _, value := range rules.CategoryValues() {
			rule := rules.Categories[value]
			if rule.Min == 0 {
				continue
			}
			current := 0
			for _, p := range roster {
				if p.HasCategoryValue(value) {
					current++
				}
			}
			if candidate.HasCategoryValue(value) {
				current++
			}
			categoryNeeded += max(0, rule.Min-current)
		}

		if roleNeeded > slotsAfterThis {
			return deny(CodeRoleSlots, "Buying this %s leaves only %d slots, but %s still needs %d more players of other roles.",
				candidate.Role, slotsAfterThis, team.Name, roleNeeded)
		}
		if categoryNeeded > slotsAfterThis {
			return deny(CodeCategorySlots, "Buying this player leaves only %d slots, but %s still needs %d more players of other categories.",
				slotsAfterThis, team.Name, categoryNeeded)
		}
	}

	purse := team.RemainingBudget - amount
	reserve := MinimumReserve(team, rules, players, tax, candidate)
	if purse < reserve {
		v := deny(CodeReserve, "Insufficient budget to complete mandatory squad requirements: %d left after this bid, %d required.", purse, reserve)
		v.MinimumReserve = reserve
		v.RemainingPurse = purse
		return v
	}

	return Verdict{Allowed: true, MinimumReserve: reserve, RemainingPurse: purse}
}
