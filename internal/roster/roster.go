// Package roster orders contract participants for display.
package roster

import (
	"sort"
	"strconv"

	"pactline/internal/domain"
)

// Groups holds participants by role. Signatories are in signing order.
type Groups struct {
	Managers    []domain.Participant `json:"managers"`
	Signatories []domain.Participant `json:"signatories"`
	Observers   []domain.Participant `json:"observers"`
}

// GroupByRole splits participants into CM, AS and CO groups. Managers and observers
// keep input order. Signatories sort by signing order ascending; those without one
// come last, ties broken by participant id. Unknown roles are dropped.
func GroupByRole(participants []domain.Participant) Groups {
	g := Groups{
		Managers:    []domain.Participant{},
		Signatories: []domain.Participant{},
		Observers:   []domain.Participant{},
	}
	for _, p := range participants {
		switch p.Role {
		case domain.RoleManager:
			g.Managers = append(g.Managers, p)
		case domain.RoleSignatory:
			g.Signatories = append(g.Signatories, p)
		case domain.RoleObserver:
			g.Observers = append(g.Observers, p)
		}
	}
	sort.SliceStable(g.Signatories, func(i, j int) bool {
		a, b := g.Signatories[i], g.Signatories[j]
		switch {
		case a.SigningOrder != nil && b.SigningOrder != nil:
			if *a.SigningOrder != *b.SigningOrder {
				return *a.SigningOrder < *b.SigningOrder
			}
		case a.SigningOrder != nil:
			return true
		case b.SigningOrder != nil:
			return false
		}
		return a.ID < b.ID
	})
	return g
}

// SigningLabel formats a signing position. Only 1, 2 and 3 are special cased, so
// 21 renders as "21th". Non-positive orders render empty.
func SigningLabel(order int) string {
	switch {
	case order <= 0:
		return ""
	case order == 1:
		return "first"
	case order == 2:
		return "2nd"
	case order == 3:
		return "3rd"
	default:
		return strconv.Itoa(order) + "th"
	}
}

// ActingRole returns the strongest role userID holds on the roster.
func ActingRole(participants []domain.Participant, userID string) (domain.Role, bool) {
	rank := map[domain.Role]int{domain.RoleManager: 3, domain.RoleSignatory: 2, domain.RoleObserver: 1}
	var best domain.Role
	for _, p := range participants {
		if p.UserID != userID || userID == "" {
			continue
		}
		if rank[p.Role] > rank[best] {
			best = p.Role
		}
	}
	return best, best != ""
}

// Step is one position in the signing sequence.
type Step struct {
	Label       string             `json:"label"`
	Participant domain.Participant `json:"participant"`
}

// SigningSequence lists signatories with their labels. Signatories without an order
// get an empty label.
func SigningSequence(participants []domain.Participant) []Step {
	g := GroupByRole(participants)
	out := make([]Step, 0, len(g.Signatories))
	for _, p := range g.Signatories {
		label := ""
		if p.SigningOrder != nil {
			label = SigningLabel(*p.SigningOrder)
		}
		out = append(out, Step{Label: label, Participant: p})
	}
	return out
}
