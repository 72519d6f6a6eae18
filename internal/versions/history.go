// Package versions keeps the ordered version history of one contract.
package versions

import (
	"errors"
	"fmt"
	"sort"

	"pactline/internal/domain"
)

// DefaultDisplayLimit is how many versions a collapsed list shows.
const DefaultDisplayLimit = 4

var (
	// ErrEmptyHistory means a contract reached the client without any version.
	// A created contract always has one, so this is a data invariant violation.
	ErrEmptyHistory = errors.New("version history is empty")
	ErrNotFound     = errors.New("version not found")
)

// History holds versions sorted by version number, newest first. The order is
// maintained on every insert so Latest never re-sorts.
type History struct {
	items []domain.ContractVersion
}

// New builds a history from an unordered backend payload. Version numbers must be
// positive and unique.
func New(in []domain.ContractVersion) (*History, error) {
	items := make([]domain.ContractVersion, len(in))
	copy(items, in)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Number > items[j].Number })
	for i, v := range items {
		if v.Number <= 0 {
			return nil, fmt.Errorf("version %s has non-positive number %d", v.ID, v.Number)
		}
		if i > 0 && items[i-1].Number == v.Number {
			return nil, fmt.Errorf("duplicate version number %d (%s, %s)", v.Number, items[i-1].ID, v.ID)
		}
	}
	return &History{items: items}, nil
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.items)
}

// Latest returns the version with the highest number.
func (h *History) Latest() (domain.ContractVersion, error) {
	if h.Len() == 0 {
		return domain.ContractVersion{}, ErrEmptyHistory
	}
	return h.items[0], nil
}

// LatestID is Latest without the error, for callers that already checked Len.
func (h *History) LatestID() string {
	v, err := h.Latest()
	if err != nil {
		return ""
	}
	return v.ID
}

// Insert adds a freshly created version. The backend assigns numbers, so anything not
// above the current latest is rejected instead of reordered.
func (h *History) Insert(v domain.ContractVersion) error {
	if v.Number <= 0 {
		return fmt.Errorf("version %s has non-positive number %d", v.ID, v.Number)
	}
	if latest, err := h.Latest(); err == nil && v.Number <= latest.Number {
		return fmt.Errorf("version %d is not newer than latest %d", v.Number, latest.Number)
	}
	h.items = append([]domain.ContractVersion{v}, h.items...)
	return nil
}

func (h *History) Get(id string) (domain.ContractVersion, error) {
	for _, v := range h.items {
		if v.ID == id {
			return v, nil
		}
	}
	return domain.ContractVersion{}, ErrNotFound
}

// Listing is a display view: the visible versions plus how many are folded away.
type Listing struct {
	Versions  []domain.ContractVersion `json:"versions"`
	Remaining int                      `json:"remaining"`
}

// List returns versions newest first. A limit <= 0 returns everything.
func (h *History) List(limit int) Listing {
	n := h.Len()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ContractVersion, limit)
	if limit > 0 {
		copy(out, h.items[:limit])
	}
	return Listing{Versions: out, Remaining: n - limit}
}
