// Package rates defines the canonical rate dataset: destinations, their
// states, and the priced cities beneath them.
package rates

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// City is a leaf entry carrying a single transport price.
// Identity within a State is the case-insensitive city name.
type City struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// State groups cities under a destination. Key is the normalized form of
// Name and is unique within its destination.
type State struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Cities []City `json:"cities"`
}

// FindCity returns the index of the city whose name matches case-insensitively,
// or -1 when absent.
func (s *State) FindCity(name string) int {
	for i, c := range s.Cities {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Destination is a top-level grouping, conventionally one per source
// spreadsheet sheet (a drop-off hub).
type Destination struct {
	Key    string            `json:"key"`
	States map[string]*State `json:"states"`
}

// Tree is the full current rate dataset. Version advances by one on every
// committed mutation; UpdatedAt strictly increases.
type Tree struct {
	Destinations map[string]*Destination `json:"destinations"`
	UpdatedAt    time.Time               `json:"updated_at"`
	Version      int64                   `json:"version"`
}

// NewTree returns an empty tree at version 0.
func NewTree() *Tree {
	return &Tree{
		Destinations: make(map[string]*Destination),
		UpdatedAt:    time.Now().UTC(),
	}
}

// Clone returns a deep copy. Mutations on the copy never touch the receiver.
func (t *Tree) Clone() *Tree {
	out := &Tree{
		Destinations: make(map[string]*Destination, len(t.Destinations)),
		UpdatedAt:    t.UpdatedAt,
		Version:      t.Version,
	}
	for key, dest := range t.Destinations {
		cp := &Destination{
			Key:    dest.Key,
			States: make(map[string]*State, len(dest.States)),
		}
		for sk, st := range dest.States {
			cities := make([]City, len(st.Cities))
			copy(cities, st.Cities)
			cp.States[sk] = &State{Key: st.Key, Name: st.Name, Cities: cities}
		}
		out.Destinations[key] = cp
	}
	return out
}

// Counts returns the number of destinations, states, and cities.
func (t *Tree) Counts() (destinations, states, cities int) {
	destinations = len(t.Destinations)
	for _, dest := range t.Destinations {
		states += len(dest.States)
		for _, st := range dest.States {
			cities += len(st.Cities)
		}
	}
	return destinations, states, cities
}

// HistoryEntry is an immutable archived snapshot, written exactly once per
// committed mutation, immediately before the mutation is applied.
type HistoryEntry struct {
	ID         uuid.UUID `json:"id"`
	Snapshot   *Tree     `json:"snapshot"`
	ArchivedAt time.Time `json:"archived_at"`
	ArchivedBy string    `json:"archived_by"`
}
