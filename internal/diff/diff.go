// Package diff computes structural deltas between two rate trees. It backs
// the upload preview screen and rollback tooling.
package diff

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"transfer-rates/internal/rates"
)

// Options controls city matching.
type Options struct {
	// FoldCityCase matches cities case-insensitively, like the uniqueness
	// rule used on ingest and edit. The default (false) matches on the
	// exact display name, which is the behavior the admin screens were
	// built against: a re-cased city shows up as one added plus one
	// removed entry.
	FoldCityCase bool
}

// Entry identifies one city within a tree.
type Entry struct {
	Destination string `json:"destination"`
	State       string `json:"state"`
	City        string `json:"city"`
}

// Change is a city present in both trees with a different price.
type Change struct {
	Entry
	OldPrice decimal.Decimal `json:"old_price"`
	NewPrice decimal.Decimal `json:"new_price"`
}

// Delta is the itemized difference between two trees.
type Delta struct {
	Added   []Entry  `json:"added"`
	Removed []Entry  `json:"removed"`
	Changed []Change `json:"changed"`
}

// Empty reports whether the delta contains no entries.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

type cityRef struct {
	entry Entry
	price decimal.Decimal
}

// Diff compares two trees and classifies every city as added, removed,
// changed, or unchanged. Pure function; neither tree is touched.
func Diff(oldTree, newTree *rates.Tree, opts Options) Delta {
	oldIndex := index(oldTree, opts)
	newIndex := index(newTree, opts)

	var delta Delta
	walk(newTree, opts, func(key string, ref cityRef) {
		prev, ok := oldIndex[key]
		switch {
		case !ok:
			delta.Added = append(delta.Added, ref.entry)
		case !prev.price.Equal(ref.price):
			delta.Changed = append(delta.Changed, Change{
				Entry:    ref.entry,
				OldPrice: prev.price,
				NewPrice: ref.price,
			})
		}
	})
	walk(oldTree, opts, func(key string, ref cityRef) {
		if _, ok := newIndex[key]; !ok {
			delta.Removed = append(delta.Removed, ref.entry)
		}
	})
	return delta
}

func index(t *rates.Tree, opts Options) map[string]cityRef {
	out := make(map[string]cityRef)
	walk(t, opts, func(key string, ref cityRef) {
		if _, ok := out[key]; !ok {
			out[key] = ref
		}
	})
	return out
}

// walk visits cities destination-then-state-then-city, destinations and
// states in key order so delta output is stable across runs.
func walk(t *rates.Tree, opts Options, fn func(key string, ref cityRef)) {
	if t == nil {
		return
	}
	for _, dk := range sortedKeys(t.Destinations) {
		dest := t.Destinations[dk]
		for _, sk := range sortedKeys(dest.States) {
			st := dest.States[sk]
			for _, city := range st.Cities {
				name := city.Name
				if opts.FoldCityCase {
					name = strings.ToLower(name)
				}
				fn(dk+"\x00"+sk+"\x00"+name, cityRef{
					entry: Entry{Destination: dk, State: st.Name, City: city.Name},
					price: city.Price,
				})
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
