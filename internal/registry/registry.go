// Package registry holds the in-memory watchlist state: one ordered slice
// of instruments per category plus the derived selected-token set.
//
// All mutation goes through three primitives (Replace, UpsertMatching and
// Remove) so that every write path shares the same value-equality gate:
// a slice is only swapped (and downstream consumers only notified) when at
// least one instrument actually changed.
package registry

import (
	"sync"

	"marketwatchv1/internal/model"
)

// Registry is safe for concurrent use; the watch service serialises writes
// but snapshots may be read from other goroutines (metrics, publishers).
type Registry struct {
	mu     sync.RWMutex
	slices map[model.Category][]model.Instrument
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{slices: make(map[model.Category][]model.Instrument)}
}

// Get returns a copy of the category's slice in insertion order.
func (r *Registry) Get(cat model.Category) []model.Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.slices[cat]
	out := make([]model.Instrument, len(src))
	copy(out, src)
	return out
}

// Replace swaps the category's slice wholesale. Used on initial load and
// after a reload-after-write.
func (r *Registry) Replace(cat model.Category, ins []model.Instrument) {
	cp := make([]model.Instrument, len(ins))
	copy(cp, ins)
	r.mu.Lock()
	r.slices[cat] = cp
	r.mu.Unlock()
}

// UpsertMatching scans the category's slice and, for every entry where
// pred holds, substitutes update(entry), but only when the computed entry
// differs from the original in an observable field. Returns whether any
// substitution occurred.
func (r *Registry) UpsertMatching(cat model.Category, pred func(model.Instrument) bool, update func(model.Instrument) model.Instrument) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.slices[cat]
	changed := false
	for i := range src {
		if !pred(src[i]) {
			continue
		}
		next := update(src[i])
		if next.EqualObservable(src[i]) {
			continue
		}
		if !changed {
			// Copy-on-first-write so readers holding an old snapshot
			// never observe a partial update.
			cp := make([]model.Instrument, len(src))
			copy(cp, src)
			r.slices[cat] = cp
			src = cp
			changed = true
		}
		src[i] = next
	}
	return changed
}

// UpsertMatchingAll applies UpsertMatching across every category. The flat
// feed's ticks are category-agnostic: a token may match entries in more
// than one slice, and all of them are updated.
func (r *Registry) UpsertMatchingAll(pred func(model.Instrument) bool, update func(model.Instrument) model.Instrument) bool {
	changed := false
	for _, cat := range model.AllCategories {
		if r.UpsertMatching(cat, pred, update) {
			changed = true
		}
	}
	return changed
}

// Remove filters the token out of the category's slice. Returns whether
// the token was present.
func (r *Registry) Remove(cat model.Category, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.slices[cat]
	out := src[:0:0]
	removed := false
	for _, ins := range src {
		if ins.Token == token {
			removed = true
			continue
		}
		out = append(out, ins)
	}
	if removed {
		r.slices[cat] = out
	}
	return removed
}

// SelectedTokens returns the set of tokens in the category's slice. The
// set is derived, never stored: it is recomputed from whatever the slice
// currently holds.
func (r *Registry) SelectedTokens(cat model.Category) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]bool, len(r.slices[cat]))
	for _, ins := range r.slices[cat] {
		set[ins.Token] = true
	}
	return set
}

// Len returns the number of instruments in the category's slice.
func (r *Registry) Len(cat model.Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slices[cat])
}
