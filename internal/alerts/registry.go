package alerts

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"cryptotracker/internal/prices"
)

const defaultMaxPerOwner = 25

// Registry is the process-wide set of pending alerts. All mutation is
// atomic per call; command handlers and the sweep may interleave freely.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]Alert

	maxPerOwner int
}

func NewRegistry(maxPerOwner int) *Registry {
	if maxPerOwner <= 0 {
		maxPerOwner = defaultMaxPerOwner
	}
	return &Registry{byID: map[uint64]Alert{}, maxPerOwner: maxPerOwner}
}

// Add validates and registers an alert, returning its id. The alert becomes
// visible to the next sweep.
func (r *Registry) Add(owner int64, symbol string, dir Direction, threshold decimal.Decimal) (uint64, error) {
	symbol = prices.Normalize(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("%w: empty symbol", ErrInvalidSpec)
	}
	if dir != Above && dir != Below {
		return 0, fmt.Errorf("%w: unknown direction", ErrInvalidSpec)
	}
	if !threshold.IsPositive() {
		return 0, fmt.Errorf("%w: threshold must be > 0", ErrInvalidSpec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	owned := 0
	for _, a := range r.byID {
		if a.Owner == owner {
			owned++
		}
	}
	if owned >= r.maxPerOwner {
		return 0, fmt.Errorf("%w: at most %d pending alerts per user", ErrInvalidSpec, r.maxPerOwner)
	}

	r.nextID++
	id := r.nextID
	r.byID[id] = Alert{ID: id, Owner: owner, Symbol: symbol, Direction: dir, Threshold: threshold}
	return id, nil
}

// RemoveByOwnerAndSymbol removes every alert the owner holds for symbol and
// returns how many were removed. Zero matches is not an error.
func (r *Registry) RemoveByOwnerAndSymbol(owner int64, symbol string) int {
	symbol = prices.Normalize(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, a := range r.byID {
		if a.Owner == owner && a.Symbol == symbol {
			delete(r.byID, id)
			removed++
		}
	}
	return removed
}

// Remove deletes one alert by id and reports whether it was still present.
// The sweep uses this as its claim step: whoever removes the alert first
// (sweep or owner) wins, the loser is a no-op.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// ListByOwner returns a snapshot of the owner's alerts, oldest first. Safe
// to iterate while others mutate the registry.
func (r *Registry) ListByOwner(owner int64) []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Alert
	for _, a := range r.byID {
		if a.Owner == owner {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a copy of all pending alerts, oldest first.
func (r *Registry) Snapshot() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of pending alerts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
