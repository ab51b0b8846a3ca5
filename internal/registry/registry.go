package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"arbScope/internal/model"
)

type entry struct {
	pair      model.TokenPair
	unhealthy string
}

// Registry holds the set of watched pairs. It is safe for concurrent use and
// preserves registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	pairs map[string]*entry
}

// SyncResult lists pair keys changed by Sync.
type SyncResult struct {
	Added   []string
	Removed []string
}

// Changed reports whether Sync altered the registry.
func (r SyncResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{pairs: make(map[string]*entry)}
}

// Validate normalizes addresses and checks pair invariants without registering.
func Validate(pair model.TokenPair) (model.TokenPair, error) {
	base, err := NormalizeAddress(pair.Base.Address)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: base: %v", model.ErrInvalidPair, err)
	}
	quote, err := NormalizeAddress(pair.Quote.Address)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: quote: %v", model.ErrInvalidPair, err)
	}
	if base == quote {
		return model.TokenPair{}, fmt.Errorf("%w: base and quote are the same token %s", model.ErrInvalidPair, base)
	}
	if pair.Base.Decimals > MaxDecimals || pair.Quote.Decimals > MaxDecimals {
		return model.TokenPair{}, fmt.Errorf("%w: decimals must be at most %d", model.ErrInvalidPair, MaxDecimals)
	}
	if !pair.InputAmount.IsPositive() {
		return model.TokenPair{}, fmt.Errorf("%w: input amount must be positive", model.ErrInvalidPair)
	}
	if pair.RawInputAmount().Sign() <= 0 {
		return model.TokenPair{}, fmt.Errorf("%w: input amount %s is below one base unit", model.ErrInvalidPair, pair.InputAmount)
	}
	pair.Base.Address = base
	pair.Quote.Address = quote
	pair.Name = strings.TrimSpace(pair.Name)
	return pair, nil
}

// Register adds a pair. (A,B) and (B,A) are the same pair.
func (r *Registry) Register(pair model.TokenPair) error {
	pair, err := Validate(pair)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(pair)
}

func (r *Registry) registerLocked(pair model.TokenPair) error {
	key := pair.Key()
	if _, ok := r.pairs[key]; ok {
		return fmt.Errorf("%w: %s", model.ErrDuplicatePair, key)
	}
	if pair.Name != "" {
		if _, ok := r.lookupLocked(pair.Name); ok {
			return fmt.Errorf("%w: name %s", model.ErrDuplicatePair, pair.Name)
		}
	}
	r.pairs[key] = &entry{pair: pair}
	r.order = append(r.order, key)
	return nil
}

// Deregister removes a pair by name or key.
func (r *Registry) Deregister(id string) (model.TokenPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.lookupLocked(id)
	if !ok {
		return model.TokenPair{}, fmt.Errorf("%w: %s", model.ErrUnknownPair, id)
	}
	removed := r.pairs[key].pair
	r.removeLocked(key)
	return removed, nil
}

func (r *Registry) removeLocked(key string) {
	delete(r.pairs, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks a pair up by name or key.
func (r *Registry) Get(id string) (model.TokenPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.lookupLocked(id)
	if !ok {
		return model.TokenPair{}, false
	}
	return r.pairs[key].pair, true
}

// Len returns the number of registered pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns the registered pairs in registration order. The returned
// slice is owned by the caller.
func (r *Registry) Snapshot() []model.TokenPair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.TokenPair, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.pairs[key].pair)
	}
	return out
}

// Sync makes the registry match desired. Pairs whose definition changed are
// removed and registered again. Invalid desired pairs are reported and skipped
// while the rest are still applied.
func (r *Registry) Sync(desired []model.TokenPair) (SyncResult, error) {
	var (
		result SyncResult
		errs   []error
	)

	want := make(map[string]model.TokenPair, len(desired))
	wantOrder := make([]string, 0, len(desired))
	for _, p := range desired {
		valid, err := Validate(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("pair %s: %w", p.Label(), err))
			continue
		}
		key := valid.Key()
		if _, ok := want[key]; ok {
			errs = append(errs, fmt.Errorf("pair %s: %w: %s", p.Label(), model.ErrDuplicatePair, key))
			continue
		}
		want[key] = valid
		wantOrder = append(wantOrder, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range append([]string(nil), r.order...) {
		next, keep := want[key]
		if keep && samePair(r.pairs[key].pair, next) {
			continue
		}
		r.removeLocked(key)
		result.Removed = append(result.Removed, key)
	}
	for _, key := range wantOrder {
		if _, ok := r.pairs[key]; ok {
			continue
		}
		if err := r.registerLocked(want[key]); err != nil {
			errs = append(errs, err)
			continue
		}
		result.Added = append(result.Added, key)
	}

	return result, errors.Join(errs...)
}

// MarkHealth records the outcome of the latest authoritative fetch for a pair.
// A non-nil err marks the pair unhealthy, nil clears it. It returns true when
// the health state changed. Unknown keys are ignored.
func (r *Registry) MarkHealth(key string, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pairs[key]
	if !ok {
		return false
	}
	was := e.unhealthy != ""
	if err != nil {
		e.unhealthy = err.Error()
	} else {
		e.unhealthy = ""
	}
	return was != (e.unhealthy != "")
}

// Unhealthy returns the keys of pairs currently marked unhealthy, in registration order.
func (r *Registry) Unhealthy() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, key := range r.order {
		if r.pairs[key].unhealthy != "" {
			out = append(out, key)
		}
	}
	return out
}

func (r *Registry) lookupLocked(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if _, ok := r.pairs[id]; ok {
		return id, true
	}
	for _, key := range r.order {
		if strings.EqualFold(r.pairs[key].pair.Name, id) && id != "" {
			return key, true
		}
	}
	if parts := strings.SplitN(id, "/", 2); len(parts) == 2 {
		a, errA := NormalizeAddress(parts[0])
		b, errB := NormalizeAddress(parts[1])
		if errA == nil && errB == nil {
			candidate := model.TokenPair{Base: model.Token{Address: a}, Quote: model.Token{Address: b}}
			if _, ok := r.pairs[candidate.Key()]; ok {
				return candidate.Key(), true
			}
		}
	}
	return "", false
}

func samePair(a, b model.TokenPair) bool {
	return a.Name == b.Name &&
		a.Base == b.Base &&
		a.Quote == b.Quote &&
		a.InputAmount.Equal(b.InputAmount)
}
