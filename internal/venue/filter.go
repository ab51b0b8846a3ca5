package venue

import (
	"sort"
	"strings"

	"arbScope/internal/model"
)

// Filter is an allow-list of venues. The zero value is unrestricted.
type Filter struct {
	allowed map[string]model.Venue
}

// NewFilter builds a filter from venue names. Blank names are ignored and an
// empty set yields an unrestricted filter.
func NewFilter(venues ...model.Venue) Filter {
	allowed := make(map[string]model.Venue, len(venues))
	for _, v := range venues {
		key := normalize(v)
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; ok {
			continue
		}
		allowed[key] = model.Venue(strings.TrimSpace(string(v)))
	}
	if len(allowed) == 0 {
		return Filter{}
	}
	return Filter{allowed: allowed}
}

// FromStrings is NewFilter for plain string input such as config values.
func FromStrings(names []string) Filter {
	venues := make([]model.Venue, 0, len(names))
	for _, n := range names {
		venues = append(venues, model.Venue(n))
	}
	return NewFilter(venues...)
}

// Unrestricted returns a filter that allows every venue.
func Unrestricted() Filter {
	return Filter{}
}

// Single restricts routing to one venue.
func Single(v model.Venue) Filter {
	return NewFilter(v)
}

// IsRestricted reports whether the filter carries an allow-list.
func (f Filter) IsRestricted() bool {
	return len(f.allowed) > 0
}

// Allows reports whether v passes the filter.
func (f Filter) Allows(v model.Venue) bool {
	if !f.IsRestricted() {
		return true
	}
	_, ok := f.allowed[normalize(v)]
	return ok
}

// IsEligible is true iff the route is non-empty and every hop is allowed.
func (f Filter) IsEligible(route []model.Venue) bool {
	if len(route) == 0 {
		return false
	}
	for _, hop := range route {
		if !f.Allows(hop) {
			return false
		}
	}
	return true
}

// Venues returns the allowed venues sorted by name, or nil when unrestricted.
func (f Filter) Venues() []model.Venue {
	if !f.IsRestricted() {
		return nil
	}
	keys := make([]string, 0, len(f.allowed))
	for k := range f.allowed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]model.Venue, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.allowed[k])
	}
	return out
}

func (f Filter) String() string {
	if !f.IsRestricted() {
		return "*"
	}
	venues := f.Venues()
	parts := make([]string, 0, len(venues))
	for _, v := range venues {
		parts = append(parts, string(v))
	}
	return strings.Join(parts, ",")
}

func normalize(v model.Venue) string {
	return strings.ToLower(strings.TrimSpace(string(v)))
}
