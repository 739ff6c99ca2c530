package itinerary

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// VisitedRegistry is the case-insensitive set of venue names already used in
// a trip. It is safe for concurrent use, but during planning only the
// orchestrator writes to it.
type VisitedRegistry struct {
	mu    sync.Mutex
	names map[string]string
}

func NewVisitedRegistry(names ...string) *VisitedRegistry {
	r := &VisitedRegistry{names: make(map[string]string, len(names))}
	for _, name := range names {
		r.Add(name)
	}
	return r
}

// NameKey folds a venue name for comparison.
func NameKey(name string) string {
	// Casers keep state, so one per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

func (r *VisitedRegistry) Contains(name string) bool {
	key := NameKey(name)
	if key == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[key]
	return ok
}

// Add records name and reports whether it was new.
func (r *VisitedRegistry) Add(name string) bool {
	key := NameKey(name)
	if key == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[key]; ok {
		return false
	}
	r.names[key] = strings.TrimSpace(name)
	return true
}

func (r *VisitedRegistry) AddStops(stops []Stop) {
	for _, stop := range stops {
		r.Add(stop.Name)
	}
}

func (r *VisitedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// Names returns the recorded names as first spelled, sorted.
func (r *VisitedRegistry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.names))
	for _, name := range r.names {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

// RebuildRegistry scans every stop of every day, skipping the stop at
// excludeIndex of the day numbered excludeDay (pass 0 to skip nothing).
func RebuildRegistry(days []*Day, excludeDay, excludeIndex int) *VisitedRegistry {
	r := NewVisitedRegistry()
	for _, day := range days {
		for i, stop := range day.Stops {
			if day.Number == excludeDay && i == excludeIndex {
				continue
			}
			r.Add(stop.Name)
		}
	}
	return r
}
