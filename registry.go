package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps unique names to metrics. It is safe for concurrent use;
// exporters iterate over a copy taken by Entries, so a metric added or
// removed during a report cycle may or may not be part of it.
type Registry struct {
	mutex   sync.RWMutex
	metrics map[string]Metric
}

// Entry is one registered metric.
type Entry struct {
	Name   string
	Metric Metric
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]Metric),
	}
}

// Add registers m under name. It fails with ErrDuplicateName if the name is
// taken, leaving the existing metric in place.
func (r *Registry) Add(name string, m Metric) error {
	if err := validateName(name); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %q", ErrNilMetric, name)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.metrics[name] = m
	return nil
}

// Remove unregisters name and reports whether it was registered.
func (r *Registry) Remove(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, exists := r.metrics[name]
	delete(r.metrics, name)
	return exists
}

// Get returns the metric registered under name.
func (r *Registry) Get(name string) (Metric, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.metrics[name]
	return m, ok
}

// Len returns the number of registered metrics.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.metrics)
}

// Entries returns the registered metrics sorted by name.
func (r *Registry) Entries() []Entry {
	r.mutex.RLock()
	entries := make([]Entry, 0, len(r.metrics))
	for name, m := range r.metrics {
		entries = append(entries, Entry{Name: name, Metric: m})
	}
	r.mutex.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// validateName rejects names that would break the line protocol.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("%w: %q has a leading or trailing dot", ErrInvalidName, name)
	}
	return nil
}
