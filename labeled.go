package monitor

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// LabeledCounterConfig bounds the series a LabeledCounter keeps.
type LabeledCounterConfig struct {
	// TTL drops series not updated for this long; 0 keeps them forever.
	TTL time.Duration
	// MaxSeries evicts the least recently updated series above this
	// count; 0 means no limit.
	MaxSeries int
	// CleanupInterval is the minimum time between two cleanups.
	CleanupInterval time.Duration
	Clock           clock.Clock
}

// DefaultLabeledCounterConfig keeps idle series for an hour and checks
// every five minutes.
func DefaultLabeledCounterConfig() LabeledCounterConfig {
	return LabeledCounterConfig{
		TTL:             60 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		Clock:           clock.New(),
	}
}

// LabeledCounter is a family of int64 counters keyed by label pairs. Labels
// are passed as alternating names and values; a trailing name without a
// value is ignored. Expired series are dropped on Tick.
type LabeledCounter struct {
	mutex       sync.RWMutex
	series      map[string]*labeledSeries
	ttl         time.Duration
	maxSeries   int
	interval    time.Duration
	lastCleanup time.Time
	clock       clock.Clock
}

type labeledSeries struct {
	labels      []Label
	value       atomic.Int64
	lastUpdated atomic.Int64
}

// NewLabeledCounter creates a labeled counter with
// DefaultLabeledCounterConfig.
func NewLabeledCounter() *LabeledCounter {
	return NewLabeledCounterWithConfig(DefaultLabeledCounterConfig())
}

// NewLabeledCounterWithConfig creates a labeled counter. A nil clock selects
// the wall clock.
func NewLabeledCounterWithConfig(cfg LabeledCounterConfig) *LabeledCounter {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &LabeledCounter{
		series:      make(map[string]*labeledSeries),
		ttl:         cfg.TTL,
		maxSeries:   cfg.MaxSeries,
		interval:    cfg.CleanupInterval,
		lastCleanup: cfg.Clock.Now(),
		clock:       cfg.Clock,
	}
}

// SetTTL sets the TTL for idle series
func (c *LabeledCounter) SetTTL(ttl time.Duration) {
	c.mutex.Lock()
	c.ttl = ttl
	c.mutex.Unlock()
}

// SetMaxSeries sets the maximum number of series (0 means no limit)
func (c *LabeledCounter) SetMaxSeries(n int) {
	c.mutex.Lock()
	c.maxSeries = n
	c.mutex.Unlock()
}

// Inc increments the series for labels by 1
func (c *LabeledCounter) Inc(labels ...string) {
	c.Add(1, labels...)
}

// Dec decrements the series for labels by 1. Unknown series are left alone.
func (c *LabeledCounter) Dec(labels ...string) {
	if s := c.lookup(labels); s != nil {
		s.value.Add(-1)
		s.lastUpdated.Store(c.clock.Now().UnixNano())
	}
}

// Add adds delta to the series for labels, creating it if needed.
func (c *LabeledCounter) Add(delta int64, labels ...string) {
	s := c.getOrCreate(labels)
	s.value.Add(delta)
	s.lastUpdated.Store(c.clock.Now().UnixNano())
}

// Set stores value in the series for labels, creating it if needed.
func (c *LabeledCounter) Set(value int64, labels ...string) {
	s := c.getOrCreate(labels)
	s.value.Store(value)
	s.lastUpdated.Store(c.clock.Now().UnixNano())
}

// Get returns the value of the series for labels, or 0.
func (c *LabeledCounter) Get(labels ...string) int64 {
	if s := c.lookup(labels); s != nil {
		return s.value.Load()
	}
	return 0
}

// Delete removes the series for labels.
func (c *LabeledCounter) Delete(labels ...string) {
	key, _ := labelKey(labels)
	c.mutex.Lock()
	delete(c.series, key)
	c.mutex.Unlock()
}

// Len returns the number of live series.
func (c *LabeledCounter) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.series)
}

// Tick implements Ticker. It drops expired series at most once per
// cleanup interval.
func (c *LabeledCounter) Tick() {
	now := c.clock.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.ttl <= 0 && c.maxSeries <= 0 {
		return
	}
	if now.Sub(c.lastCleanup) < c.interval {
		return
	}
	c.lastCleanup = now

	if c.ttl > 0 {
		cutoff := now.Add(-c.ttl).UnixNano()
		for k, s := range c.series {
			if s.lastUpdated.Load() < cutoff {
				delete(c.series, k)
			}
		}
	}

	// Least recently updated first.
	if c.maxSeries > 0 && len(c.series) > c.maxSeries {
		keys := make([]string, 0, len(c.series))
		for k := range c.series {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return c.series[keys[i]].lastUpdated.Load() < c.series[keys[j]].lastUpdated.Load()
		})
		for _, k := range keys[:len(keys)-c.maxSeries] {
			delete(c.series, k)
		}
	}
}

// Export implements Metric.
func (c *LabeledCounter) Export() ExportedValue {
	c.mutex.RLock()
	snap := LabeledSnapshot{Series: make([]LabeledValue, 0, len(c.series))}
	for _, s := range c.series {
		snap.Series = append(snap.Series, LabeledValue{Labels: s.labels, Value: s.value.Load()})
	}
	c.mutex.RUnlock()

	sort.Slice(snap.Series, func(i, j int) bool {
		return lessLabels(snap.Series[i].Labels, snap.Series[j].Labels)
	})
	return snap
}

func (c *LabeledCounter) lookup(labels []string) *labeledSeries {
	key, _ := labelKey(labels)
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.series[key]
}

func (c *LabeledCounter) getOrCreate(labels []string) *labeledSeries {
	key, pairs := labelKey(labels)
	c.mutex.RLock()
	s, ok := c.series[key]
	c.mutex.RUnlock()
	if ok {
		return s
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if s, ok = c.series[key]; !ok {
		s = &labeledSeries{labels: pairs}
		c.series[key] = s
	}
	return s
}

// labelKey turns alternating names and values into label pairs sorted by
// name and a map key for them.
func labelKey(labels []string) (string, []Label) {
	pairs := make([]Label, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		pairs = append(pairs, Label{Name: labels[i], Value: labels[i+1]})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })

	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(p.Name)
		sb.WriteByte(0)
		sb.WriteString(p.Value)
		sb.WriteByte(0)
	}
	return sb.String(), pairs
}

func lessLabels(a, b []Label) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Name != b[i].Name {
			return a[i].Name < b[i].Name
		}
		if a[i].Value != b[i].Value {
			return a[i].Value < b[i].Value
		}
	}
	return len(a) < len(b)
}

// LabeledValue is one series of a LabeledSnapshot.
type LabeledValue struct {
	Labels []Label
	Value  int64
}

// LabeledSnapshot is the exported state of a LabeledCounter, with series
// sorted by their labels.
type LabeledSnapshot struct {
	Series []LabeledValue
}

// Kind implements ExportedValue.
func (LabeledSnapshot) Kind() Kind { return KindLabeledCounter }

// Facets implements ExportedValue. Each series is one unnamed facet
// carrying its labels.
func (s LabeledSnapshot) Facets() []Facet {
	facets := make([]Facet, 0, len(s.Series))
	for _, v := range s.Series {
		facets = append(facets, Facet{Value: float64(v.Value), Labels: v.Labels})
	}
	return facets
}

func (LabeledSnapshot) exported() {}
