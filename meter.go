package monitor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Meter facet names, in export order.
const (
	FacetCount  = "count"
	FacetRate1  = "rate1"
	FacetRate5  = "rate5"
	FacetRate15 = "rate15"
	FacetMean   = "mean"
)

// MeterConfig configures the decay windows and tick cadence of a Meter.
type MeterConfig struct {
	// Windows are the short, medium and long decay windows.
	Windows [3]time.Duration
	// TickInterval is the cadence Tick is expected to be called at.
	TickInterval time.Duration
	Clock        clock.Clock
}

// DefaultMeterConfig returns the conventional 1/5/15 minute windows ticked
// every 5 seconds on the wall clock.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		Windows:      [3]time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		TickInterval: 5 * time.Second,
		Clock:        clock.New(),
	}
}

// MeterSnapshot is a point-in-time copy of a Meter. Rates are in events per
// minute and line up with the meter's windows; Mean is events per second
// since the meter was created.
type MeterSnapshot struct {
	Count int64
	Rates [3]float64
	Mean  float64
}

// Kind implements ExportedValue.
func (MeterSnapshot) Kind() Kind { return KindMeter }

// Facets implements ExportedValue.
func (s MeterSnapshot) Facets() []Facet {
	return []Facet{
		{Name: FacetCount, Value: float64(s.Count)},
		{Name: FacetRate1, Value: s.Rates[0]},
		{Name: FacetRate5, Value: s.Rates[1]},
		{Name: FacetRate15, Value: s.Rates[2]},
		{Name: FacetMean, Value: s.Mean},
	}
}

func (MeterSnapshot) exported() {}

// Meter counts events and tracks their rate over three decay windows.
// All methods are safe for concurrent use; each Meter has its own lock.
type Meter struct {
	mu       sync.Mutex
	snapshot MeterSnapshot
	ewma     [3]*EWMA

	windows [3]time.Duration
	clock   clock.Clock
	start   time.Time
}

// NewMeter creates a Meter with DefaultMeterConfig.
func NewMeter() *Meter {
	return NewMeterWithConfig(DefaultMeterConfig())
}

// NewMeterWithConfig creates a Meter. Zero fields of cfg take their
// defaults.
func NewMeterWithConfig(cfg MeterConfig) *Meter {
	def := DefaultMeterConfig()
	for i := range cfg.Windows {
		if cfg.Windows[i] <= 0 {
			cfg.Windows[i] = def.Windows[i]
		}
	}
	cfg.TickInterval = pickDuration(cfg.TickInterval, def.TickInterval)
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	m := &Meter{
		windows: cfg.Windows,
		clock:   cfg.Clock,
		start:   cfg.Clock.Now(),
	}
	for i, w := range cfg.Windows {
		m.ewma[i] = NewEWMA(w, cfg.TickInterval)
	}
	return m
}

// Mark records n events. Negative n is ignored.
func (m *Meter) Mark(n int64) {
	if n < 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot.Count += n
	for _, e := range m.ewma {
		e.Update(n)
	}
	m.updateSnapshot()
}

// Tick advances every window by one tick interval.
func (m *Meter) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.ewma {
		e.Tick()
	}
	m.updateSnapshot()
}

// updateSnapshot must be called with m.mu held.
func (m *Meter) updateSnapshot() {
	for i, e := range m.ewma {
		m.snapshot.Rates[i] = e.Rate()
	}

	// Floor at one second so a young meter does not report a spike.
	elapsed := m.clock.Since(m.start).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	m.snapshot.Mean = float64(m.snapshot.Count) / elapsed
}

// Rate returns the rate for the given window, or 0 when the meter has no
// such window.
func (m *Meter) Rate(window time.Duration) float64 {
	r, _ := m.LookupRate(window)
	return r
}

// LookupRate is like Rate but reports whether window is one of the
// meter's windows.
func (m *Meter) LookupRate(window time.Duration) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.windows {
		if w == window {
			return m.snapshot.Rates[i], true
		}
	}
	return 0, false
}

// Mean returns the mean rate since creation in events per second.
func (m *Meter) Mean() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Mean
}

// Count returns the number of events marked so far.
func (m *Meter) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Count
}

// Windows returns the configured decay windows.
func (m *Meter) Windows() [3]time.Duration {
	return m.windows
}

// Snapshot returns a copy of the meter's current state.
func (m *Meter) Snapshot() MeterSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Export implements Metric.
func (m *Meter) Export() ExportedValue {
	return m.Snapshot()
}
