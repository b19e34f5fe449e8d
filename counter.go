package monitor

import "sync/atomic"

// Counter is a monotonically adjusted int64.
type Counter struct {
	v atomic.Int64
}

// NewCounter creates a counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	c.v.Add(1)
}

// Dec decrements the counter by 1
func (c *Counter) Dec() {
	c.v.Add(-1)
}

// Add adds delta to the counter
func (c *Counter) Add(delta int64) {
	c.v.Add(delta)
}

// Clear resets the counter to zero
func (c *Counter) Clear() {
	c.v.Store(0)
}

// Count returns the current value
func (c *Counter) Count() int64 {
	return c.v.Load()
}

// Export implements Metric.
func (c *Counter) Export() ExportedValue {
	return CounterValue(c.v.Load())
}

// Gauge holds a point-in-time int64 value.
type Gauge struct {
	v atomic.Int64
}

// NewGauge creates a gauge at zero.
func NewGauge() *Gauge {
	return &Gauge{}
}

// Set stores value
func (g *Gauge) Set(value int64) {
	g.v.Store(value)
}

// Value returns the last stored value
func (g *Gauge) Value() int64 {
	return g.v.Load()
}

// Export implements Metric.
func (g *Gauge) Export() ExportedValue {
	return GaugeValue(g.v.Load())
}

// FuncGauge is a gauge whose value is computed when it is exported.
type FuncGauge func() int64

// Export implements Metric.
func (f FuncGauge) Export() ExportedValue {
	return GaugeValue(f())
}
