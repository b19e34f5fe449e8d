package monitor

import (
	"math"
	"time"
)

// EWMA is an exponentially-weighted moving average of an event rate,
// advanced in fixed steps like a Unix load average.
//
// EWMA is not safe for concurrent use; Meter serializes access to the
// engines it owns.
type EWMA struct {
	alpha     float64
	interval  float64 // tick interval in seconds
	rate      float64 // events per second
	uncounted int64
	init      bool
}

// NewEWMA creates an engine decaying over window and expecting Tick to be
// called every tick.
func NewEWMA(window, tick time.Duration) *EWMA {
	return &EWMA{
		alpha:    1 - math.Exp(-tick.Seconds()/window.Seconds()),
		interval: tick.Seconds(),
	}
}

// Alpha returns the smoothing factor.
func (e *EWMA) Alpha() float64 {
	return e.alpha
}

// Update adds n events observed since the last tick.
func (e *EWMA) Update(n int64) {
	e.uncounted += n
}

// Tick folds the events accumulated since the previous tick into the
// average. The first tick seeds the average with the instant rate.
func (e *EWMA) Tick() {
	instantRate := float64(e.uncounted) / e.interval
	e.uncounted = 0

	if !e.init {
		e.rate = instantRate
		e.init = true
		return
	}
	e.rate += e.alpha * (instantRate - e.rate)
}

// Rate returns the average in events per minute.
func (e *EWMA) Rate() float64 {
	return e.rate * 60
}
