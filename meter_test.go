package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMeter(clk clock.Clock) *Meter {
	return NewMeterWithConfig(MeterConfig{
		Windows:      [3]time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		TickInterval: 5 * time.Second,
		Clock:        clk,
	})
}

func TestMeter_Zero(t *testing.T) {
	m := NewMeter()
	s := m.Snapshot()

	assert.Equal(t, int64(0), s.Count)
	assert.Equal(t, [3]float64{}, s.Rates)
	assert.Equal(t, 0.0, s.Mean)
}

func TestMeter_NonZero(t *testing.T) {
	m := NewMeter()
	m.Mark(3)

	assert.Equal(t, int64(3), m.Snapshot().Count)
	assert.Equal(t, int64(3), m.Count())
}

func TestMeter_CountIsSumOfMarks(t *testing.T) {
	m := NewMeter()
	var want int64
	for _, n := range []int64{0, 1, 7, 0, 42, 1000} {
		m.Mark(n)
		want += n
	}
	assert.Equal(t, want, m.Count())
}

func TestMeter_NegativeMarkIgnored(t *testing.T) {
	m := NewMeter()
	m.Mark(5)
	m.Mark(-3)
	assert.Equal(t, int64(5), m.Count())
}

func TestMeter_SnapshotIsolation(t *testing.T) {
	m := NewMeter()
	m.Mark(1)
	m.Mark(1)

	s := m.Snapshot()

	m.Mark(1)

	assert.Equal(t, int64(2), s.Count)
	assert.Equal(t, int64(3), m.Snapshot().Count)
}

func TestMeter_RateByWindow(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMeter(mock)

	m.Mark(10)
	m.Tick()

	// 10 events per 5s tick is 120/min on every window after the first tick.
	assert.InDelta(t, 120.0, m.Rate(time.Minute), 1e-9)
	assert.InDelta(t, 120.0, m.Rate(5*time.Minute), 1e-9)
	assert.InDelta(t, 120.0, m.Rate(15*time.Minute), 1e-9)
	assert.Equal(t, 0.0, m.Rate(7*time.Minute))

	_, ok := m.LookupRate(7 * time.Minute)
	assert.False(t, ok)
	r, ok := m.LookupRate(time.Minute)
	assert.True(t, ok)
	assert.InDelta(t, 120.0, r, 1e-9)
}

func TestMeter_Decay(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMeter(mock)

	m.Mark(10)
	m.Tick()
	for i := 0; i < 12; i++ {
		mock.Add(5 * time.Second)
		m.Tick()
	}

	s := m.Snapshot()
	// The short window decays fastest.
	assert.Less(t, s.Rates[0], s.Rates[1])
	assert.Less(t, s.Rates[1], s.Rates[2])
	assert.Greater(t, s.Rates[0], 0.0)
}

func TestMeter_Mean(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMeter(mock)

	mock.Add(10 * time.Second)
	m.Mark(50)
	assert.InDelta(t, 5.0, m.Mean(), 1e-9)

	mock.Add(15 * time.Second)
	m.Tick()
	assert.InDelta(t, 2.0, m.Mean(), 1e-9)
}

func TestMeter_MeanFloorsElapsedAtOneSecond(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMeter(mock)

	m.Mark(4)
	assert.InDelta(t, 4.0, m.Mean(), 1e-9)

	mock.Add(200 * time.Millisecond)
	m.Mark(1)
	assert.InDelta(t, 5.0, m.Mean(), 1e-9)
}

func TestMeter_DefaultsFillZeroConfig(t *testing.T) {
	m := NewMeterWithConfig(MeterConfig{})
	assert.Equal(t, DefaultMeterConfig().Windows, m.Windows())
}

func TestMeter_Export(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMeter(mock)
	m.Mark(2)

	v := m.Export()
	require.Equal(t, KindMeter, v.Kind())
	s, ok := v.(MeterSnapshot)
	require.True(t, ok)
	assert.Equal(t, int64(2), s.Count)

	names := make([]string, 0, 5)
	for _, f := range v.Facets() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"count", "rate1", "rate5", "rate15", "mean"}, names)
}

func TestMeter_ConcurrentMark(t *testing.T) {
	m := NewMeter()

	numGoroutines := 64
	numOps := 1000

	var wg sync.WaitGroup
	wg.Add(numGoroutines + 1)
	for i := 0; i < numGoroutines; i++ {
		go func(n int64) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				m.Mark(n)
			}
		}(int64(i%3 + 1))
	}

	stop := make(chan struct{})
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				m.Tick()
				s := m.Snapshot()
				assert.GreaterOrEqual(t, s.Count, int64(0))
			}
		}
	}()

	var want int64
	for i := 0; i < numGoroutines; i++ {
		want += int64(i%3+1) * int64(numOps)
	}

	assert.Eventually(t, func() bool { return m.Count() == want }, 10*time.Second, time.Millisecond)
	close(stop)
	wg.Wait()
	assert.Equal(t, want, m.Count())
}
