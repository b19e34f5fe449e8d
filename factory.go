package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Global monitor instance
var (
	globalMu        sync.RWMutex
	globalConfig    Config
	globalRegistry  *Registry
	globalExporter  Exporter
	globalScheduler *Scheduler
)

// Init initializes the global monitoring system and starts its scheduler.
// Calling Init again without Shutdown is an error.
func Init(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRegistry != nil {
		return fmt.Errorf("monitor system already initialized")
	}

	reg := NewRegistry()
	exp := NewExporter(config, reg)
	sched := NewScheduler(reg, exp, SchedulerConfig{
		TickInterval:   config.TickInterval,
		ReportInterval: config.ReportInterval,
		Logger:         config.Logger,
		Clock:          config.Clock,
	})
	if err := sched.Start(); err != nil {
		return err
	}

	globalConfig = config
	globalRegistry = reg
	globalExporter = exp
	globalScheduler = sched

	config.Logger.Info("monitor system initialized",
		zap.String("app", config.ApplicationName),
		zap.String("prefix", config.Prefix),
		zap.String("carbon", config.CarbonAddress),
		zap.String("remote_write", config.RemoteWriteURL))
	return nil
}

// Shutdown stops the scheduler, reports one last time and closes the
// backend.
func Shutdown() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalRegistry == nil {
		return nil
	}

	globalScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), globalConfig.WriteTimeout)
	defer cancel()
	err := globalScheduler.ReportNow(ctx)
	if globalExporter != nil {
		err = multierr.Append(err, globalExporter.Close())
	}

	globalRegistry = nil
	globalExporter = nil
	globalScheduler = nil
	globalConfig = Config{}
	return err
}

// GlobalRegistry returns the registry of the global system, or nil before
// Init.
func GlobalRegistry() *Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRegistry
}

// Register adds m to the global registry.
func Register(name string, m Metric) error {
	reg := GlobalRegistry()
	if reg == nil {
		return ErrNotInitialized
	}
	return reg.Add(name, m)
}

// NewGlobalMeter creates a meter with the global windows and registers it.
func NewGlobalMeter(name string) (*Meter, error) {
	globalMu.RLock()
	reg, cfg := globalRegistry, globalConfig
	globalMu.RUnlock()
	if reg == nil {
		return nil, ErrNotInitialized
	}

	m := NewMeterWithConfig(cfg.MeterConfig())
	if err := reg.Add(name, m); err != nil {
		return nil, err
	}
	return m, nil
}

// NewGlobalCounter creates and registers a counter.
func NewGlobalCounter(name string) (*Counter, error) {
	c := NewCounter()
	if err := Register(name, c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewGlobalGauge creates and registers a gauge.
func NewGlobalGauge(name string) (*Gauge, error) {
	g := NewGauge()
	if err := Register(name, g); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGlobalHistogram creates and registers a histogram.
func NewGlobalHistogram(name string, buckets []float64) (*Histogram, error) {
	h := NewHistogram(buckets)
	if err := Register(name, h); err != nil {
		return nil, err
	}
	return h, nil
}

// NewGlobalLabeledCounter creates and registers a labeled counter.
func NewGlobalLabeledCounter(name string) (*LabeledCounter, error) {
	globalMu.RLock()
	reg, cfg := globalRegistry, globalConfig
	globalMu.RUnlock()
	if reg == nil {
		return nil, ErrNotInitialized
	}

	c := newGlobalLabeledCounter(cfg)
	if err := reg.Add(name, c); err != nil {
		return nil, err
	}
	return c, nil
}

func newGlobalLabeledCounter(cfg Config) *LabeledCounter {
	lc := DefaultLabeledCounterConfig()
	lc.Clock = cfg.Clock
	return NewLabeledCounterWithConfig(lc)
}

// labeledCounter returns the labeled counter registered under name,
// registering one on first use. It returns nil before Init or when name
// holds another kind of metric.
func labeledCounter(name string) *LabeledCounter {
	globalMu.RLock()
	reg, cfg := globalRegistry, globalConfig
	globalMu.RUnlock()
	if reg == nil {
		return nil
	}

	for {
		if m, ok := reg.Get(name); ok {
			c, _ := m.(*LabeledCounter)
			return c
		}
		c := newGlobalLabeledCounter(cfg)
		err := reg.Add(name, c)
		if err == nil {
			return c
		}
		if !errors.Is(err, ErrDuplicateName) {
			cfg.Logger.Warn("labeled counter not registered", zap.String("name", name), zap.Error(err))
			return nil
		}
	}
}

// Labeled counter functions

// IncrementLabeledCounter increments a labeled counter
func IncrementLabeledCounter(name string, labels ...string) {
	if c := labeledCounter(name); c != nil {
		c.Inc(labels...)
	}
}

// DecrementLabeledCounter decrements a labeled counter
func DecrementLabeledCounter(name string, labels ...string) {
	if c := labeledCounter(name); c != nil {
		c.Dec(labels...)
	}
}

// SetLabeledCounter sets a labeled counter to a specific value
func SetLabeledCounter(name string, value int64, labels ...string) {
	if c := labeledCounter(name); c != nil {
		c.Set(value, labels...)
	}
}

// GetLabeledCounter gets the current value of a labeled counter
func GetLabeledCounter(name string, labels ...string) int64 {
	if c := labeledCounter(name); c != nil {
		return c.Get(labels...)
	}
	return 0
}

// DeleteLabeledCounter deletes a specific labeled counter series
func DeleteLabeledCounter(name string, labels ...string) {
	if c := labeledCounter(name); c != nil {
		c.Delete(labels...)
	}
}

// ForceReport immediately reports all current metrics.
// This is useful for health checks and testing
func ForceReport(ctx context.Context) error {
	globalMu.RLock()
	sched := globalScheduler
	globalMu.RUnlock()
	if sched == nil {
		return ErrNotInitialized
	}
	return sched.ReportNow(ctx)
}

// Status returns the current status of the monitoring system
func Status() map[string]interface{} {
	globalMu.RLock()
	defer globalMu.RUnlock()

	status := make(map[string]interface{})
	if globalRegistry == nil {
		status["initialized"] = false
		status["error"] = ErrNotInitialized.Error()
		return status
	}

	status["initialized"] = true
	status["metrics"] = globalRegistry.Len()
	switch exp := globalExporter.(type) {
	case *CarbonReporter:
		status["backend"] = "carbon"
		status["state"] = exp.State().String()
	case *RemoteWriteReporter:
		status["backend"] = "remote_write"
	default:
		status["backend"] = "none"
	}
	return status
}
