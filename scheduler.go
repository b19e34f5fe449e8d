package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// SchedulerConfig configures the cadences of a Scheduler.
type SchedulerConfig struct {
	TickInterval   time.Duration
	ReportInterval time.Duration
	// ReportTimeout bounds a single report cycle; defaults to ReportInterval.
	ReportTimeout time.Duration
	Logger        *zap.Logger
	Clock         clock.Clock
}

// Scheduler drives a registry: it ticks every Ticker at TickInterval and,
// when an exporter is set, reports at ReportInterval.
type Scheduler struct {
	registry *Registry
	exporter Exporter
	cfg      SchedulerConfig
	logger   *zap.Logger

	mutex   sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler; exporter may be nil to only tick.
func NewScheduler(reg *Registry, exporter Exporter, cfg SchedulerConfig) *Scheduler {
	cfg.TickInterval = pickDuration(cfg.TickInterval, 5*time.Second)
	cfg.ReportInterval = pickDuration(cfg.ReportInterval, 15*time.Second)
	cfg.ReportTimeout = pickDuration(cfg.ReportTimeout, cfg.ReportInterval)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Scheduler{
		registry: reg,
		exporter: exporter,
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// Start launches the background loops.
func (s *Scheduler) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return errors.New("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	// Periodic tick loop
	tick := s.cfg.Clock.Ticker(s.cfg.TickInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				s.TickAll()
			case <-s.ctx.Done():
				return
			}
		}
	}()

	if s.exporter == nil {
		s.logger.Warn("Starting metrics scheduler without a backend")
		return nil
	}

	// Periodic report loop
	report := s.cfg.Clock.Ticker(s.cfg.ReportInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer report.Stop()
		for {
			select {
			case <-report.C:
				if err := s.ReportNow(s.ctx); err != nil {
					s.logger.Error("Failed to report metrics", zap.Error(err))
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("metrics scheduler started",
		zap.Duration("tick", s.cfg.TickInterval),
		zap.Duration("report", s.cfg.ReportInterval))
	return nil
}

// Stop cancels the loops and waits for them to exit. An in-flight report
// is abandoned at its next write.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mutex.Unlock()

	s.wg.Wait()
	s.logger.Info("metrics scheduler stopped")
}

// TickAll ticks every registered metric that implements Ticker.
func (s *Scheduler) TickAll() {
	for _, e := range s.registry.Entries() {
		if t, ok := e.Metric.(Ticker); ok {
			t.Tick()
		}
	}
}

// ReportNow runs one report cycle synchronously.
func (s *Scheduler) ReportNow(ctx context.Context) error {
	if s.exporter == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReportTimeout)
	defer cancel()
	return s.exporter.Report(ctx)
}
