package monitor

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/multierr"
)

// Params are the dependencies of Module. Config must be supplied by the
// application, e.g. with fx.Supply.
type Params struct {
	fx.In

	Config Config
}

// Result is what Module provides.
type Result struct {
	fx.Out

	Registry  *Registry
	Exporter  Exporter // nil when no backend is configured
	Scheduler *Scheduler
}

// Module wires a Registry, the configured Exporter and a Scheduler whose
// loops follow the fx lifecycle.
var Module = fx.Module("monitor",
	fx.Provide(NewFromParams),
	fx.Invoke(registerLifecycle),
)

// NewFromParams builds the components described by p.Config.
func NewFromParams(p Params) (Result, error) {
	cfg := p.Config
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	reg := NewRegistry()
	exp := NewExporter(cfg, reg)
	sched := NewScheduler(reg, exp, SchedulerConfig{
		TickInterval:   cfg.TickInterval,
		ReportInterval: cfg.ReportInterval,
		Logger:         cfg.Logger,
		Clock:          cfg.Clock,
	})
	return Result{Registry: reg, Exporter: exp, Scheduler: sched}, nil
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Scheduler *Scheduler
	Exporter  Exporter
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return p.Scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			p.Scheduler.Stop()
			if p.Exporter == nil {
				return nil
			}
			return multierr.Append(p.Scheduler.ReportNow(ctx), p.Exporter.Close())
		},
	})
}
