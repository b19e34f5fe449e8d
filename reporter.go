package monitor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const defaultMaxBatchBytes = 1024

// Exporter serializes the metrics of a registry to one backend. Report is
// driven by an external cadence, usually a Scheduler; a failed Report is
// retried by the next one.
type Exporter interface {
	Report(ctx context.Context) error
	Close() error
}

// CarbonOptions tunes a CarbonReporter beyond the required arguments.
type CarbonOptions struct {
	Registry     *Registry // defaults to a new registry
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Dial         DialFunc // defaults to a net.Dialer with DialTimeout
	DNS          DNSConfig
	Logger       *zap.Logger
	Clock        clock.Clock
}

// CarbonReporter writes registered metrics to a Graphite carbon backend
// using the plaintext line protocol.
type CarbonReporter struct {
	appName  string
	addr     string
	prefix   string
	maxBatch int
	registry *Registry
	conn     *transport
	clock    clock.Clock
	logger   *zap.Logger

	reportMu sync.Mutex
	buf      []byte
}

// ReportStats summarizes one report cycle.
type ReportStats struct {
	Metrics int
	Lines   int
	Bytes   int
	Flushes int
}

// NewCarbonReporter creates a reporter sending to addr (host:port) with
// every path under prefix. The connection is opened on the first Report.
func NewCarbonReporter(appName, addr, prefix string, maxBatchBytes int, opts CarbonOptions) *CarbonReporter {
	if maxBatchBytes <= 0 {
		maxBatchBytes = defaultMaxBatchBytes
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	opts.DialTimeout = pickDuration(opts.DialTimeout, 5*time.Second)
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: opts.DialTimeout}
		opts.Dial = d.DialContext
	}

	logger := opts.Logger.With(zap.String("app", appName), zap.String("backend", "carbon"))

	var res *resolver
	if opts.DNS.Enable {
		res = newResolver(opts.DNS, logger, opts.Clock)
	}

	return &CarbonReporter{
		appName:  appName,
		addr:     addr,
		prefix:   prefix,
		maxBatch: maxBatchBytes,
		registry: opts.Registry,
		conn:     newTransport(addr, opts.Dial, opts.WriteTimeout, res, logger),
		clock:    opts.Clock,
		logger:   logger,
		buf:      make([]byte, 0, maxBatchBytes),
	}
}

// Add registers m under prefix.name.
func (r *CarbonReporter) Add(name string, m Metric) error {
	return r.registry.Add(name, m)
}

// Remove unregisters name.
func (r *CarbonReporter) Remove(name string) bool {
	return r.registry.Remove(name)
}

// Registry returns the registry the reporter exports.
func (r *CarbonReporter) Registry() *Registry {
	return r.registry
}

// State returns the connection state.
func (r *CarbonReporter) State() State {
	return r.conn.state()
}

// Report implements Exporter.
func (r *CarbonReporter) Report(ctx context.Context) error {
	_, err := r.ReportWithStats(ctx)
	return err
}

// ReportWithStats exports every registered metric, encodes one line per
// facet and writes them in batches of at most maxBatchBytes. A line longer
// than the batch size is written on its own. The first connect or write
// failure aborts the cycle.
func (r *CarbonReporter) ReportWithStats(ctx context.Context) (ReportStats, error) {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()

	var stats ReportStats
	if err := r.conn.connect(ctx); err != nil {
		r.logger.Error("carbon connect failed", zap.Error(err))
		return stats, err
	}

	ts := r.clock.Now().Unix()
	buf := r.buf[:0]
	flush := func(p []byte) error {
		if err := ctx.Err(); err != nil {
			return &WriteError{Addr: r.addr, Err: err}
		}
		if err := r.conn.write(ctx, p); err != nil {
			return err
		}
		stats.Flushes++
		stats.Bytes += len(p)
		return nil
	}

	for _, e := range r.registry.Entries() {
		v := e.Metric.Export()
		if v == nil {
			continue
		}
		stats.Metrics++
		path := JoinPath(r.prefix, e.Name)
		for _, f := range v.Facets() {
			if !finite(f.Value) {
				continue
			}
			n := len(buf)
			buf = AppendLine(buf, path, FacetPath(f), f.Value, ts)
			stats.Lines++
			if len(buf) > r.maxBatch && n > 0 {
				if err := flush(buf[:n]); err != nil {
					r.logger.Error("carbon write failed", zap.Error(err))
					return stats, err
				}
				buf = append(buf[:0], buf[n:]...)
			}
		}
	}
	if len(buf) > 0 {
		if err := flush(buf); err != nil {
			r.logger.Error("carbon write failed", zap.Error(err))
			return stats, err
		}
	}
	if cap(buf) <= 4*r.maxBatch {
		r.buf = buf[:0]
	}

	r.logger.Debug("carbon report done",
		zap.Int("metrics", stats.Metrics),
		zap.Int("lines", stats.Lines),
		zap.Int("bytes", stats.Bytes),
		zap.Int("flushes", stats.Flushes))
	return stats, nil
}

// Close implements Exporter. It drops the connection; a later Report
// reconnects.
func (r *CarbonReporter) Close() error {
	return r.conn.close()
}

var _ Exporter = (*CarbonReporter)(nil)
