package monitor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eryajf/promwrite"
	"go.uber.org/zap"
)

// RemoteWriteOptions configures a RemoteWriteReporter.
type RemoteWriteOptions struct {
	Registry     *Registry
	ServiceName  string
	InstanceIP   string
	CustomLabels map[string]string
	Timeout      time.Duration
	Logger       *zap.Logger
	Clock        clock.Clock
}

// RemoteWriteReporter writes the same facets as CarbonReporter to a
// Prometheus remote-write endpoint. Metric paths become series names with
// dots replaced by underscores.
type RemoteWriteReporter struct {
	url     string
	prefix  string
	opts    RemoteWriteOptions
	client  *promwrite.Client
	clock   clock.Clock
	logger  *zap.Logger
	timeout time.Duration
}

// NewRemoteWriteReporter creates a reporter for the remote-write url.
func NewRemoteWriteReporter(url, prefix string, opts RemoteWriteOptions) *RemoteWriteReporter {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &RemoteWriteReporter{
		url:     url,
		prefix:  prefix,
		opts:    opts,
		client:  promwrite.NewClient(url),
		clock:   opts.Clock,
		logger:  opts.Logger.With(zap.String("backend", "remote_write")),
		timeout: pickDuration(opts.Timeout, 15*time.Second),
	}
}

// Add registers m under name.
func (w *RemoteWriteReporter) Add(name string, m Metric) error {
	return w.opts.Registry.Add(name, m)
}

// Registry returns the registry the reporter exports.
func (w *RemoteWriteReporter) Registry() *Registry {
	return w.opts.Registry
}

// Report implements Exporter.
func (w *RemoteWriteReporter) Report(ctx context.Context) error {
	tsList := w.convertToTimeSeries(w.opts.Registry.Entries(), w.clock.Now())
	if len(tsList) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req := &promwrite.WriteRequest{
		TimeSeries: tsList,
	}
	if _, err := w.client.Write(ctx, req); err != nil {
		w.logger.Error("remote write failed", zap.String("url", w.url), zap.Error(err))
		return fmt.Errorf("writing time series failed: %w", err)
	}

	w.logger.Debug("remote write done", zap.Int("series", len(tsList)))
	return nil
}

// Close implements Exporter.
func (w *RemoteWriteReporter) Close() error {
	return nil
}

// convertToTimeSeries flattens entries into one series per facet.
func (w *RemoteWriteReporter) convertToTimeSeries(entries []Entry, now time.Time) []promwrite.TimeSeries {
	var result []promwrite.TimeSeries

	for _, e := range entries {
		v := e.Metric.Export()
		if v == nil {
			continue
		}
		path := JoinPath(w.prefix, e.Name)
		for _, f := range v.Facets() {
			if !finite(f.Value) {
				continue
			}

			labels := make([]promwrite.Label, 0, 4+len(w.opts.CustomLabels)+len(f.Labels))
			labels = append(labels, promwrite.Label{Name: "__name__", Value: seriesName(JoinPath(path, f.Name))})
			labels = append(labels, promwrite.Label{Name: "kind", Value: v.Kind().String()})
			if w.opts.InstanceIP != "" {
				labels = append(labels, promwrite.Label{Name: "instance", Value: w.opts.InstanceIP})
			}
			if w.opts.ServiceName != "" {
				labels = append(labels, promwrite.Label{Name: "_target_", Value: w.opts.ServiceName})
			}
			for k, val := range w.opts.CustomLabels {
				labels = append(labels, promwrite.Label{Name: k, Value: val})
			}
			for _, l := range f.Labels {
				labels = append(labels, promwrite.Label{Name: labelName(l.Name), Value: l.Value})
			}

			result = append(result, promwrite.TimeSeries{
				Labels: labels,
				Sample: promwrite.Sample{
					Time:  now,
					Value: f.Value,
				},
			})
		}
	}

	return result
}

// GetOutboundIPv4 gets the outbound IPv4 address of the local machine
func GetOutboundIPv4() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// seriesName maps a dotted metric path onto the Prometheus name charset.
func seriesName(path string) string {
	if path != "" && path[0] >= '0' && path[0] <= '9' {
		path = "_" + path
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		}
		return '_'
	}, path)
}

// labelName maps a label name onto the Prometheus label charset. Names
// starting with "__" are reserved and get an extra prefix.
func labelName(name string) string {
	name = strings.ReplaceAll(seriesName(name), ":", "_")
	if strings.HasPrefix(name, "__") {
		name = "label" + name
	}
	return name
}

var _ Exporter = (*RemoteWriteReporter)(nil)
