package monitor

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusCollector exposes a registry to a Prometheus registerer. Each
// facet becomes a gauge named after its dotted path; facet labels become
// variable labels. It is unchecked: the set of series follows the registry
// as metrics come and go.
type PrometheusCollector struct {
	registry    *Registry
	prefix      string
	constLabels prometheus.Labels
	logger      *zap.Logger
}

// NewPrometheusCollector creates a collector over reg. A nil logger
// discards the collision warnings.
func NewPrometheusCollector(reg *Registry, prefix string, constLabels map[string]string, logger *zap.Logger) *PrometheusCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrometheusCollector{
		registry:    reg,
		prefix:      prefix,
		constLabels: constLabels,
		logger:      logger.With(zap.String("backend", "prometheus")),
	}
}

// Describe implements prometheus.Collector. It sends nothing, which makes
// the collector unchecked.
func (c *PrometheusCollector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector. Registry names that map onto a
// series already sent in this scrape, such as "a.b" and "a_b", are skipped
// so the rest of the scrape stays valid.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	seen := make(map[string]string)
	for _, e := range c.registry.Entries() {
		v := e.Metric.Export()
		if v == nil {
			continue
		}
		path := JoinPath(c.prefix, e.Name)
		valueType := prometheus.GaugeValue
		if k := v.Kind(); k == KindCounter || k == KindLabeledCounter {
			valueType = prometheus.UntypedValue
		}
		for _, f := range v.Facets() {
			name := seriesName(JoinPath(path, f.Name))
			id := seriesID(name, f.Labels)
			if owner, dup := seen[id]; dup {
				c.logger.Warn("skipping colliding series",
					zap.String("series", name),
					zap.String("metric", e.Name),
					zap.String("collides_with", owner))
				continue
			}
			seen[id] = e.Name

			labelNames := make([]string, len(f.Labels))
			labelValues := make([]string, len(f.Labels))
			for i, l := range f.Labels {
				labelNames[i] = labelName(l.Name)
				labelValues[i] = l.Value
			}
			desc := prometheus.NewDesc(
				name,
				v.Kind().String()+" "+JoinPath(e.Name, f.Name),
				labelNames,
				c.constLabels,
			)
			m, err := prometheus.NewConstMetric(desc, valueType, f.Value, labelValues...)
			if err != nil {
				ch <- prometheus.NewInvalidMetric(desc, err)
				continue
			}
			ch <- m
		}
	}
}

// seriesID identifies a series by name and label pairs.
func seriesID(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, labelName(l.Name)+"\x00"+l.Value)
	}
	sort.Strings(pairs)
	return name + "\xff" + strings.Join(pairs, "\xff")
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)
