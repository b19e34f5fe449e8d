package monitor

// Metric is anything a reporter can export. Export returns an immutable
// copy of the metric's current state.
type Metric interface {
	Export() ExportedValue
}

// Ticker is implemented by metrics that need a fixed-cadence tick, such as
// Meter. The Scheduler ticks every registered Ticker.
type Ticker interface {
	Tick()
}

// Kind identifies the shape of an ExportedValue.
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
	KindMeter
	KindHistogram
	KindLabeledCounter
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindMeter:
		return "meter"
	case KindHistogram:
		return "histogram"
	case KindLabeledCounter:
		return "labeled_counter"
	}
	return "unknown"
}

// Label is a name/value pair attached to a facet.
type Label struct {
	Name  string
	Value string
}

// Facet is one named numeric component of an exported value. Single-valued
// metrics export one facet with an empty name. Labels, sorted by name, tell
// apart the series of a labeled metric.
type Facet struct {
	Name   string
	Value  float64
	Labels []Label
}

// ExportedValue is the closed set of exportable value shapes:
// CounterValue, GaugeValue, MeterSnapshot, HistogramSnapshot and
// LabeledSnapshot.
// Reporters only ever see metrics through this interface.
type ExportedValue interface {
	Kind() Kind
	// Facets flattens the value into named numbers, in a stable order.
	Facets() []Facet

	exported()
}

// CounterValue is the exported state of a Counter.
type CounterValue int64

// Kind implements ExportedValue.
func (CounterValue) Kind() Kind { return KindCounter }

// Facets implements ExportedValue.
func (v CounterValue) Facets() []Facet { return []Facet{{Value: float64(v)}} }

func (CounterValue) exported() {}

// GaugeValue is the exported state of a Gauge.
type GaugeValue int64

// Kind implements ExportedValue.
func (GaugeValue) Kind() Kind { return KindGauge }

// Facets implements ExportedValue.
func (v GaugeValue) Facets() []Facet { return []Facet{{Value: float64(v)}} }

func (GaugeValue) exported() {}

var (
	_ ExportedValue = CounterValue(0)
	_ ExportedValue = GaugeValue(0)
	_ ExportedValue = MeterSnapshot{}
	_ ExportedValue = HistogramSnapshot{}
	_ ExportedValue = LabeledSnapshot{}
)
