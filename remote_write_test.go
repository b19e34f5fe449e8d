package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eryajf/promwrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelMap(labels []promwrite.Label) map[string]string {
	out := make(map[string]string, len(labels))
	for _, l := range labels {
		out[l.Name] = l.Value
	}
	return out
}

func TestRemoteWriteReporter_ConvertToTimeSeries(t *testing.T) {
	mock := clock.NewMock()
	now := time.Unix(1700000000, 0)

	w := NewRemoteWriteReporter("http://127.0.0.1:0/api/v1/write", "app", RemoteWriteOptions{
		ServiceName:  "web",
		InstanceIP:   "10.0.0.1",
		CustomLabels: map[string]string{"env": "test"},
		Clock:        mock,
	})

	c := NewCounter()
	c.Add(7)
	require.NoError(t, w.Add("hits", c))
	m := newTestMeter(mock)
	m.Mark(1)
	require.NoError(t, w.Add("req.total", m))

	series := w.convertToTimeSeries(w.Registry().Entries(), now)
	require.Len(t, series, 6)

	first := labelMap(series[0].Labels)
	assert.Equal(t, "app_hits", first["__name__"])
	assert.Equal(t, "counter", first["kind"])
	assert.Equal(t, "10.0.0.1", first["instance"])
	assert.Equal(t, "web", first["_target_"])
	assert.Equal(t, "test", first["env"])
	assert.Equal(t, 7.0, series[0].Sample.Value)
	assert.Equal(t, now, series[0].Sample.Time)

	var names []string
	for _, s := range series[1:] {
		names = append(names, labelMap(s.Labels)["__name__"])
		assert.Equal(t, "meter", labelMap(s.Labels)["kind"])
	}
	assert.Equal(t, []string{
		"app_req_total_count",
		"app_req_total_rate1",
		"app_req_total_rate5",
		"app_req_total_rate15",
		"app_req_total_mean",
	}, names)
}

func TestRemoteWriteReporter_Report(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	w := NewRemoteWriteReporter(ts.URL, "app", RemoteWriteOptions{Timeout: 5 * time.Second})
	require.NoError(t, w.Add("x", NewCounter()))

	require.NoError(t, w.Report(context.Background()))
	assert.Equal(t, int32(1), requests.Load())
	assert.NoError(t, w.Close())
}

func TestRemoteWriteReporter_ReportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	w := NewRemoteWriteReporter(ts.URL, "app", RemoteWriteOptions{Timeout: 5 * time.Second})
	require.NoError(t, w.Add("x", NewCounter()))

	err := w.Report(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing time series failed")
}

func TestRemoteWriteReporter_EmptyRegistrySendsNothing(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
	}))
	defer ts.Close()

	w := NewRemoteWriteReporter(ts.URL, "app", RemoteWriteOptions{})
	require.NoError(t, w.Report(context.Background()))
	assert.Equal(t, int32(0), requests.Load())
}

func TestRemoteWriteReporter_LabeledSeries(t *testing.T) {
	w := NewRemoteWriteReporter("http://127.0.0.1:0/api/v1/write", "app", RemoteWriteOptions{})

	c := NewLabeledCounter()
	c.Inc("method", "GET", "__name__", "evil", "x-code", "200")
	require.NoError(t, w.Add("http", c))

	series := w.convertToTimeSeries(w.Registry().Entries(), time.Unix(0, 0))
	require.Len(t, series, 1)

	labels := labelMap(series[0].Labels)
	assert.Equal(t, "app_http", labels["__name__"])
	assert.Equal(t, "labeled_counter", labels["kind"])
	assert.Equal(t, "GET", labels["method"])
	assert.Equal(t, "evil", labels["label__name__"])
	assert.Equal(t, "200", labels["x_code"])
}

func TestNewExporter_DetectsInstanceIP(t *testing.T) {
	orig := detectInstanceIP
	detectInstanceIP = func() (string, error) { return "192.0.2.7", nil }
	defer func() { detectInstanceIP = orig }()

	c := DefaultConfig()
	c.RemoteWriteURL = "http://127.0.0.1:0/api/v1/write"
	require.NoError(t, c.Validate())

	reg := NewRegistry()
	require.NoError(t, reg.Add("x", NewCounter()))
	w, ok := NewExporter(c, reg).(*RemoteWriteReporter)
	require.True(t, ok)

	series := w.convertToTimeSeries(reg.Entries(), time.Unix(0, 0))
	require.Len(t, series, 1)
	assert.Equal(t, "192.0.2.7", labelMap(series[0].Labels)["instance"])

	// An explicit address wins.
	c.InstanceIP = "10.0.0.9"
	w = NewExporter(c, reg).(*RemoteWriteReporter)
	series = w.convertToTimeSeries(reg.Entries(), time.Unix(0, 0))
	assert.Equal(t, "10.0.0.9", labelMap(series[0].Labels)["instance"])
}

func TestLabelName(t *testing.T) {
	assert.Equal(t, "method", labelName("method"))
	assert.Equal(t, "a_b_c", labelName("a.b:c"))
	assert.Equal(t, "label__meta", labelName("__meta"))
}

func TestSeriesName(t *testing.T) {
	assert.Equal(t, "app_x_rate1", seriesName("app.x.rate1"))
	assert.Equal(t, "a_b_c:d", seriesName("a-b c:d"))
	assert.Equal(t, "_5xx_count", seriesName("5xx.count"))
	assert.Equal(t, "", seriesName(""))
}
