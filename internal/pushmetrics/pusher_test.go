package pushmetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/config"
)

func testGatherer(t *testing.T) prometheus.Gatherer {
	t.Helper()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planmart_etl_runs_total",
		Help: "test counter",
	}, []string{"trigger"})
	registry.MustRegister(counter)
	counter.WithLabelValues("manual").Add(3)
	return registry
}

func TestNewPusherDisabled(t *testing.T) {
	pusher := NewPusher(config.Config{}, zap.NewNop())
	assert.Nil(t, pusher)
}

func TestNewPusherValidation(t *testing.T) {
	cases := []struct {
		name string
		push config.PushMetricsConfig
		want any
	}{
		{"missing endpoint", config.PushMetricsConfig{Enabled: true, Exporter: exporterPrometheusPushgateway}, nil},
		{"unknown exporter", config.PushMetricsConfig{Enabled: true, Exporter: "statsd", Endpoint: "http://x"}, nil},
		{"bad remote write url", config.PushMetricsConfig{Enabled: true, Exporter: exporterPrometheusRemoteWrite, Endpoint: "not a url"}, nil},
		{"remote write", config.PushMetricsConfig{Enabled: true, Exporter: exporterPrometheusRemoteWrite, Endpoint: "http://push.internal/api/v1/write"}, &RemoteWritePusher{}},
		{"pushgateway", config.PushMetricsConfig{Enabled: true, Exporter: exporterPrometheusPushgateway, Endpoint: "http://gateway:9091", JobName: "planmart_etl"}, &PushgatewayPusher{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pusher := NewPusher(config.Config{Push: tc.push}, zap.NewNop())
			if tc.want == nil {
				assert.Nil(t, pusher)
				return
			}
			assert.IsType(t, tc.want, pusher)
		})
	}
}

func TestRemoteWritePushSendsSnappyProtobuf(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
		body    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		headers = r.Header.Clone()
		body = payload
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pusher := NewRemoteWritePusher(server.URL, "secret-token")
	require.NoError(t, pusher.Push(context.Background(), testGatherer(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/x-protobuf", headers.Get("Content-Type"))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer secret-token", headers.Get("Authorization"))

	decoded, err := snappy.Decode(nil, body)
	require.NoError(t, err)
	var req prompb.WriteRequest
	require.NoError(t, req.Unmarshal(decoded))
	require.Len(t, req.Timeseries, 1)

	labels := map[string]string{}
	for _, label := range req.Timeseries[0].Labels {
		labels[label.Name] = label.Value
	}
	assert.Equal(t, "planmart_etl_runs_total", labels["__name__"])
	assert.Equal(t, "manual", labels["trigger"])
	require.Len(t, req.Timeseries[0].Samples, 1)
	assert.Equal(t, float64(3), req.Timeseries[0].Samples[0].Value)
}

func TestRemoteWritePushRejectsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of disk", http.StatusInternalServerError)
	}))
	defer server.Close()

	pusher := NewRemoteWritePusher(server.URL, "")
	err := pusher.Push(context.Background(), testGatherer(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote write returned")
}

func TestPushgatewayPushTargetsJobPath(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method = r.Method
		path = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pusher := NewPushgatewayPusher(server.URL, "planmart_etl", map[string]string{"environment": "test"})
	require.NoError(t, pusher.Push(context.Background(), testGatherer(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Contains(t, path, "/metrics/job/planmart_etl")
	assert.Contains(t, path, "environment/test")
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "planmart_etl_run_duration_seconds",
		Help: "test histogram",
	})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planmart_etl_coordinator_running",
		Help: "test gauge",
	})
	registry.MustRegister(histogram, gauge)
	histogram.Observe(1.5)
	gauge.Set(1)

	families, err := registry.Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1700000000000)
	require.Len(t, series, 1)
	assert.Equal(t, "planmart_etl_coordinator_running", series[0].Labels[0].Value)
}
