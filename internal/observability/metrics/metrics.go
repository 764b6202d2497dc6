package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	documentsLoaded metric.Int64Counter
	dimensionHits   metric.Int64Counter
	dimensionMisses metric.Int64Counter
	factRows        metric.Int64Counter
	runsTriggered   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "planmart"
	}
	meter := provider.Meter(name)

	documentsLoaded, err := meter.Int64Counter("planmart_documents_loaded_total")
	if err != nil {
		return nil, err
	}
	dimensionHits, err := meter.Int64Counter("planmart_dimension_cache_hits_total")
	if err != nil {
		return nil, err
	}
	dimensionMisses, err := meter.Int64Counter("planmart_dimension_cache_misses_total")
	if err != nil {
		return nil, err
	}
	factRows, err := meter.Int64Counter("planmart_fact_rows_total")
	if err != nil {
		return nil, err
	}
	runsTriggered, err := meter.Int64Counter("planmart_runs_triggered_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		documentsLoaded: documentsLoaded,
		dimensionHits:   dimensionHits,
		dimensionMisses: dimensionMisses,
		factRows:        factRows,
		runsTriggered:   runsTriggered,
	}, nil
}

// RecordDocumentLoaded increments the loaded-document count for an outcome.
func (m *Metrics) RecordDocumentLoaded(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.documentsLoaded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDimensionHit increments the dimension cache hit count.
func (m *Metrics) RecordDimensionHit(ctx context.Context, dimension string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("dimension", strings.TrimSpace(dimension)))
	m.dimensionHits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDimensionMiss increments the dimension cache miss count.
func (m *Metrics) RecordDimensionMiss(ctx context.Context, dimension string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("dimension", strings.TrimSpace(dimension)))
	m.dimensionMisses.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFactRows adds inserted fact rows for a table.
func (m *Metrics) RecordFactRows(ctx context.Context, table string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("fact_table", strings.TrimSpace(table)))
	m.factRows.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordRunTriggered increments the run trigger count.
func (m *Metrics) RecordRunTriggered(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("trigger", strings.TrimSpace(trigger)))
	m.runsTriggered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"dimension":   {},
	"fact_table":  {},
	"trigger":     {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
