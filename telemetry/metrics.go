package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterProvider exposes both the OTel meter used by router instruments and
// an optional HTTP handler for a Prometheus `/metrics` scrape endpoint.
type MeterProvider struct {
	Meter         metric.Meter
	PrometheusMux http.Handler
	shutdownFunc  ShutdownFunc
}

// Shutdown flushes and releases the underlying metric reader.
func (m *MeterProvider) Shutdown(ctx context.Context) error {
	if m.shutdownFunc == nil {
		return nil
	}
	return m.shutdownFunc(ctx)
}

// InitMeter builds a meter provider for the router's cache/fetch/projector
// instruments. exporter is the first entry of opentelemetry.metrics.exporters
// in the router's configuration: "prometheus" (or empty) builds a pull-based
// /metrics handler. "otlp" is recognised but no OTLP exporter is built: it
// returns an error, as does any other name.
func InitMeter(serviceName, exporter string) (*MeterProvider, error) {
	switch exporter {
	case "", "prometheus":
		promExporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))
		otel.SetMeterProvider(provider)

		return &MeterProvider{
			Meter:         provider.Meter(serviceName),
			PrometheusMux: promhttp.Handler(),
			shutdownFunc:  provider.Shutdown,
		}, nil
	case "otlp":
		return nil, fmt.Errorf("otlp metrics exporter is not supported; use prometheus")
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", exporter)
	}
}

// Instruments holds the router-internal counters and histograms recorded
// across the plan cache, subgraph client pool, and response projector.
type Instruments struct {
	PlanCacheHits     metric.Int64Counter
	PlanCacheMisses   metric.Int64Counter
	FetchLatency      metric.Float64Histogram
	ProjectorDuration metric.Float64Histogram
}

// NewInstruments creates the router's metric instruments against the given
// meter. Call once per process and share the result.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	hits, err := meter.Int64Counter("router.plan_cache.hits",
		metric.WithDescription("Number of query plan cache hits"))
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter("router.plan_cache.misses",
		metric.WithDescription("Number of query plan cache misses"))
	if err != nil {
		return nil, err
	}

	fetchLatency, err := meter.Float64Histogram("router.subgraph.fetch_duration",
		metric.WithDescription("Subgraph fetch latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	projectorDuration, err := meter.Float64Histogram("router.projector.duration",
		metric.WithDescription("Response projection duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		PlanCacheHits:     hits,
		PlanCacheMisses:   misses,
		FetchLatency:      fetchLatency,
		ProjectorDuration: projectorDuration,
	}, nil
}
