package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/privacyshield/privacyshield/internal/scrub"
)

const instrumentationName = "privacyshield"

// Config controls telemetry setup.
type Config struct {
	Enabled       bool
	Endpoint      string
	Protocol      string // grpc | http
	Service       string
	Version       string
	Insecure      bool
	ExportTraces  bool
	ExportMetrics bool
}

// Provider wires tracer/meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	requestsCounter    metric.Int64Counter
	requestDuration    metric.Float64Histogram
	detectDuration     metric.Float64Histogram
	generationDuration metric.Float64Histogram
	entitiesCounter    metric.Int64Counter
	privacyScore       metric.Int64Histogram

	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// Analysis is what one analyze request reports. It carries counts and
// type names only, never text.
type Analysis struct {
	Route        string
	Outcome      string // ok | rejected | error
	ProviderType string
	Generation   string // ok | error | skipped
	DurationMs   float64
	DetectMs     float64
	GenerationMs float64
	PrivacyScore int
	EntityTypes  []string
}

// NewProvider configures OTEL exporters and providers. When disabled it
// returns no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return Noop(), nil
	}

	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	if protocol == "" {
		protocol = "http"
	}
	if protocol != "http" && protocol != "grpc" {
		return nil, fmt.Errorf("telemetry: unsupported protocol %q", cfg.Protocol)
	}
	scrub.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s; if no collector is listening, periodic upload warnings are expected", protocol, cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	var tp *sdktrace.TracerProvider
	if cfg.ExportTraces {
		exp, err := newTraceExporter(ctx, protocol, cfg)
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
	}

	var mp *sdkmetric.MeterProvider
	if cfg.ExportMetrics {
		exp, err := newMetricExporter(ctx, protocol, cfg)
		if err != nil {
			if tp != nil {
				_ = tp.Shutdown(ctx)
			}
			return nil, fmt.Errorf("metric exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		otel.SetMeterProvider(mp)
	}

	return newProvider(tp, mp), nil
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	return newProvider(nil, nil)
}

func newProvider(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) *Provider {
	p := &Provider{
		Enabled: tp != nil || mp != nil,
		tracer:  tracenoop.NewTracerProvider().Tracer(""),
		meter:   metricnoop.NewMeterProvider().Meter(""),
	}
	if tp != nil {
		p.tracer = tp.Tracer(instrumentationName)
		p.shutdownTraceProvider = tp.Shutdown
	}
	if mp != nil {
		p.meter = mp.Meter(instrumentationName)
		p.shutdownMeterProvider = mp.Shutdown
	}
	p.initInstruments()
	return p
}

func newTraceExporter(ctx context.Context, protocol string, cfg Config) (sdktrace.SpanExporter, error) {
	if protocol == "grpc" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func newMetricExporter(ctx context.Context, protocol string, cfg Config) (sdkmetric.Exporter, error) {
	if protocol == "grpc" {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}

func (p *Provider) initInstruments() {
	// Instrument errors are ignored; telemetry stays best-effort.
	p.requestsCounter, _ = p.meter.Int64Counter("privacyshield_requests_total")
	p.requestDuration, _ = p.meter.Float64Histogram("privacyshield_request_duration_ms")
	p.detectDuration, _ = p.meter.Float64Histogram("privacyshield_detect_duration_ms")
	p.generationDuration, _ = p.meter.Float64Histogram("privacyshield_generation_duration_ms")
	p.entitiesCounter, _ = p.meter.Int64Counter("privacyshield_entities_total")
	p.privacyScore, _ = p.meter.Int64Histogram("privacyshield_privacy_score")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// StartSpan opens a span carrying only attributes that pass SafeAttributes.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, trace.WithAttributes(SafeAttributes(attrs)...))
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		if err := p.shutdownTraceProvider(ctx); err != nil {
			scrub.Logf("telemetry: trace shutdown: %v", err)
		}
	}
	if p.shutdownMeterProvider != nil {
		if err := p.shutdownMeterProvider(ctx); err != nil {
			scrub.Logf("telemetry: metric shutdown: %v", err)
		}
	}
}

// RecordAnalysis emits counters and histograms with safe labels.
func (p *Provider) RecordAnalysis(ctx context.Context, a Analysis) {
	if p == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("privacyshield.route", a.Route),
		attribute.String("privacyshield.outcome", a.Outcome),
		attribute.String("privacyshield.provider_type", a.ProviderType),
		attribute.String("privacyshield.generation", a.Generation),
	)
	p.requestsCounter.Add(ctx, 1, labels)
	p.requestDuration.Record(ctx, a.DurationMs, labels)
	if a.DetectMs > 0 {
		p.detectDuration.Record(ctx, a.DetectMs, labels)
	}
	if a.GenerationMs > 0 {
		p.generationDuration.Record(ctx, a.GenerationMs, labels)
	}
	if a.Outcome != "ok" {
		return
	}
	p.privacyScore.Record(ctx, int64(a.PrivacyScore), labels)
	for _, typ := range a.EntityTypes {
		p.entitiesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("privacyshield.entity_type", typ)))
	}
}
