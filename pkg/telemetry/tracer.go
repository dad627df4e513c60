package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Tracer wraps the OpenTelemetry tracer provider used by the resolver.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer with the given configuration. When tracing is
// disabled the returned tracer produces non-recording spans.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion, environment string) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			attribute.String("environment", environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(cfg)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none":
		// spans are sampled but never exported
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(
			exporter,
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
		))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
	}, nil
}

func createOTLPExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent("modelresolver")),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	return otlptracegrpc.New(context.Background(), opts...)
}

// Tracer returns the OpenTelemetry tracer handed to loaders.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// Start begins a new span with the given name and attributes.
func (t *Tracer) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush exports all pending spans immediately.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// TracerOrNoop returns tr, or a non-recording tracer when tr is nil.
func TracerOrNoop(tr trace.Tracer) trace.Tracer {
	if tr == nil {
		return noop.NewTracerProvider().Tracer("modelresolver")
	}
	return tr
}

// RecordError records an error on the span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace ID of the current span in the context.
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// Span names.
const (
	SpanResolve = "resolver.resolve"
	SpanCompile = "resolver.compile"
	SpanLoad    = "loader.load"
)

// Common attribute keys for resolver tracing.
var (
	AttrContextKind    = attribute.Key("context.kind")
	AttrPointer        = attribute.Key("model.pointer")
	AttrLoaderName     = attribute.Key("loader.name")
	AttrCacheTier      = attribute.Key("cache.tier")
	AttrCacheHit       = attribute.Key("cache.hit")
	AttrRemoteAttempt  = attribute.Key("remote.attempt")
	AttrRemoteAttempts = attribute.Key("remote.attempts")
	AttrHTTPStatus     = attribute.Key("http.status_code")
	AttrHTTPURL        = attribute.Key("http.url")
	AttrElementCount   = attribute.Key("model.elements")

	AttrErrorClass = attribute.Key("error.class")
	AttrErrorCode  = attribute.Key("error.code")
)

type attemptTallyKey struct{}

// WithAttemptTally starts a remote attempt count for the span active in ctx.
// Loader spans install one so that every remote call made during a load
// adds to the same remote.attempts total.
func WithAttemptTally(ctx context.Context) context.Context {
	return context.WithValue(ctx, attemptTallyKey{}, new(atomic.Int64))
}

// RecordRemoteAttempts records n attempts of op on the span active in ctx:
// remote.<op>.attempts for this call, and remote.attempts as the running
// total of the tally in ctx (or n when there is none).
func RecordRemoteAttempts(ctx context.Context, op string, n int) {
	total := int64(n)
	if tally, ok := ctx.Value(attemptTallyKey{}).(*atomic.Int64); ok {
		total = tally.Add(int64(n))
	}
	trace.SpanFromContext(ctx).SetAttributes(
		AttrRemoteAttempts.Int64(total),
		RemoteOpAttempts(op).Int(n),
	)
}

// RemoteOpAttempts is the attribute key holding the attempt count of one
// remote operation.
func RemoteOpAttempts(op string) attribute.Key {
	return attribute.Key("remote." + op + ".attempts")
}
