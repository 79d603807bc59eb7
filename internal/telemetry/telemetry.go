// Package telemetry wraps HAR exports and traced captures in OpenTelemetry
// spans.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/harkit/internal/nettrace"
)

var (
	tracerName  = "github.com/unkn0wn-root/harkit/internal/telemetry"
	httpHostKey = attribute.Key("http.host")
)

type Instrumenter interface {
	Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan)
	StartExport(ctx context.Context, info ExportStart) (context.Context, ExportSpan)
	Shutdown(ctx context.Context) error
}

type RequestStart struct {
	Name        string
	HTTPRequest *http.Request
}

type RequestResult struct {
	Err        error
	StatusCode int
}

type RequestSpan interface {
	RecordTrace(tl *nettrace.Timeline)
	End(result RequestResult)
}

// ExportStart describes one HAR conversion.
type ExportStart struct {
	Records int
	Creator string
}

type ExportResult struct {
	Err     error
	Entries int
	Skipped int
}

type ExportSpan interface {
	End(result ExportResult)
}

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

type Option func(*providerOptions)

func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

// New returns a no-op instrumenter unless cfg names an endpoint or an
// exporter or span processor is supplied.
func New(cfg Config, opts ...Option) (Instrumenter, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, info RequestStart) (context.Context, RequestSpan) {
	if info.HTTPRequest == nil {
		return ctx, noopSpan{}
	}

	ctx, span := m.tracer.Start(
		ctx,
		requestSpanName(info),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(requestAttributes(info)...),
	)
	return ctx, &requestSpan{span: span}
}

func (m *manager) StartExport(ctx context.Context, info ExportStart) (context.Context, ExportSpan) {
	attrs := []attribute.KeyValue{
		attribute.Int("harkit.export.records", info.Records),
	}
	if c := strings.TrimSpace(info.Creator); c != "" {
		attrs = append(attrs, attribute.String("harkit.export.creator", c))
	}
	ctx, span := m.tracer.Start(
		ctx,
		"har.export",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &exportSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type requestSpan struct {
	span trace.Span
}

func (rs *requestSpan) RecordTrace(tl *nettrace.Timeline) {
	if rs == nil || rs.span == nil || tl == nil {
		return
	}

	rs.span.SetAttributes(attribute.Int64("harkit.trace.duration_ms", tl.Duration.Milliseconds()))
	if !tl.Started.IsZero() {
		rs.span.SetAttributes(
			attribute.String("harkit.trace.started_at", tl.Started.Format(time.RFC3339Nano)),
		)
	}
	if strings.TrimSpace(tl.Err) != "" {
		rs.span.AddEvent(
			"harkit.trace.error",
			trace.WithAttributes(attribute.String("harkit.error", tl.Err)),
		)
	}

	for _, phase := range tl.Phases {
		attrs := []attribute.KeyValue{
			attribute.String("harkit.trace.phase", string(phase.Kind)),
			attribute.Int64("harkit.trace.phase_duration_ms", phase.Duration.Milliseconds()),
		}
		if phase.Meta.Addr != "" {
			attrs = append(attrs, attribute.String("harkit.trace.addr", phase.Meta.Addr))
		}
		if phase.Meta.Reused {
			attrs = append(attrs, attribute.Bool("harkit.trace.reused", true))
		}
		if strings.TrimSpace(phase.Err) != "" {
			attrs = append(attrs, attribute.String("harkit.trace.phase_error", phase.Err))
		}

		options := []trace.EventOption{trace.WithAttributes(attrs...)}
		if !phase.End.IsZero() {
			options = append(options, trace.WithTimestamp(phase.End))
		}
		rs.span.AddEvent("harkit.trace.phase", options...)
	}
}

func (rs *requestSpan) End(result RequestResult) {
	if rs == nil || rs.span == nil {
		return
	}

	if result.StatusCode > 0 {
		rs.span.SetAttributes(semconv.HTTPStatusCodeKey.Int(result.StatusCode))
	}

	switch {
	case result.Err != nil:
		rs.span.RecordError(result.Err)
		rs.span.SetStatus(codes.Error, result.Err.Error())
	case result.StatusCode >= 400:
		rs.span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", result.StatusCode))
	default:
		rs.span.SetStatus(codes.Ok, "OK")
	}
	rs.span.End()
}

type exportSpan struct {
	span trace.Span
}

func (es *exportSpan) End(result ExportResult) {
	if es == nil || es.span == nil {
		return
	}
	es.span.SetAttributes(
		attribute.Int("harkit.export.entries", result.Entries),
		attribute.Int("harkit.export.skipped", result.Skipped),
	)
	if result.Err != nil {
		es.span.RecordError(result.Err)
		es.span.SetStatus(codes.Error, result.Err.Error())
	} else {
		es.span.SetStatus(codes.Ok, "OK")
	}
	es.span.End()
}

func Noop() Instrumenter {
	return noopInstrumenter{}
}

type noopInstrumenter struct{}

type noopSpan struct{}

type noopExportSpan struct{}

func (noopInstrumenter) Start(ctx context.Context, _ RequestStart) (context.Context, RequestSpan) {
	return ctx, noopSpan{}
}

func (noopInstrumenter) StartExport(ctx context.Context, _ ExportStart) (context.Context, ExportSpan) {
	return ctx, noopExportSpan{}
}

func (noopInstrumenter) Shutdown(context.Context) error { return nil }

func (noopSpan) RecordTrace(*nettrace.Timeline) {}

func (noopSpan) End(RequestResult) {}

func (noopExportSpan) End(ExportResult) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	client := otlptracegrpc.NewClient(clientOpts...)
	return otlptrace.New(ctx, client)
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	name := cfg.ServiceName
	if strings.TrimSpace(name) == "" {
		name = defaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return attrs
}

func requestAttributes(info RequestStart) []attribute.KeyValue {
	req := info.HTTPRequest
	var attrs []attribute.KeyValue
	if req.Method != "" {
		attrs = append(attrs, semconv.HTTPMethodKey.String(req.Method))
	}
	if req.URL != nil {
		if scheme := req.URL.Scheme; scheme != "" {
			attrs = append(attrs, semconv.HTTPSchemeKey.String(scheme))
		}
		if host := req.URL.Host; host != "" {
			attrs = append(attrs, httpHostKey.String(host))
		}
		if target := req.URL.RequestURI(); target != "" {
			attrs = append(attrs, semconv.HTTPTargetKey.String(target))
		}
		attrs = append(attrs, semconv.HTTPURLKey.String(req.URL.String()))
	}
	if name := strings.TrimSpace(info.Name); name != "" {
		attrs = append(attrs, attribute.String("harkit.request.name", name))
	}
	return attrs
}

func requestSpanName(info RequestStart) string {
	if name := strings.TrimSpace(info.Name); name != "" {
		return name
	}
	req := info.HTTPRequest
	if req.Method != "" {
		if req.URL != nil && req.URL.Host != "" {
			return fmt.Sprintf("%s %s", req.Method, req.URL.Host)
		}
		return req.Method
	}
	return "http.request"
}
