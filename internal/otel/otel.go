package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
	reqid "github.com/hanpama/graphcache/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("graphcache")}
	sub.register()

	return tp.Shutdown, nil
}

// subscriber turns proxy events into spans. Spans are correlated by request id:
// http.request > graphql.operation > graphql.upstream, with cache reads and
// writes recorded as span events on the operation.
type subscriber struct {
	tracer        trace.Tracer
	httpSpans     sync.Map // rid -> trace.Span
	opSpans       sync.Map // rid -> trace.Span
	upstreamSpans sync.Map // rid -> trace.Span
}

func (s *subscriber) parent(ctx context.Context, rid string, spans ...*sync.Map) context.Context {
	for _, m := range spans {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
			attribute.String("request.id", rid),
		)
		s.httpSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.String("graphcache.result", e.Cache),
		)
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.OperationStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.httpSpans), "graphql.operation")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
		)
		s.opSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.OperationFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.opSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("graphql.error_count", len(e.Errors)),
			attribute.String("graphcache.result", e.Cache),
		)
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.CacheQuery) {
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.opSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("cache.query", trace.WithAttributes(
				attribute.Bool("cache.partial", e.Partial),
				attribute.Int("cache.dependencies", e.Dependencies),
			))
		}
	})

	eventbus.Subscribe(func(ctx context.Context, e events.CacheWrite) {
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.opSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("cache.write", trace.WithAttributes(
				attribute.Int64("cache.layer", int64(e.Layer)),
				attribute.Int("cache.dependencies", e.Dependencies),
			))
		}
	})

	eventbus.Subscribe(func(ctx context.Context, e events.OptimisticLayer) {
		rid, _ := reqid.FromContext(ctx)
		if v, ok := s.opSpans.Load(rid); ok {
			v.(trace.Span).AddEvent("cache.optimistic."+e.Action, trace.WithAttributes(
				attribute.Int64("cache.layer", int64(e.Layer)),
			))
		}
	})

	eventbus.Subscribe(func(ctx context.Context, e events.UpstreamStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.opSpans, &s.httpSpans), "graphql.upstream")
		span.SetAttributes(
			attribute.String("http.url", e.URL),
			attribute.String("graphql.operation.name", e.OperationName),
		)
		s.upstreamSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.UpstreamFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.upstreamSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	})
}
