package interceptor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/request"
)

const tracerName = "github.com/Sentinel-Gate/httpbridge/internal/domain/interceptor"

// TracingInterceptor wraps every request in a server span.
type TracingInterceptor struct {
	tracer trace.Tracer
}

// NewTracingInterceptor creates a TracingInterceptor. A nil provider uses
// the global one.
func NewTracingInterceptor(tp trace.TracerProvider) *TracingInterceptor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingInterceptor{tracer: tp.Tracer(tracerName)}
}

func (i *TracingInterceptor) Name() string { return "tracing" }

// OnRequestStart opens the span.
func (i *TracingInterceptor) OnRequestStart(ctx context.Context, raw *request.Raw) (context.Context, error) {
	ctx, _ = i.tracer.Start(ctx, raw.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", raw.Method),
			attribute.String("url.full", raw.URI),
			attribute.String("network.protocol.version", raw.Proto),
		),
	)
	return ctx, nil
}

// OnRequestEnd records the handler error and closes the span.
func (i *TracingInterceptor) OnRequestEnd(ctx context.Context, _ *request.Raw, handlerErr error) error {
	span := trace.SpanFromContext(ctx)
	if handlerErr != nil {
		span.RecordError(handlerErr)
		span.SetStatus(codes.Error, handlerErr.Error())
	}
	span.End()
	return nil
}

var (
	_ RequestStartHook = (*TracingInterceptor)(nil)
	_ RequestEndHook   = (*TracingInterceptor)(nil)
)
