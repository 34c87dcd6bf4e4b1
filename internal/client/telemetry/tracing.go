// Package telemetry plugs OpenTelemetry tracing and metrics into the request
// pipeline as an interceptor and result observers.
package telemetry

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dmitrijs2005/pantryclient/internal/client/transport"

type spanKey struct{}

// Tracing starts a client span per request and propagates it to the backend
// with W3C trace context headers. Register it both as an interceptor and as an
// observer; the observer ends the span.
type Tracing struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func NewTracing(tp trace.TracerProvider) *Tracing {
	return &Tracing{
		tracer:     tp.Tracer(instrumentationName),
		propagator: propagation.TraceContext{},
	}
}

func (t *Tracing) BeforeRequest(_ context.Context, req *http.Request) (*http.Request, error) {
	ctx, span := t.tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.Redacted()),
			attribute.String("server.address", req.URL.Hostname()),
		),
	)
	ctx = context.WithValue(ctx, spanKey{}, span)
	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req.WithContext(ctx), nil
}

func (t *Tracing) AfterResponse(_ context.Context, resp *transport.Response) (*transport.Response, error) {
	return resp, nil
}

// ObserveResult ends the span started for this call, if any. Spans belonging
// to the caller are left alone.
func (t *Tracing) ObserveResult(ctx context.Context, info transport.CallInfo) {
	span, ok := ctx.Value(spanKey{}).(trace.Span)
	if !ok {
		return
	}

	if info.Status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", info.Status))
	}
	if info.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(attribute.String("error.type", string(info.Kind)))
		span.SetStatus(codes.Error, info.Message)
	}
	span.End()
}
