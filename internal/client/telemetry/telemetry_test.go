package telemetry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/pantryclient/internal/client/security"
	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type stubDoer struct {
	status int
	seen   *http.Request
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.seen = req
	return &http.Response{
		StatusCode: d.status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"data":{}}`)),
		Request:    req,
	}, nil
}

func newClient(t *testing.T, d *stubDoer, ics []transport.Interceptor, obs []transport.Observer) *transport.Client {
	t.Helper()
	p, err := security.NewPolicy("https://api.example.com", nil, false)
	require.NoError(t, err)
	c, err := transport.New("https://api.example.com", transport.Options{
		Doer:         d,
		Validator:    security.NewValidator(p, security.ValidatorOptions{}),
		Interceptors: ics,
		Observers:    obs,
	})
	require.NoError(t, err)
	return c
}

func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return exporter, tp
}

func TestTracing_SpanPerCall(t *testing.T) {
	exporter, tp := newTestTracer()
	tr := NewTracing(tp)
	d := &stubDoer{status: 200}
	c := newClient(t, d, []transport.Interceptor{tr}, []transport.Observer{tr})

	res := c.Do(context.Background(), transport.Request{Path: "/recipes"})
	require.True(t, res.Success)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET", spans[0].Name)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	tp2 := d.seen.Header.Get("Traceparent")
	require.NotEmpty(t, tp2)
	assert.Contains(t, tp2, spans[0].SpanContext.TraceID().String())
}

func TestTracing_FailureStatus(t *testing.T) {
	exporter, tp := newTestTracer()
	tr := NewTracing(tp)
	c := newClient(t, &stubDoer{status: 500}, []transport.Interceptor{tr}, []transport.Observer{tr})

	c.Do(context.Background(), transport.Request{Path: "/recipes"})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestTracing_LeavesCallerSpanOpen(t *testing.T) {
	exporter, tp := newTestTracer()
	tr := NewTracing(tp)
	c := newClient(t, &stubDoer{status: 200}, []transport.Interceptor{tr}, []transport.Observer{tr})

	ctx, parent := tp.Tracer("test").Start(context.Background(), "screen load")

	// Rejected before interceptors run: no client span, and the caller's span
	// must not be ended by the observer.
	c.Do(ctx, transport.Request{Path: "https://evil.example.com/"})
	assert.Empty(t, exporter.GetSpans())

	c.Do(ctx, transport.Request{Path: "/ok"})
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "HTTP GET", spans[0].Name)
	assert.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, "screen load", spans[1].Name)
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.ObserveResult(context.Background(), transport.CallInfo{Method: "GET", Success: true, Status: 200, Duration: 120 * time.Millisecond})
	m.ObserveResult(context.Background(), transport.CallInfo{Method: "GET", Success: true, Status: 200, Duration: 80 * time.Millisecond})
	m.ObserveResult(context.Background(), transport.CallInfo{Method: "POST", Kind: transport.KindTimedOut, Duration: time.Second})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			byName[md.Name] = md
		}
	}

	sum, ok := byName["pantry.client.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
		if v, _ := dp.Attributes.Value("outcome"); v.AsString() == "ok" {
			assert.Equal(t, int64(2), dp.Value)
		}
	}
	assert.Equal(t, int64(3), total)

	hist, ok := byName["pantry.client.request.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 2)
}
