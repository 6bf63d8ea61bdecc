package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_RecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/threads/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	rm := collect(t, reader)
	met := findMetric(rm, "parley.http.request.duration")
	if met == nil {
		t.Fatal("http duration histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("histogram has no data points")
	}

	var sawMethod, sawPath, sawStatus bool
	for _, attr := range hist.DataPoints[0].Attributes.ToSlice() {
		switch string(attr.Key) {
		case "method":
			sawMethod = attr.Value.AsString() == http.MethodGet
		case "path":
			sawPath = attr.Value.AsString() == "/threads/abc"
		case "status":
			sawStatus = attr.Value.AsInt64() == http.StatusNoContent
		}
	}
	if !sawMethod || !sawPath || !sawStatus {
		t.Errorf("missing method/path/status attributes: %v", hist.DataPoints[0].Attributes.ToSlice())
	}
}

func TestMiddleware_DefaultStatusIsOK(t *testing.T) {
	m, reader := newTestMetrics(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Handler writes nothing; recorder should default to 200.
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	_ = collect(t, reader)
}

func TestMiddleware_CorrelationIDHeader(t *testing.T) {
	// A real tracer provider is needed for valid trace IDs; the global
	// default is a noop that produces none.
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	restoreTracerProvider(t, tp)

	m, _ := newTestMetrics(t)

	var innerCID string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCID = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", nil))

	cid := rec.Header().Get("X-Correlation-ID")
	if cid == "" {
		t.Fatal("X-Correlation-ID header not set")
	}
	if innerCID != cid {
		t.Errorf("handler saw correlation ID %q, header has %q", innerCID, cid)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent header not injected")
	}
}

func TestMiddleware_PropagatesIncomingTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	restoreTracerProvider(t, tp)

	m, _ := newTestMetrics(t)

	const incomingTrace = "0af7651916cd43dd8448eb211c80319c"

	var gotTrace string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = trace.SpanContextFromContext(r.Context()).TraceID().String()
	}))

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("traceparent", "00-"+incomingTrace+"-b7ad6b7169203331-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotTrace != incomingTrace {
		t.Errorf("trace ID = %q, want %q", gotTrace, incomingTrace)
	}
}
