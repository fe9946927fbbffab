package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aJV99/CommodiTrade-sub000/libs/httpmiddleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTracedRouter(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(Middleware("ledger-test", "/healthz"))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/trades/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/trades/:id/execute", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return router, recorder
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddlewareNamesSpanByRoute(t *testing.T) {
	router, recorder := newTracedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/trades/abc", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /trades/:id" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	if v, ok := attrValue(spans[0].Attributes(), "http.response.status_code"); !ok || v.AsInt64() != 200 {
		t.Fatalf("expected status attribute 200, got %v", v)
	}
	if v, ok := attrValue(spans[0].Attributes(), "request.id"); !ok || v.AsString() != "req-1" {
		t.Fatalf("expected request id attribute, got %v", v)
	}
}

func TestMiddlewareMarksServerErrors(t *testing.T) {
	router, recorder := newTracedRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/trades/abc/execute", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status().Code)
	}
}

func TestMiddlewareSkipsProbes(t *testing.T) {
	router, recorder := newTracedRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if n := len(recorder.Ended()); n != 0 {
		t.Fatalf("expected no spans for skipped path, got %d", n)
	}
}
