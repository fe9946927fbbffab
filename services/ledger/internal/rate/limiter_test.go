package rate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func newRouter(l Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	mw := Middleware(l, nil)
	r.POST("/trades", mw, func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/trades/:id/execute", mw, func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func send(r *gin.Engine, path, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	r.ServeHTTP(w, req)
	return w
}

func post(r *gin.Engine) *httptest.ResponseRecorder {
	return send(r, "/trades", "")
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	r := newRouter(NewMemory(1, time.Minute))

	w := post(r)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected first request through, got %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "1" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected rate headers: %v", w.Header())
	}
	w = post(r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestMiddlewareBudgetsPerCommandRoute(t *testing.T) {
	r := newRouter(NewMemory(1, time.Minute))

	if w := send(r, "/trades", "10.0.0.1:1000"); w.Code != http.StatusCreated {
		t.Fatalf("expected capture through, got %d", w.Code)
	}
	if w := send(r, "/trades", "10.0.0.1:1000"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second capture limited, got %d", w.Code)
	}
	if w := send(r, "/trades/t-1/execute", "10.0.0.1:1000"); w.Code != http.StatusOK {
		t.Fatalf("expected execute to have its own budget, got %d", w.Code)
	}
	// Path parameters share the route budget.
	if w := send(r, "/trades/t-2/execute", "10.0.0.1:1000"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected execute on another trade limited, got %d", w.Code)
	}
	if w := send(r, "/trades", "10.0.0.2:1000"); w.Code != http.StatusCreated {
		t.Fatalf("expected other client through, got %d", w.Code)
	}
}

func TestCommandKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got string
	r := gin.New()
	r.POST("/contracts/:id/cancel", func(c *gin.Context) { got = CommandKey(c) })
	send(r, "/contracts/c-9/cancel", "192.0.2.7:5555")

	if want := "192.0.2.7|POST /contracts/:id/cancel"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMiddlewareFailsOpen(t *testing.T) {
	if w := post(newRouter(failingLimiter{})); w.Code != http.StatusCreated {
		t.Fatalf("expected request through when limiter errors, got %d", w.Code)
	}
}
