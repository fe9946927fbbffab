package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveReadiness(t *testing.T, m *Manager) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/readyz", ReadinessHandler(m))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return w.Code
}

func TestReadinessNotReady(t *testing.T) {
	if code := serveReadiness(t, NewManager(false)); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestReadinessFailingCheck(t *testing.T) {
	m := NewManager(true)
	m.AddCheck("postgres", pingerFunc(func(context.Context) error { return errors.New("down") }))
	if code := serveReadiness(t, m); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestReadinessReady(t *testing.T) {
	m := NewManager(true)
	m.AddCheck("postgres", pingerFunc(func(context.Context) error { return nil }))
	if code := serveReadiness(t, m); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}
