package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency (database, broker) is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Manager struct {
	ready   atomic.Bool
	pingers map[string]Pinger
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{pingers: make(map[string]Pinger)}
	m.ready.Store(initialReady)
	return m
}

// AddCheck must be called before the handlers start serving.
func (m *Manager) AddCheck(name string, p Pinger) {
	if p == nil {
		return
	}
	m.pingers[name] = p
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

func (m *Manager) Check(ctx context.Context) map[string]string {
	failures := make(map[string]string)
	for name, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if failures := m.Check(ctx); len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": failures})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
