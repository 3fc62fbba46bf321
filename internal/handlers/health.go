package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Health serves the health, liveness and readiness endpoints
type Health struct {
	mu      sync.RWMutex
	checks  []check
	timeout time.Duration
}

// NewHealth creates a Health with no checks
func NewHealth() *Health {
	return &Health{timeout: 3 * time.Second}
}

// AddCheck registers a dependency probe. Critical checks also gate readiness.
func (h *Health) AddCheck(name string, critical bool, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, critical: critical, fn: fn})
}

func (h *Health) snapshot() []check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]check(nil), h.checks...)
}

// HealthHandler reports every check. Any failure degrades the service.
func (h *Health) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	for _, c := range h.snapshot() {
		if err := c.fn(ctx); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			checks[c.name] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			continue
		}
		checks[c.name] = map[string]interface{}{"status": "healthy"}
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// LivenessHandler handles Kubernetes liveness probes
// Returns 200 if the application is running (doesn't check dependencies)
func (h *Health) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// ReadinessHandler handles Kubernetes readiness probes
// Returns 200 once every critical dependency answers
func (h *Health) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	for _, c := range h.snapshot() {
		if !c.critical {
			continue
		}
		if err := c.fn(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "not_ready",
				"reason":    c.name + "_unavailable",
				"timestamp": time.Now().Unix(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Unix(),
	})
}
