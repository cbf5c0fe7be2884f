package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// Pinger is anything with a context-aware Ping, such as the Redis store
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// SQLCheck pings db and runs a trivial query
func SQLCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

type namedCheck struct {
	name     string
	critical bool
	fn       CheckFunc
}

// HealthChecker runs dependency probes concurrently
type HealthChecker struct {
	version string
	timeout time.Duration
	checks  []namedCheck
}

// NewHealthChecker creates a health checker. timeout bounds a readiness probe.
func NewHealthChecker(version string, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{version: version, timeout: timeout}
}

// AddCheck registers a probe. A failing critical probe makes the service
// unhealthy; a failing non-critical probe only degrades it.
func (h *HealthChecker) AddCheck(name string, critical bool, fn CheckFunc) *HealthChecker {
	h.checks = append(h.checks, namedCheck{name: name, critical: critical, fn: fn})
	return h
}

// Check runs every probe in parallel
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.checks)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range h.checks {
		c := c
		g.Go(func() error {
			start := time.Now()
			err := c.fn(gctx)
			dep := DependencyStatus{
				Status:    StatusHealthy,
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				dep.Status = StatusUnhealthy
				dep.Message = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[c.name] = dep
			if err != nil {
				if c.critical {
					status.Status = StatusUnhealthy
				} else if status.Status == StatusHealthy {
					status.Status = StatusDegraded
				}
			}
			// probes never cancel each other
			return nil
		})
	}
	_ = g.Wait()

	return status
}

// Names returns the registered probe names
func (h *HealthChecker) Names() []string {
	names := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

// Liveness returns 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns 503 when a critical dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes registers the probe endpoints as named mux routes
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet).Name("health.live")
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet).Name("health.ready")
}
