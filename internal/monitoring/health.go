package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/quill/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of one check.
type HealthCheck struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	Critical bool          `json:"critical"`
}

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type registeredCheck struct {
	name     string
	critical bool
	fn       CheckFunc
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Checks    []HealthCheck `json:"checks"`
}

// HealthMonitor runs registered checks on demand. A failing critical check
// makes the whole process unhealthy; a failing non-critical one only
// degrades it.
type HealthMonitor struct {
	mutex   sync.RWMutex
	checks  []registeredCheck
	timeout time.Duration
	started time.Time
	logger  logging.Logger
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(logger logging.Logger) *HealthMonitor {
	if logger == nil {
		logger = logging.Discard()
	}

	return &HealthMonitor{
		timeout: 5 * time.Second,
		started: time.Now(),
		logger:  logger.WithComponent("health"),
	}
}

// RegisterCheck adds a check. Registering a name twice replaces the first.
func (hm *HealthMonitor) RegisterCheck(name string, critical bool, fn CheckFunc) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	for i, c := range hm.checks {
		if c.name == name {
			hm.checks[i] = registeredCheck{name: name, critical: critical, fn: fn}
			return
		}
	}
	hm.checks = append(hm.checks, registeredCheck{name: name, critical: critical, fn: fn})
}

// Check runs every registered check and aggregates the results.
func (hm *HealthMonitor) Check(ctx context.Context) HealthResponse {
	hm.mutex.RLock()
	checks := append([]registeredCheck(nil), hm.checks...)
	hm.mutex.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.started).Round(time.Second).String(),
		Checks:    make([]HealthCheck, 0, len(checks)),
	}
	for _, c := range checks {
		start := time.Now()
		result := HealthCheck{Name: c.name, Status: HealthStatusHealthy, Critical: c.critical}
		if err := c.fn(ctx); err != nil {
			result.Message = err.Error()
			if c.critical {
				result.Status = HealthStatusUnhealthy
				resp.Status = HealthStatusUnhealthy
			} else {
				result.Status = HealthStatusDegraded
				if resp.Status == HealthStatusHealthy {
					resp.Status = HealthStatusDegraded
				}
			}
		}
		result.Duration = time.Since(start)
		resp.Checks = append(resp.Checks, result)
	}
	sort.Slice(resp.Checks, func(i, j int) bool { return resp.Checks[i].Name < resp.Checks[j].Name })

	return resp
}

// HTTPHandler returns an HTTP handler for health checks
func (hm *HealthMonitor) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(health); err != nil {
			hm.logger.Error(r.Context(), err, "Failed to encode health response")
		}
	}
}

// Predefined health checks

// DirectoryCheck fails when path is missing or is not a directory.
func DirectoryCheck(path string) CheckFunc {
	return func(ctx context.Context) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}

		return nil
	}
}

// GoroutineCheck fails above limit goroutines.
func GoroutineCheck(limit int) CheckFunc {
	return func(ctx context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return fmt.Errorf("high goroutine count: %d", n)
		}

		return nil
	}
}
