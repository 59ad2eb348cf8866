// Package health aggregates component checks for the readiness endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "HEALTHY"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Latency time.Duration  `json:"latency_ns"`
	Details map[string]any `json:"details,omitempty"`
}

// Check probes one component.
type Check func(ctx context.Context) ComponentHealth

// SystemHealth is the aggregated result of every check.
type SystemHealth struct {
	Status     Status            `json:"status"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	MemoryMB   uint64            `json:"memory_mb"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Monitor runs registered checks on demand.
type Monitor struct {
	mu        sync.RWMutex
	checks    map[string]Check
	startTime time.Time
	timeout   time.Duration
}

// NewMonitor creates a monitor whose checks each get timeout to finish.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{
		checks:    make(map[string]Check),
		startTime: time.Now(),
		timeout:   timeout,
	}
}

// Register adds or replaces the check for name.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Run executes every check concurrently and aggregates the worst status.
func (m *Monitor) Run(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			res := m.runOne(ctx, name, check)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemHealth{
		Status:     worst(results),
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		MemoryMB:   memStats.Alloc / 1024 / 1024,
		Components: results,
		CheckedAt:  time.Now(),
	}
}

func (m *Monitor) runOne(ctx context.Context, name string, check Check) (res ComponentHealth) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = ComponentHealth{Status: StatusUnhealthy, Message: fmt.Sprintf("panic: %v", r)}
		}
		res.Name = name
		res.Latency = time.Since(start)
	}()
	return check(ctx)
}

func worst(results []ComponentHealth) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// PingCheck reports unhealthy when ping fails and degraded when it is slow.
func PingCheck(ping func(ctx context.Context) error, slow time.Duration) Check {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		if elapsed := time.Since(start); slow > 0 && elapsed > slow {
			return ComponentHealth{Status: StatusDegraded, Message: fmt.Sprintf("slow response: %s", elapsed)}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// BreakerCheck maps a circuit breaker state to a status. A half-open breaker is degraded.
func BreakerCheck(state func() string) Check {
	return func(context.Context) ComponentHealth {
		s := state()
		res := ComponentHealth{Status: StatusHealthy, Details: map[string]any{"breaker": s}}
		switch s {
		case "open":
			res.Status = StatusUnhealthy
			res.Message = "upstream circuit open"
		case "half-open":
			res.Status = StatusDegraded
		}
		return res
	}
}

// FreshnessCheck reports degraded when the last sync is older than maxAge.
func FreshnessCheck(lastSync func() time.Time, maxAge time.Duration) Check {
	return func(context.Context) ComponentHealth {
		last := lastSync()
		if last.IsZero() {
			return ComponentHealth{Status: StatusDegraded, Message: "never synced"}
		}
		age := time.Since(last)
		res := ComponentHealth{Status: StatusHealthy, Details: map[string]any{"age": age.Round(time.Second).String()}}
		if age > maxAge {
			res.Status = StatusDegraded
			res.Message = "stale rounds"
		}
		return res
	}
}

// ErrUnhealthy is returned by Error when the system is unhealthy.
var ErrUnhealthy = errors.New("system unhealthy")

// Error returns ErrUnhealthy when h is unhealthy.
func (h SystemHealth) Error() error {
	if h.Status == StatusUnhealthy {
		return ErrUnhealthy
	}
	return nil
}
