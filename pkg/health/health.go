// Package health aggregates per-component checks into a single node
// status. The worst component status wins.
package health

import (
	"sync"
	"time"
)

// Status is the health of a component or of the whole node
type Status string

const (
	StatusUp       Status = "UP"
	StatusDegraded Status = "DEGRADED"
	StatusDown     Status = "DOWN"
)

// Check is the result of probing one component
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ms"`
}

// CheckFunc probes one component
type CheckFunc func() Check

// Response is the aggregated node health
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime_seconds"`
}

// Checker runs registered component checks on demand
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	started time.Time
}

// NewChecker creates an empty checker
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		started: time.Now(),
	}
}

// Register adds or replaces a component check
func (hc *Checker) Register(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check runs every registered check and aggregates the result
func (hc *Checker) Check() Response {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	response := Response{
		Status:    StatusUp,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(hc.checks)),
		Uptime:    time.Since(hc.started),
	}

	for name, fn := range hc.checks {
		start := time.Now()
		check := fn()
		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start

		response.Checks[name] = check

		if check.Status == StatusDown {
			response.Status = StatusDown
		} else if check.Status == StatusDegraded && response.Status != StatusDown {
			response.Status = StatusDegraded
		}
	}
	return response
}

// Healthy reports whether the node should answer 200 on /health
func (hc *Checker) Healthy() bool {
	return hc.Check().Status != StatusDown
}
