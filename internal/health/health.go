package health

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes one dependency.
type Check interface {
	Name() string
	Check(ctx context.Context) Result
}

// Result is the outcome of one dependency probe.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Checker aggregates dependency probes for the readiness endpoint.
type Checker struct {
	checks []Check
	mu     sync.RWMutex
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{checks: make([]Check, 0)}
}

// Register adds a dependency probe.
func (c *Checker) Register(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Check runs all probes and reports overall health plus per-check results.
func (c *Checker) Check(ctx context.Context) (bool, interface{}) {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	healthy := true
	results := make([]Result, 0, len(checks))
	for _, check := range checks {
		start := time.Now()
		result := check.Check(ctx)
		result.Name = check.Name()
		result.Duration = time.Since(start)
		if result.Status != StatusHealthy {
			healthy = false
		}
		results = append(results, result)
	}

	return healthy, results
}

// Pinger is anything with a context-aware liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger into a Check.
type PingCheck struct {
	name    string
	pinger  Pinger
	timeout time.Duration
}

// NewPingCheck wraps a Pinger as a named dependency probe.
func NewPingCheck(name string, pinger Pinger, timeout time.Duration) *PingCheck {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PingCheck{name: name, pinger: pinger, timeout: timeout}
}

func (p *PingCheck) Name() string {
	return p.name
}

func (p *PingCheck) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		return Result{Status: StatusUnhealthy, Message: err.Error()}
	}
	return Result{Status: StatusHealthy}
}
