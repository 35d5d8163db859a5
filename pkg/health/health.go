// Package health serves liveness, readiness and dependency status.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckTimeout bounds one dependency ping.
const CheckTimeout = 5 * time.Second

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

type PingFunc func(ctx context.Context) error

type dependency struct {
	ping PingFunc
	// failure status: unhealthy for required, degraded for optional
	onFailure Status
}

type Checker struct {
	version string
	started time.Time
	ready   atomic.Bool

	mu   sync.RWMutex
	deps map[string]dependency
}

func NewChecker(version string) *Checker {
	return &Checker{version: version, started: time.Now(), deps: map[string]dependency{}}
}

// Add registers a dependency the service cannot run without.
func (c *Checker) Add(name string, ping PingFunc) {
	c.register(name, dependency{ping: ping, onFailure: StatusUnhealthy})
}

// AddOptional registers a dependency whose outage only degrades the service.
func (c *Checker) AddOptional(name string, ping PingFunc) {
	c.register(name, dependency{ping: ping, onFailure: StatusDegraded})
}

func (c *Checker) register(name string, dep dependency) {
	c.mu.Lock()
	c.deps[name] = dep
	c.mu.Unlock()
}

func (c *Checker) SetReady(ready bool) { c.ready.Store(ready) }

func (c *Checker) IsReady() bool { return c.ready.Load() }

// Run pings every dependency concurrently.
func (c *Checker) Run(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	deps := make(map[string]dependency, len(c.deps))
	for name, dep := range c.deps {
		deps[name] = dep
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(deps))
	)
	for name, dep := range deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := dep.check(ctx)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (d dependency) check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	start := time.Now()
	err := d.ping(ctx)
	res := CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		res.Status, res.Message = d.onFailure, err.Error()
	}
	return res
}

// Overall is unhealthy if any check is, else degraded if any check is.
func Overall(checks map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, res := range checks {
		if res.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if res.Status == StatusDegraded {
			overall = StatusDegraded
		}
	}
	return overall
}

func (c *Checker) report(status Status, checks map[string]CheckResult) Response {
	return Response{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now().UTC(),
	}
}

func (c *Checker) handleLive(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.report(StatusHealthy, nil))
}

func (c *Checker) handleReady(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, c.report(StatusUnhealthy, map[string]CheckResult{
			"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
		}))
	}
	return c.handleStatus(ctx)
}

func (c *Checker) handleStatus(ctx echo.Context) error {
	checks := c.Run(ctx.Request().Context())
	overall := Overall(checks)

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, c.report(overall, checks))
}

// RegisterRoutes mounts /api/v1/health, /live and /ready.
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/health")
	g.GET("", c.handleStatus)
	g.GET("/live", c.handleLive)
	g.GET("/ready", c.handleReady)
}
