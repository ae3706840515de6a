// Package health runs the checks behind the /health endpoint: backend
// reachability, the editor session, the preview frame, the live socket hub
// and the mirrored workspace.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/version"
)

// Status of one check or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one checker.
type Check struct {
	Name        string                 `json:"name"`
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Critical    bool                   `json:"critical"`
}

// Checker produces one Check.
type Checker interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) Check
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) Check
}

// NewCheckFunc wraps fn.
func NewCheckFunc(name string, critical bool, fn func(ctx context.Context) Check) *CheckFunc {
	return &CheckFunc{name: name, critical: critical, fn: fn}
}

func (c *CheckFunc) Name() string   { return c.name }
func (c *CheckFunc) Critical() bool { return c.critical }

func (c *CheckFunc) Check(ctx context.Context) Check {
	res := c.fn(ctx)
	res.Name = c.name
	res.Critical = c.critical
	return res
}

// Summary counts checks by status.
type Summary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
	Critical  int `json:"critical"`
}

// Response is the /health body.
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
	Summary   Summary          `json:"summary"`
}

// Monitor runs registered checks on demand.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[string]Checker
	timeout time.Duration
	started time.Time
	logger  logging.Logger
}

// NewMonitor returns a monitor with no checks. Each check gets up to five
// seconds.
func NewMonitor(logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Monitor{
		checks:  make(map[string]Checker),
		timeout: 5 * time.Second,
		started: time.Now(),
		logger:  logger.WithComponent("health"),
	}
}

// Register adds or replaces a checker by name.
func (m *Monitor) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[c.Name()] = c
}

// Names lists the registered checks in order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently and aggregates the results.
func (m *Monitor) Run(ctx context.Context) Response {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checks))
	for _, c := range m.checks {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(chan Check, len(checkers))
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			res := c.Check(cctx)
			res.Duration = time.Since(start)
			res.LastChecked = time.Now().UTC()
			results <- res
		}(c)
	}
	wg.Wait()
	close(results)

	resp := Response{
		Timestamp: time.Now().UTC(),
		Version:   version.Get().Short(),
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		Checks:    make(map[string]Check, len(checkers)),
	}
	for res := range results {
		resp.Checks[res.Name] = res
		if res.Status != StatusHealthy {
			m.logger.Warn(ctx, nil, "Health check failed",
				"name", res.Name, "status", string(res.Status), "message", res.Message)
		}
	}
	resp.Summary = summarize(resp.Checks)
	resp.Status = overall(resp.Checks)
	return resp
}

func summarize(checks map[string]Check) Summary {
	s := Summary{Total: len(checks)}
	for _, c := range checks {
		switch c.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		case StatusUnhealthy:
			s.Unhealthy++
		}
		if c.Critical {
			s.Critical++
		}
	}
	return s
}

// overall is unhealthy when a critical check is, degraded when any other
// check is not healthy.
func overall(checks map[string]Check) Status {
	status := StatusHealthy
	for _, c := range checks {
		switch {
		case c.Critical && c.Status == StatusUnhealthy:
			return StatusUnhealthy
		case c.Status != StatusHealthy:
			status = StatusDegraded
		}
	}
	return status
}

// Handler serves Run as JSON: 200 while healthy or degraded, 503 otherwise.
func (m *Monitor) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := m.Run(r.Context())
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			m.logger.Error(r.Context(), err, "Failed to encode health response")
		}
	}
}

// Pinger is implemented by every project store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendChecker pings the persistence backend.
func BackendChecker(kind string, store Pinger) Checker {
	return NewCheckFunc("backend", true, func(ctx context.Context) Check {
		meta := map[string]interface{}{"kind": kind}
		if err := store.Ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error(), Metadata: meta}
		}
		return Check{Status: StatusHealthy, Metadata: meta}
	})
}

// SessionChecker fails once the editor session is closed.
func SessionChecker(session interface{ Closed() bool }) Checker {
	return NewCheckFunc("session", true, func(ctx context.Context) Check {
		if session.Closed() {
			return Check{Status: StatusUnhealthy, Message: "editor session closed"}
		}
		return Check{Status: StatusHealthy}
	})
}

// PreviewChecker reports the current frame generation. No frame yet is
// degraded.
func PreviewChecker(frames interface{ Generation() uint64 }) Checker {
	return NewCheckFunc("preview", false, func(ctx context.Context) Check {
		gen := frames.Generation()
		meta := map[string]interface{}{"generation": gen}
		if gen == 0 {
			return Check{Status: StatusDegraded, Message: "no frame rendered", Metadata: meta}
		}
		return Check{Status: StatusHealthy, Metadata: meta}
	})
}

// Hub is the part of the live socket hub the check needs.
type Hub interface {
	Clients() int
	IsShutdown() bool
}

// HubChecker reports connected clients and fails after shutdown.
func HubChecker(hub Hub) Checker {
	return NewCheckFunc("live", false, func(ctx context.Context) Check {
		meta := map[string]interface{}{"clients": hub.Clients()}
		if hub.IsShutdown() {
			return Check{Status: StatusUnhealthy, Message: "live preview hub shut down", Metadata: meta}
		}
		return Check{Status: StatusHealthy, Metadata: meta}
	})
}

// WorkspaceChecker verifies the mirrored directory is still there.
func WorkspaceChecker(dir string) Checker {
	return NewCheckFunc("workspace", false, func(ctx context.Context) Check {
		meta := map[string]interface{}{"dir": dir}
		info, err := os.Stat(dir)
		switch {
		case err != nil:
			return Check{Status: StatusUnhealthy, Message: err.Error(), Metadata: meta}
		case !info.IsDir():
			return Check{Status: StatusUnhealthy, Message: "not a directory", Metadata: meta}
		}
		return Check{Status: StatusHealthy, Metadata: meta}
	})
}
