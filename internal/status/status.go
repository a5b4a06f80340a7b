// Package status reports whether the storefront's upstream dependencies are reachable.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// States reported for the whole summary and for each component.
const (
	StateOperational = "operational"
	StateDegraded    = "degraded"
	StateDown        = "down"
)

// Summary captures the last probe of every registered component.
type Summary struct {
	State      string      `json:"state"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Components []Component `json:"components"`
}

// Component represents the status of an individual dependency.
type Component struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Required bool   `json:"required"`
	Error    string `json:"error,omitempty"`
	Latency  string `json:"latency"`
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

type probe struct {
	name     string
	required bool
	fn       Probe
}

// Checker runs registered probes and caches the summary for a short time so load
// balancer polling does not hammer upstream APIs.
type Checker struct {
	timeout time.Duration
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	probes []probe

	mu      sync.Mutex
	cached  Summary
	expires time.Time
}

// NewChecker builds a checker. Each probe is bounded by timeout.
func NewChecker(timeout, ttl time.Duration, logger *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{timeout: timeout, ttl: ttl, logger: logger, now: time.Now}
}

// Register adds a probe. A failing required probe marks the service down; an optional
// one only degrades it.
func (c *Checker) Register(name string, required bool, fn Probe) {
	c.probes = append(c.probes, probe{name: name, required: required, fn: fn})
}

// Check returns the cached summary or probes every component concurrently.
func (c *Checker) Check(ctx context.Context) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.expires.IsZero() && c.now().Before(c.expires) {
		return cloneSummary(c.cached)
	}

	components := make([]Component, len(c.probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			start := c.now()
			err := p.fn(pctx)
			comp := Component{Name: p.name, Required: p.required, Status: StateOperational, Latency: c.now().Sub(start).Round(time.Millisecond).String()}
			if err != nil {
				comp.Status = StateDown
				comp.Error = err.Error()
				c.logger.Warn("status probe failed", zap.String("component", p.name), zap.Error(err))
			}
			components[i] = comp
			// a failed probe must not cancel its siblings
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	summary := Summary{State: StateOperational, UpdatedAt: c.now().UTC(), Components: components}
	for _, comp := range components {
		if comp.Status == StateOperational {
			continue
		}
		if comp.Required {
			summary.State = StateDown
			break
		}
		summary.State = StateDegraded
	}

	c.cached = summary
	c.expires = c.now().Add(c.ttl)
	return cloneSummary(summary)
}

// Handler serves the summary as JSON: 200 unless a required component is down.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary := c.Check(r.Context())
		code := http.StatusOK
		if summary.State == StateDown {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(summary)
	})
}

func cloneSummary(src Summary) Summary {
	dst := src
	dst.Components = append([]Component(nil), src.Components...)
	return dst
}
