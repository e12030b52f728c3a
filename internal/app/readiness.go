package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Readiness aggregates dependency health checks behind one endpoint. Each
// check gets a short deadline so a hung dependency cannot stall the probe.
type Readiness struct {
	checks []namedCheck
}

type namedCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// NewReadiness constructs an empty Readiness.
func NewReadiness() *Readiness { return &Readiness{} }

// Add registers a named dependency check.
func (r *Readiness) Add(name string, fn func(ctx context.Context) error) {
	r.checks = append(r.checks, namedCheck{name: name, fn: fn})
}

// Handler serves the readiness probe: 200 when every dependency answers,
// 503 with per-dependency statuses otherwise.
func (r *Readiness) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		statuses := make(map[string]string, len(r.checks))
		healthy := true
		for _, c := range r.checks {
			if err := c.fn(ctx); err != nil {
				statuses[c.name] = err.Error()
				healthy = false
				continue
			}
			statuses[c.name] = "ok"
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(statuses)
	}
}
