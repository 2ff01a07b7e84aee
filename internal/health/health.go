// Package health serves liveness and readiness endpoints with
// per-dependency checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checker probes one dependency. Check returns nil when healthy.
type Checker struct {
	Name string
	// Critical checks gate readiness; non-critical failures only degrade.
	Critical bool
	Check    func(ctx context.Context) error
}

type componentResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Critical bool   `json:"critical"`
}

type report struct {
	Status     string                     `json:"status"`
	Components map[string]componentResult `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type Handler struct {
	checkers []Checker
	timeout  time.Duration
	logger   *zap.Logger
}

func NewHandler(logger *zap.Logger, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, timeout: 5 * time.Second, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleLiveness)
	mux.HandleFunc("GET /readyz", h.handleReadiness)
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		components = make(map[string]componentResult, len(h.checkers))
		ready      = true
		degraded   = false
	)
	for _, c := range h.checkers {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			res := componentResult{Status: "healthy", Critical: c.Critical}
			if err != nil {
				res.Status = "unhealthy"
				res.Error = err.Error()
				if c.Critical {
					ready = false
				} else {
					degraded = true
				}
				h.logger.Warn("health check failed",
					zap.String("component", c.Name),
					zap.Bool("critical", c.Critical),
					zap.Error(err),
				)
			}
			components[c.Name] = res
		}()
	}
	wg.Wait()

	rep := report{Status: "healthy", Components: components, Timestamp: time.Now().UTC()}
	code := http.StatusOK
	switch {
	case !ready:
		rep.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case degraded:
		rep.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
