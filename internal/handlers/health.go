package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Bashir-Janbalat/store-app-be/internal/domain"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/httpx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	readinessTimeout     = 3 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthReporter collects dependency probes in one pass.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build    BuildInfo
	checks   map[string]HealthCheck
	reporter HealthReporter
	now      func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithHealthCheck registers a readiness probe under the given name.
func WithHealthCheck(name string, check HealthCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// WithHealthReporter merges the reporter's dependency results into readiness responses.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) { h.reporter = reporter }
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		checks: make(map[string]HealthCheck),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type healthPayload struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	CommitSHA   string                        `json:"commitSha,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime"`
	Timestamp   string                        `json:"timestamp"`
	Checks      map[string]healthCheckPayload `json:"checks,omitempty"`
	Details     []string                      `json:"details,omitempty"`
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.basePayload(healthStatusOK))
}

// Readyz runs every registered check and answers 503 when one fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	payload := h.basePayload(healthStatusOK)
	payload.Checks = make(map[string]healthCheckPayload, len(h.checks))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		start := h.now()
		err := h.checks[name](ctx)
		cancel()

		result := healthCheckPayload{Status: healthStatusOK, LatencyMS: h.now().Sub(start).Milliseconds()}
		if err != nil {
			result.Status = healthStatusDegraded
			result.Error = err.Error()
			payload.Status = healthStatusDegraded
			payload.Details = append(payload.Details, name+": "+err.Error())
		}
		payload.Checks[name] = result
	}

	if h.reporter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		report, err := h.reporter.Collect(ctx)
		cancel()
		if err != nil {
			payload.Status = healthStatusDegraded
			payload.Details = append(payload.Details, "reporter: "+err.Error())
		}
		reported := make([]string, 0, len(report.Checks))
		for name := range report.Checks {
			reported = append(reported, name)
		}
		sort.Strings(reported)
		for _, name := range reported {
			dep := report.Checks[name]
			result := healthCheckPayload{Status: dep.Status, LatencyMS: dep.Latency.Milliseconds()}
			if dep.Status != domain.HealthStatusOK {
				result.Error = dep.Detail
				payload.Status = healthStatusDegraded
				payload.Details = append(payload.Details, name+": "+dep.Detail)
			}
			payload.Checks[name] = result
		}
	}

	status := http.StatusOK
	if payload.Status != healthStatusOK {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, payload)
}

func (h *HealthHandlers) basePayload(status string) healthPayload {
	now := h.now().UTC()
	return healthPayload{
		Status:      status,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	}
}
