package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/meshrider/meshgate/internal/errors"
	"github.com/meshrider/meshgate/internal/metrics"
)

// Check results.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// CheckHealth calls f(ctx).
func (f HealthCheckFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

type registeredCheck struct {
	name     string
	checker  HealthChecker
	optional bool
}

// probe describes one Kubernetes-style endpoint.
type probe struct {
	name    string
	timeout time.Duration
	// runs selects which checks the probe evaluates; nil runs none.
	runs func(c registeredCheck) bool
}

var (
	aggregateProbe = probe{name: "", timeout: 5 * time.Second, runs: func(registeredCheck) bool { return true }}
	// The relay keeps working without its dependencies, so liveness only
	// reports that the process is serving.
	livenessProbe  = probe{name: "live", timeout: time.Second}
	readinessProbe = probe{name: "ready", timeout: 5 * time.Second, runs: func(registeredCheck) bool { return true }}
	startupProbe   = probe{name: "startup", timeout: 3 * time.Second, runs: func(c registeredCheck) bool { return !c.optional }}
)

// HealthManager runs registered checks for the health endpoints. Checkers
// are registered before the server starts.
type HealthManager struct {
	checks  []registeredCheck
	version string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version}
}

// RegisterChecker registers a checker whose failure makes the gateway
// unhealthy.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.register(registeredCheck{name: name, checker: checker})
}

// RegisterOptionalChecker registers a checker whose failure only degrades
// the gateway (the device registry, for example).
func (hm *HealthManager) RegisterOptionalChecker(name string, checker HealthChecker) {
	hm.register(registeredCheck{name: name, checker: checker, optional: true})
}

func (hm *HealthManager) register(c registeredCheck) {
	for i := range hm.checks {
		if hm.checks[i].name == c.name {
			hm.checks[i] = c
			return
		}
	}
	hm.checks = append(hm.checks, c)
}

// runHealthChecks executes the checks selected by p in registration order.
func (hm *HealthManager) runHealthChecks(ctx context.Context, p probe) map[string]string {
	results := make(map[string]string)
	if p.runs == nil {
		return results
	}

	for _, c := range hm.checks {
		if !p.runs(c) {
			continue
		}
		if ctx.Err() != nil {
			results[c.name] = StatusTimeout
			continue
		}

		started := time.Now()
		err := c.checker.CheckHealth(ctx)
		metrics.RecordHealthCheck(c.name, err == nil, time.Since(started))

		switch {
		case err == nil:
			results[c.name] = StatusHealthy
		case c.optional:
			results[c.name] = StatusDegraded
		default:
			results[c.name] = StatusUnhealthy
		}
	}
	return results
}

// determineOverallStatus folds check results into one status.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := StatusHealthy
	for _, result := range checks {
		switch result {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusTimeout:
			status = StatusDegraded
		}
	}
	return status
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, p probe) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	checks := hm.runHealthChecks(ctx, p)
	status := hm.determineOverallStatus(checks)

	if status == StatusUnhealthy {
		message := "aggregate health check failed"
		if p.name != "" {
			message = p.name + " probe failed"
		}
		respondWithError(w, r, enrichHealthEnvelope(apperrors.NewServiceUnavailableError(message), p.name, status, checks))
		return
	}

	var body any = ProbeResponse{Status: status, Timestamp: time.Now().UTC()}
	if p.name == "" {
		body = HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler reports every check with the build version.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, aggregateProbe)
}

// LivenessHandler answers while the process can serve requests.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, livenessProbe)
}

// ReadinessHandler fails when a required dependency is down.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, readinessProbe)
}

// StartupHandler evaluates only the required checks.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, startupProbe)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	details := map[string]interface{}{"status": status}
	contextData := map[string]interface{}{"status": status}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
		contextData["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}
