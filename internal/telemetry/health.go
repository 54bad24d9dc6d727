package telemetry

import (
	"sync/atomic"
)

// Dependency names one of the relay's external collaborators, used as
// the key for connectivity checks.
type Dependency string

const (
	DependencyTransport Dependency = "transport"
	DependencyRunDB     Dependency = "run_db"
	DependencyMonitorDB Dependency = "monitor_db"
)

// ConnectivityChecker is implemented by each dependency's client so the
// health service can ask it, without depending on its concrete type.
type ConnectivityChecker interface {
	CheckConnectivity() error
}

// HealthService tracks connection attempt/success/failure counts per
// dependency and reports a consolidated list of current issues.
type HealthService struct {
	checkers map[Dependency]ConnectivityChecker

	attempts atomic.Int64
	failures atomic.Int64
}

// NewHealthService wires one checker per dependency name.
func NewHealthService(checkers map[Dependency]ConnectivityChecker) *HealthService {
	return &HealthService{checkers: checkers}
}

// CheckAll runs every registered checker and returns a list of
// human-readable issue strings; an empty list means healthy.
func (h *HealthService) CheckAll() []string {
	var issues []string
	for name, checker := range h.checkers {
		h.attempts.Add(1)
		if err := checker.CheckConnectivity(); err != nil {
			h.failures.Add(1)
			issues = append(issues, string(name)+": "+err.Error())
		}
	}
	return issues
}

// Attempts reports the cumulative number of connectivity checks run.
func (h *HealthService) Attempts() int64 { return h.attempts.Load() }

// Failures reports the cumulative number of checks that failed.
func (h *HealthService) Failures() int64 { return h.failures.Load() }
