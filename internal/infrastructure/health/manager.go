// Package health aggregates component checks for the HTTP and gRPC health surfaces
package health

import (
	"sort"
	"sync"

	"signal_gateway/internal/core"
)

const (
	statusHealthy   = "Healthy"
	unhealthyPrefix = "Unhealthy: "
)

// HealthManager runs registered component checks on demand
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
}

func NewHealthManager(logger core.ILogger) *HealthManager {
	return &HealthManager{
		logger: logger.WithField("component", "health_manager"),
		checks: make(map[string]func() error),
	}
}

// Register adds or replaces the check for a component
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
}

// Components returns the registered component names, sorted
func (hm *HealthManager) Components() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshot copies the checks so they run without holding the lock.
// Exchange checks make network calls.
func (hm *HealthManager) snapshot() map[string]func() error {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make(map[string]func() error, len(hm.checks))
	for name, check := range hm.checks {
		out[name] = check
	}
	return out
}

// GetStatus runs every check and reports "Healthy" or "Unhealthy: <err>" per component
func (hm *HealthManager) GetStatus() map[string]string {
	checks := hm.snapshot()
	status := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(); err != nil {
			status[name] = unhealthyPrefix + err.Error()
			hm.logger.Warn("Component unhealthy", "name", name, "error", err)
			continue
		}
		status[name] = statusHealthy
	}
	return status
}

// IsHealthy stops at the first failing check
func (hm *HealthManager) IsHealthy() bool {
	for _, check := range hm.snapshot() {
		if check() != nil {
			return false
		}
	}
	return true
}

var _ core.IHealthMonitor = (*HealthManager)(nil)
