package app

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/k9trail/bridge/internal"
)

// HealthChecker interface for backend health checking
type HealthChecker interface {
	HealthCheck() error
}

// HealthManager manages the health status of the bridge
type HealthManager struct {
	healthy  int64 // Use atomic for thread-safe access
	checkers []HealthChecker
}

// NewHealthManager creates a new health manager aggregating the given backends
func NewHealthManager(checkers ...HealthChecker) *HealthManager {
	return &HealthManager{healthy: 0, checkers: checkers}
}

// UpdateHealthStatus checks every backend and updates metrics
func (h *HealthManager) UpdateHealthStatus() {
	var healthStatus int64 = 1
	for _, checker := range h.checkers {
		if err := checker.HealthCheck(); err != nil {
			log.WithField("prefix", "UpdateHealthStatus").Warnf("health check failed: %v", err)
			healthStatus = 0
			break
		}
	}

	atomic.StoreInt64(&h.healthy, healthStatus)
	HealthMetric.Set(float64(healthStatus))
	ReadyMetric.Set(float64(healthStatus))
}

// StartHealthMonitoring starts a background goroutine to monitor health
func (h *HealthManager) StartHealthMonitoring() {
	h.UpdateHealthStatus()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		h.UpdateHealthStatus()
	}
}

// HealthHandler returns HTTP handler for health endpoints
func (h *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.BridgeVersionRevision)

	healthy := atomic.LoadInt64(&h.healthy)
	if healthy == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, err := fmt.Fprintf(w, `{"status":"unhealthy"}`+"\n")
		if err != nil {
			log.Errorf("health response write error: %v", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	_, err := fmt.Fprintf(w, `{"status":"ok"}`+"\n")
	if err != nil {
		log.Errorf("health response write error: %v", err)
	}
}

// VersionHandler returns HTTP handler for version endpoint
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.BridgeVersionRevision)

	w.WriteHeader(http.StatusOK)
	response := fmt.Sprintf(`{"version":"%s"}`, internal.BridgeVersionRevision)
	_, err := fmt.Fprintf(w, "%s", response+"\n")
	if err != nil {
		log.Errorf("version response write error: %v", err)
	}
}
