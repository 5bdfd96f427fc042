package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// EngineStatus mirrors the engine's implicit state machine for health reporting
type EngineStatus string

const (
	StatusNormal      EngineStatus = "normal"
	StatusCoolingOff  EngineStatus = "cooling_off"
	StatusEmergency   EngineStatus = "emergency_signaled"
)

// HealthChecker tracks liveness information for the health endpoint
type HealthChecker struct {
	mu             sync.RWMutex
	status         EngineStatus
	lastAssessment time.Time
	errors         []string
}

// HealthStatus is the JSON payload served by the health endpoint
type HealthStatus struct {
	Status         string       `json:"status"`
	EngineStatus   EngineStatus `json:"engine_status"`
	Timestamp      time.Time    `json:"timestamp"`
	LastAssessment time.Time    `json:"last_assessment"`
	Uptime         string       `json:"uptime"`
	Errors         []string     `json:"errors,omitempty"`
}

// NewHealthChecker creates a health checker starting in the normal state
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		status: StatusNormal,
		errors: make([]string, 0),
	}
}

// SetStatus records the engine's current state
func (h *HealthChecker) SetStatus(status EngineStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = status
}

// RecordAssessment marks that a portfolio risk assessment ran
func (h *HealthChecker) RecordAssessment() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastAssessment = time.Now()
}

// RecordError appends an error for health reporting, keeping the last 10
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if h.status == StatusEmergency {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:         status,
		EngineStatus:   h.status,
		Timestamp:      time.Now(),
		LastAssessment: h.lastAssessment,
		Uptime:         time.Since(startTime).String(),
		Errors:         h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
