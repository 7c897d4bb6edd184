package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Health status values
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body served by /health and /ready
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// Probe reports a component's health; a nil error means healthy
type Probe func() error

// HealthChecker keeps component health and the probes that refresh it
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	probes     map[string]Probe
	critical   []string
	startTime  time.Time
	version    string
}

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		probes:     make(map[string]Probe),
		critical:   []string{"registry"},
		startTime:  time.Now(),
	}
}

var healthChecker = newHealthChecker()

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetCriticalComponents replaces the components readiness waits for
func SetCriticalComponents(names ...string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.critical = append([]string(nil), names...)
}

// UpdateComponent records the health of a component
func UpdateComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// RegisterProbe installs a probe for name and runs it once
func RegisterProbe(name string, probe Probe) {
	healthChecker.mu.Lock()
	healthChecker.probes[name] = probe
	healthChecker.mu.Unlock()

	runProbe(name, probe)
}

// RunProbes refreshes every component that has a probe
func RunProbes() {
	healthChecker.mu.RLock()
	probes := make(map[string]Probe, len(healthChecker.probes))
	for name, p := range healthChecker.probes {
		probes[name] = p
	}
	healthChecker.mu.RUnlock()

	for name, p := range probes {
		runProbe(name, p)
	}
}

func runProbe(name string, probe Probe) {
	if err := probe(); err != nil {
		UpdateComponent(name, false, err.Error())
		return
	}
	UpdateComponent(name, true, "")
}

// GetHealth returns the overall health; any unhealthy component makes the
// process unhealthy
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusHealthy
	components := make(map[string]string)
	for name, comp := range healthChecker.components {
		if comp.Healthy {
			components[name] = StatusHealthy
			continue
		}
		status = StatusUnhealthy
		components[name] = StatusUnhealthy + ": " + comp.Message
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

// GetReadiness reports ready once every critical component is registered
// and healthy
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusReady
	message := ""
	components := make(map[string]string)

	critical := append([]string(nil), healthChecker.critical...)
	sort.Strings(critical)
	for _, name := range critical {
		comp, exists := healthChecker.components[name]
		switch {
		case !exists:
			status = StatusNotReady
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.Healthy:
			status = StatusNotReady
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = StatusReady
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

func writeStatus(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves /health
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		code := http.StatusOK
		if health.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, health)
	}
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		code := http.StatusOK
		if readiness.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, readiness)
	}
}

// LivenessHandler always answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
