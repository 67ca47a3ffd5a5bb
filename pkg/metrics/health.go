package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// CriticalComponents must be registered and healthy before the daemon is ready
var CriticalComponents = []string{"store", "scheduler", "api"}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body of the component health and readiness endpoints
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last report of one component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// Registry records component health reports
type Registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   []string
	started    time.Time
	version    string
}

// NewRegistry creates a registry that gates readiness on critical
func NewRegistry(critical ...string) *Registry {
	return &Registry{
		components: make(map[string]ComponentHealth),
		critical:   critical,
		started:    time.Now(),
	}
}

var defaultRegistry = NewRegistry(CriticalComponents...)

// SetVersion sets the version reported by the default registry
func SetVersion(version string) {
	defaultRegistry.SetVersion(version)
}

// RegisterComponent records a report on the default registry
func RegisterComponent(name string, healthy bool, message string) {
	defaultRegistry.Report(name, healthy, message)
}

// UpdateComponent is RegisterComponent under the name callers use after startup
func UpdateComponent(name string, healthy bool, message string) {
	defaultRegistry.Report(name, healthy, message)
}

// GetHealth returns the default registry's health
func GetHealth() HealthStatus {
	return defaultRegistry.Health()
}

// GetReadiness returns the default registry's readiness
func GetReadiness() HealthStatus {
	return defaultRegistry.Readiness()
}

// SetVersion sets the version included in every status
func (r *Registry) SetVersion(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
}

// Report records the latest health of a component, replacing any earlier report
func (r *Registry) Report(name string, healthy bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// Component returns the last report for name
func (r *Registry) Component(name string) (ComponentHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// Health is unhealthy when any registered component last reported unhealthy
func (r *Registry) Health() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := r.newStatus(StatusHealthy)
	for _, name := range r.namesLocked() {
		c := r.components[name]
		if c.Healthy {
			status.Components[name] = StatusHealthy
			continue
		}
		status.Status = StatusUnhealthy
		status.Components[name] = StatusUnhealthy + ": " + c.Message
		if status.Message == "" {
			status.Message = name + " is unhealthy"
		}
	}
	return status
}

// Readiness is ready once every critical component has reported healthy.
// The message names the first critical component still missing.
func (r *Registry) Readiness() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := r.newStatus(StatusReady)
	for _, name := range r.critical {
		c, ok := r.components[name]
		switch {
		case !ok:
			status.Components[name] = "not registered"
		case !c.Healthy:
			status.Components[name] = "not ready: " + c.Message
		default:
			status.Components[name] = StatusReady
			continue
		}
		if status.Status == StatusReady {
			status.Status = StatusNotReady
			status.Message = "waiting for " + name
		}
	}
	return status
}

func (r *Registry) newStatus(initial string) HealthStatus {
	return HealthStatus{
		Status:     initial,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthHandler serves the default registry's health, 503 when unhealthy
func HealthHandler() http.HandlerFunc {
	return defaultRegistry.HealthHandler()
}

// ReadyHandler serves the default registry's readiness, 503 until ready
func ReadyHandler() http.HandlerFunc {
	return defaultRegistry.ReadyHandler()
}

// LivenessHandler answers 200 for as long as the process serves requests
func LivenessHandler() http.HandlerFunc {
	return defaultRegistry.LivenessHandler()
}

func (r *Registry) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		health := r.Health()
		writeStatus(w, health, health.Status == StatusHealthy)
	}
}

func (r *Registry) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		readiness := r.Readiness()
		writeStatus(w, readiness, readiness.Status == StatusReady)
	}
}

func (r *Registry) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, map[string]string{
			"status": "alive",
			"uptime": time.Since(r.started).Round(time.Second).String(),
		}, true)
	}
}

func writeStatus(w http.ResponseWriter, body any, ok bool) {
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
