package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the body of /ready. Checks holds one line per dependency.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// readinessCheck reports a detail line, or an error when the daemon cannot
// serve plan requests yet
type readinessCheck struct {
	name  string
	check func() (string, error)
}

func (s *Server) readinessChecks() []readinessCheck {
	return []readinessCheck{
		{name: "storage", check: s.checkStorage},
		{name: "plan", check: s.checkPlan},
	}
}

func (s *Server) checkStorage() (string, error) {
	if s.tasks == nil {
		return "not initialized", errors.New("Storage not initialized")
	}
	infos, err := s.tasks.ListTaskInfos()
	if err != nil {
		return "error: " + err.Error(), errors.New("Storage not accessible")
	}
	return fmt.Sprintf("ok (%d tasks)", len(infos)), nil
}

func (s *Server) checkPlan() (string, error) {
	p := s.plans.Plan()
	if p == nil {
		return "none", errors.New("Waiting for a rollout target")
	}
	return fmt.Sprintf("%s (%s)", p.ID(), p.Status()), nil
}

// healthHandler answers 200 while the process can serve HTTP
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
	})
}

// readyHandler runs every readiness check; the first failure becomes the message
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	resp := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}
	for _, c := range s.readinessChecks() {
		detail, err := c.check()
		resp.Checks[c.name] = detail
		if err != nil && resp.Message == "" {
			resp.Status = "not ready"
			resp.Message = err.Error()
		}
	}

	code := http.StatusOK
	if resp.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}
