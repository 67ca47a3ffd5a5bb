package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/plan"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNoPlan is returned by plan endpoints before any rollout is adopted
var ErrNoPlan = errors.New("no plan adopted")

// PlanSource hands out the active plan, or nil
type PlanSource interface {
	Plan() *plan.Plan
}

// TaskLister is used by the readiness check to prove the store answers
type TaskLister interface {
	ListTaskInfos() ([]*types.TaskInfo, error)
}

// Server exposes the plan management API plus health and metrics
type Server struct {
	plans    PlanSource
	tasks    TaskLister
	readOnly bool
	version  string
	mux      *http.ServeMux
	http     *http.Server
	logger   zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithReadOnly rejects every mutating request
func WithReadOnly() Option {
	return func(s *Server) { s.readOnly = true }
}

// WithVersion sets the version reported by /health
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new API server
func NewServer(plans PlanSource, tasks TaskLister, opts ...Option) *Server {
	s := &Server{
		plans:  plans,
		tasks:  tasks,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /v1/plan/status", s.statusHandler)
	s.mux.HandleFunc("GET /v1/plan/summary", s.summaryHandler)
	s.mux.HandleFunc("GET /v1/plan/phases", s.phasesHandler)
	s.mux.HandleFunc("GET /v1/plan/phases/{phaseId}", s.phaseHandler)
	s.mux.HandleFunc("PUT /v1/plan/phases/{phaseId}/{unitId}", s.unitCommandHandler)
	s.mux.HandleFunc("PUT /v1/plan", s.planCommandHandler)

	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.Handle("/health/components", metrics.HealthHandler())
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.Handle("/ready/components", metrics.ReadyHandler())
	s.mux.Handle("/live", metrics.LivenessHandler())
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Handler returns the API with middleware applied
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.readOnly {
		h = ReadOnly(h)
	}
	return Instrument(h)
}

// Start serves on addr until Stop is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Bool("read_only", s.readOnly).Msg("API listening")
	metrics.RegisterComponent("api", true, "listening on "+addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent("api", false, err.Error())
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) currentPlan(w http.ResponseWriter) *plan.Plan {
	p := s.plans.Plan()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoPlan)
	}
	return p
}

type empty struct{}

type statusResponse struct {
	Plan  any `json:"plan"`
	Phase any `json:"phase"`
	Block any `json:"block"`
}

// statusHandler answers with empty parts while no plan is adopted
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Plan: empty{}, Phase: empty{}, Block: empty{}}
	p := s.plans.Plan()
	if p == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	view := p.View()
	if view.Plan != nil {
		resp.Plan = view.Plan
	}
	if view.Phase != nil {
		resp.Phase = view.Phase
	}
	if view.Unit != nil {
		resp.Block = view.Unit
	}
	writeJSON(w, http.StatusOK, resp)
}

// summaryHandler answers {} while no plan is adopted
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	p := s.plans.Plan()
	if p == nil {
		writeJSON(w, http.StatusOK, empty{})
		return
	}
	writeJSON(w, http.StatusOK, p.Summary())
}

// PhaseList is the body of GET /v1/plan/phases; each entry maps a phase id to its name
type PhaseList struct {
	Phases []map[string]string `json:"phases"`
}

func (s *Server) phasesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.currentPlan(w)
	if p == nil {
		return
	}

	resp := PhaseList{Phases: make([]map[string]string, 0)}
	for _, ph := range p.Phases() {
		resp.Phases = append(resp.Phases, map[string]string{ph.ID(): ph.Name()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// BlockInfo names one unit of a phase
type BlockInfo struct {
	Name   string       `json:"name"`
	Status types.Status `json:"status"`
}

// BlockList is the body of GET /v1/plan/phases/{phaseId}; each entry maps a unit id to its info
type BlockList struct {
	Blocks []map[string]BlockInfo `json:"blocks"`
}

func (s *Server) phaseHandler(w http.ResponseWriter, r *http.Request) {
	p := s.currentPlan(w)
	if p == nil {
		return
	}

	ph, err := p.Phase(r.PathValue("phaseId"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to look up phase")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := BlockList{Blocks: make([]map[string]BlockInfo, 0)}
	for _, u := range ph.Units() {
		resp.Blocks = append(resp.Blocks, map[string]BlockInfo{
			u.ID(): {Name: u.Name(), Status: u.Status()},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CommandResult acknowledges an accepted command
type CommandResult struct {
	Result string `json:"Result"`
}

func (s *Server) unitCommandHandler(w http.ResponseWriter, r *http.Request) {
	p := s.currentPlan(w)
	if p == nil {
		return
	}

	raw := r.URL.Query().Get("cmd")
	phaseID, unitID := r.PathValue("phaseId"), r.PathValue("unitId")
	logger := s.logger.With().Str("cmd", raw).Str("phase_id", phaseID).Str("unit_id", unitID).Logger()

	cmd, err := plan.ParseCommand(plan.ScopeUnit, raw)
	if err != nil {
		logger.Error().Err(err).Msg("Rejected command")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := p.ExecuteUnitCommand(cmd, phaseID, unitID); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	logger.Info().Msg("Command accepted")
	writeJSON(w, http.StatusOK, CommandResult{Result: fmt.Sprintf("Received cmd: '%s'", cmd)})
}

func (s *Server) planCommandHandler(w http.ResponseWriter, r *http.Request) {
	p := s.currentPlan(w)
	if p == nil {
		return
	}

	raw := r.URL.Query().Get("cmd")
	cmd, err := plan.ParseCommand(plan.ScopePlan, raw)
	if err != nil {
		s.logger.Error().Err(err).Str("cmd", raw).Msg("Rejected command")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := p.ExecutePlanCommand(cmd); err != nil {
		s.logger.Error().Err(err).Str("cmd", raw).Msg("Command failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info().Str("cmd", raw).Msg("Command accepted")
	writeJSON(w, http.StatusOK, CommandResult{Result: fmt.Sprintf("Received cmd: %s", cmd)})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
