package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownAgent is returned for an agent id the cluster does not know
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrUnknownTask is returned for a task id the cluster does not know
	ErrUnknownTask = errors.New("unknown task")
	// ErrInsufficientResources is returned when a launch does not fit the agent
	ErrInsufficientResources = errors.New("insufficient resources")
)

// Agent describes one machine that can run brokers
type Agent struct {
	ID       string
	Hostname string
	Total    types.Resources
}

type agentState struct {
	Agent
	used      types.Resources
	usedPorts map[int]string
}

type taskRecord struct {
	info  *types.TaskInfo
	state types.TaskState
}

// Simulator is an in-memory cluster backend. It tracks agent capacity,
// launches and kills tasks, and reports every task state change on the
// channel returned by Statuses.
type Simulator struct {
	mu     sync.Mutex
	agents map[string]*agentState
	tasks  map[string]*taskRecord

	startupDelay time.Duration

	queueMu sync.Mutex
	queue   []*types.TaskStatus
	notify  chan struct{}
	out     chan *types.TaskStatus

	logger zerolog.Logger
}

// Option configures a Simulator
type Option func(*Simulator)

// WithStartupDelay holds launched tasks in TASK_STAGING for d before they run
func WithStartupDelay(d time.Duration) Option {
	return func(s *Simulator) { s.startupDelay = d }
}

// NewSimulator creates a cluster with the given agents
func NewSimulator(agents []Agent, opts ...Option) *Simulator {
	s := &Simulator{
		agents: make(map[string]*agentState, len(agents)),
		tasks:  make(map[string]*taskRecord),
		notify: make(chan struct{}, 1),
		out:    make(chan *types.TaskStatus),
		logger: log.WithComponent("cluster"),
	}
	for _, a := range agents {
		s.agents[a.ID] = &agentState{Agent: a, usedPorts: make(map[int]string)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UniformAgents builds count identical agents offering the given resources
func UniformAgents(count int, total types.Resources) []Agent {
	agents := make([]Agent, 0, count)
	for i := 0; i < count; i++ {
		agents = append(agents, Agent{
			ID:       "agent-" + uuid.New().String()[:8],
			Hostname: "host-" + strconv.Itoa(i),
			Total:    total,
		})
	}
	return agents
}

// Run delivers queued statuses until ctx is done
func (s *Simulator) Run(ctx context.Context) error {
	for {
		for _, st := range s.drain() {
			select {
			case s.out <- st:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Statuses returns the status stream. It is fed only while Run is active.
func (s *Simulator) Statuses() <-chan *types.TaskStatus {
	return s.out
}

func (s *Simulator) emit(st *types.TaskStatus) {
	st.Timestamp = time.Now()
	s.queueMu.Lock()
	s.queue = append(s.queue, st)
	s.queueMu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Simulator) drain() []*types.TaskStatus {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// Offers returns one offer per agent covering its unreserved resources
func (s *Simulator) Offers() []*types.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()

	offers := make([]*types.Offer, 0, len(s.agents))
	for _, a := range s.agents {
		avail := a.Total.Sub(a.used)
		for _, p := range a.Total.Ports {
			if _, taken := a.usedPorts[p]; !taken {
				avail.Ports = append(avail.Ports, p)
			}
		}
		offers = append(offers, &types.Offer{
			ID:        uuid.New().String(),
			AgentID:   a.ID,
			Hostname:  a.Hostname,
			Resources: avail,
		})
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].Hostname < offers[j].Hostname })
	return offers
}

// Launch reserves resources on agentID and starts tasks there
func (s *Simulator) Launch(agentID string, tasks []*types.TaskInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	var need types.Resources
	for _, t := range tasks {
		need = need.Add(t.Resources)
		for _, p := range t.Resources.Ports {
			if owner, taken := a.usedPorts[p]; taken {
				return fmt.Errorf("%w: port %d on %s held by %s", ErrInsufficientResources, p, agentID, owner)
			}
		}
	}
	if !need.Fits(a.Total.Sub(a.used)) {
		return fmt.Errorf("%w on %s", ErrInsufficientResources, agentID)
	}

	for _, t := range tasks {
		info := *t
		info.AgentID = agentID
		a.used = a.used.Add(info.Resources)
		for _, p := range info.Resources.Ports {
			a.usedPorts[p] = info.ID
		}
		s.tasks[info.ID] = &taskRecord{info: &info, state: types.TaskStateStaging}
		s.logger.Info().
			Str("task_id", info.ID).
			Str("agent_id", agentID).
			Msg("Launched task")
		s.emit(&types.TaskStatus{TaskID: info.ID, State: types.TaskStateStaging, AgentID: agentID})

		if s.startupDelay > 0 {
			id := info.ID
			time.AfterFunc(s.startupDelay, func() { s.markRunning(id) })
		} else {
			s.setStateLocked(info.ID, types.TaskStateRunning, types.ReasonNone, "")
		}
	}
	return nil
}

func (s *Simulator) markRunning(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.tasks[taskID]; ok && rec.state == types.TaskStateStaging {
		s.setStateLocked(taskID, types.TaskStateRunning, types.ReasonNone, "")
	}
}

// Kill stops a task and releases its resources
func (s *Simulator) Kill(taskID string) error {
	return s.Fail(taskID, types.TaskStateKilled, types.ReasonKilled)
}

// Fail moves a live task into a terminal state, as a crash or lost agent would
func (s *Simulator) Fail(taskID string, state types.TaskState, reason types.TaskReason) error {
	if !state.IsTerminal() {
		return fmt.Errorf("%s is not a terminal state", state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if rec.state.IsTerminal() {
		return nil
	}
	s.setStateLocked(taskID, state, reason, "")
	s.release(rec.info)
	return nil
}

// RemoveAgent drops an agent and loses every task on it
func (s *Simulator) RemoveAgent(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	for id, rec := range s.tasks {
		if rec.info.AgentID == agentID && !rec.state.IsTerminal() {
			s.setStateLocked(id, types.TaskStateLost, types.ReasonAgentRemoved, "agent removed")
		}
	}
	delete(s.agents, agentID)
	s.logger.Warn().Str("agent_id", agentID).Msg("Agent removed")
	return nil
}

// Reconcile reports the current state of each task, tagged as reconciliation.
// Unknown tasks are reported lost.
func (s *Simulator) Reconcile(taskIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range taskIDs {
		st := &types.TaskStatus{TaskID: id, State: types.TaskStateLost, Reason: types.ReasonReconciliation}
		if rec, ok := s.tasks[id]; ok {
			st.State = rec.state
			st.AgentID = rec.info.AgentID
		}
		s.emit(st)
	}
}

// TaskState returns the simulated state of a task
func (s *Simulator) TaskState(taskID string) (types.TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return "", false
	}
	return rec.state, true
}

func (s *Simulator) setStateLocked(taskID string, state types.TaskState, reason types.TaskReason, msg string) {
	rec := s.tasks[taskID]
	rec.state = state
	s.emit(&types.TaskStatus{
		TaskID:  taskID,
		State:   state,
		Reason:  reason,
		Message: msg,
		AgentID: rec.info.AgentID,
	})
}

func (s *Simulator) release(info *types.TaskInfo) {
	a, ok := s.agents[info.AgentID]
	if !ok {
		return
	}
	a.used = a.used.Sub(info.Resources)
	for _, p := range info.Resources.Ports {
		if a.usedPorts[p] == info.ID {
			delete(a.usedPorts, p)
		}
	}
}
