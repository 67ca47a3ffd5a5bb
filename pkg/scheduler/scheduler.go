package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/brokerfleet/pkg/events"
	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/offer"
	"github.com/cuemby/brokerfleet/pkg/plan"
	"github.com/cuemby/brokerfleet/pkg/storage"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/rs/zerolog"
)

// Backend is the cluster the scheduler launches brokers on
type Backend interface {
	Offers() []*types.Offer
	Launch(agentID string, tasks []*types.TaskInfo) error
	Kill(taskID string) error
	Statuses() <-chan *types.TaskStatus
}

// TaskStore is the slice of persisted state the scheduler writes
type TaskStore interface {
	SaveTaskInfo(info *types.TaskInfo) error
	TaskInfoForBroker(brokerID int) (*types.TaskInfo, error)
	SaveTaskStatus(status *types.TaskStatus) error
	DeleteBroker(brokerID int) error
}

// PlanSource hands out the plan currently being executed, or nil
type PlanSource interface {
	Plan() *plan.Plan
}

// Config holds the scheduler's collaborators
type Config struct {
	Backend   Backend
	Store     TaskStore
	Plans     PlanSource
	Publisher events.Publisher
	Interval  time.Duration
}

type killRequest struct {
	info       *types.TaskInfo
	reschedule bool
}

// Scheduler drives the current plan: each cycle it lets the next unit ask for
// resources, matches the request against offers and launches the tasks. It
// also feeds task statuses back into the plan.
type Scheduler struct {
	backend   Backend
	store     TaskStore
	plans     PlanSource
	publisher events.Publisher
	interval  time.Duration
	logger    zerolog.Logger

	// launching gates a broker between its unit's Start and offer outcome.
	// Statuses for that broker wait on the gate, so a unit always learns its
	// offer outcome before it sees the launched task run.
	launchMu  sync.Mutex
	launching map[int]chan struct{}

	completedMu   sync.Mutex
	completedPlan string

	killMu sync.Mutex
	kills  map[string]killRequest

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Discard
	}
	return &Scheduler{
		backend:   cfg.Backend,
		store:     cfg.Store,
		plans:     cfg.Plans,
		publisher: publisher,
		interval:  interval,
		logger:    log.WithComponent("scheduler"),
		kills:     make(map[string]killRequest),
		launching: make(map[int]chan struct{}),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the scheduler loop and the status consumer
func (s *Scheduler) Start() {
	metrics.RegisterComponent("scheduler", true, "running")
	s.wg.Add(2)
	go s.run()
	go s.consumeStatuses()
}

// Stop stops the scheduler and waits for its goroutines
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	metrics.UpdateComponent("scheduler", false, "stopped")
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.schedule(); err != nil {
				s.logger.Error().Err(err).Msg("Scheduling cycle failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) consumeStatuses() {
	defer s.wg.Done()
	statuses := s.backend.Statuses()
	for {
		select {
		case st, ok := <-statuses:
			if !ok {
				return
			}
			s.HandleStatus(st)
		case <-s.stopCh:
			return
		}
	}
}

// RestartTasks queues the tasks to be killed in place on the next cycle
func (s *Scheduler) RestartTasks(tasks []*types.TaskInfo) {
	s.enqueueKills(tasks, false)
}

// RescheduleTasks queues the tasks to be killed and forgotten, so their
// brokers are relaunched on whichever agent fits
func (s *Scheduler) RescheduleTasks(tasks []*types.TaskInfo) {
	s.enqueueKills(tasks, true)
}

func (s *Scheduler) enqueueKills(tasks []*types.TaskInfo, reschedule bool) {
	s.killMu.Lock()
	defer s.killMu.Unlock()
	for _, t := range tasks {
		if prev, ok := s.kills[t.ID]; ok && prev.reschedule {
			continue
		}
		s.kills[t.ID] = killRequest{info: t, reschedule: reschedule}
	}
}

func (s *Scheduler) takeKills() []killRequest {
	s.killMu.Lock()
	defer s.killMu.Unlock()
	out := make([]killRequest, 0, len(s.kills))
	for _, k := range s.kills {
		out = append(out, k)
	}
	s.kills = make(map[string]killRequest)
	return out
}

// schedule performs one scheduling cycle
func (s *Scheduler) schedule() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	s.processKills()

	p := s.plans.Plan()
	if p == nil {
		return nil
	}

	u := p.NextUnit()
	if u == nil || !u.IsPending() {
		return nil
	}

	release := s.holdBroker(u.BrokerID())
	defer release()

	req, ok := u.Start()
	if !ok {
		return nil
	}

	if err := s.launch(req); err != nil {
		u.OfferAccepted(false)
		return fmt.Errorf("failed to launch %s: %w", u.Name(), err)
	}
	u.OfferAccepted(true)
	return nil
}

// holdBroker closes the broker's gate until release is called
func (s *Scheduler) holdBroker(brokerID int) (release func()) {
	gate := make(chan struct{})
	s.launchMu.Lock()
	s.launching[brokerID] = gate
	s.launchMu.Unlock()

	return func() {
		s.launchMu.Lock()
		delete(s.launching, brokerID)
		s.launchMu.Unlock()
		close(gate)
	}
}

// awaitLaunch blocks while a launch for the broker is being decided
func (s *Scheduler) awaitLaunch(brokerID int) {
	s.launchMu.Lock()
	gate := s.launching[brokerID]
	s.launchMu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-s.stopCh:
	}
}

func (s *Scheduler) processKills() {
	for _, k := range s.takeKills() {
		reason := "restart"
		if k.reschedule {
			reason = "reschedule"
		}
		logger := s.logger.With().Str("task_id", k.info.ID).Str("reason", reason).Logger()

		if err := s.backend.Kill(k.info.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to kill task")
			continue
		}
		metrics.TasksKilled.WithLabelValues(reason).Inc()
		logger.Info().Msg("Killed task")

		if k.reschedule {
			if err := s.store.DeleteBroker(k.info.BrokerID); err != nil {
				logger.Error().Err(err).Msg("Failed to forget rescheduled task")
			}
		}

		s.publisher.Publish(&events.Event{
			Type:     events.EventTaskKilled,
			Message:  "killed task " + k.info.ID,
			Metadata: map[string]string{"task_id": k.info.ID, "reason": reason},
		})
	}
}

var errNoOffer = errors.New("no offer satisfies the requirement")

// launch matches req against current offers and starts its tasks. The task
// records are persisted first so statuses from the new tasks are accepted.
func (s *Scheduler) launch(req *types.OfferRequirement) error {
	o := offer.Evaluate(req, s.backend.Offers())
	if o == nil {
		return errNoOffer
	}

	previous := make(map[int]*types.TaskInfo, len(req.Tasks))
	for _, t := range req.Tasks {
		prev, err := s.store.TaskInfoForBroker(t.BrokerID)
		if err != nil {
			return err
		}
		previous[t.BrokerID] = prev

		t.AgentID = o.AgentID
		if err := s.store.SaveTaskInfo(t); err != nil {
			return fmt.Errorf("failed to persist task %s: %w", t.ID, err)
		}
	}

	if err := s.backend.Launch(o.AgentID, req.Tasks); err != nil {
		s.restore(previous)
		return err
	}

	for _, t := range req.Tasks {
		metrics.TasksLaunched.Inc()
		s.logger.Info().
			Str("task_id", t.ID).
			Str("agent_id", o.AgentID).
			Str("config", t.ConfigName).
			Msg("Launched task")
		s.publisher.Publish(&events.Event{
			Type:     events.EventTaskLaunched,
			Message:  "launched task " + t.ID + " on " + o.Hostname,
			Metadata: map[string]string{"task_id": t.ID, "agent_id": o.AgentID},
		})
	}
	return nil
}

func (s *Scheduler) restore(previous map[int]*types.TaskInfo) {
	for brokerID, prev := range previous {
		var err error
		if prev == nil {
			err = s.store.DeleteBroker(brokerID)
		} else {
			err = s.store.SaveTaskInfo(prev)
		}
		if err != nil {
			s.logger.Error().Err(err).Int("broker_id", brokerID).Msg("Failed to restore task record")
		}
	}
}

// HandleStatus persists a task status and routes it to the current plan
func (s *Scheduler) HandleStatus(st *types.TaskStatus) {
	if brokerID, err := types.BrokerIDFromTaskID(st.TaskID); err == nil {
		s.awaitLaunch(brokerID)
	}

	logger := s.logger.With().Str("task_status", st.String()).Logger()

	if err := s.store.SaveTaskStatus(st); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			logger.Debug().Msg("Status for superseded task not persisted")
		} else {
			logger.Error().Err(err).Msg("Failed to persist task status")
		}
	}

	p := s.plans.Plan()
	if p == nil {
		return
	}
	p.Update(st)

	if p.IsComplete() && s.markCompleted(p.ID()) {
		logger.Info().Str("plan_id", p.ID()).Msg("Plan complete")
		s.publisher.Publish(&events.Event{
			Type:     events.EventPlanCompleted,
			Message:  "plan complete",
			Metadata: map[string]string{"plan_id": p.ID()},
		})
	}
}

// markCompleted reports whether planID is newly complete
func (s *Scheduler) markCompleted(planID string) bool {
	s.completedMu.Lock()
	defer s.completedMu.Unlock()
	if s.completedPlan == planID {
		return false
	}
	s.completedPlan = planID
	return true
}
