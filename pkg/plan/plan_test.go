package plan

import (
	"sync"
	"testing"

	"github.com/cuemby/brokerfleet/pkg/events"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingPublisher) Publish(e *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []types.Status
		want     types.Status
	}{
		{"empty", nil, types.StatusComplete},
		{"all complete", []types.Status{types.StatusComplete, types.StatusComplete}, types.StatusComplete},
		{"all pending", []types.Status{types.StatusPending, types.StatusPending}, types.StatusPending},
		{"single in progress", []types.Status{types.StatusInProgress}, types.StatusInProgress},
		{"complete and pending", []types.Status{types.StatusComplete, types.StatusPending}, types.StatusInProgress},
		{"pending and in progress", []types.Status{types.StatusPending, types.StatusInProgress}, types.StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.statuses...))
		})
	}
}

// completedUnit returns a unit whose broker already runs the target config
func completedUnit(h *harness, brokerID int) *Unit {
	h.state.deploy(brokerID, types.BrokerName(brokerID)+"-task", "v2", types.TaskStateRunning)
	return NewUnit(brokerID, "v2", h.deps())
}

func TestPlanCursorSkipsCompletedPhase(t *testing.T) {
	h := newHarness()
	first := NewPhase("first", []*Unit{completedUnit(h, 0), completedUnit(h, 1)}, nil)

	done := completedUnit(h, 2)
	waiting := NewUnit(3, "v2", h.deps())
	second := NewPhase("second", []*Unit{done, waiting}, nil)

	p := NewPlan([]*Phase{first, second}, nil)

	assert.Equal(t, types.StatusComplete, first.Status())
	assert.Equal(t, types.StatusInProgress, second.Status())
	assert.Equal(t, types.StatusInProgress, p.Status())
	assert.Same(t, second, p.CurrentPhase())
	assert.Same(t, waiting, p.CurrentUnit())
	assert.Same(t, waiting, p.NextUnit())
}

func TestPlanCompleteHasNoCursor(t *testing.T) {
	h := newHarness()
	p := NewPlan([]*Phase{NewPhase("only", []*Unit{completedUnit(h, 0)}, nil)}, nil)

	assert.True(t, p.IsComplete())
	assert.Nil(t, p.CurrentPhase())
	assert.Nil(t, p.CurrentUnit())
	assert.Nil(t, p.NextUnit())

	view := p.View()
	require.NotNil(t, view.Plan)
	assert.Equal(t, 1, view.Plan.PhaseCount)
	assert.Equal(t, types.StatusComplete, view.Plan.Status)
	assert.Nil(t, view.Phase)
	assert.Nil(t, view.Unit)
}

func TestEmptyPlanIsComplete(t *testing.T) {
	p := NewPlan(nil, nil)
	assert.True(t, p.IsComplete())
	assert.Nil(t, p.NextUnit())

	empty := NewPhase("empty", nil, nil)
	assert.True(t, empty.IsComplete())
	assert.Nil(t, empty.CurrentUnit())
}

func TestPlanCursorAdvancesAsUnitsComplete(t *testing.T) {
	h := newHarness("t0", "t1")
	p, err := Build(Config{TargetConfigName: "v2", BrokerCount: 2}, h.deps())
	require.NoError(t, err)

	u0 := p.NextUnit()
	require.NotNil(t, u0)
	assert.Equal(t, 0, u0.BrokerID())

	req, ok := u0.Start()
	require.True(t, ok)
	u0.OfferAccepted(true)
	assert.Equal(t, types.StatusInProgress, p.Status())

	p.Update(running(req.TaskIDs()[0]))
	assert.True(t, u0.IsComplete())

	u1 := p.NextUnit()
	require.NotNil(t, u1)
	assert.Equal(t, 1, u1.BrokerID())

	req, ok = u1.Start()
	require.True(t, ok)
	u1.OfferAccepted(true)
	p.Update(running(req.TaskIDs()[0]))

	assert.True(t, p.IsComplete())
	assert.Nil(t, p.NextUnit())
}

func TestPlanInterruptAndProceed(t *testing.T) {
	h := newHarness("t0")
	pub := &recordingPublisher{}
	deps := h.deps()
	deps.Publisher = pub
	p, err := Build(Config{TargetConfigName: "v2", BrokerCount: 2}, deps)
	require.NoError(t, err)

	before := p.Summary()

	p.Interrupt()
	p.Interrupt()
	assert.True(t, p.IsInterrupted())
	assert.Nil(t, p.NextUnit())
	assert.Empty(t, cmp.Diff(before, p.Summary()))

	p.Proceed()
	p.Proceed()
	assert.False(t, p.IsInterrupted())
	assert.Empty(t, cmp.Diff(before, p.Summary()))
	require.NotNil(t, p.NextUnit())

	assert.Equal(t, []events.EventType{events.EventPlanInterrupted, events.EventPlanProceeded}, pub.types())
}

func TestPlanInterruptDoesNotBlockStatusEvents(t *testing.T) {
	h := newHarness("t0")
	p, err := Build(Config{TargetConfigName: "v2", BrokerCount: 1}, h.deps())
	require.NoError(t, err)

	u := p.NextUnit()
	require.NotNil(t, u)
	_, ok := u.Start()
	require.True(t, ok)
	u.OfferAccepted(true)

	p.Interrupt()
	p.Update(running("t0"))

	assert.True(t, u.IsComplete())
	assert.True(t, p.IsComplete())
}

func TestPlanStageStrategyWaitsAtEveryUnit(t *testing.T) {
	h := newHarness("t0", "t1")
	pub := &recordingPublisher{}
	deps := h.deps()
	deps.Publisher = pub
	p, err := Build(Config{TargetConfigName: "v2", BrokerCount: 2, Strategy: StageStrategy{}}, deps)
	require.NoError(t, err)

	assert.Nil(t, p.NextUnit())
	assert.True(t, p.IsInterrupted())
	assert.Contains(t, pub.types(), events.EventPlanDecisionPoint)

	p.Proceed()
	u0 := p.NextUnit()
	require.NotNil(t, u0)
	assert.Equal(t, 0, u0.BrokerID())

	// approval sticks while the unit is retried
	assert.Same(t, u0, p.NextUnit())

	_, ok := u0.Start()
	require.True(t, ok)
	u0.OfferAccepted(true)
	p.Update(running("t0"))
	require.True(t, u0.IsComplete())

	assert.Nil(t, p.NextUnit())
	assert.True(t, p.IsInterrupted())

	p.Proceed()
	u1 := p.NextUnit()
	require.NotNil(t, u1)
	assert.Equal(t, 1, u1.BrokerID())
}

func TestPlanUnknownIdsLeavePlanUntouched(t *testing.T) {
	h := newHarness()
	h.state.deploy(0, "old", "v1", types.TaskStateRunning)
	p, err := Build(Config{TargetConfigName: "v2", BrokerCount: 1}, h.deps())
	require.NoError(t, err)
	phase := p.Phases()[0]
	unit := phase.Units()[0]
	before := p.Summary()

	err = p.Restart("no-such-phase", unit.ID())
	assert.ErrorIs(t, err, ErrPhaseNotFound)

	err = p.ForceComplete(phase.ID(), "no-such-unit")
	assert.ErrorIs(t, err, ErrUnitNotFound)

	assert.Empty(t, cmp.Diff(before, p.Summary()))
	assert.Empty(t, h.driver.rescheduled)

	require.NoError(t, p.ForceComplete(phase.ID(), unit.ID()))
	assert.Len(t, h.driver.rescheduled, 1)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		scope   Scope
		raw     string
		want    Command
		wantErr bool
	}{
		{ScopeUnit, "restart", CmdRestart, false},
		{ScopeUnit, "forceComplete", CmdForceComplete, false},
		{ScopeUnit, "continue", "", true},
		{ScopeUnit, "force-complete", "", true},
		{ScopePlan, "continue", CmdContinue, false},
		{ScopePlan, "interrupt", CmdInterrupt, false},
		{ScopePlan, "restart", "", true},
		{ScopePlan, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.scope.String()+"/"+tt.raw, func(t *testing.T) {
			cmd, err := ParseCommand(tt.scope, tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestExecuteCommands(t *testing.T) {
	h := newHarness("t0")
	h.state.deploy(0, "old", "v1", types.TaskStateKilled)
	p, err := Build(Config{TargetConfigName: "v2", BrokerCount: 1}, h.deps())
	require.NoError(t, err)
	phase := p.Phases()[0]
	unit := phase.Units()[0]

	require.NoError(t, p.ExecutePlanCommand(CmdInterrupt))
	assert.True(t, p.IsInterrupted())
	require.NoError(t, p.ExecutePlanCommand(CmdContinue))
	assert.False(t, p.IsInterrupted())

	_, ok := unit.Start()
	require.True(t, ok)
	unit.OfferAccepted(true)
	require.NoError(t, p.ExecuteUnitCommand(CmdRestart, phase.ID(), unit.ID()))
	assert.True(t, unit.IsPending())

	require.NoError(t, p.ExecuteUnitCommand(CmdForceComplete, phase.ID(), unit.ID()))
	assert.Len(t, h.driver.rescheduled, 1)

	assert.ErrorIs(t, p.ExecuteUnitCommand(CmdContinue, phase.ID(), unit.ID()), ErrUnknownCommand)
	assert.ErrorIs(t, p.ExecutePlanCommand(CmdRestart), ErrUnknownCommand)
}

func TestPlanViewAndSummary(t *testing.T) {
	h := newHarness()
	done := completedUnit(h, 0)
	waiting := NewUnit(1, "v2", h.deps())
	phase := NewPhase(PhaseName("v2"), []*Unit{done, waiting}, StageStrategy{})
	p := NewPlan([]*Phase{phase}, nil)

	view := p.View()
	require.NotNil(t, view.Phase)
	require.NotNil(t, view.Unit)
	assert.Equal(t, PlanView{PhaseCount: 1, Status: types.StatusInProgress}, *view.Plan)
	assert.Equal(t, PhaseView{
		Name:       "Update to: v2",
		ID:         phase.ID(),
		BlockCount: 2,
		Status:     types.StatusInProgress,
	}, *view.Phase)
	assert.Equal(t, UnitView{
		Name:    "broker-1",
		ID:      waiting.ID(),
		Status:  types.StatusPending,
		Message: "Broker-1 is PENDING",
	}, *view.Unit)

	want := Summary{
		Status: types.StatusInProgress,
		Phases: []PhaseSummary{{
			Name:   "Update to: v2",
			ID:     phase.ID(),
			Status: types.StatusInProgress,
			Blocks: []UnitSummary{
				{Name: "broker-0", ID: done.ID(), Status: types.StatusComplete, Decide: true},
				{Name: "broker-1", ID: waiting.ID(), Status: types.StatusPending, Decide: true},
			},
		}},
	}
	if diff := cmp.Diff(want, p.Summary()); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}

	snap := p.Snapshot()
	assert.Equal(t, types.StatusInProgress, snap.PlanStatus)
	assert.False(t, snap.Interrupted)
	assert.Equal(t, map[types.Status]int{types.StatusComplete: 1, types.StatusPending: 1}, snap.Units)
}

func TestBuild(t *testing.T) {
	h := newHarness()

	tests := []struct {
		name    string
		cfg     Config
		deps    Deps
		wantErr bool
	}{
		{"valid", Config{TargetConfigName: "v2", BrokerCount: 3}, h.deps(), false},
		{"missing target", Config{BrokerCount: 3}, h.deps(), true},
		{"zero brokers", Config{TargetConfigName: "v2"}, h.deps(), true},
		{"negative brokers", Config{TargetConfigName: "v2", BrokerCount: -1}, h.deps(), true},
		{"missing collaborators", Config{TargetConfigName: "v2", BrokerCount: 3}, Deps{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(tt.cfg, tt.deps)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			require.Len(t, p.Phases(), 1)
			phase := p.Phases()[0]
			assert.Equal(t, "Update to: v2", phase.Name())
			assert.Equal(t, "auto", phase.Strategy().Name())
			for i, u := range phase.Units() {
				assert.Equal(t, i, u.BrokerID())
			}
			assert.Len(t, phase.Units(), 3)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name     string
		want     string
		decision bool
	}{
		{name: "", want: "auto"},
		{name: "auto", want: "auto"},
		{name: "stage", want: "stage", decision: true},
	}
	for _, tt := range tests {
		s, err := ParseStrategy(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Name())
		assert.Equal(t, tt.decision, s.HasDecisionPoint(nil, nil))
	}
	_, err := ParseStrategy("canary")
	assert.Error(t, err)
}
