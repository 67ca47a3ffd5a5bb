package plan

import (
	"errors"
	"sync"

	"github.com/cuemby/brokerfleet/pkg/types"
)

var errBoom = errors.New("boom")

type fakeState struct {
	mu        sync.Mutex
	infos     map[int]*types.TaskInfo
	statuses  map[int]*types.TaskStatus
	infoErr   error
	statusErr error
}

func newFakeState() *fakeState {
	return &fakeState{
		infos:    make(map[int]*types.TaskInfo),
		statuses: make(map[int]*types.TaskStatus),
	}
}

func (f *fakeState) deploy(brokerID int, taskID, configName string, state types.TaskState) *types.TaskInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := &types.TaskInfo{ID: taskID, Name: types.BrokerName(brokerID), BrokerID: brokerID, ConfigName: configName}
	f.infos[brokerID] = info
	f.statuses[brokerID] = &types.TaskStatus{TaskID: taskID, State: state}
	return info
}

func (f *fakeState) setState(brokerID int, state types.TaskState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[brokerID]; ok {
		s.State = state
	}
}

func (f *fakeState) TaskInfoForBroker(brokerID int) (*types.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.infos[brokerID], nil
}

func (f *fakeState) TaskStatusForBroker(brokerID int) (*types.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	s, ok := f.statuses[brokerID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

type fakeProvider struct {
	mu         sync.Mutex
	nextIDs    []string
	err        error
	newCalls   int
	updateFrom []*types.TaskInfo
}

func (f *fakeProvider) take() string {
	if len(f.nextIDs) == 0 {
		return "t-default"
	}
	id := f.nextIDs[0]
	f.nextIDs = f.nextIDs[1:]
	return id
}

func (f *fakeProvider) NewRequirement(target string, brokerID int) (*types.OfferRequirement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.newCalls++
	return &types.OfferRequirement{Tasks: []*types.TaskInfo{
		{ID: f.take(), BrokerID: brokerID, ConfigName: target, Name: types.BrokerName(brokerID)},
	}}, nil
}

func (f *fakeProvider) UpdateRequirement(target string, current *types.TaskInfo) (*types.OfferRequirement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.updateFrom = append(f.updateFrom, current)
	return &types.OfferRequirement{
		AgentID: current.AgentID,
		Tasks: []*types.TaskInfo{
			{ID: f.take(), BrokerID: current.BrokerID, ConfigName: target, Name: current.Name},
		},
	}, nil
}

type fakeDriver struct {
	mu          sync.Mutex
	restarted   []*types.TaskInfo
	rescheduled []*types.TaskInfo
}

func (f *fakeDriver) RestartTasks(tasks []*types.TaskInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, tasks...)
}

func (f *fakeDriver) RescheduleTasks(tasks []*types.TaskInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled = append(f.rescheduled, tasks...)
}

type harness struct {
	state    *fakeState
	provider *fakeProvider
	driver   *fakeDriver
}

func newHarness(ids ...string) *harness {
	return &harness{
		state:    newFakeState(),
		provider: &fakeProvider{nextIDs: ids},
		driver:   &fakeDriver{},
	}
}

func (h *harness) deps() Deps {
	return Deps{State: h.state, Provider: h.provider, Driver: h.driver}
}

func running(taskID string) *types.TaskStatus {
	return &types.TaskStatus{TaskID: taskID, State: types.TaskStateRunning}
}

func withState(taskID string, state types.TaskState) *types.TaskStatus {
	return &types.TaskStatus{TaskID: taskID, State: state}
}

func reconciled(taskID string, state types.TaskState) *types.TaskStatus {
	return &types.TaskStatus{TaskID: taskID, State: state, Reason: types.ReasonReconciliation}
}
