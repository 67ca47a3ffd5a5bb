package offer

import (
	"strings"
	"testing"

	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testResources = BrokerResources{CPUs: 1, MemMB: 2048, DiskMB: 5000, Port: 9092, HeapMB: 1024}

func TestNewRequirement(t *testing.T) {
	p := NewProvider(testResources)

	req, err := p.NewRequirement("v2", 3)
	require.NoError(t, err)
	require.Len(t, req.Tasks, 1)
	assert.Empty(t, req.AgentID)

	task := req.Tasks[0]
	assert.True(t, strings.HasPrefix(task.ID, "broker-3__"))
	assert.Equal(t, "broker-3", task.Name)
	assert.Equal(t, 3, task.BrokerID)
	assert.Equal(t, "v2", task.ConfigName)
	assert.Equal(t, []int{9092}, task.Resources.Ports)
	assert.Equal(t, "1024", task.Labels["heap_mb"])

	brokerID, err := types.BrokerIDFromTaskID(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, brokerID)

	again, err := p.NewRequirement("v2", 3)
	require.NoError(t, err)
	assert.NotEqual(t, task.ID, again.Tasks[0].ID)
}

func TestNewRequirementValidation(t *testing.T) {
	p := NewProvider(testResources)

	_, err := p.NewRequirement("", 0)
	assert.Error(t, err)
	_, err = p.NewRequirement("v2", -1)
	assert.Error(t, err)
	_, err = p.UpdateRequirement("v2", nil)
	assert.Error(t, err)
}

func TestUpdateRequirementPinsAgent(t *testing.T) {
	p := NewProvider(testResources)
	current := &types.TaskInfo{ID: "broker-1__old", BrokerID: 1, ConfigName: "v1", AgentID: "agent-b"}

	req, err := p.UpdateRequirement("v2", current)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", req.AgentID)
	assert.Equal(t, "agent-b", req.Tasks[0].AgentID)
	assert.Equal(t, "v2", req.Tasks[0].ConfigName)
	assert.NotEqual(t, current.ID, req.Tasks[0].ID)
}

func TestEvaluate(t *testing.T) {
	p := NewProvider(testResources)
	fresh, err := p.NewRequirement("v2", 0)
	require.NoError(t, err)
	pinned, err := p.UpdateRequirement("v2", &types.TaskInfo{BrokerID: 0, AgentID: "agent-b"})
	require.NoError(t, err)

	small := &types.Offer{ID: "o1", AgentID: "agent-a", Resources: types.Resources{CPUs: 0.5, MemMB: 4096, DiskMB: 10000, Ports: []int{9092}}}
	noPort := &types.Offer{ID: "o2", AgentID: "agent-a", Resources: types.Resources{CPUs: 4, MemMB: 4096, DiskMB: 10000, Ports: []int{9093}}}
	fitsA := &types.Offer{ID: "o3", AgentID: "agent-a", Resources: types.Resources{CPUs: 4, MemMB: 4096, DiskMB: 10000, Ports: []int{9092}}}
	fitsB := &types.Offer{ID: "o4", AgentID: "agent-b", Resources: types.Resources{CPUs: 4, MemMB: 4096, DiskMB: 10000, Ports: []int{9092}}}

	tests := []struct {
		name   string
		req    *types.OfferRequirement
		offers []*types.Offer
		want   *types.Offer
	}{
		{"first fit", fresh, []*types.Offer{small, noPort, fitsA, fitsB}, fitsA},
		{"nothing fits", fresh, []*types.Offer{small, noPort}, nil},
		{"no offers", fresh, nil, nil},
		{"pinned skips other agents", pinned, []*types.Offer{fitsA, fitsB}, fitsB},
		{"pinned agent absent", pinned, []*types.Offer{fitsA}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.want, Evaluate(tt.req, tt.offers))
		})
	}
}

func TestHasPorts(t *testing.T) {
	assert.True(t, hasPorts([]int{9092, 9093}, nil))
	assert.True(t, hasPorts([]int{9092, 9093}, []int{9093}))
	assert.False(t, hasPorts([]int{9092}, []int{9092, 9092}))
	assert.False(t, hasPorts(nil, []int{9092}))
}
