package offer

import (
	"errors"
	"strconv"
	"time"

	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/google/uuid"
)

// BrokerResources is the per-broker reservation
type BrokerResources struct {
	CPUs   float64
	MemMB  int64
	DiskMB int64
	Port   int
	HeapMB int64
}

// Resources converts the reservation into a resource vector
func (b BrokerResources) Resources() types.Resources {
	r := types.Resources{CPUs: b.CPUs, MemMB: b.MemMB, DiskMB: b.DiskMB}
	if b.Port > 0 {
		r.Ports = []int{b.Port}
	}
	return r
}

// Provider builds offer requirements for broker slots
type Provider struct {
	resources BrokerResources
	now       func() time.Time
}

// NewProvider creates a provider that reserves resources for every broker
func NewProvider(resources BrokerResources) *Provider {
	return &Provider{resources: resources, now: time.Now}
}

// TaskID returns a fresh task id for a broker slot
func TaskID(brokerID int) string {
	return types.BrokerName(brokerID) + "__" + uuid.New().String()
}

// NewRequirement requests a first launch of brokerID anywhere in the cluster
func (p *Provider) NewRequirement(targetConfigName string, brokerID int) (*types.OfferRequirement, error) {
	if targetConfigName == "" {
		return nil, errors.New("target config name is required")
	}
	if brokerID < 0 {
		return nil, errors.New("broker id must not be negative")
	}
	return &types.OfferRequirement{
		Tasks: []*types.TaskInfo{p.task(targetConfigName, brokerID)},
	}, nil
}

// UpdateRequirement requests a replacement for current on the same agent,
// so the broker comes back next to its log directories
func (p *Provider) UpdateRequirement(targetConfigName string, current *types.TaskInfo) (*types.OfferRequirement, error) {
	if current == nil {
		return nil, errors.New("current task is required")
	}
	req, err := p.NewRequirement(targetConfigName, current.BrokerID)
	if err != nil {
		return nil, err
	}
	req.AgentID = current.AgentID
	req.Tasks[0].AgentID = current.AgentID
	return req, nil
}

func (p *Provider) task(targetConfigName string, brokerID int) *types.TaskInfo {
	return &types.TaskInfo{
		ID:         TaskID(brokerID),
		Name:       types.BrokerName(brokerID),
		BrokerID:   brokerID,
		ConfigName: targetConfigName,
		Resources:  p.resources.Resources(),
		Labels: map[string]string{
			"config_name": targetConfigName,
			"broker_id":   strconv.Itoa(brokerID),
			"heap_mb":     strconv.FormatInt(p.resources.HeapMB, 10),
		},
		CreatedAt: p.now(),
	}
}
