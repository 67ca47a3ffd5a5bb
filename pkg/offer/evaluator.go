package offer

import (
	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/cuemby/brokerfleet/pkg/types"
)

// Evaluate picks the first offer that satisfies req, or nil.
// A requirement pinned to an agent only matches offers from that agent.
func Evaluate(req *types.OfferRequirement, offers []*types.Offer) *types.Offer {
	need := req.Resources()
	ports := requiredPorts(req)

	for _, o := range offers {
		if req.AgentID != "" && o.AgentID != req.AgentID {
			continue
		}
		if !need.Fits(o.Resources) || !hasPorts(o.Resources.Ports, ports) {
			continue
		}
		metrics.OffersTotal.WithLabelValues("accepted").Inc()
		return o
	}

	metrics.OffersTotal.WithLabelValues("declined").Inc()
	return nil
}

func requiredPorts(req *types.OfferRequirement) []int {
	var ports []int
	for _, t := range req.Tasks {
		ports = append(ports, t.Resources.Ports...)
	}
	return ports
}

func hasPorts(available, required []int) bool {
	free := make(map[int]bool, len(available))
	for _, p := range available {
		free[p] = true
	}
	for _, p := range required {
		if !free[p] {
			return false
		}
		// a port can back one task only
		delete(free, p)
	}
	return true
}
