package events

import (
	"sync"
	"time"

	"github.com/cuemby/brokerfleet/pkg/metrics"
	"github.com/google/uuid"
)

// EventType names what happened during a rollout
type EventType string

const (
	EventUnitStatusChanged EventType = "unit.status_changed"
	EventUnitRestarted     EventType = "unit.restarted"
	EventUnitForceComplete EventType = "unit.force_complete"
	EventPlanInterrupted   EventType = "plan.interrupted"
	EventPlanProceeded     EventType = "plan.proceeded"
	EventPlanDecisionPoint EventType = "plan.decision_point"
	EventPlanAdopted       EventType = "plan.adopted"
	EventPlanCompleted     EventType = "plan.completed"
	EventTaskLaunched      EventType = "task.launched"
	EventTaskKilled        EventType = "task.killed"
)

const (
	queueSize      = 100
	subscriberSize = 50
)

// Event is one rollout event. Publish fills in ID and Timestamp when empty.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Publisher is implemented by anything that accepts events.
// Plan components depend on this rather than on *Broker.
type Publisher interface {
	Publish(event *Event)
}

// Discard is a Publisher that drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(*Event) {}

// Subscriber is a channel that receives events
type Subscriber chan *Event

type subscription struct {
	types map[EventType]struct{}
}

func (s subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Broker fans published events out to subscribers from a single goroutine
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]subscription

	queue    chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBroker creates a broker; call Start to begin delivery
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]subscription),
		queue:       make(chan *Event, queueSize),
		stopCh:      make(chan struct{}),
	}
}

func (b *Broker) Start() {
	go b.run()
}

// Stop ends delivery. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a channel receiving events of the given types,
// or every event when no type is given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	sub := make(Subscriber, subscriberSize)
	filter := subscription{}
	if len(types) > 0 {
		filter.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			filter.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers[sub] = filter
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes it
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues event for delivery without blocking. Callers publish while
// holding unit locks, so a full queue drops the event.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
		metrics.EventsDroppedTotal.WithLabelValues("queue").Inc()
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filter := range b.subscribers {
		if !filter.wants(event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			metrics.EventsDroppedTotal.WithLabelValues("subscriber").Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
