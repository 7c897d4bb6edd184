package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names a composer state change
type EventType string

const (
	EventPoolCreated       EventType = "pool.created"
	EventPoolDeleted       EventType = "pool.deleted"
	EventPoolFailed        EventType = "pool.failed"
	EventHostReconciled    EventType = "host.reconciled"
	EventHostFailed        EventType = "host.failed"
	EventBackendAdded      EventType = "backend.added"
	EventBackendRemoved    EventType = "backend.removed"
	EventTierAdded         EventType = "tier.added"
	EventVolumeTypeCreated EventType = "volumetype.created"
	EventVolumeTypeDeleted EventType = "volumetype.deleted"
)

const (
	queueSize        = 100
	subscriberBuffer = 50
)

// Event is a composer state change
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans published events out to subscribers
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]map[EventType]struct{}

	queue    chan *Event
	done     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

// NewBroker creates a broker; call Start to begin delivery
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]map[EventType]struct{}),
		queue:       make(chan *Event, queueSize),
		done:        make(chan struct{}),
	}
}

// Start begins delivering queued events
func (b *Broker) Start() {
	go b.run()
}

// Stop ends delivery. Publishing after Stop drops the event.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var filter map[EventType]struct{}
	if len(types) > 0 {
		filter = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			filter[t] = struct{}{}
		}
	}

	sub := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[sub] = filter
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event, filling in its ID and timestamp. A nil broker
// drops it.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	case <-b.done:
		b.dropped.Add(1)
	}
}

// Dropped counts events lost to a stopped broker or a full subscriber
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.done:
			return
		}
	}
}

func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filter := range b.subscribers {
		if filter != nil {
			if _, ok := filter[event.Type]; !ok {
				continue
			}
		}
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
