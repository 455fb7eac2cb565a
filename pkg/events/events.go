package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventResourceSynced EventType = "resource.synced"
	EventQueueFlushed   EventType = "queue.flushed"
	EventOnline         EventType = "connectivity.online"
	EventOffline        EventType = "connectivity.offline"
	EventSyncCompleted  EventType = "sync.completed"
	EventSyncFailed     EventType = "sync.failed"
)

// ResourceSynced is emitted when a queued creation succeeds and the
// server id for a placeholder becomes known.
type ResourceSynced struct {
	PlaceholderID string
	RealID        string
}

// QueueFlushed is emitted after a drain pass over the durable queue.
type QueueFlushed struct {
	Applied int
	Dropped int
	Left    int
}

// ConnectivityChanged is emitted on online/offline transitions.
type ConnectivityChanged struct {
	Online bool
}

// SyncCompleted is emitted after a successful push/pull cycle.
type SyncCompleted struct {
	Pushed int
	Pulled int
}

// Event is a typed message distributed to subscribers. Payload holds
// one of the payload structs above, matching Type.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// PublishResourceSynced publishes a placeholder-to-real id mapping.
func (b *Broker) PublishResourceSynced(placeholderID, realID string) {
	b.Publish(&Event{
		Type:    EventResourceSynced,
		Payload: ResourceSynced{PlaceholderID: placeholderID, RealID: realID},
	})
}

// PublishQueueFlushed publishes the outcome of a queue drain pass.
func (b *Broker) PublishQueueFlushed(applied, dropped, left int) {
	b.Publish(&Event{
		Type:    EventQueueFlushed,
		Payload: QueueFlushed{Applied: applied, Dropped: dropped, Left: left},
	})
}

// PublishConnectivity publishes an online/offline transition.
func (b *Broker) PublishConnectivity(online bool) {
	t := EventOffline
	if online {
		t = EventOnline
	}
	b.Publish(&Event{Type: t, Payload: ConnectivityChanged{Online: online}})
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
