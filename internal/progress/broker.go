package progress

import (
	"sync"

	"takeoff-backend/internal/shared/metrics"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 8

// Event names written to the stream.
const (
	EventUpdate = "project-update"
	EventError  = "error"
)

// Event is one message for a project's subscribers.
type Event struct {
	Name string
	Data any
}

// Subscription receives the events of one project. Its channel is closed by
// Unsubscribe.
type Subscription struct {
	ProjectID string
	ch        chan Event
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Broker fans events out to in-process subscribers.
type Broker struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*Subscription]struct{}
}

// NewBroker returns a broker with the given per-subscription buffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{buffer: buffer, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a subscription for the project.
func (b *Broker) Subscribe(projectID string) *Subscription {
	sub := &Subscription{ProjectID: projectID, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[projectID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[projectID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Calling it
// twice is a no-op.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.ProjectID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, sub.ProjectID)
	}
}

// HasSubscribers reports whether anyone listens to the project.
func (b *Broker) HasSubscribers(projectID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[projectID]) > 0
}

// Publish delivers the event to every subscriber of the project without
// blocking. A full subscription loses its oldest queued event.
func (b *Broker) Publish(projectID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[projectID] {
		for {
			select {
			case sub.ch <- ev:
			default:
				select {
				case <-sub.ch:
					metrics.IncPublisherDropped()
				default:
				}
				continue
			}
			break
		}
	}
}
