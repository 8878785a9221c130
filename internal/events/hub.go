package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"curator/internal/logging"
)

// Subscription is one consumer's view of the bus. Events arrives in publish
// order; Dropped reports how many events were discarded because the consumer
// fell behind.
type Subscription struct {
	events  chan Event
	hub     *Hub
	id      uint64
	dropped uint64
	mu      sync.Mutex
}

// Events returns the channel delivering this subscriber's events. The channel
// is closed when the subscription or the hub shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped reports how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscriber from the hub.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.unsubscribe(s.id)
}

// Hub fans events out to subscribers without ever blocking a publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]*Subscription
	nextSubID   uint64
	nextSeq     uint64
	bufferSize  int
	closed      bool
	logger      *slog.Logger
}

// NewHub constructs a hub whose subscribers each buffer up to bufferSize
// undelivered events.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		subscribers: make(map[uint64]*Subscription),
		bufferSize:  bufferSize,
		logger:      logger.With(logging.String(logging.FieldComponent, "events")),
	}
}

// Subscribe registers a new consumer. It returns nil after the hub is closed.
func (h *Hub) Subscribe() *Subscription {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.nextSubID++
	sub := &Subscription{
		events: make(chan Event, h.bufferSize),
		hub:    h,
		id:     h.nextSubID,
	}
	h.subscribers[sub.id] = sub
	return sub
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		close(sub.events)
	}
}

// Publish assigns the event a sequence number and delivers it to every
// subscriber. Delivery never blocks: when a subscriber's buffer is full the
// oldest buffered event is dropped to make room. Holding the hub lock for the
// whole delivery keeps events in sequence order for every subscriber.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	for _, sub := range h.subscribers {
		for {
			select {
			case sub.events <- evt:
			default:
				select {
				case <-sub.events:
					sub.mu.Lock()
					sub.dropped++
					sub.mu.Unlock()
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount reports how many consumers are attached.
func (h *Hub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close shuts the hub down and closes every subscriber channel.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.events)
	}
}

// RunHeartbeat publishes heartbeat events on the given interval until the
// context ends. Heartbeats keep idle SSE connections from timing out and let
// consumers distinguish a quiet system from a dead one.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if h == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Publish(Event{Type: TypeHeartbeat})
		}
	}
}
