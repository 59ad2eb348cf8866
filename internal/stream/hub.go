// Package stream fans forecaster events out to live subscribers.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types published by the forecaster.
const (
	EventForecast = "forecast"
	EventSync     = "sync"
)

// Event is one published message.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           256,
		SubscriberBufferSize: 16,
	}
}

// Hub distributes events from publishers to subscribers. Slow subscribers lose events
// instead of blocking the others.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	events      chan Event
	done        chan struct{}
	started     bool

	metricsMu sync.RWMutex
	received  uint64
	delivered uint64
	dropped   uint64
}

// Subscriber is one live consumer. An empty Types set receives every event.
type Subscriber struct {
	ID        string
	Types     map[string]bool
	Channel   chan Event
	CreatedAt time.Time

	dropped atomic.Int64
}

// Dropped returns how many events this subscriber lost to a full buffer.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscriber) wants(eventType string) bool {
	return len(s.Types) == 0 || s.Types[eventType]
}

// NewHub creates a hub with the default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with a custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig().BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		subscribers: make(map[string]*Subscriber),
		events:      make(chan Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start runs the distribution loop until ctx is done or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return
		case ev := <-h.events:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()
			h.broadcast(ev)
		}
	}
}

// Stop stops the hub and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for id, sub := range h.subscribers {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Subscribe registers a subscriber for the given event types, or all types when none
// are given.
func (h *Hub) Subscribe(types ...string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		Types:     make(map[string]bool, len(types)),
		Channel:   make(chan Event, h.config.SubscriberBufferSize),
		CreatedAt: time.Now(),
	}
	for _, t := range types {
		sub.Types[t] = true
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Unknown subscribers are ignored.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	close(sub.Channel)
	delete(h.subscribers, sub.ID)
}

// Publish queues an event for distribution without blocking. The event is dropped when
// the buffer is full.
func (h *Hub) Publish(eventType string, data any) {
	ev := Event{
		ID:   uuid.NewString(),
		Type: eventType,
		Data: data,
		At:   time.Now(),
	}
	select {
	case h.events <- ev:
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.Channel <- ev:
			h.metricsMu.Lock()
			h.delivered++
			h.metricsMu.Unlock()
		default:
			sub.dropped.Add(1)
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsStarted returns whether the hub is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received    uint64 `json:"received"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// GetMetrics returns hub counters.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	return HubMetrics{
		Received:    h.received,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Subscribers: h.SubscriberCount(),
	}
}
