// Package eventbus provides in-process fan-out of change notifications.
// The bus is injected into the services that produce events; nothing in the
// core consumes them, so delivery is best-effort and a slow subscriber loses
// events rather than blocking a publisher.
package eventbus

import (
	"sync"
	"time"
)

// Topics published by the core services.
const (
	TopicDataUpdated      = "data.updated"
	TopicUsageTracked     = "usage.tracked"
	TopicTokenTransferred = "token.transferred"
	TopicBalanceChanged   = "balance.changed"
)

// Event is one change notification.
type Event struct {
	Topic    string    `json:"topic"`
	DataID   string    `json:"dataId,omitempty"`
	DataType string    `json:"dataType,omitempty"`
	UserID   string    `json:"userId,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}

// Filter narrows a subscription. Zero-value fields match everything.
type Filter struct {
	DataID   string
	DataType string
	UserID   string
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.DataID != "" && f.DataID != e.DataID {
		return false
	}
	if f.DataType != "" && f.DataType != e.DataType {
		return false
	}
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	return true
}

// Bus fans events out to subscribers.
type Bus interface {
	// Publish delivers e to the topic's matching subscribers without
	// blocking; subscribers with full buffers miss the event.
	Publish(topic string, e Event)

	// Subscribe registers a filtered subscription on topic. The returned
	// cancel func closes the channel and must be called exactly once.
	Subscribe(topic string, f Filter) (<-chan Event, func())
}

type subscription struct {
	filter Filter
	ch     chan Event
}

// InProcBus is the in-process Bus implementation.
type InProcBus struct {
	mu     sync.RWMutex
	buffer int
	nextID int
	subs   map[string]map[int]*subscription
}

// NewInProcBus creates a bus whose subscriber channels buffer up to buffer
// events.
func NewInProcBus(buffer int) *InProcBus {
	if buffer <= 0 {
		buffer = 16
	}
	return &InProcBus{
		buffer: buffer,
		subs:   make(map[string]map[int]*subscription),
	}
}

func (b *InProcBus) Publish(topic string, e Event) {
	e.Topic = topic
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[topic] {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

func (b *InProcBus) Subscribe(topic string, f Filter) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]*subscription)
	}

	id := b.nextID
	b.nextID++

	sub := &subscription{filter: f, ch: make(chan Event, b.buffer)}
	b.subs[topic][id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, cancel
}
