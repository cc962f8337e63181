package main

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event topics delivered to subscribers.
const (
	TopicProfile   = "profile"
	TopicTrial     = "trial"
	TopicPortfolio = "portfolio"
	TopicChats     = "chats"
	TopicMessages  = "messages"
	TopicAlerts    = "alerts"
	TopicQuotes    = "quotes"
)

// Event is one change notification. An empty Owner means every subscriber
// receives it.
type Event struct {
	Topic   string      `json:"topic"`
	Owner   string      `json:"-"`
	Key     string      `json:"key,omitempty"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

type subscription struct {
	owner string
	ch    chan Event
}

// EventHub fans change notifications out to live listeners. Publishing never
// blocks: a listener whose buffer is full misses the event.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	logger *zap.Logger
}

func NewEventHub(buffer int, logger *zap.Logger) *EventHub {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventHub{
		subs:   make(map[*subscription]struct{}),
		buffer: buffer,
		logger: logger.Named("hub"),
	}
}

// Subscribe registers a listener for owner's events and broadcasts. The
// returned cancel func unregisters it and closes the channel.
func (h *EventHub) Subscribe(owner string) (<-chan Event, func()) {
	sub := &subscription{owner: owner, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (h *EventHub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if ev.Owner != "" && ev.Owner != sub.owner {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("topic", ev.Topic), zap.String("owner", sub.owner))
		}
	}
}

// Subscribers returns the number of live listeners.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
