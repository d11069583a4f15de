package telemetry

import (
	"sync"
	"time"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventSolveStarted       EventType = "solve.started"
	EventSolveCompleted     EventType = "solve.completed"
	EventSolveFailed        EventType = "solve.failed"
	EventBudgetPredicted    EventType = "budget.predicted"
	EventCandidateStarted   EventType = "candidate.started"
	EventCandidateAccepted  EventType = "candidate.accepted"
	EventCandidateRejected  EventType = "candidate.rejected"
	EventPatchRepaired      EventType = "patch.repaired"
	EventPathEscapeRejected EventType = "patch.path_escape"
	EventCheckoutStarted    EventType = "checkout.started"
	EventCheckoutReady      EventType = "checkout.ready"
	EventTokenUsageUpdated  EventType = "tokens.updated"
)

// Event describes solve telemetry that CLIs and IPC clients can consume.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"runId,omitempty"`
	TaskID    string         `json:"taskId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub fan-outs telemetry events to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Drop if subscriber can't keep up; prevents blocking the solve loop.
		}
	}
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	ch := make(chan Event, 64)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
