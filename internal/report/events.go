package report

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a step in a run.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventScenarioStarted EventType = "scenario_started"
	EventScenarioPassed  EventType = "scenario_passed"
	EventScenarioFailed  EventType = "scenario_failed"
	EventRunFinished     EventType = "run_finished"
	// EventStatus carries the current run status to a new subscriber.
	EventStatus EventType = "status"
)

// Event represents a run event
type Event struct {
	ID       string    `json:"event_id"`
	RunID    string    `json:"run_id"`
	Type     EventType `json:"type"`
	Scenario string    `json:"scenario,omitempty"`
	Status   Status    `json:"status,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(runID string, typ EventType) Event {
	return Event{
		ID:    uuid.NewString(),
		RunID: runID,
		Type:  typ,
		Time:  time.Now(),
	}
}

// StatusEvent describes run as it is now.
func StatusEvent(run *Run) Event {
	e := NewEvent(run.ID, EventStatus)
	e.Status = run.Status
	return e
}

// IsTerminal reports whether no further events follow for the run.
func (e Event) IsTerminal() bool {
	return e.Type == EventRunFinished
}

// EventHub manages event subscriptions
type EventHub struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe creates a subscription for run events
func (h *EventHub) Subscribe(runID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 16)
	h.subscribers[runID] = append(h.subscribers[runID], ch)
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (h *EventHub) Unsubscribe(runID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[runID]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[runID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(h.subscribers[runID]) == 0 {
		delete(h.subscribers, runID)
	}
}

// Emit sends an event to all subscribers of its run. A subscriber whose
// buffer is full misses the event; Emit never blocks.
func (h *EventHub) Emit(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all subscriptions
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for runID, subs := range h.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subscribers, runID)
	}
}
