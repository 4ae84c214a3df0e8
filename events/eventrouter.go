package events

import (
	"sync"
)

// EventRouter stamps events with their global order, keeps them in an ordered log,
// and fans them out to the bus.
type EventRouter struct {
	eventBus *EventBus
	mu       sync.RWMutex
	log      []OmniverseEvent
}

// NewEventRouter creates a new EventRouter instance; eventBus may be nil.
func NewEventRouter(eventBus *EventBus) *EventRouter {
	return &EventRouter{
		eventBus: eventBus,
	}
}

// Emit assigns the next sequence number to event, records it and publishes it.
func (er *EventRouter) Emit(event OmniverseEvent) {
	er.mu.Lock()
	event.stamp(uint64(len(er.log)))
	er.log = append(er.log, event)
	er.mu.Unlock()

	if er.eventBus != nil {
		er.eventBus.Publish(event)
	}
}

// Len returns the number of emitted events.
func (er *EventRouter) Len() int {
	er.mu.RLock()
	defer er.mu.RUnlock()
	return len(er.log)
}

// All returns every emitted event in order.
func (er *EventRouter) All() []OmniverseEvent {
	return er.Since(0)
}

// Since returns the events with Seq >= seq, in order.
func (er *EventRouter) Since(seq uint64) []OmniverseEvent {
	er.mu.RLock()
	defer er.mu.RUnlock()
	if seq >= uint64(len(er.log)) {
		return nil
	}
	out := make([]OmniverseEvent, len(er.log)-int(seq))
	copy(out, er.log[seq:])
	return out
}

// Bus returns the bus events are fanned out to, or nil.
func (er *EventRouter) Bus() *EventBus {
	return er.eventBus
}
