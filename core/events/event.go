package events

import "stakeoracle/core/types"

// Event represents a structured state change emitted by the node.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render their structured form.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Render returns the structured payload for evt, or nil when evt does not
// carry one.
func Render(evt Event) *types.Event {
	payload, ok := evt.(Payload)
	if !ok || payload == nil {
		return nil
	}
	return payload.Event()
}
