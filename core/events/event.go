package events

import "vsachain/core/types"

// Event represents a structured state change emitted by the node.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render their canonical attribute
// form for RPC streams, the archive and webhooks.
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

// ToTyped converts an emitted event into its attribute form. Events that do not
// implement Payload are rendered with their type only.
func ToTyped(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if payload, ok := evt.(Payload); ok {
		if typed := payload.Event(); typed != nil {
			return typed
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
