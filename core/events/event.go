package events

import (
	"sync"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/types"
)

// Event represents a structured state change emitted by the marketplace.
type Event interface {
	EventType() string
}

// Payload is implemented by events that carry a wire-friendly representation.
type Payload interface {
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

// Buffer collects events until they are flushed. A settlement call emits into
// a buffer and only publishes once its state changes are committed.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Flush forwards the buffered events to the target and clears the buffer.
func (b *Buffer) Flush(target Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if target == nil {
		return
	}
	for _, evt := range pending {
		target.Emit(evt)
	}
}

// Multi fans events out to several emitters.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Raw extracts the wire payload from an event, if it carries one.
func Raw(evt Event) *types.Event {
	if payload, ok := evt.(Payload); ok {
		return payload.Event()
	}
	return nil
}
