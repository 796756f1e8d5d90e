package events

import (
	"sync"

	"klubstake/core/types"
)

// Buffer collects events emitted during a transition so they can be released
// only once the transition commits.
type Buffer struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements Emitter. Events without a raw payload are dropped.
func (b *Buffer) Emit(evt Event) {
	raw, ok := Raw(evt)
	if !ok {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, raw.Clone())
	b.mu.Unlock()
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []*types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Discard drops any buffered events.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
