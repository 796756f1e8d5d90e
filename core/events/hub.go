package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"klubstake/core/types"
)

const (
	hubHistoryLimit  = 2048
	subscriberBuffer = 32
)

// Record is a committed event together with its position in the stream.
type Record struct {
	Sequence uint64       `json:"sequence"`
	Cursor   string       `json:"cursor"`
	Height   uint64       `json:"height"`
	Event    *types.Event `json:"event"`
}

func cloneRecord(r Record) Record {
	r.Event = r.Event.Clone()
	return r
}

// Hub fans committed events out to stream subscribers and keeps a bounded
// history so late subscribers can resume from a cursor. A subscriber whose
// buffer is full is dropped and its channel closed; it resumes by
// resubscribing with the cursor of the last record it received.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan Record
	history []Record
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Record)}
}

// Subscriptions are closed under h.mu and at most once: whichever of Publish
// or cancel removes the entry from subs closes the channel.
func (h *Hub) drop(id uint64) {
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish records a batch of committed events at the given height.
func (h *Hub) Publish(height uint64, batch []*types.Event) {
	if h == nil || len(batch) == 0 {
		return
	}
	h.mu.Lock()
	records := make([]Record, 0, len(batch))
	for _, evt := range batch {
		if evt == nil {
			continue
		}
		h.seq++
		rec := Record{
			Sequence: h.seq,
			Cursor:   strconv.FormatUint(h.seq, 10),
			Height:   height,
			Event:    evt.Clone(),
		}
		h.history = append(h.history, rec)
		records = append(records, rec)
	}
	if len(h.history) > hubHistoryLimit {
		excess := len(h.history) - hubHistoryLimit
		trimmed := make([]Record, hubHistoryLimit)
		copy(trimmed, h.history[excess:])
		h.history = trimmed
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	for _, rec := range records {
		for id, ch := range h.subs {
			select {
			case ch <- cloneRecord(rec):
			default:
				h.drop(id)
			}
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a subscriber for records after the supplied cursor. The
// returned backlog holds already-published records newer than the cursor. The
// channel is closed when ctx ends, cancel is called, or the subscriber falls
// behind.
func (h *Hub) Subscribe(ctx context.Context, cursor string) (<-chan Record, func(), []Record, error) {
	if h == nil {
		return nil, nil, nil, fmt.Errorf("event hub not initialised")
	}
	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}
	updates := make(chan Record, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]Record, 0, len(h.history))
	for _, rec := range h.history {
		if rec.Sequence > since {
			backlog = append(backlog, cloneRecord(rec))
		}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			h.drop(id)
			h.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return updates, cancel, backlog, nil
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
