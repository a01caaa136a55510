package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Archiver receives finished history writes for durable storage. The
// in-memory history works without one.
type Archiver interface {
	ArchiveEvent(ev Event) error
}

// History is the append-only emergency event log. Entries are never removed
// while under the retention cap and are only mutated by AppendResponse and
// Resolve.
type History struct {
	mu       sync.RWMutex
	events   []Event
	byID     map[string]int
	maxSize  int
	archiver Archiver
}

// NewHistory creates a history retaining at most maxSize events. Zero means
// an unbounded log.
func NewHistory(maxSize int) *History {
	return &History{
		byID:    make(map[string]int),
		maxSize: maxSize,
	}
}

// SetArchiver attaches a durable sink. Archive failures are logged, never
// propagated.
func (h *History) SetArchiver(a Archiver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.archiver = a
}

// New creates, appends and returns a fresh event.
func (h *History) New(kind Kind, severity Severity, breakerID, threatType, reason string) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Severity:   severity,
		BreakerID:  breakerID,
		ThreatType: threatType,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
	h.append(ev)
	return ev
}

func (h *History) append(ev Event) {
	h.mu.Lock()
	if h.maxSize > 0 && len(h.events) >= h.maxSize {
		drop := h.events[0]
		h.events = h.events[1:]
		delete(h.byID, drop.ID)
		for id, i := range h.byID {
			h.byID[id] = i - 1
		}
	}
	h.byID[ev.ID] = len(h.events)
	h.events = append(h.events, ev)
	archiver := h.archiver
	h.mu.Unlock()

	if archiver != nil {
		if err := archiver.ArchiveEvent(ev); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("Event archive write failed")
		}
	}
}

// AppendResponse attaches a protocol execution record to an event and
// re-archives the updated state.
func (h *History) AppendResponse(eventID string, rec ExecutionRecord) bool {
	h.mu.Lock()
	i, ok := h.byID[eventID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	h.events[i].Responses = append(h.events[i].Responses, rec)
	updated := cloneEvent(h.events[i])
	archiver := h.archiver
	h.mu.Unlock()

	h.rearchive(archiver, updated)
	return true
}

// Resolve flips an event's resolved flag and re-archives the updated state.
func (h *History) Resolve(eventID string) bool {
	h.mu.Lock()
	i, ok := h.byID[eventID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	h.events[i].Resolved = true
	updated := cloneEvent(h.events[i])
	archiver := h.archiver
	h.mu.Unlock()

	h.rearchive(archiver, updated)
	return true
}

// rearchive pushes an updated event to the durable sink so the stored row
// carries the latest responses and resolution.
func (h *History) rearchive(a Archiver, ev Event) {
	if a == nil {
		return
	}
	if err := a.ArchiveEvent(ev); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("Event archive update failed")
	}
}

// Get returns a copy of one event.
func (h *History) Get(eventID string) (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	i, ok := h.byID[eventID]
	if !ok {
		return Event{}, false
	}
	return cloneEvent(h.events[i]), true
}

// Recent returns up to n most recent events, newest first.
func (h *History) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.events) {
		n = len(h.events)
	}
	out := make([]Event, 0, n)
	for i := len(h.events) - 1; i >= len(h.events)-n; i-- {
		out = append(out, cloneEvent(h.events[i]))
	}
	return out
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// Unresolved counts events not yet resolved.
func (h *History) Unresolved() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, ev := range h.events {
		if !ev.Resolved {
			n++
		}
	}
	return n
}

func cloneEvent(ev Event) Event {
	out := ev
	out.Responses = make([]ExecutionRecord, len(ev.Responses))
	copy(out.Responses, ev.Responses)
	return out
}
