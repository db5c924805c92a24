package engine

import (
	"sync"
	"time"
)

// historyCapacity bounds the per-cover position ring. Old entries are
// silently evicted, never reported as an error.
const historyCapacity = 5

// PositionEntry is one recorded cover position. Entries are immutable once
// appended.
type PositionEntry struct {
	Position  int
	Moved     bool
	Timestamp time.Time
}

// coverHistory is the bounded, newest-first position ring for one cover.
type coverHistory struct {
	entries []PositionEntry
}

func (h *coverHistory) append(e PositionEntry) {
	h.entries = append([]PositionEntry{e}, h.entries...)
	if len(h.entries) > historyCapacity {
		h.entries = h.entries[:historyCapacity]
	}
}

// HistoryLedger owns the position history of all covers. It is the sole
// mutator of that history and lives for the lifetime of the automation
// instance. Cycles do not overlap, but the host may read movement timestamps
// while a cycle runs, hence the lock.
type HistoryLedger struct {
	mu     sync.RWMutex
	covers map[string]*coverHistory
}

// NewHistoryLedger returns an empty ledger.
func NewHistoryLedger() *HistoryLedger {
	return &HistoryLedger{covers: make(map[string]*coverHistory)}
}

// Append records a position for the cover, evicting the oldest entry when the
// ring is full. A zero timestamp means now (UTC).
func (l *HistoryLedger) Append(coverID string, position int, moved bool, timestamp time.Time) PositionEntry {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	entry := PositionEntry{Position: position, Moved: moved, Timestamp: timestamp}

	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.covers[coverID]
	if !ok {
		h = &coverHistory{}
		l.covers[coverID] = h
	}
	h.append(entry)
	return entry
}

// Latest returns the most recent entry for the cover, or false when the cover
// has no history yet.
func (l *HistoryLedger) Latest(coverID string) (PositionEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.covers[coverID]
	if !ok || len(h.entries) == 0 {
		return PositionEntry{}, false
	}
	return h.entries[0], true
}

// Entries returns the cover's full history newest-first. Unknown covers yield
// an empty slice. The returned slice is a copy and safe to retain.
func (l *HistoryLedger) Entries(coverID string) []PositionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.covers[coverID]
	if !ok {
		return nil
	}
	out := make([]PositionEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// LastMovement returns the timestamp of the cover's most recent actual
// movement, or false when the cover never moved.
func (l *HistoryLedger) LastMovement(coverID string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.covers[coverID]
	if !ok {
		return time.Time{}, false
	}
	for _, e := range h.entries {
		if e.Moved {
			return e.Timestamp, true
		}
	}
	return time.Time{}, false
}
