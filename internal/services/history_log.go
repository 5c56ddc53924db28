package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"pulseboard/internal/models"
)

// HistoryLog is the append-only audit trail of cross-view context
// transitions (syncs, bridges, focused-session spawns). It is a capped ring:
// when full, the oldest entry is silently evicted.
type HistoryLog struct {
	entries []models.ContextHistoryEntry
	cap     int
	now     func() time.Time
	mutex   sync.RWMutex
}

// NewHistoryLog creates a history log retaining at most cap entries.
func NewHistoryLog(cap int) *HistoryLog {
	if cap <= 0 {
		cap = 200
	}
	return &HistoryLog{
		entries: make([]models.ContextHistoryEntry, 0, cap),
		cap:     cap,
		now:     time.Now,
	}
}

// SetClock overrides the log's clock. Used by tests.
func (l *HistoryLog) SetClock(now func() time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.now = now
}

// Append records a transition. The context is snapshotted so the entry never
// aliases a live context.
func (l *HistoryLog) Append(entryType, from, to string, ctx *models.ConversationContext) models.ContextHistoryEntry {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	entry := models.ContextHistoryEntry{
		ID:        uuid.New().String(),
		Type:      entryType,
		From:      from,
		To:        to,
		Context:   ctx.Clone(),
		Timestamp: l.now(),
	}

	if len(l.entries) >= l.cap {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Entries returns a copy of all retained entries, oldest first.
func (l *HistoryLog) Entries() []models.ContextHistoryEntry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]models.ContextHistoryEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *HistoryLog) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.entries)
}

// QueryByEntity returns the entries whose context snapshot mentions the
// given entity name, oldest first.
func (l *HistoryLog) QueryByEntity(name string) []models.ContextHistoryEntry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	var out []models.ContextHistoryEntry
	for _, entry := range l.entries {
		if entry.Context == nil {
			continue
		}
		if _, ok := entry.Context.Entities[name]; ok {
			out = append(out, entry)
		}
	}
	return out
}
