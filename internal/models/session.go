package models

import "time"

// Focused session anchor types.
const (
	FocusTypeWidget    = "widget"
	FocusTypeChat      = "chat"
	FocusTypeDashboard = "dashboard"
)

// FocusedSession is a chat session scoped to one widget or dashboard entity
// (a drill-down conversation). There is at most one active session; starting
// a new one replaces any prior session after its end is logged.
type FocusedSession struct {
	Type       string               `json:"type"`
	ID         string               `json:"id"`
	Context    *ConversationContext `json:"context"`
	SpawnQuery string               `json:"spawn_query,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
}

// History entry types.
const (
	HistoryEntrySync   = "sync"
	HistoryEntryBridge = "bridge"
	HistoryEntrySpawn  = "spawn"
)

// ContextHistoryEntry is one record in the cross-view audit trail. The
// context is a snapshot taken at append time, never a live reference.
type ContextHistoryEntry struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	From      string               `json:"from"`
	To        string               `json:"to"`
	Context   *ConversationContext `json:"context"`
	Timestamp time.Time            `json:"timestamp"`
}
