package models

import "time"

// Update types describe how an update's data relates to what the widget
// already shows.
const (
	UpdateTypeFull    = "full"
	UpdateTypePartial = "partial"
	UpdateTypeAppend  = "append"
	UpdateTypePrepend = "prepend"
)

// Update sources.
const (
	UpdateSourceWebSocket = "websocket"
	UpdateSourcePolling   = "polling"
	UpdateSourceManual    = "manual"
)

// RealTimeUpdate is a single inbound data update for a widget. Immutable
// once created; it lives in the pending queue until delivered and in the
// update history afterwards.
type RealTimeUpdate struct {
	ID         string      `json:"id"`
	WidgetID   string      `json:"widget_id"`
	Data       interface{} `json:"data"`
	Timestamp  time.Time   `json:"timestamp"`
	UpdateType string      `json:"update_type"`
	Source     string      `json:"source"`
}

// WidgetUpdateNotification carries one widget's batch of updates to the
// rendering layer. Updates are ordered as they were enqueued; two widgets'
// updates are never interleaved inside one notification.
type WidgetUpdateNotification struct {
	Type      string           `json:"type"` // always "widget_update"
	WidgetID  string           `json:"widget_id"`
	Updates   []RealTimeUpdate `json:"updates"`
	Timestamp time.Time        `json:"timestamp"`
}
