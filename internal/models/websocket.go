package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ClientEvent is a message from a connected rendering client.
type ClientEvent struct {
	Type       string      `json:"type"` // "ping", "widget_update", "watch", "unwatch"
	WidgetID   string      `json:"widget_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	UpdateType string      `json:"update_type,omitempty"` // defaults to "partial"
}

// ServerEvent is a message sent to a connected rendering client.
type ServerEvent struct {
	Type         string           `json:"type"` // "connected", "pong", "widget_update", "error"
	Content      string           `json:"content,omitempty"`
	WidgetID     string           `json:"widget_id,omitempty"`
	Updates      []RealTimeUpdate `json:"updates,omitempty"`
	Timestamp    time.Time        `json:"timestamp,omitempty"`
	ErrorCode    string           `json:"code,omitempty"`
	ErrorMessage string           `json:"message,omitempty"`
}

// UpdateConnection is a single WebSocket connection from the rendering
// layer. Clients receive widget-update notifications and may push updates of
// their own (source "websocket").
type UpdateConnection struct {
	ConnID    string
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan ServerEvent
	StopChan  chan bool

	// Widget ids this connection watches. Empty means all widgets.
	watched map[string]bool
	mutex   sync.Mutex
	closed  bool
}

// NewUpdateConnection wraps a raw websocket connection.
func NewUpdateConnection(connID string, conn *websocket.Conn) *UpdateConnection {
	return &UpdateConnection{
		ConnID:    connID,
		Conn:      conn,
		CreatedAt: time.Now(),
		WriteChan: make(chan ServerEvent, 100),
		StopChan:  make(chan bool, 1),
		watched:   make(map[string]bool),
	}
}

// Watch adds a widget id to this connection's watch set.
func (uc *UpdateConnection) Watch(widgetID string) {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()
	uc.watched[widgetID] = true
}

// Unwatch removes a widget id from this connection's watch set.
func (uc *UpdateConnection) Unwatch(widgetID string) {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()
	delete(uc.watched, widgetID)
}

// Watches reports whether this connection wants events for the widget.
// A connection with an empty watch set receives everything.
func (uc *UpdateConnection) Watches(widgetID string) bool {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()
	if len(uc.watched) == 0 {
		return true
	}
	return uc.watched[widgetID]
}

// SafeSend sends an event to WriteChan safely, returning false if the
// connection is already closed.
func (uc *UpdateConnection) SafeSend(event ServerEvent) bool {
	uc.mutex.Lock()
	if uc.closed {
		uc.mutex.Unlock()
		return false
	}
	uc.mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			// Channel was closed under us, mark connection as closed
			uc.mutex.Lock()
			uc.closed = true
			uc.mutex.Unlock()
		}
	}()

	uc.WriteChan <- event
	return true
}

// MarkClosed marks the connection as closed.
func (uc *UpdateConnection) MarkClosed() {
	uc.mutex.Lock()
	uc.closed = true
	uc.mutex.Unlock()
}

// IsClosed returns true if the connection has been marked as closed.
func (uc *UpdateConnection) IsClosed() bool {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()
	return uc.closed
}
