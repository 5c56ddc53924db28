package services

import (
	"log"
	"sync"

	"pulseboard/internal/models"
)

// ConnectionManager tracks the live WebSocket connections from the rendering
// layer and fans widget-update notifications out to whichever of them watch
// the updated widget.
type ConnectionManager struct {
	connections map[string]*models.UpdateConnection
	mutex       sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.UpdateConnection),
	}
}

// Add registers a connection for broadcast delivery.
func (cm *ConnectionManager) Add(conn *models.UpdateConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	log.Printf("✅ Connection added: %s (Total: %d)", conn.ConnID, len(cm.connections))
}

// Remove closes a connection's channels and drops it. Unknown ids are
// ignored, so a double removal is safe.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		conn.MarkClosed()
		close(conn.WriteChan)
		close(conn.StopChan)
		delete(cm.connections, connID)
		log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Count returns the number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// Broadcast sends a widget-update notification to every connection watching
// the widget. Closed connections are skipped. Returns the number of
// connections that received it.
func (cm *ConnectionManager) Broadcast(notification models.WidgetUpdateNotification) int {
	cm.mutex.RLock()
	targets := make([]*models.UpdateConnection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		if conn.Watches(notification.WidgetID) {
			targets = append(targets, conn)
		}
	}
	cm.mutex.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if conn.SafeSend(models.ServerEvent{
			Type:      "widget_update",
			WidgetID:  notification.WidgetID,
			Updates:   notification.Updates,
			Timestamp: notification.Timestamp,
		}) {
			delivered++
		}
	}
	return delivered
}
