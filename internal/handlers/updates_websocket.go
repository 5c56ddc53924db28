package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"pulseboard/internal/models"
	"pulseboard/internal/services"
)

const (
	readDeadline = 120 * time.Second
	pingInterval = 30 * time.Second
)

// UpdatesWebSocketHandler streams widget-update notifications to rendering
// clients and accepts pushed updates from them (source "websocket").
type UpdatesWebSocketHandler struct {
	connManager *services.ConnectionManager
	queue       *services.UpdateQueueService
}

// NewUpdatesWebSocketHandler creates a new websocket handler
func NewUpdatesWebSocketHandler(connManager *services.ConnectionManager, queue *services.UpdateQueueService) *UpdatesWebSocketHandler {
	return &UpdatesWebSocketHandler{connManager: connManager, queue: queue}
}

// Handle handles a new WebSocket connection
func (h *UpdatesWebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	conn := models.NewUpdateConnection(connID, c)

	done := make(chan struct{})

	h.connManager.Add(conn)
	if m := services.GetMetrics(); m != nil {
		m.RecordWebSocketConnect()
	}
	defer func() {
		close(done)
		h.connManager.Remove(connID)
		if m := services.GetMetrics(); m != nil {
			m.RecordWebSocketDisconnect()
		}
	}()

	c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(conn, done)
	go h.writeLoop(conn)

	conn.WriteChan <- models.ServerEvent{
		Type:    "connected",
		Content: "WebSocket connected. Ready for widget updates.",
	}

	h.readLoop(conn)
}

// pingLoop keeps the connection alive between updates.
func (h *UpdatesWebSocketHandler) pingLoop(conn *models.UpdateConnection, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if conn.IsClosed() {
				return
			}
			if err := conn.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				log.Printf("⚠️ Ping failed for %s: %v", conn.ConnID, err)
				return
			}
		}
	}
}

// writeLoop serializes outbound events onto the socket.
func (h *UpdatesWebSocketHandler) writeLoop(conn *models.UpdateConnection) {
	for event := range conn.WriteChan {
		if err := conn.Conn.WriteJSON(event); err != nil {
			log.Printf("⚠️ Write failed for %s: %v", conn.ConnID, err)
			conn.MarkClosed()
			return
		}
	}
}

// readLoop handles inbound client events.
func (h *UpdatesWebSocketHandler) readLoop(conn *models.UpdateConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := conn.Conn.ReadMessage()
		if err != nil {
			log.Printf("❌ WebSocket read error for %s: %v", conn.ConnID, err)
			break
		}

		conn.Conn.SetReadDeadline(time.Now().Add(readDeadline))

		var event models.ClientEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			log.Printf("⚠️ Invalid message format from %s: %v", conn.ConnID, err)
			conn.SafeSend(models.ServerEvent{
				Type:         "error",
				ErrorCode:    "invalid_format",
				ErrorMessage: "Invalid message format",
			})
			continue
		}

		switch event.Type {
		case "ping":
			conn.SafeSend(models.ServerEvent{Type: "pong", Timestamp: time.Now()})

		case "watch":
			if event.WidgetID != "" {
				conn.Watch(event.WidgetID)
			}

		case "unwatch":
			if event.WidgetID != "" {
				conn.Unwatch(event.WidgetID)
			}

		case "widget_update":
			if event.WidgetID == "" {
				conn.SafeSend(models.ServerEvent{
					Type:         "error",
					ErrorCode:    "missing_widget_id",
					ErrorMessage: "widget_id is required",
				})
				continue
			}
			h.queue.AddUpdate(models.RealTimeUpdate{
				WidgetID:   event.WidgetID,
				Data:       event.Data,
				UpdateType: event.UpdateType,
				Source:     models.UpdateSourceWebSocket,
			})

		default:
			log.Printf("⚠️ Unknown event type %q from %s", event.Type, conn.ConnID)
		}
	}
}
