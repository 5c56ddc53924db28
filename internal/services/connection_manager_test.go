package services

import (
	"testing"

	"pulseboard/internal/models"
)

func TestConnectionManager_AddRemove(t *testing.T) {
	cm := NewConnectionManager()

	conn := models.NewUpdateConnection("c1", nil)
	cm.Add(conn)

	if cm.Count() != 1 {
		t.Fatalf("Expected 1 connection, got %d", cm.Count())
	}
	cm.Remove("c1")
	if cm.Count() != 0 {
		t.Errorf("Expected 0 connections after removal, got %d", cm.Count())
	}
	if !conn.IsClosed() {
		t.Error("Removed connection must be marked closed")
	}

	// Removing twice is safe
	cm.Remove("c1")
}

func TestBroadcast_RespectsWatchSets(t *testing.T) {
	cm := NewConnectionManager()

	all := models.NewUpdateConnection("all", nil)
	onlyW2 := models.NewUpdateConnection("only-w2", nil)
	onlyW2.Watch("w2")
	cm.Add(all)
	cm.Add(onlyW2)

	delivered := cm.Broadcast(models.WidgetUpdateNotification{
		Type:     "widget_update",
		WidgetID: "w1",
		Updates:  []models.RealTimeUpdate{{ID: "u1", WidgetID: "w1"}},
	})

	// Empty watch set means everything; the w2 watcher is skipped
	if delivered != 1 {
		t.Fatalf("Expected 1 delivery, got %d", delivered)
	}

	select {
	case event := <-all.WriteChan:
		if event.Type != "widget_update" || event.WidgetID != "w1" {
			t.Errorf("Unexpected event: %+v", event)
		}
	default:
		t.Error("Expected an event on the unfiltered connection")
	}

	select {
	case event := <-onlyW2.WriteChan:
		t.Errorf("w2 watcher must not receive w1 events, got %+v", event)
	default:
	}
}

func TestBroadcast_SkipsClosedConnections(t *testing.T) {
	cm := NewConnectionManager()

	conn := models.NewUpdateConnection("c1", nil)
	cm.Add(conn)
	conn.MarkClosed()

	delivered := cm.Broadcast(models.WidgetUpdateNotification{WidgetID: "w1"})
	if delivered != 0 {
		t.Errorf("Expected no deliveries to a closed connection, got %d", delivered)
	}
}

func TestConnection_WatchUnwatch(t *testing.T) {
	conn := models.NewUpdateConnection("c1", nil)

	if !conn.Watches("anything") {
		t.Error("Empty watch set must match all widgets")
	}

	conn.Watch("w1")
	if conn.Watches("w2") {
		t.Error("Non-empty watch set must filter")
	}
	if !conn.Watches("w1") {
		t.Error("Watched widget must match")
	}

	conn.Unwatch("w1")
	if !conn.Watches("w2") {
		t.Error("Watch set emptied again must match all widgets")
	}
}
