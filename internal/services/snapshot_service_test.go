package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pulseboard/internal/models"
)

func newTestSnapshotService(t *testing.T) *SnapshotService {
	t.Helper()
	svc, err := NewSnapshotService(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open snapshot database: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestSnapshot_SaveAndLoad(t *testing.T) {
	svc := newTestSnapshotService(t)
	ctx := context.Background()

	snapshot := models.Snapshot{
		HybridMode:  true,
		LayoutMode:  "split",
		SplitRatio:  0.7,
		SyncEnabled: true,
		Widgets: []models.DashboardWidget{
			{
				ID:       "w1",
				Type:     models.WidgetTypeChart,
				Title:    "CPU",
				Position: models.WidgetPosition{Row: 0, Col: 0, Width: 2, Height: 1},
			},
		},
		Subscriptions: []models.WidgetSubscription{
			{WidgetID: "w1", WidgetType: models.WidgetTypeChart, RefreshRate: 5000, IsActive: true},
		},
	}

	if err := svc.Save(ctx, snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.SchemaVersion != models.SnapshotSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", models.SnapshotSchemaVersion, loaded.SchemaVersion)
	}
	if loaded.SavedAt.IsZero() {
		t.Error("Expected save timestamp filled in")
	}
	if loaded.LayoutMode != "split" || loaded.SplitRatio != 0.7 {
		t.Errorf("Board flags not round-tripped: %+v", loaded)
	}
	if len(loaded.Widgets) != 1 || loaded.Widgets[0].ID != "w1" {
		t.Errorf("Widgets not round-tripped: %+v", loaded.Widgets)
	}

	if len(loaded.Subscriptions) != 1 {
		t.Fatalf("Expected 1 subscription, got %d", len(loaded.Subscriptions))
	}
	if loaded.Subscriptions[0].IsActive {
		t.Error("Restored subscriptions must be inactive")
	}
}

func TestSnapshot_LoadReturnsLatest(t *testing.T) {
	svc := newTestSnapshotService(t)
	ctx := context.Background()

	if err := svc.Save(ctx, models.Snapshot{LayoutMode: "dashboard"}); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := svc.Save(ctx, models.Snapshot{LayoutMode: "chat"}); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LayoutMode != "chat" {
		t.Errorf("Expected the most recent snapshot, got layout %q", loaded.LayoutMode)
	}
}

func TestSnapshot_LoadEmpty(t *testing.T) {
	svc := newTestSnapshotService(t)

	_, err := svc.Load(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
}

func TestBoardState_SnapshotRoundTrip(t *testing.T) {
	board := NewBoardState()
	board.SetLayout("dashboard", 0.8)
	board.SetChatCollapsed(true)

	contexts := NewContextService(NewHistoryLog(10))
	pins := NewPinService(4)
	pins.Pin(&models.DashboardWidget{ID: "w1", Type: models.WidgetTypeChart})
	subs := NewSubscriptionService(30000, 5*time.Minute)
	subs.Subscribe(&models.DashboardWidget{ID: "w1", Type: models.WidgetTypeChart}, nil)

	snapshot := board.BuildSnapshot(pins, subs, contexts)
	if snapshot.LayoutMode != "dashboard" || snapshot.SplitRatio != 0.8 || !snapshot.ChatCollapsed {
		t.Errorf("Unexpected snapshot flags: %+v", snapshot)
	}
	if len(snapshot.Widgets) != 1 || len(snapshot.Subscriptions) != 1 {
		t.Errorf("Expected widgets and subscriptions captured, got %d/%d",
			len(snapshot.Widgets), len(snapshot.Subscriptions))
	}

	restored := NewBoardState()
	restored.Restore(&snapshot)
	state := restored.State()
	if state["layout_mode"] != "dashboard" || state["split_ratio"] != 0.8 || state["chat_collapsed"] != true {
		t.Errorf("Restore did not apply flags: %+v", state)
	}
}
