package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"pulseboard/internal/models"
	"pulseboard/internal/services"
)

type testEnv struct {
	app           *fiber.App
	pins          *services.PinService
	subscriptions *services.SubscriptionService
	contexts      *services.ContextService
	focus         *services.FocusService
	queue         *services.UpdateQueueService
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	history := services.NewHistoryLog(50)
	contexts := services.NewContextService(history)
	focus := services.NewFocusService(contexts, history)
	board := services.NewBoardState()
	pins := services.NewPinService(4)
	subscriptions := services.NewSubscriptionService(30000, 5*time.Minute)
	stats := services.NewPipelineStats()
	queue := services.NewUpdateQueueService(100, 500, 10, time.Second, nil, stats)
	queue.SetScheduler(func(time.Duration, func()) {})

	app := fiber.New()

	dashboard := NewDashboardHandler(pins, subscriptions, board)
	context := NewContextHandler(contexts, focus, history)
	updates := NewUpdatesHandler(queue, subscriptions, pins, stats)

	api := app.Group("/api")
	api.Get("/dashboard/widgets", dashboard.ListWidgets)
	api.Post("/dashboard/widgets", dashboard.PinDirect)
	api.Delete("/dashboard/widgets/:id", dashboard.Unpin)
	api.Put("/dashboard/widgets/:id/position", dashboard.Reposition)
	api.Post("/dashboard/pins", dashboard.StagePin)
	api.Post("/dashboard/pins/:messageId/confirm", dashboard.ConfirmPin)
	api.Delete("/dashboard/pins/:messageId", dashboard.CancelPin)
	api.Get("/dashboard/state", dashboard.GetBoardState)
	api.Put("/dashboard/state", dashboard.UpdateBoardState)

	api.Get("/context", context.GetContext)
	api.Put("/context", context.UpdateContext)
	api.Post("/context/sync", context.Sync)
	api.Post("/context/bridge", context.Bridge)
	api.Get("/context/history", context.GetHistory)
	api.Post("/context/focus", context.StartFocus)
	api.Get("/context/focus", context.GetFocus)
	api.Delete("/context/focus", context.EndFocus)

	api.Post("/updates", updates.Ingest)
	api.Get("/updates/stats", updates.Stats)
	api.Post("/subscriptions", updates.Subscribe)
	api.Get("/subscriptions", updates.ListSubscriptions)

	return &testEnv{
		app:           app,
		pins:          pins,
		subscriptions: subscriptions,
		contexts:      contexts,
		focus:         focus,
		queue:         queue,
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	var parsed map[string]interface{}
	if len(raw) > 0 {
		json.Unmarshal(raw, &parsed)
	}
	return resp.StatusCode, parsed
}

func TestPinConfirmFlow(t *testing.T) {
	env := setupTestApp(t)

	status, body := doJSON(t, env.app, "POST", "/api/dashboard/pins", map[string]interface{}{
		"message_id": "msg-1",
		"payload":    map[string]interface{}{"type": "chart", "title": "CPU"},
	})
	if status != fiber.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%v)", status, body)
	}

	status, widget := doJSON(t, env.app, "POST", "/api/dashboard/pins/msg-1/confirm", nil)
	if status != fiber.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}
	if widget["type"] != "chart" || widget["title"] != "CPU" {
		t.Errorf("Unexpected widget: %v", widget)
	}

	// Second confirm finds nothing
	status, _ = doJSON(t, env.app, "POST", "/api/dashboard/pins/msg-1/confirm", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("Expected 404 on double confirm, got %d", status)
	}
}

func TestCancelPinAlwaysNoContent(t *testing.T) {
	env := setupTestApp(t)

	status, _ := doJSON(t, env.app, "DELETE", "/api/dashboard/pins/never-staged", nil)
	if status != fiber.StatusNoContent {
		t.Errorf("Expected 204 for unknown pending pin, got %d", status)
	}
}

func TestStagePinRequiresMessageID(t *testing.T) {
	env := setupTestApp(t)

	status, _ := doJSON(t, env.app, "POST", "/api/dashboard/pins", map[string]interface{}{
		"payload": map[string]interface{}{"type": "chart"},
	})
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 without message_id, got %d", status)
	}
}

func TestUnpinRemovesSubscription(t *testing.T) {
	env := setupTestApp(t)

	env.pins.Pin(&models.DashboardWidget{ID: "w1", Type: models.WidgetTypeChart})
	env.subscriptions.Subscribe(&models.DashboardWidget{ID: "w1", Type: models.WidgetTypeChart}, nil)

	status, _ := doJSON(t, env.app, "DELETE", "/api/dashboard/widgets/w1", nil)
	if status != fiber.StatusNoContent {
		t.Fatalf("Expected 204, got %d", status)
	}
	if _, ok := env.subscriptions.Get("w1"); ok {
		t.Error("Unpin must drop the widget's subscription")
	}

	status, _ = doJSON(t, env.app, "DELETE", "/api/dashboard/widgets/w1", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("Expected 404 for unknown widget, got %d", status)
	}
}

func TestUpdateContextMergesWhenSyncEnabled(t *testing.T) {
	env := setupTestApp(t)

	ctx := map[string]interface{}{
		"conversation_id": "conv-1",
		"entities":        map[string][]string{"host": {"web-1"}},
	}
	status, body := doJSON(t, env.app, "PUT", "/api/context", map[string]interface{}{
		"mode":    "chat",
		"context": ctx,
	})
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", status, body)
	}

	merged, ok := body["merged"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected merged context in response, got %v", body)
	}
	if merged["conversation_id"] != "conv-1" {
		t.Errorf("Expected merged conversation id conv-1, got %v", merged["conversation_id"])
	}
}

func TestUpdateContextRejectsUnknownMode(t *testing.T) {
	env := setupTestApp(t)

	status, _ := doJSON(t, env.app, "PUT", "/api/context", map[string]interface{}{
		"mode":    "focused",
		"context": map[string]interface{}{},
	})
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for non-view mode, got %d", status)
	}
}

func TestFocusLifecycleOverHTTP(t *testing.T) {
	env := setupTestApp(t)

	// Idle: 204
	status, _ := doJSON(t, env.app, "GET", "/api/context/focus", nil)
	if status != fiber.StatusNoContent {
		t.Fatalf("Expected 204 when idle, got %d", status)
	}

	status, session := doJSON(t, env.app, "POST", "/api/context/focus", map[string]interface{}{
		"type":        "widget",
		"id":          "w1",
		"spawn_query": "why did this spike",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}
	if session["type"] != "widget" || session["id"] != "w1" {
		t.Errorf("Unexpected session: %v", session)
	}

	status, _ = doJSON(t, env.app, "DELETE", "/api/context/focus", nil)
	if status != fiber.StatusNoContent {
		t.Fatalf("Expected 204 on end, got %d", status)
	}
	if env.focus.Active() != nil {
		t.Error("Expected no active session after end")
	}
}

func TestIngestAndStats(t *testing.T) {
	env := setupTestApp(t)

	status, update := doJSON(t, env.app, "POST", "/api/updates", map[string]interface{}{
		"widget_id": "w1",
		"data":      map[string]interface{}{"value": 42},
	})
	if status != fiber.StatusAccepted {
		t.Fatalf("Expected 202, got %d", status)
	}
	if update["source"] != "manual" || update["update_type"] != "partial" {
		t.Errorf("Expected manual/partial defaults, got %v", update)
	}
	if update["id"] == "" || update["id"] == nil {
		t.Error("Expected a generated update id")
	}

	status, stats := doJSON(t, env.app, "GET", "/api/updates/stats", nil)
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if stats["total_updates"] != float64(1) {
		t.Errorf("Expected 1 total update, got %v", stats["total_updates"])
	}
}

func TestIngestRequiresWidgetID(t *testing.T) {
	env := setupTestApp(t)

	status, _ := doJSON(t, env.app, "POST", "/api/updates", map[string]interface{}{
		"data": "x",
	})
	if status != fiber.StatusBadRequest {
		t.Errorf("Expected 400 without widget_id, got %d", status)
	}
}

func TestSubscribeRequiresPinnedWidget(t *testing.T) {
	env := setupTestApp(t)

	status, _ := doJSON(t, env.app, "POST", "/api/subscriptions", map[string]interface{}{
		"widget_id": "never-pinned",
	})
	if status != fiber.StatusNotFound {
		t.Fatalf("Expected 404 for unpinned widget, got %d", status)
	}

	env.pins.Pin(&models.DashboardWidget{ID: "w1", Type: models.WidgetTypeChart})
	status, sub := doJSON(t, env.app, "POST", "/api/subscriptions", map[string]interface{}{
		"widget_id": "w1",
	})
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if sub["refresh_rate"] != float64(30000) {
		t.Errorf("Expected default refresh rate, got %v", sub["refresh_rate"])
	}
}

func TestBoardStatePartialUpdate(t *testing.T) {
	env := setupTestApp(t)

	status, state := doJSON(t, env.app, "PUT", "/api/dashboard/state", map[string]interface{}{
		"split_ratio": 0.3,
	})
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if state["split_ratio"] != 0.3 {
		t.Errorf("Expected split ratio updated, got %v", state["split_ratio"])
	}
	if state["layout_mode"] != "split" {
		t.Errorf("Untouched fields must keep their values, got %v", state["layout_mode"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestApp(t)

	connManager := services.NewConnectionManager()
	health := NewHealthHandler(connManager, env.pins)
	env.app.Get("/health", health.Handle)

	status, body := doJSON(t, env.app, "GET", "/health", nil)
	if status != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}
