package handlers

import (
	"github.com/gofiber/fiber/v2"

	"pulseboard/internal/models"
	"pulseboard/internal/services"
)

// UpdatesHandler exposes update ingestion, the per-widget audit history,
// subscriptions, and pipeline stats.
type UpdatesHandler struct {
	queue         *services.UpdateQueueService
	subscriptions *services.SubscriptionService
	pins          *services.PinService
	stats         *services.PipelineStats
}

// NewUpdatesHandler creates a new updates handler
func NewUpdatesHandler(queue *services.UpdateQueueService, subscriptions *services.SubscriptionService, pins *services.PinService, stats *services.PipelineStats) *UpdatesHandler {
	return &UpdatesHandler{queue: queue, subscriptions: subscriptions, pins: pins, stats: stats}
}

type ingestRequest struct {
	WidgetID   string      `json:"widget_id"`
	Data       interface{} `json:"data"`
	UpdateType string      `json:"update_type,omitempty"`
}

// Ingest enqueues a manual update for a widget.
func (h *UpdatesHandler) Ingest(c *fiber.Ctx) error {
	var req ingestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.WidgetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "widget_id is required"})
	}

	update := h.queue.AddUpdate(models.RealTimeUpdate{
		WidgetID:   req.WidgetID,
		Data:       req.Data,
		UpdateType: req.UpdateType,
		Source:     models.UpdateSourceManual,
	})
	return c.Status(fiber.StatusAccepted).JSON(update)
}

// WidgetHistory returns the retained audit history for one widget.
func (h *UpdatesHandler) WidgetHistory(c *fiber.Ctx) error {
	widgetID := c.Params("id")
	return c.JSON(fiber.Map{
		"widget_id": widgetID,
		"updates":   h.queue.GetUpdatesForWidget(widgetID),
	})
}

// Flush forces a processing pass.
func (h *UpdatesHandler) Flush(c *fiber.Ctx) error {
	processed := h.queue.ProcessQueue(c.Context())
	return c.JSON(fiber.Map{"processed": processed, "pending": h.queue.PendingLen()})
}

// Stats returns the pipeline counters.
func (h *UpdatesHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.stats.Snapshot())
}

type subscribeRequest struct {
	WidgetID string                   `json:"widget_id"`
	Options  *models.SubscribeOptions `json:"options,omitempty"`
}

// Subscribe registers (or reactivates) a widget subscription.
func (h *UpdatesHandler) Subscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	widget, ok := h.pins.Get(req.WidgetID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "widget not found"})
	}

	sub := h.subscriptions.Subscribe(widget, req.Options)
	return c.JSON(sub)
}

// Unsubscribe removes a widget subscription.
func (h *UpdatesHandler) Unsubscribe(c *fiber.Ctx) error {
	h.subscriptions.Unsubscribe(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// ListSubscriptions returns every subscription record.
func (h *UpdatesHandler) ListSubscriptions(c *fiber.Ctx) error {
	return c.JSON(h.subscriptions.All())
}

// UpdateSubscription applies a partial update to a subscription.
func (h *UpdatesHandler) UpdateSubscription(c *fiber.Ctx) error {
	var opts models.SubscribeOptions
	if err := c.BodyParser(&opts); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	h.subscriptions.UpdateSubscription(c.Params("id"), &opts)
	return c.SendStatus(fiber.StatusNoContent)
}
