package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"pulseboard/internal/models"
	"pulseboard/internal/services"
)

// DashboardHandler exposes the pinned widgets and their layout to the
// rendering layer.
type DashboardHandler struct {
	pins          *services.PinService
	subscriptions *services.SubscriptionService
	board         *services.BoardState
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(pins *services.PinService, subscriptions *services.SubscriptionService, board *services.BoardState) *DashboardHandler {
	return &DashboardHandler{pins: pins, subscriptions: subscriptions, board: board}
}

// ListWidgets returns all pinned widgets in pin order.
func (h *DashboardHandler) ListWidgets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"widgets": h.pins.Widgets(),
		"layout":  h.pins.Layout(),
	})
}

// GetLayout returns the derived layout map only.
func (h *DashboardHandler) GetLayout(c *fiber.Ctx) error {
	return c.JSON(h.pins.Layout())
}

// GetBoardState returns the cross-view UI flags.
func (h *DashboardHandler) GetBoardState(c *fiber.Ctx) error {
	return c.JSON(h.board.State())
}

type pendingPinRequest struct {
	MessageID string               `json:"message_id"`
	Payload   models.VisualPayload `json:"payload"`
}

// StagePin stages a chat visual payload for confirmation.
func (h *DashboardHandler) StagePin(c *fiber.Ctx) error {
	var req pendingPinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.MessageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message_id is required"})
	}

	h.pins.AddPendingPin(req.MessageID, req.Payload)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message_id": req.MessageID, "status": "pending"})
}

type confirmPinRequest struct {
	Overrides map[string]interface{} `json:"overrides,omitempty"`
}

// ConfirmPin resolves a staged pin into a dashboard widget. Confirming an
// unknown message id returns 404 at the HTTP boundary while staying a no-op
// internally.
func (h *DashboardHandler) ConfirmPin(c *fiber.Ctx) error {
	messageID := c.Params("messageId")

	var req confirmPinRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	widget, ok := h.pins.ConfirmPin(messageID, req.Overrides)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no pending pin for message"})
	}
	return c.Status(fiber.StatusCreated).JSON(widget)
}

// CancelPin drops a staged pin.
func (h *DashboardHandler) CancelPin(c *fiber.Ctx) error {
	h.pins.CancelPin(c.Params("messageId"))
	return c.SendStatus(fiber.StatusNoContent)
}

// PinDirect pins a widget without the confirm flow (direct dashboard
// action).
func (h *DashboardHandler) PinDirect(c *fiber.Ctx) error {
	var widget models.DashboardWidget
	if err := c.BodyParser(&widget); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if widget.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id is required"})
	}
	if widget.Config == nil {
		widget.Config = make(map[string]interface{})
	}

	h.pins.Pin(&widget)
	return c.Status(fiber.StatusCreated).JSON(widget)
}

// Unpin removes a widget and its subscription.
func (h *DashboardHandler) Unpin(c *fiber.Ctx) error {
	widgetID := c.Params("id")

	if err := h.pins.Unpin(widgetID); err != nil {
		if errors.Is(err, services.ErrWidgetNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "widget not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	h.subscriptions.Unsubscribe(widgetID)
	return c.SendStatus(fiber.StatusNoContent)
}

// Reposition moves a widget to an explicit grid rectangle.
func (h *DashboardHandler) Reposition(c *fiber.Ctx) error {
	widgetID := c.Params("id")

	var pos models.WidgetPosition
	if err := c.BodyParser(&pos); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.pins.Reposition(widgetID, pos); err != nil {
		if errors.Is(err, services.ErrWidgetNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "widget not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type boardStateRequest struct {
	HybridMode    *bool    `json:"hybrid_mode,omitempty"`
	LayoutMode    *string  `json:"layout_mode,omitempty"`
	SplitRatio    *float64 `json:"split_ratio,omitempty"`
	ChatCollapsed *bool    `json:"chat_collapsed,omitempty"`
}

// UpdateBoardState applies partial updates to the UI flags.
func (h *DashboardHandler) UpdateBoardState(c *fiber.Ctx) error {
	var req boardStateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.HybridMode != nil {
		h.board.SetHybridMode(*req.HybridMode)
	}
	if req.LayoutMode != nil || req.SplitRatio != nil {
		state := h.board.State()
		mode := state["layout_mode"].(string)
		ratio := state["split_ratio"].(float64)
		if req.LayoutMode != nil {
			mode = *req.LayoutMode
		}
		if req.SplitRatio != nil {
			ratio = *req.SplitRatio
		}
		h.board.SetLayout(mode, ratio)
	}
	if req.ChatCollapsed != nil {
		h.board.SetChatCollapsed(*req.ChatCollapsed)
	}

	return c.JSON(h.board.State())
}
