package handlers

import (
	"github.com/gofiber/fiber/v2"

	"pulseboard/internal/models"
	"pulseboard/internal/services"
)

// ContextHandler exposes the merged context, bridging, the focused session,
// and the context history log.
type ContextHandler struct {
	contexts *services.ContextService
	focus    *services.FocusService
	history  *services.HistoryLog
}

// NewContextHandler creates a new context handler
func NewContextHandler(contexts *services.ContextService, focus *services.FocusService, history *services.HistoryLog) *ContextHandler {
	return &ContextHandler{contexts: contexts, focus: focus, history: history}
}

// GetContext returns the per-view and merged contexts plus sync state.
func (h *ContextHandler) GetContext(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"dashboard":    h.contexts.DashboardContext(),
		"chat":         h.contexts.ChatContext(),
		"merged":       h.contexts.MergedContext(),
		"sync_enabled": h.contexts.SyncEnabled(),
		"last_sync":    h.contexts.LastSync(),
	})
}

type updateContextRequest struct {
	Mode    string                      `json:"mode"` // "dashboard" or "chat"
	Context *models.ConversationContext `json:"context"`
}

// UpdateContext replaces one view's context and, when sync is enabled,
// reconciles immediately.
func (h *ContextHandler) UpdateContext(c *fiber.Ctx) error {
	var req updateContextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	switch req.Mode {
	case services.ModeDashboard:
		h.contexts.UpdateDashboardContext(req.Context)
	case services.ModeChat:
		h.contexts.UpdateChatContext(req.Context)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "mode must be dashboard or chat"})
	}

	if h.contexts.SyncEnabled() {
		h.contexts.Sync(h.focus.ActiveContext())
	}
	return c.JSON(fiber.Map{"merged": h.contexts.MergedContext()})
}

// Sync forces a reconcile of the current view contexts.
func (h *ContextHandler) Sync(c *fiber.Ctx) error {
	merged := h.contexts.Sync(h.focus.ActiveContext())
	return c.JSON(merged)
}

type bridgeRequest struct {
	From     string                      `json:"from"` // source view mode
	Fragment *models.ConversationContext `json:"fragment"`
}

// Bridge overlays a context fragment from one view onto the other.
func (h *ContextHandler) Bridge(c *fiber.Ctx) error {
	var req bridgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.From != services.ModeDashboard && req.From != services.ModeChat {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be dashboard or chat"})
	}

	h.contexts.Bridge(req.From, req.Fragment)
	return c.SendStatus(fiber.StatusNoContent)
}

// GetHistory returns the context history log, optionally filtered by entity.
func (h *ContextHandler) GetHistory(c *fiber.Ctx) error {
	if entity := c.Query("entity"); entity != "" {
		return c.JSON(h.history.QueryByEntity(entity))
	}
	return c.JSON(h.history.Entries())
}

type startFocusRequest struct {
	Type       string                      `json:"type"`
	ID         string                      `json:"id"`
	Context    *models.ConversationContext `json:"context"`
	SpawnQuery string                      `json:"spawn_query,omitempty"`
}

// StartFocus begins a focused drill-down session, replacing any active one.
func (h *ContextHandler) StartFocus(c *fiber.Ctx) error {
	var req startFocusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Type == "" || req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type and id are required"})
	}

	session := h.focus.Start(req.Type, req.ID, req.Context, req.SpawnQuery)
	return c.Status(fiber.StatusCreated).JSON(session)
}

// GetFocus returns the active focused session, or 204 when idle.
func (h *ContextHandler) GetFocus(c *fiber.Ctx) error {
	session := h.focus.Active()
	if session == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(session)
}

type updateFocusRequest struct {
	Context *models.ConversationContext `json:"context"`
}

// UpdateFocus replaces the active session's context. No-op when idle.
func (h *ContextHandler) UpdateFocus(c *fiber.Ctx) error {
	var req updateFocusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	h.focus.Update(req.Context)
	return c.SendStatus(fiber.StatusNoContent)
}

// EndFocus ends the active session.
func (h *ContextHandler) EndFocus(c *fiber.Ctx) error {
	h.focus.End()
	return c.SendStatus(fiber.StatusNoContent)
}

type syncEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetSyncEnabled toggles automatic synchronization.
func (h *ContextHandler) SetSyncEnabled(c *fiber.Ctx) error {
	var req syncEnabledRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	h.contexts.SetSyncEnabled(req.Enabled)
	return c.JSON(fiber.Map{"sync_enabled": req.Enabled})
}
