package services

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"pulseboard/internal/models"
)

// View mode names used for provenance tagging.
const (
	ModeDashboard = "dashboard"
	ModeChat      = "chat"
	ModeFocused   = "focused"
)

// Bridge records are kept for an hour so recent transfers stay inspectable
// without growing without bound.
const (
	bridgeRecordTTL     = time.Hour
	bridgeSweepInterval = 10 * time.Minute
)

// BridgeRecord is the stored provenance of one context bridge.
type BridgeRecord struct {
	ID        string                      `json:"id"`
	From      string                      `json:"from"`
	To        string                      `json:"to"`
	Fragment  *models.ConversationContext `json:"fragment"`
	Timestamp time.Time                   `json:"timestamp"`
}

// ContextService owns the per-view conversation contexts and reconciles them.
// Merging is deterministic: for fixed inputs the output is structurally
// identical (modulo the generated sync timestamp), and precedence is always
// dashboard → chat → focused, later sources winning per key.
//
// Contexts are replaced on every mutation, never edited in place, so the
// rendering layer can detect change by pointer comparison.
type ContextService struct {
	dashboard *models.ConversationContext
	chat      *models.ConversationContext
	merged    *models.ConversationContext

	syncEnabled bool
	lastSync    time.Time

	history *HistoryLog
	bridges *cache.Cache

	now   func() time.Time
	newID func() string

	mutex sync.RWMutex
}

// NewContextService creates a context service writing its audit trail to the
// given history log.
func NewContextService(history *HistoryLog) *ContextService {
	return &ContextService{
		syncEnabled: true,
		history:     history,
		bridges:     cache.New(bridgeRecordTTL, bridgeSweepInterval),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// SetClock overrides the service clock. Used by tests.
func (s *ContextService) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// SetIDGenerator overrides the id generator. Used by tests.
func (s *ContextService) SetIDGenerator(newID func() string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.newID = newID
}

// SetSyncEnabled toggles automatic synchronization.
func (s *ContextService) SetSyncEnabled(enabled bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.syncEnabled = enabled
}

// SyncEnabled reports whether automatic synchronization is on.
func (s *ContextService) SyncEnabled() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.syncEnabled
}

// LastSync returns the time of the most recent merge.
func (s *ContextService) LastSync() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastSync
}

// DashboardContext returns the current dashboard-view context.
func (s *ContextService) DashboardContext() *models.ConversationContext {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.dashboard
}

// ChatContext returns the current chat-view context.
func (s *ContextService) ChatContext() *models.ConversationContext {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.chat
}

// MergedContext returns the most recently reconciled context, or nil before
// the first merge.
func (s *ContextService) MergedContext() *models.ConversationContext {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.merged
}

// UpdateDashboardContext replaces the dashboard-view context.
func (s *ContextService) UpdateDashboardContext(ctx *models.ConversationContext) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.dashboard = ctx
}

// UpdateChatContext replaces the chat-view context.
func (s *ContextService) UpdateChatContext(ctx *models.ConversationContext) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.chat = ctx
}

// Merge reconciles a dashboard-origin, chat-origin and optional focused
// context into one. Absent inputs are treated as empty; merging never fails.
// Every call appends one sync entry to the history log and bumps the last
// sync timestamp.
func (s *ContextService) Merge(dashboard, chat, focused *models.ConversationContext) *models.ConversationContext {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.mergeLocked(dashboard, chat, focused)
}

func (s *ContextService) mergeLocked(dashboard, chat, focused *models.ConversationContext) *models.ConversationContext {
	now := s.now()
	merged := models.NewConversationContext(s.pickConversationID(dashboard, chat, focused))

	// History: dashboard → chat → focused, most recent kept under the cap.
	for _, ctx := range []*models.ConversationContext{dashboard, chat, focused} {
		if ctx != nil {
			merged.History = append(merged.History, ctx.History...)
		}
	}
	if len(merged.History) > models.HistoryLimit {
		merged.History = merged.History[len(merged.History)-models.HistoryLimit:]
	}

	// Entities: shallow merge, last writer wins per key.
	for _, ctx := range []*models.ConversationContext{dashboard, chat, focused} {
		if ctx == nil {
			continue
		}
		for name, values := range ctx.Entities {
			vals := make([]string, len(values))
			copy(vals, values)
			merged.Entities[name] = vals
		}
	}

	// Filters are concatenated without deduplication. Callers that need
	// distinct filters must dedupe themselves.
	for _, ctx := range []*models.ConversationContext{dashboard, chat, focused} {
		if ctx != nil {
			merged.Filters = append(merged.Filters, ctx.Filters...)
		}
	}

	// Time range: focused, then chat, then dashboard.
	for _, ctx := range []*models.ConversationContext{focused, chat, dashboard} {
		if ctx != nil && ctx.TimeRange != nil {
			tr := *ctx.TimeRange
			merged.TimeRange = &tr
			break
		}
	}

	// Metadata: same precedence as entities, plus engine bookkeeping.
	for _, ctx := range []*models.ConversationContext{dashboard, chat, focused} {
		if ctx == nil {
			continue
		}
		for key, value := range ctx.Metadata {
			merged.Metadata[key] = value
		}
	}
	merged.Metadata["hybrid_sync"] = true
	merged.Metadata["last_sync"] = now

	s.merged = merged
	s.lastSync = now
	s.history.Append(models.HistoryEntrySync, ModeDashboard, ModeChat, merged)

	return merged
}

func (s *ContextService) pickConversationID(dashboard, chat, focused *models.ConversationContext) string {
	for _, ctx := range []*models.ConversationContext{chat, dashboard, focused} {
		if ctx != nil && ctx.ConversationID != "" {
			return ctx.ConversationID
		}
	}
	return "session-" + s.newID()
}

// Sync reconciles the current view contexts plus an optional focused
// context and returns the result.
func (s *ContextService) Sync(focused *models.ConversationContext) *models.ConversationContext {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.mergeLocked(s.dashboard, s.chat, focused)
}

// Bridge overlays a context fragment from one view onto the other. The
// source context is untouched; the target context is replaced by a copy with
// the fragment shallow-merged on top and the bridge provenance recorded in
// its metadata. One bridge entry goes to the history log per call.
func (s *ContextService) Bridge(fromMode string, fragment *models.ConversationContext) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	toMode := ModeDashboard
	if fromMode == ModeDashboard {
		toMode = ModeChat
	}

	bridgeID := "bridge-" + s.newID()
	now := s.now()

	target := s.chat
	if toMode == ModeDashboard {
		target = s.dashboard
	}

	overlaid := overlay(target, fragment)
	overlaid.Metadata["bridge_from"] = fromMode
	overlaid.Metadata["bridge_id"] = bridgeID

	if toMode == ModeDashboard {
		s.dashboard = overlaid
	} else {
		s.chat = overlaid
	}

	s.bridges.SetDefault(bridgeID, &BridgeRecord{
		ID:        bridgeID,
		From:      fromMode,
		To:        toMode,
		Fragment:  fragment.Clone(),
		Timestamp: now,
	})

	s.history.Append(models.HistoryEntryBridge, fromMode, toMode, overlaid)
	log.Printf("🌉 Context bridged %s → %s (%s)", fromMode, toMode, bridgeID)
}

// BridgeRecordByID looks up a retained bridge record.
func (s *ContextService) BridgeRecordByID(bridgeID string) (*BridgeRecord, bool) {
	value, found := s.bridges.Get(bridgeID)
	if !found {
		return nil, false
	}
	return value.(*BridgeRecord), true
}

// overlay shallow-merges fragment onto base, returning a fresh context.
// A nil base is treated as empty.
func overlay(base, fragment *models.ConversationContext) *models.ConversationContext {
	out := base.Clone()
	if out == nil {
		out = models.NewConversationContext("")
	}
	if fragment == nil {
		return out
	}

	if fragment.ConversationID != "" {
		out.ConversationID = fragment.ConversationID
	}
	out.History = append(out.History, fragment.History...)
	if len(out.History) > models.HistoryLimit {
		out.History = out.History[len(out.History)-models.HistoryLimit:]
	}
	for name, values := range fragment.Entities {
		vals := make([]string, len(values))
		copy(vals, values)
		out.Entities[name] = vals
	}
	out.Filters = append(out.Filters, fragment.Filters...)
	if fragment.TimeRange != nil {
		tr := *fragment.TimeRange
		out.TimeRange = &tr
	}
	for key, value := range fragment.Metadata {
		out.Metadata[key] = value
	}
	return out
}
