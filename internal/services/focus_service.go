package services

import (
	"log"
	"sync"
	"time"

	"pulseboard/internal/models"
)

// FocusService manages the focused drill-down session. There is a single
// slot: starting a new session while one is active ends the old one first
// (with a history entry); focus requests are never queued.
type FocusService struct {
	active   *models.FocusedSession
	contexts *ContextService
	history  *HistoryLog
	now      func() time.Time
	mutex    sync.RWMutex
}

// NewFocusService creates a focus service bound to the context service it
// synchronizes through.
func NewFocusService(contexts *ContextService, history *HistoryLog) *FocusService {
	return &FocusService{
		contexts: contexts,
		history:  history,
		now:      time.Now,
	}
}

// SetClock overrides the service clock. Used by tests.
func (s *FocusService) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// Active returns the current focused session, or nil.
func (s *FocusService) Active() *models.FocusedSession {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.active
}

// ActiveContext returns the active session's context, or nil when idle.
func (s *FocusService) ActiveContext() *models.ConversationContext {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.active == nil {
		return nil
	}
	return s.active.Context
}

// Start begins a focused session anchored to the given entity. Any active
// session is implicitly ended first. When synchronization is enabled the
// focused context is merged immediately so the rest of the system observes
// it.
func (s *FocusService) Start(sessionType, anchorID string, ctx *models.ConversationContext, spawnQuery string) *models.FocusedSession {
	s.mutex.Lock()

	if s.active != nil {
		s.endLocked()
	}

	session := &models.FocusedSession{
		Type:       sessionType,
		ID:         anchorID,
		Context:    ctx,
		SpawnQuery: spawnQuery,
		StartedAt:  s.now(),
	}
	s.active = session
	s.history.Append(models.HistoryEntrySpawn, sessionType, anchorID, ctx)
	log.Printf("🔍 Focused session started: %s/%s", sessionType, anchorID)

	s.mutex.Unlock()

	if s.contexts.SyncEnabled() {
		s.contexts.Sync(ctx)
	}

	return session
}

// Update replaces the active session's context. No-op when no session is
// active.
func (s *FocusService) Update(ctx *models.ConversationContext) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.active == nil {
		return
	}

	// Replace the whole session value so the rendering layer sees a new
	// pointer, matching the context replacement rule.
	session := *s.active
	session.Context = ctx
	s.active = &session
}

// End closes the active session, logging a final history entry. No-op when
// idle.
func (s *FocusService) End() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.endLocked()
}

func (s *FocusService) endLocked() {
	if s.active == nil {
		return
	}
	s.history.Append(models.HistoryEntrySync, s.active.Type+"/"+s.active.ID, "none", s.active.Context)
	log.Printf("🔍 Focused session ended: %s/%s", s.active.Type, s.active.ID)
	s.active = nil
}
