package services

import (
	"log"
	"sync"
	"time"

	"pulseboard/internal/models"
)

// SubscriptionService tracks which widgets want live updates and at what
// cadence. One subscription per widget id, ever: subscribing an
// already-subscribed widget merges the new options into the existing record
// and reactivates it.
type SubscriptionService struct {
	subscriptions map[string]*models.WidgetSubscription
	defaultRate   int // milliseconds
	staleAfter    time.Duration
	now           func() time.Time
	mutex         sync.RWMutex
}

// NewSubscriptionService creates a subscription registry with the given
// default refresh rate (milliseconds) and staleness watermark.
func NewSubscriptionService(defaultRate int, staleAfter time.Duration) *SubscriptionService {
	if defaultRate <= 0 {
		defaultRate = 30000
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &SubscriptionService{
		subscriptions: make(map[string]*models.WidgetSubscription),
		defaultRate:   defaultRate,
		staleAfter:    staleAfter,
		now:           time.Now,
	}
}

// SetClock overrides the service clock. Used by tests.
func (s *SubscriptionService) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// Subscribe registers a widget for live updates. Re-subscribing merges the
// options into the existing record and always leaves it active.
func (s *SubscriptionService) Subscribe(widget *models.DashboardWidget, opts *models.SubscribeOptions) *models.WidgetSubscription {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sub, exists := s.subscriptions[widget.ID]
	if !exists {
		sub = &models.WidgetSubscription{
			WidgetID:    widget.ID,
			WidgetType:  widget.Type,
			RefreshRate: s.defaultRate,
			AutoRefresh: true,
		}
		s.subscriptions[widget.ID] = sub
	}

	sub.IsActive = true
	sub.LastUpdate = s.now()
	applySubscribeOptions(sub, opts)

	log.Printf("🔔 Subscribed widget %s (refresh: %dms)", widget.ID, sub.RefreshRate)
	return sub
}

func applySubscribeOptions(sub *models.WidgetSubscription, opts *models.SubscribeOptions) {
	if opts == nil {
		return
	}
	if opts.RefreshRate != nil {
		sub.RefreshRate = *opts.RefreshRate
	}
	if opts.AutoRefresh != nil {
		sub.AutoRefresh = *opts.AutoRefresh
	}
	if opts.Query != nil {
		sub.Query = *opts.Query
	}
	if opts.Filters != nil {
		sub.Filters = opts.Filters
	}
}

// Unsubscribe removes a widget's subscription entirely.
func (s *SubscriptionService) Unsubscribe(widgetID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.subscriptions[widgetID]; exists {
		delete(s.subscriptions, widgetID)
		log.Printf("🔕 Unsubscribed widget %s", widgetID)
	}
}

// UpdateSubscription applies a partial update to an existing record.
// Unknown widget ids are a no-op.
func (s *SubscriptionService) UpdateSubscription(widgetID string, opts *models.SubscribeOptions) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sub, exists := s.subscriptions[widgetID]
	if !exists {
		return
	}
	applySubscribeOptions(sub, opts)
}

// MarkUpdated records that a widget just received data.
func (s *SubscriptionService) MarkUpdated(widgetID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if sub, exists := s.subscriptions[widgetID]; exists {
		sub.LastUpdate = s.now()
	}
}

// Get returns a copy of a widget's subscription.
func (s *SubscriptionService) Get(widgetID string) (models.WidgetSubscription, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sub, exists := s.subscriptions[widgetID]
	if !exists {
		return models.WidgetSubscription{}, false
	}
	return *sub, true
}

// All returns copies of every subscription record.
func (s *SubscriptionService) All() []models.WidgetSubscription {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]models.WidgetSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, *sub)
	}
	return out
}

// PauseAll deactivates every subscription without deleting it (app suspend).
func (s *SubscriptionService) PauseAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, sub := range s.subscriptions {
		sub.IsActive = false
	}
	log.Printf("⏸️  Paused %d subscriptions", len(s.subscriptions))
}

// ResumeAll reactivates every subscription (app resume).
func (s *SubscriptionService) ResumeAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, sub := range s.subscriptions {
		sub.IsActive = true
	}
	log.Printf("▶️  Resumed %d subscriptions", len(s.subscriptions))
}

// Optimize drops subscriptions that are both inactive and stale past the
// watermark. Active subscriptions are never dropped regardless of age.
// Returns the number removed.
func (s *SubscriptionService) Optimize() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := s.now().Add(-s.staleAfter)
	removed := 0
	for widgetID, sub := range s.subscriptions {
		if !sub.IsActive && sub.LastUpdate.Before(cutoff) {
			delete(s.subscriptions, widgetID)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("🧹 Pruned %d stale subscriptions (%d remain)", removed, len(s.subscriptions))
	}
	return removed
}

// Restore loads subscriptions from a snapshot. Restored records are always
// inactive; clients must reactivate them explicitly after a restart.
func (s *SubscriptionService) Restore(subs []models.WidgetSubscription) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range subs {
		sub := subs[i]
		sub.IsActive = false
		s.subscriptions[sub.WidgetID] = &sub
	}
}
