package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pulseboard/internal/models"
)

// Notifier delivers one widget's ordered batch of updates to the rendering
// layer. Implementations may await I/O; an error fails the whole batch.
type Notifier func(ctx context.Context, notification models.WidgetUpdateNotification) error

// UpdateQueueService buffers inbound widget updates and flushes them in
// bounded, per-widget batches.
//
// Two independent ring buffers: the pending queue (capacity 100 by default)
// holds updates awaiting delivery, the history buffer (capacity 500) is the
// post-delivery audit trail. Each evicts its own oldest entry on overflow, so
// a flooded pending queue never erases audit history.
//
// Delivery is at-most-once: a failed batch is counted and dropped, never
// requeued. Within one widget, updates always arrive in enqueue order.
type UpdateQueueService struct {
	pending []models.RealTimeUpdate
	history []models.RealTimeUpdate

	queueCap   int
	historyCap int
	batchSize  int
	throttle   time.Duration

	notifier Notifier
	stats    *PipelineStats

	// The flusher owns dispatch timing: reaching the batch size schedules a
	// flush after the throttle delay instead of firing immediately, and the
	// limiter paces successive flush passes.
	flushScheduled bool
	limiter        *rate.Limiter
	schedule       func(delay time.Duration, fn func())

	now   func() time.Time
	newID func() string
	mutex sync.Mutex

	// Serializes whole take-and-deliver passes. The state mutex only covers
	// the dequeue, so without this a second pass could deliver a later batch
	// while an earlier one is still in flight, reordering a widget's updates.
	dispatchMutex sync.Mutex
}

// NewUpdateQueueService creates a dispatcher delivering through the given
// notifier.
func NewUpdateQueueService(queueCap, historyCap, batchSize int, throttle time.Duration, notifier Notifier, stats *PipelineStats) *UpdateQueueService {
	if queueCap <= 0 {
		queueCap = 100
	}
	if historyCap <= 0 {
		historyCap = 500
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	if throttle <= 0 {
		throttle = time.Second
	}
	return &UpdateQueueService{
		pending:    make([]models.RealTimeUpdate, 0, queueCap),
		history:    make([]models.RealTimeUpdate, 0, historyCap),
		queueCap:   queueCap,
		historyCap: historyCap,
		batchSize:  batchSize,
		throttle:   throttle,
		notifier:   notifier,
		stats:      stats,
		limiter:    rate.NewLimiter(rate.Every(throttle), 1),
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// SetClock overrides the service clock. Used by tests.
func (s *UpdateQueueService) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// SetScheduler overrides how flushes are scheduled. Tests inject a fake so
// flush cadence can be asserted without sleeping.
func (s *UpdateQueueService) SetScheduler(schedule func(delay time.Duration, fn func())) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.schedule = schedule
}

// SetNotifier replaces the delivery callback.
func (s *UpdateQueueService) SetNotifier(notifier Notifier) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.notifier = notifier
}

// AddUpdate enqueues an update for delivery and records it in the audit
// history. Missing ids and timestamps are filled in. Overflow silently
// evicts the oldest entry of whichever buffer is full.
func (s *UpdateQueueService) AddUpdate(update models.RealTimeUpdate) models.RealTimeUpdate {
	s.mutex.Lock()

	if update.ID == "" {
		update.ID = s.newID()
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = s.now()
	}
	if update.UpdateType == "" {
		update.UpdateType = models.UpdateTypePartial
	}
	if update.Source == "" {
		update.Source = models.UpdateSourceManual
	}

	if len(s.pending) >= s.queueCap {
		s.pending = s.pending[1:]
		if m := GetMetrics(); m != nil {
			m.UpdatesEvicted.Inc()
		}
	}
	s.pending = append(s.pending, update)

	if len(s.history) >= s.historyCap {
		s.history = s.history[1:]
	}
	s.history = append(s.history, update)

	shouldFlush := len(s.pending) >= s.batchSize
	s.mutex.Unlock()

	s.stats.RecordUpdate()
	if m := GetMetrics(); m != nil {
		m.RecordIngested(update.Source, update.UpdateType)
	}

	if shouldFlush {
		s.scheduleFlush()
	}
	return update
}

// scheduleFlush arranges a flush after the throttle delay unless one is
// already scheduled.
func (s *UpdateQueueService) scheduleFlush() {
	s.mutex.Lock()
	if s.flushScheduled {
		s.mutex.Unlock()
		return
	}
	s.flushScheduled = true
	schedule := s.schedule
	delay := s.throttle
	s.mutex.Unlock()

	schedule(delay, s.autoFlush)
}

// autoFlush runs one processing pass and reschedules itself while work
// remains.
func (s *UpdateQueueService) autoFlush() {
	s.mutex.Lock()
	s.flushScheduled = false
	s.mutex.Unlock()

	if err := s.limiter.Wait(context.Background()); err != nil {
		return
	}
	s.ProcessQueue(context.Background())

	s.mutex.Lock()
	remaining := len(s.pending)
	s.mutex.Unlock()
	if remaining > 0 {
		s.scheduleFlush()
	}
}

// ProcessQueue takes up to one batch from the front of the pending queue,
// groups it per widget preserving first-appearance order, and delivers each
// widget's updates as a unit. A delivery failure is counted and skipped, the
// dequeued items are not requeued, and the pass continues with the next
// widget. Returns the number of updates taken off the queue.
//
// Passes are serialized: a pass that starts while another is still delivering
// waits for it, so one widget's batches always go out in dequeue order even
// when the flush timer and a manual flush race.
func (s *UpdateQueueService) ProcessQueue(ctx context.Context) int {
	s.dispatchMutex.Lock()
	defer s.dispatchMutex.Unlock()

	s.mutex.Lock()
	n := len(s.pending)
	if n > s.batchSize {
		n = s.batchSize
	}
	if n == 0 {
		s.mutex.Unlock()
		return 0
	}
	batch := make([]models.RealTimeUpdate, n)
	copy(batch, s.pending[:n])
	s.pending = s.pending[n:]
	notifier := s.notifier
	s.mutex.Unlock()

	// Group by widget, keeping the grouping order stable within this pass.
	order := make([]string, 0, len(batch))
	groups := make(map[string][]models.RealTimeUpdate, len(batch))
	for _, update := range batch {
		if _, seen := groups[update.WidgetID]; !seen {
			order = append(order, update.WidgetID)
		}
		groups[update.WidgetID] = append(groups[update.WidgetID], update)
	}

	for _, widgetID := range order {
		updates := groups[widgetID]
		notification := models.WidgetUpdateNotification{
			Type:      "widget_update",
			WidgetID:  widgetID,
			Updates:   updates,
			Timestamp: s.now(),
		}

		start := time.Now()
		if notifier == nil {
			continue
		}
		if err := notifier(ctx, notification); err != nil {
			s.stats.RecordFailures(len(updates))
			if m := GetMetrics(); m != nil {
				m.UpdatesFailed.Add(float64(len(updates)))
			}
			log.Printf("⚠️ Batch delivery failed for widget %s (%d updates): %v", widgetID, len(updates), err)
			continue
		}

		elapsed := time.Since(start)
		s.stats.RecordLatency(elapsed)
		if m := GetMetrics(); m != nil {
			m.UpdatesDelivered.Add(float64(len(updates)))
			m.BatchLatency.Observe(elapsed.Seconds())
		}
	}

	return n
}

// ClearQueue drops all pending updates. The audit history is untouched.
func (s *UpdateQueueService) ClearQueue() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pending = s.pending[:0]
}

// PendingLen returns the number of updates awaiting delivery.
func (s *UpdateQueueService) PendingLen() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.pending)
}

// PendingUpdates returns a copy of the pending queue, oldest first.
func (s *UpdateQueueService) PendingUpdates() []models.RealTimeUpdate {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]models.RealTimeUpdate, len(s.pending))
	copy(out, s.pending)
	return out
}

// HistoryUpdates returns a copy of the audit history, oldest first.
func (s *UpdateQueueService) HistoryUpdates() []models.RealTimeUpdate {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]models.RealTimeUpdate, len(s.history))
	copy(out, s.history)
	return out
}

// GetUpdatesForWidget returns all updates for one widget still retained in
// the audit history, oldest first.
func (s *UpdateQueueService) GetUpdatesForWidget(widgetID string) []models.RealTimeUpdate {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []models.RealTimeUpdate
	for _, update := range s.history {
		if update.WidgetID == widgetID {
			out = append(out, update)
		}
	}
	return out
}
