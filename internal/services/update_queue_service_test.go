package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pulseboard/internal/models"
)

// recordingNotifier captures every delivered notification in order.
type recordingNotifier struct {
	notifications []models.WidgetUpdateNotification
	failFor       map[string]bool
}

func (r *recordingNotifier) notify(_ context.Context, n models.WidgetUpdateNotification) error {
	if r.failFor[n.WidgetID] {
		return errors.New("connection gone")
	}
	r.notifications = append(r.notifications, n)
	return nil
}

// manualScheduler collects scheduled flushes so tests drive them explicitly.
type manualScheduler struct {
	delays []time.Duration
	fns    []func()
}

func (m *manualScheduler) schedule(delay time.Duration, fn func()) {
	m.delays = append(m.delays, delay)
	m.fns = append(m.fns, fn)
}

// runNext pops and runs the oldest scheduled flush.
func (m *manualScheduler) runNext(t *testing.T) {
	t.Helper()
	if len(m.fns) == 0 {
		t.Fatal("No flush scheduled")
	}
	fn := m.fns[0]
	m.fns = m.fns[1:]
	m.delays = m.delays[1:]
	fn()
}

func newQueueFixture(queueCap, historyCap, batchSize int) (*UpdateQueueService, *recordingNotifier, *manualScheduler, *PipelineStats) {
	notifier := &recordingNotifier{failFor: map[string]bool{}}
	stats := NewPipelineStats()
	// Throttle is tiny so limiter waits are negligible under test
	svc := NewUpdateQueueService(queueCap, historyCap, batchSize, time.Millisecond, notifier.notify, stats)
	scheduler := &manualScheduler{}
	svc.SetScheduler(scheduler.schedule)
	return svc, notifier, scheduler, stats
}

func update(widgetID, id string) models.RealTimeUpdate {
	return models.RealTimeUpdate{ID: id, WidgetID: widgetID, Data: id}
}

func TestAddUpdate_FillsDefaults(t *testing.T) {
	svc, _, _, _ := newQueueFixture(100, 500, 10)

	added := svc.AddUpdate(models.RealTimeUpdate{WidgetID: "w1"})
	if added.ID == "" {
		t.Error("Expected generated id")
	}
	if added.Timestamp.IsZero() {
		t.Error("Expected generated timestamp")
	}
	if added.UpdateType != models.UpdateTypePartial {
		t.Errorf("Expected default update type partial, got %s", added.UpdateType)
	}
	if added.Source != models.UpdateSourceManual {
		t.Errorf("Expected default source manual, got %s", added.Source)
	}
}

func TestAddUpdate_PendingQueueEviction(t *testing.T) {
	svc, _, _, _ := newQueueFixture(100, 500, 1000)

	for i := 0; i < 101; i++ {
		svc.AddUpdate(update("w1", fmt.Sprintf("u%d", i)))
	}

	if svc.PendingLen() != 100 {
		t.Fatalf("Expected pending capped at 100, got %d", svc.PendingLen())
	}

	pending := svc.PendingUpdates()
	if pending[0].ID != "u1" {
		t.Errorf("Expected oldest update u0 evicted, front is %s", pending[0].ID)
	}
	if pending[len(pending)-1].ID != "u100" {
		t.Errorf("Expected newest update u100 retained, got %s", pending[len(pending)-1].ID)
	}

	// The audit history evicts independently and still holds all 101
	if got := len(svc.HistoryUpdates()); got != 101 {
		t.Errorf("Expected 101 history entries, got %d", got)
	}
}

func TestAddUpdate_HistoryEvictionIndependent(t *testing.T) {
	svc, _, _, _ := newQueueFixture(100, 120, 1000)

	for i := 0; i < 130; i++ {
		svc.AddUpdate(update("w1", fmt.Sprintf("u%d", i)))
	}

	history := svc.HistoryUpdates()
	if len(history) != 120 {
		t.Fatalf("Expected history capped at 120, got %d", len(history))
	}
	if history[0].ID != "u10" {
		t.Errorf("Expected history front u10, got %s", history[0].ID)
	}
	if svc.PendingLen() != 100 {
		t.Errorf("Expected pending capped at 100, got %d", svc.PendingLen())
	}
}

func TestProcessQueue_TakesAtMostOneBatch(t *testing.T) {
	svc, notifier, _, _ := newQueueFixture(100, 500, 3)
	svc.SetScheduler(func(time.Duration, func()) {}) // suppress auto flush

	for i := 0; i < 5; i++ {
		svc.AddUpdate(update("w1", fmt.Sprintf("u%d", i)))
	}

	n := svc.ProcessQueue(context.Background())
	if n != 3 {
		t.Fatalf("Expected 3 updates processed, got %d", n)
	}
	if svc.PendingLen() != 2 {
		t.Errorf("Expected 2 updates still pending, got %d", svc.PendingLen())
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("Expected one notification, got %d", len(notifier.notifications))
	}
	got := notifier.notifications[0]
	if got.WidgetID != "w1" || len(got.Updates) != 3 {
		t.Errorf("Unexpected notification: widget=%s updates=%d", got.WidgetID, len(got.Updates))
	}
	if got.Updates[0].ID != "u0" || got.Updates[2].ID != "u2" {
		t.Error("Updates must be delivered in enqueue order")
	}
}

func TestProcessQueue_GroupsPerWidgetInFirstAppearanceOrder(t *testing.T) {
	svc, notifier, _, _ := newQueueFixture(100, 500, 10)
	svc.SetScheduler(func(time.Duration, func()) {})

	svc.AddUpdate(update("w2", "a"))
	svc.AddUpdate(update("w1", "b"))
	svc.AddUpdate(update("w2", "c"))
	svc.AddUpdate(update("w1", "d"))

	svc.ProcessQueue(context.Background())

	if len(notifier.notifications) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(notifier.notifications))
	}
	if notifier.notifications[0].WidgetID != "w2" || notifier.notifications[1].WidgetID != "w1" {
		t.Errorf("Expected first-appearance order w2,w1; got %s,%s",
			notifier.notifications[0].WidgetID, notifier.notifications[1].WidgetID)
	}

	w2 := notifier.notifications[0].Updates
	if len(w2) != 2 || w2[0].ID != "a" || w2[1].ID != "c" {
		t.Errorf("w2 updates out of order: %+v", w2)
	}
}

func TestProcessQueue_FailureIsolatedPerWidget(t *testing.T) {
	svc, notifier, _, stats := newQueueFixture(100, 500, 10)
	svc.SetScheduler(func(time.Duration, func()) {})
	notifier.failFor["w1"] = true

	svc.AddUpdate(update("w1", "a"))
	svc.AddUpdate(update("w1", "b"))
	svc.AddUpdate(update("w2", "c"))

	n := svc.ProcessQueue(context.Background())
	if n != 3 {
		t.Fatalf("Expected 3 updates taken, got %d", n)
	}

	// w1's batch failed; w2 still delivered
	if len(notifier.notifications) != 1 || notifier.notifications[0].WidgetID != "w2" {
		t.Fatalf("Expected only w2 delivered, got %+v", notifier.notifications)
	}

	// Failures are counted, never requeued
	if svc.PendingLen() != 0 {
		t.Errorf("Failed updates must not be requeued, %d pending", svc.PendingLen())
	}
	snap := stats.Snapshot()
	if snap.FailedUpdates != 2 {
		t.Errorf("Expected 2 failed updates counted, got %d", snap.FailedUpdates)
	}
}

func TestProcessQueue_ConcurrentPassesKeepPerWidgetOrder(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	firstBatch := true
	notifier := func(_ context.Context, n models.WidgetUpdateNotification) error {
		mu.Lock()
		slow := firstBatch
		firstBatch = false
		mu.Unlock()
		// The first batch stalls in delivery, like a stuck websocket write,
		// while the second pass is already running
		if slow {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		for _, u := range n.Updates {
			delivered = append(delivered, u.ID)
		}
		mu.Unlock()
		return nil
	}

	svc := NewUpdateQueueService(100, 500, 1, time.Millisecond, notifier, NewPipelineStats())
	svc.SetScheduler(func(time.Duration, func()) {})

	svc.AddUpdate(update("w1", "u1"))
	svc.AddUpdate(update("w1", "u2"))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.ProcessQueue(context.Background())
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 2 || delivered[0] != "u1" || delivered[1] != "u2" {
		t.Fatalf("Expected w1 updates delivered as u1,u2; got %v", delivered)
	}
}

func TestAddUpdate_SchedulesFlushAtBatchSize(t *testing.T) {
	svc, _, scheduler, _ := newQueueFixture(100, 500, 3)

	svc.AddUpdate(update("w1", "a"))
	svc.AddUpdate(update("w1", "b"))
	if len(scheduler.fns) != 0 {
		t.Fatal("Flush must not be scheduled below the batch size")
	}

	svc.AddUpdate(update("w1", "c"))
	if len(scheduler.fns) != 1 {
		t.Fatalf("Expected one scheduled flush, got %d", len(scheduler.fns))
	}
	if scheduler.delays[0] != time.Millisecond {
		t.Errorf("Expected flush delayed by the throttle, got %v", scheduler.delays[0])
	}

	// More updates while a flush is scheduled must not schedule another
	svc.AddUpdate(update("w1", "d"))
	if len(scheduler.fns) != 1 {
		t.Errorf("Expected flush scheduling deduplicated, got %d", len(scheduler.fns))
	}
}

func TestPipeline_EndToEndBatches(t *testing.T) {
	svc, notifier, scheduler, stats := newQueueFixture(100, 500, 10)

	for i := 0; i < 12; i++ {
		svc.AddUpdate(update("w1", fmt.Sprintf("u%d", i)))
	}

	// First flush delivers a full batch and reschedules for the remainder
	scheduler.runNext(t)
	if len(notifier.notifications) != 1 || len(notifier.notifications[0].Updates) != 10 {
		t.Fatalf("Expected first batch of 10, got %+v", notifier.notifications)
	}

	scheduler.runNext(t)
	if len(notifier.notifications) != 2 || len(notifier.notifications[1].Updates) != 2 {
		t.Fatalf("Expected trailing batch of 2, got %d notifications", len(notifier.notifications))
	}
	if svc.PendingLen() != 0 {
		t.Errorf("Expected drained queue, got %d pending", svc.PendingLen())
	}

	// Per-widget ordering held across batches
	first := notifier.notifications[0].Updates
	second := notifier.notifications[1].Updates
	if first[0].ID != "u0" || first[9].ID != "u9" || second[0].ID != "u10" || second[1].ID != "u11" {
		t.Error("Updates must arrive in enqueue order across batches")
	}

	snap := stats.Snapshot()
	if snap.TotalUpdates != 12 {
		t.Errorf("Expected 12 total updates, got %d", snap.TotalUpdates)
	}
	if snap.FailedUpdates != 0 {
		t.Errorf("Expected no failures, got %d", snap.FailedUpdates)
	}
	if snap.AverageLatency <= 0 {
		t.Error("Expected a positive average latency after deliveries")
	}
}

func TestClearQueue_KeepsHistory(t *testing.T) {
	svc, _, _, _ := newQueueFixture(100, 500, 1000)

	svc.AddUpdate(update("w1", "a"))
	svc.AddUpdate(update("w2", "b"))
	svc.ClearQueue()

	if svc.PendingLen() != 0 {
		t.Errorf("Expected pending cleared, got %d", svc.PendingLen())
	}
	if got := len(svc.HistoryUpdates()); got != 2 {
		t.Errorf("Clear must not touch history, got %d entries", got)
	}
}

func TestGetUpdatesForWidget(t *testing.T) {
	svc, _, _, _ := newQueueFixture(100, 500, 1000)

	svc.AddUpdate(update("w1", "a"))
	svc.AddUpdate(update("w2", "b"))
	svc.AddUpdate(update("w1", "c"))

	got := svc.GetUpdatesForWidget("w1")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("Expected w1 updates a,c in order, got %+v", got)
	}
	if got := svc.GetUpdatesForWidget("missing"); len(got) != 0 {
		t.Errorf("Expected no updates for unknown widget, got %d", len(got))
	}
}
