package services

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/yuin/goldmark"

	"pulseboard/internal/models"
)

// Pending pin requests expire if neither confirmed nor cancelled.
const (
	pendingPinTTL           = 10 * time.Minute
	pendingPinSweepInterval = time.Minute
)

// ErrWidgetNotFound is returned when an operation names an unpinned widget.
var ErrWidgetNotFound = errors.New("widget not found")

// PinService converts chat-produced visual payloads into pinned dashboard
// widgets and owns their grid placement.
//
// Placement is a greedy row-major scan: the first cell whose coordinates are
// not another widget's top-left anchor wins. Widgets spanning multiple cells
// can overlap a later widget's body; typical widget counts are small enough
// that the simple scan is kept.
type PinService struct {
	widgets     []*models.DashboardWidget
	byID        map[string]*models.DashboardWidget
	pending     *cache.Cache
	gridColumns int
	markdown    goldmark.Markdown

	// onPin, when set, is invoked after a widget is newly pinned. The main
	// wiring points this at the subscription registry.
	onPin func(*models.DashboardWidget)

	now   func() time.Time
	mutex sync.RWMutex
}

// NewPinService creates a pin service laying widgets out over the given
// number of grid columns.
func NewPinService(gridColumns int) *PinService {
	if gridColumns <= 0 {
		gridColumns = 4
	}
	return &PinService{
		byID:        make(map[string]*models.DashboardWidget),
		pending:     cache.New(pendingPinTTL, pendingPinSweepInterval),
		gridColumns: gridColumns,
		markdown:    goldmark.New(),
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Used by tests.
func (s *PinService) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// OnPin registers a callback invoked whenever a new widget is pinned.
func (s *PinService) OnPin(fn func(*models.DashboardWidget)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onPin = fn
}

// GenerateWidget builds a widget from a visual payload. Composite payloads
// pin as charts carrying their card list in the config; narrative payloads
// have their Markdown rendered to HTML for the insight feed.
func (s *PinService) GenerateWidget(payload models.VisualPayload, messageID string) *models.DashboardWidget {
	s.mutex.RLock()
	now := s.now()
	s.mutex.RUnlock()

	config := make(map[string]interface{}, len(payload.Config)+1)
	for key, value := range payload.Config {
		config[key] = value
	}

	widgetType := models.WidgetTypeSummaryCard
	data := payload.Data

	switch payload.Type {
	case models.WidgetTypeComposite:
		widgetType = models.WidgetTypeChart
		config["cards"] = payload.Cards
	case models.WidgetTypeChart:
		widgetType = models.WidgetTypeChart
	case models.WidgetTypeTable:
		widgetType = models.WidgetTypeTable
	case "narrative":
		widgetType = models.WidgetTypeInsightFeed
		if text, ok := payload.Data.(string); ok {
			data = s.renderMarkdown(text)
			config["format"] = "html"
		}
	}

	title := payload.Title
	if title == "" {
		title = "Pinned from chat"
	}

	return &models.DashboardWidget{
		// Message id plus timestamp keeps ids unique even for rapid
		// repeated pins of the same message.
		ID:          fmt.Sprintf("chat-%s-%d", messageID, now.UnixMilli()),
		Type:        widgetType,
		Title:       title,
		Data:        data,
		Config:      config,
		Position:    defaultSize(widgetType),
		LastUpdated: now,
	}
}

// renderMarkdown converts narrative Markdown to HTML. On conversion failure
// the raw text is kept.
func (s *PinService) renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️ Markdown conversion failed: %v", err)
		return text
	}
	return buf.String()
}

// defaultSize returns the widget's footprint by type: charts are wide,
// tables are tall, everything else is a single cell.
func defaultSize(widgetType string) models.WidgetPosition {
	switch widgetType {
	case models.WidgetTypeChart:
		return models.WidgetPosition{Width: 2, Height: 1}
	case models.WidgetTypeTable:
		return models.WidgetPosition{Width: 1, Height: 2}
	default:
		return models.WidgetPosition{Width: 1, Height: 1}
	}
}

// Pin places a widget on the dashboard. Pinning an id that already exists
// updates the existing widget's data and timestamp and leaves its position
// unchanged; a new id is inserted at the next free grid cell.
func (s *PinService) Pin(widget *models.DashboardWidget) {
	s.mutex.Lock()

	if existing, ok := s.byID[widget.ID]; ok {
		updated := *existing
		updated.Data = widget.Data
		updated.Title = widget.Title
		updated.LastUpdated = s.now()
		s.replaceLocked(&updated)
		s.mutex.Unlock()
		log.Printf("📌 Widget refreshed: %s", widget.ID)
		return
	}

	pos := s.findOptimalPositionLocked()
	pos.Width = widget.Position.Width
	pos.Height = widget.Position.Height
	if pos.Width == 0 || pos.Height == 0 {
		size := defaultSize(widget.Type)
		pos.Width, pos.Height = size.Width, size.Height
	}
	widget.Position = pos

	s.widgets = append(s.widgets, widget)
	s.byID[widget.ID] = widget
	onPin := s.onPin
	s.mutex.Unlock()

	if m := GetMetrics(); m != nil {
		m.PinnedWidgets.Inc()
	}
	log.Printf("📌 Widget pinned: %s (%s) at row=%d col=%d", widget.ID, widget.Type, pos.Row, pos.Col)

	if onPin != nil {
		onPin(widget)
	}
}

// replaceLocked swaps a widget value in both the slice and the index.
func (s *PinService) replaceLocked(widget *models.DashboardWidget) {
	for i, w := range s.widgets {
		if w.ID == widget.ID {
			s.widgets[i] = widget
			break
		}
	}
	s.byID[widget.ID] = widget
}

// findOptimalPositionLocked walks (row, col) in reading order and returns
// the first cell that is not an existing widget's anchor.
func (s *PinService) findOptimalPositionLocked() models.WidgetPosition {
	for row := 0; ; row++ {
		for col := 0; col < s.gridColumns; col++ {
			occupied := false
			for _, w := range s.widgets {
				if w.Position.Row == row && w.Position.Col == col {
					occupied = true
					break
				}
			}
			if !occupied {
				return models.WidgetPosition{Row: row, Col: col}
			}
		}
	}
}

// Unpin removes a widget from the dashboard.
func (s *PinService) Unpin(widgetID string) error {
	s.mutex.Lock()

	if _, ok := s.byID[widgetID]; !ok {
		s.mutex.Unlock()
		return ErrWidgetNotFound
	}

	delete(s.byID, widgetID)
	for i, w := range s.widgets {
		if w.ID == widgetID {
			s.widgets = append(s.widgets[:i], s.widgets[i+1:]...)
			break
		}
	}
	s.mutex.Unlock()

	if m := GetMetrics(); m != nil {
		m.PinnedWidgets.Dec()
	}
	log.Printf("📌 Widget unpinned: %s", widgetID)
	return nil
}

// Reposition moves a widget to an explicit grid rectangle.
func (s *PinService) Reposition(widgetID string, pos models.WidgetPosition) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.byID[widgetID]
	if !ok {
		return ErrWidgetNotFound
	}

	updated := *existing
	updated.Position = pos
	updated.LastUpdated = s.now()
	s.replaceLocked(&updated)
	return nil
}

// Touch bumps a widget's data and timestamp after a delivered update.
func (s *PinService) Touch(widgetID string, data interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.byID[widgetID]
	if !ok {
		return
	}
	updated := *existing
	if data != nil {
		updated.Data = data
	}
	updated.LastUpdated = s.now()
	s.replaceLocked(&updated)
}

// Get returns a pinned widget by id.
func (s *PinService) Get(widgetID string) (*models.DashboardWidget, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	widget, ok := s.byID[widgetID]
	return widget, ok
}

// Widgets returns the pinned widgets in pin order.
func (s *PinService) Widgets() []models.DashboardWidget {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]models.DashboardWidget, 0, len(s.widgets))
	for _, w := range s.widgets {
		out = append(out, *w)
	}
	return out
}

// Layout returns the widget layout map for grid placement. It is a derived
// view regenerated from each widget's position; positions are the single
// source of truth.
func (s *PinService) Layout() map[string]models.WidgetPosition {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	layout := make(map[string]models.WidgetPosition, len(s.widgets))
	for _, w := range s.widgets {
		layout[w.ID] = w.Position
	}
	return layout
}

// Restore re-pins widgets from a snapshot, keeping their saved positions.
func (s *PinService) Restore(widgets []models.DashboardWidget) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range widgets {
		w := widgets[i]
		if _, ok := s.byID[w.ID]; ok {
			continue
		}
		s.widgets = append(s.widgets, &w)
		s.byID[w.ID] = &w
	}
	if m := GetMetrics(); m != nil {
		m.PinnedWidgets.Set(float64(len(s.widgets)))
	}
}

// AddPendingPin stages a visual payload awaiting user confirmation. At most
// one request exists per message id; a repeat replaces the previous one.
func (s *PinService) AddPendingPin(messageID string, payload models.VisualPayload) {
	s.pending.SetDefault(messageID, &models.PendingPinRequest{
		MessageID: messageID,
		Payload:   payload,
		CreatedAt: s.now(),
	})
}

// PendingPin returns the staged payload for a message id, if any.
func (s *PinService) PendingPin(messageID string) (*models.PendingPinRequest, bool) {
	value, found := s.pending.Get(messageID)
	if !found {
		return nil, false
	}
	return value.(*models.PendingPinRequest), true
}

// ConfirmPin resolves a pending pin request into a pinned widget. Confirming
// an unknown or already-resolved message id is a silent no-op, which closes
// the double-confirm race.
func (s *PinService) ConfirmPin(messageID string, overrides map[string]interface{}) (*models.DashboardWidget, bool) {
	value, found := s.pending.Get(messageID)
	if !found {
		return nil, false
	}
	request := value.(*models.PendingPinRequest)
	s.pending.Delete(messageID)

	widget := s.GenerateWidget(request.Payload, messageID)
	applyOverrides(widget, overrides)
	s.Pin(widget)
	return widget, true
}

// CancelPin drops a pending pin request. Unknown ids are a silent no-op.
func (s *PinService) CancelPin(messageID string) {
	s.pending.Delete(messageID)
}

// applyOverrides applies user-supplied overrides to a generated widget
// before pinning.
func applyOverrides(widget *models.DashboardWidget, overrides map[string]interface{}) {
	if overrides == nil {
		return
	}
	if title, ok := overrides["title"].(string); ok && title != "" {
		widget.Title = title
	}
	if config, ok := overrides["config"].(map[string]interface{}); ok {
		for key, value := range config {
			widget.Config[key] = value
		}
	}
}
