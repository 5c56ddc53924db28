package models

import "time"

// Widget types renderable on the dashboard grid.
const (
	WidgetTypeChart       = "chart"
	WidgetTypeTable       = "table"
	WidgetTypeSummaryCard = "summary_card"
	WidgetTypeInsightFeed = "insight_feed"
	WidgetTypeComposite   = "composite"
)

// WidgetPosition is a widget's rectangle on the grid: anchor cell plus span.
type WidgetPosition struct {
	Row    int `json:"row"`
	Col    int `json:"col"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DashboardWidget is one pinned widget.
type DashboardWidget struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Data        interface{}            `json:"data"`
	Config      map[string]interface{} `json:"config"`
	Position    WidgetPosition         `json:"position"`
	LastUpdated time.Time              `json:"last_updated"`
}

// VisualCard is one card inside a composite visual payload.
type VisualCard struct {
	Type   string                 `json:"type"`
	Title  string                 `json:"title"`
	Data   interface{}            `json:"data"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// VisualPayload is a chat-produced visual artifact offered for pinning.
// Type is one of the widget types, "narrative" for Markdown text, or
// "composite" for a card collection.
type VisualPayload struct {
	Type   string                 `json:"type"`
	Title  string                 `json:"title"`
	Data   interface{}            `json:"data"`
	Config map[string]interface{} `json:"config,omitempty"`
	Cards  []VisualCard           `json:"cards,omitempty"`
}

// PendingPinRequest is a staged payload awaiting user confirmation.
type PendingPinRequest struct {
	MessageID string        `json:"message_id"`
	Payload   VisualPayload `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
}
