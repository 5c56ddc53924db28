package models

import "time"

// WidgetSubscription tracks one widget's appetite for live updates. At most
// one subscription exists per widget id; re-subscribing merges options into
// the existing record and reactivates it.
type WidgetSubscription struct {
	WidgetID    string    `json:"widget_id"`
	WidgetType  string    `json:"widget_type"`
	RefreshRate int       `json:"refresh_rate"` // milliseconds
	LastUpdate  time.Time `json:"last_update"`
	IsActive    bool      `json:"is_active"`
	AutoRefresh bool      `json:"auto_refresh"`
	Query       string    `json:"query,omitempty"`
	Filters     []Filter  `json:"filters,omitempty"`
}

// SubscribeOptions are the caller-supplied overrides for Subscribe. Nil
// pointer fields leave the existing value untouched on re-subscribe.
type SubscribeOptions struct {
	RefreshRate *int     `json:"refresh_rate,omitempty"`
	AutoRefresh *bool    `json:"auto_refresh,omitempty"`
	Query       *string  `json:"query,omitempty"`
	Filters     []Filter `json:"filters,omitempty"`
}
