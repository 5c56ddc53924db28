package models

import "time"

// HistoryLimit caps the message history carried by a conversation context.
// When a merge would exceed it, the oldest messages are dropped first.
const HistoryLimit = 30

// Message is one conversation turn.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Filter is one active data filter (field, operator, value). Filters are
// never deduplicated when contexts merge.
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// TimeRange is the time window a view is currently scoped to.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ConversationContext is the shared conversational state of one view:
// message history, extracted entities, active filters, time scope and
// free-form metadata.
type ConversationContext struct {
	ConversationID string                 `json:"conversation_id"`
	History        []Message              `json:"history"`
	Entities       map[string][]string    `json:"entities"`
	Filters        []Filter               `json:"filters"`
	TimeRange      *TimeRange             `json:"time_range,omitempty"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// NewConversationContext creates an empty context with initialized maps.
func NewConversationContext(conversationID string) *ConversationContext {
	return &ConversationContext{
		ConversationID: conversationID,
		History:        []Message{},
		Entities:       make(map[string][]string),
		Filters:        []Filter{},
		Metadata:       make(map[string]interface{}),
	}
}

// Clone returns a deep copy. A nil receiver clones to nil.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}

	out := NewConversationContext(c.ConversationID)

	out.History = make([]Message, len(c.History))
	copy(out.History, c.History)

	for name, values := range c.Entities {
		vals := make([]string, len(values))
		copy(vals, values)
		out.Entities[name] = vals
	}

	out.Filters = make([]Filter, len(c.Filters))
	copy(out.Filters, c.Filters)

	if c.TimeRange != nil {
		tr := *c.TimeRange
		out.TimeRange = &tr
	}

	for key, value := range c.Metadata {
		out.Metadata[key] = value
	}

	return out
}
