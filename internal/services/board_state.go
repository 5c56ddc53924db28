package services

import (
	"sync"

	"pulseboard/internal/models"
)

// BoardState holds the cross-view UI flags the rendering layer persists:
// hybrid mode, layout mode, split ratio, chat panel collapse. It also knows
// how to assemble the full snapshot from the other services.
type BoardState struct {
	hybridMode    bool
	layoutMode    string
	splitRatio    float64
	chatCollapsed bool
	mutex         sync.RWMutex
}

// NewBoardState returns the default board state: hybrid mode on, split
// layout at 50/50.
func NewBoardState() *BoardState {
	return &BoardState{
		hybridMode: true,
		layoutMode: "split",
		splitRatio: 0.5,
	}
}

// SetHybridMode toggles hybrid mode.
func (b *BoardState) SetHybridMode(on bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.hybridMode = on
}

// SetLayout sets the layout mode and split ratio.
func (b *BoardState) SetLayout(mode string, ratio float64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.layoutMode = mode
	b.splitRatio = ratio
}

// SetChatCollapsed toggles the chat panel collapse flag.
func (b *BoardState) SetChatCollapsed(collapsed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.chatCollapsed = collapsed
}

// BuildSnapshot assembles the persisted subset of the store.
func (b *BoardState) BuildSnapshot(pins *PinService, subscriptions *SubscriptionService, contexts *ContextService) models.Snapshot {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return models.Snapshot{
		SchemaVersion: models.SnapshotSchemaVersion,
		HybridMode:    b.hybridMode,
		LayoutMode:    b.layoutMode,
		SplitRatio:    b.splitRatio,
		SyncEnabled:   contexts.SyncEnabled(),
		ChatCollapsed: b.chatCollapsed,
		Widgets:       pins.Widgets(),
		Subscriptions: subscriptions.All(),
	}
}

// Restore applies a loaded snapshot's flags.
func (b *BoardState) Restore(snapshot *models.Snapshot) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.hybridMode = snapshot.HybridMode
	if snapshot.LayoutMode != "" {
		b.layoutMode = snapshot.LayoutMode
	}
	if snapshot.SplitRatio > 0 {
		b.splitRatio = snapshot.SplitRatio
	}
	b.chatCollapsed = snapshot.ChatCollapsed
}

// State returns the current flags as a JSON-friendly map.
func (b *BoardState) State() map[string]interface{} {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return map[string]interface{}{
		"hybrid_mode":    b.hybridMode,
		"layout_mode":    b.layoutMode,
		"split_ratio":    b.splitRatio,
		"chat_collapsed": b.chatCollapsed,
	}
}
