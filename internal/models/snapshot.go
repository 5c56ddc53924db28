package models

import "time"

// SnapshotSchemaVersion is bumped whenever the snapshot shape changes in a
// way old readers cannot handle.
const SnapshotSchemaVersion = 1

// Snapshot is the best-effort local persistence of the dashboard state. It
// is an explicit value type with a versioned schema, not an ad hoc field
// selection. Subscriptions are persisted but always restored with
// IsActive=false; callers must reactivate them explicitly after a restart.
type Snapshot struct {
	SchemaVersion int                  `json:"schema_version"`
	SavedAt       time.Time            `json:"saved_at"`
	HybridMode    bool                 `json:"hybrid_mode"`
	LayoutMode    string               `json:"layout_mode"` // "split", "dashboard", "chat"
	SplitRatio    float64              `json:"split_ratio"`
	SyncEnabled   bool                 `json:"sync_enabled"`
	ChatCollapsed bool                 `json:"chat_collapsed"`
	Widgets       []DashboardWidget    `json:"widgets"`
	Subscriptions []WidgetSubscription `json:"subscriptions"`
}
