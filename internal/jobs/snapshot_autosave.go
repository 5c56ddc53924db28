package jobs

import (
	"context"
	"time"

	"pulseboard/internal/services"
)

// SnapshotAutosave periodically persists the board state so a crash loses at
// most one interval of changes.
type SnapshotAutosave struct {
	snapshots     *services.SnapshotService
	board         *services.BoardState
	pins          *services.PinService
	subscriptions *services.SubscriptionService
	contexts      *services.ContextService
	interval      time.Duration
}

// NewSnapshotAutosave creates the autosave job.
func NewSnapshotAutosave(
	snapshots *services.SnapshotService,
	board *services.BoardState,
	pins *services.PinService,
	subscriptions *services.SubscriptionService,
	contexts *services.ContextService,
	interval time.Duration,
) *SnapshotAutosave {
	return &SnapshotAutosave{
		snapshots:     snapshots,
		board:         board,
		pins:          pins,
		subscriptions: subscriptions,
		contexts:      contexts,
		interval:      interval,
	}
}

func (j *SnapshotAutosave) Name() string            { return "snapshot_autosave" }
func (j *SnapshotAutosave) Interval() time.Duration { return j.interval }

func (j *SnapshotAutosave) Run(ctx context.Context) error {
	snapshot := j.board.BuildSnapshot(j.pins, j.subscriptions, j.contexts)
	return j.snapshots.Save(ctx, snapshot)
}
