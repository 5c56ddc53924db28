package jobs

import (
	"context"
	"time"

	"pulseboard/internal/services"
)

// SubscriptionCleanup prunes subscriptions that are both inactive and stale
// past the registry's watermark. Active subscriptions are never touched.
type SubscriptionCleanup struct {
	subscriptions *services.SubscriptionService
	interval      time.Duration
}

// NewSubscriptionCleanup creates the cleanup job.
func NewSubscriptionCleanup(subscriptions *services.SubscriptionService, interval time.Duration) *SubscriptionCleanup {
	return &SubscriptionCleanup{subscriptions: subscriptions, interval: interval}
}

func (j *SubscriptionCleanup) Name() string            { return "subscription_cleanup" }
func (j *SubscriptionCleanup) Interval() time.Duration { return j.interval }

func (j *SubscriptionCleanup) Run(ctx context.Context) error {
	j.subscriptions.Optimize()
	return nil
}
