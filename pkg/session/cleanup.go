package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/webchat/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultRetention       = 30 * 24 * time.Hour // 30 days
	DefaultCleanupSchedule = "@daily"
)

// Cleanup prunes records that have not been updated within the retention window
type Cleanup struct {
	store     Store
	retention time.Duration
	schedule  cron.Schedule
	spec      string
	logger    zerolog.Logger

	// Skip reports ids that must survive pruning, such as the active conversation
	Skip func(conversationID string) bool

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	now     func() time.Time
}

// NewCleanup creates a cleanup job. schedule is a standard cron expression or descriptor.
func NewCleanup(store Store, retention time.Duration, schedule string, logger zerolog.Logger) (*Cleanup, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}

	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return &Cleanup{
		store:     store,
		retention: retention,
		schedule:  sched,
		spec:      schedule,
		logger:    logger.With().Str("component", "record_cleanup").Logger(),
		now:       time.Now,
	}, nil
}

// Start runs one pass immediately and then on the configured schedule
func (c *Cleanup) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("cleanup is already running")
	}

	c.cron = cron.New()
	c.cron.Schedule(c.schedule, cron.FuncJob(c.runOnce))
	c.cron.Start()
	c.running = true

	go c.runOnce()

	c.logger.Info().
		Dur("retention", c.retention).
		Str("schedule", c.spec).
		Msg("Record cleanup started")

	return nil
}

// Stop halts the schedule and waits for a running pass to finish
func (c *Cleanup) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("cleanup is not running")
	}
	c.running = false
	cr := c.cron
	c.mu.Unlock()

	<-cr.Stop().Done()
	c.logger.Info().Msg("Record cleanup stopped")
	return nil
}

// IsRunning returns whether the schedule is active
func (c *Cleanup) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Retention returns the retention window
func (c *Cleanup) Retention() time.Duration {
	return c.retention
}

// Next returns the next scheduled run after t
func (c *Cleanup) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

func (c *Cleanup) runOnce() {
	if _, err := c.CleanupNow(context.Background()); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clean up records")
	}
}

// CleanupNow deletes expired records and returns how many were removed
func (c *Cleanup) CleanupNow(ctx context.Context) (int, error) {
	records, err := c.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list records: %w", err)
	}

	cutoff := c.now().Add(-c.retention)
	deleted := 0

	for _, rec := range records {
		if !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		if c.Skip != nil && c.Skip(rec.ConversationID) {
			continue
		}

		if err := c.store.Delete(ctx, rec.ConversationID); err != nil {
			c.logger.Warn().
				Str("conversation_id", rec.ConversationID).
				Err(err).
				Msg("Failed to delete record")
			continue
		}
		deleted++

		c.logger.Debug().
			Str("conversation_id", rec.ConversationID).
			Time("updated_at", rec.UpdatedAt).
			Msg("Record pruned")
	}

	if deleted > 0 {
		observability.RecordRecordsPruned(deleted)
		c.logger.Info().Int("deleted", deleted).Msg("Cleaned up expired records")
	}

	return deleted, nil
}

// Stats summarizes the store against the retention window
func (c *Cleanup) Stats(ctx context.Context) (map[string]interface{}, error) {
	records, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-c.retention)
	eligible := 0
	for _, rec := range records {
		if rec.UpdatedAt.Before(cutoff) {
			eligible++
		}
	}

	return map[string]interface{}{
		"total_records":        len(records),
		"eligible_for_cleanup": eligible,
		"retention":            c.retention.String(),
		"schedule":             c.spec,
		"running":              c.IsRunning(),
	}, nil
}
