/**
 * @description
 * Scheduled job implementations: the per-minute due scan that creates
 * notification events, and the retry scan that re-drives hand-off for
 * retrying and stale pending events.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/config"
	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/rabbitmq"
)

// SchedulerStore defines the database operations needed by the jobs.
type SchedulerStore interface {
	ListScheduleCandidates(ctx context.Context, today time.Time, nowClock string) ([]domain.Subscription, error)
	CreateNotificationEvent(ctx context.Context, event *domain.NotificationEvent) error
	SetLastNotifiedDay(ctx context.Context, id uuid.UUID, day time.Time) error
	GetAIConfig(ctx context.Context) (*domain.AIConfig, error)
	GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error)
	FindDueRetryEvents(ctx context.Context, now time.Time, limit int) ([]domain.NotificationEvent, error)
	FindStalePendingEvents(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationEvent, error)
}

// QueuePublisher is the hand-off contract to the delivery queue.
type QueuePublisher interface {
	PublishNotificationQueued(ctx context.Context, routingKey string, event domain.NotificationQueuedEvent) error
}

const retryScanBatchSize = 100

// stalePendingAge is how long a pending event may sit before the retry scan
// re-drives its hand-off.
const stalePendingAge = 2 * time.Minute

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      SchedulerStore
	renderer  *Renderer
	publisher QueuePublisher
	logger    *slog.Logger
	config    config.Config
	loc       *time.Location
	now       func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo SchedulerStore, renderer *Renderer, publisher QueuePublisher, logger *slog.Logger, cfg config.Config, loc *time.Location) *Jobs {
	return &Jobs{
		repo:      repo,
		renderer:  renderer,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
		loc:       loc,
		now:       time.Now,
	}
}

// reminderDue applies the reminder policy to the derived day count: inside
// the lead window (expiry day included), or on the dunning cadence after
// expiry. Shared with the delivery engine's pre-send re-check.
func reminderDue(cfg config.Config, days int) bool {
	if days >= 0 && days <= cfg.LeadDays {
		return true
	}
	if days < 0 && cfg.DunningEnabled {
		overdue := -days
		return overdue%cfg.DunningIntervalDays == 0
	}
	return false
}

func (j *Jobs) isDue(days int) bool {
	return reminderDue(j.config, days)
}

// withinWorkingHours reports whether the clock ("HH:MM") falls inside the
// configured send window. A start after the end means an overnight window.
func withinWorkingHours(cfg *domain.GatewayConfig, clock string) bool {
	if cfg == nil || cfg.WorkingHoursStart == "" || cfg.WorkingHoursEnd == "" {
		return true
	}
	if cfg.WorkingHoursStart <= cfg.WorkingHoursEnd {
		return clock >= cfg.WorkingHoursStart && clock <= cfg.WorkingHoursEnd
	}
	return clock >= cfg.WorkingHoursStart || clock <= cfg.WorkingHoursEnd
}

// canAutoSend gates queue hand-off; event creation is never gated, so due
// reminders are recorded even while sending is paused.
func canAutoSend(cfg *domain.GatewayConfig, clock string) bool {
	if cfg == nil {
		return true
	}
	return cfg.AutoSendEnabled && withinWorkingHours(cfg, clock)
}

// ScanDueSubscriptions finds every subscription whose notification time has
// elapsed today and which the reminder policy marks as due, creates exactly
// one pending event per (subscription, day), and hands it to the delivery
// queue. Failures are isolated per subscription; the scan loop never aborts
// because of one bad record.
func (j *Jobs) ScanDueSubscriptions() {
	ctx := context.Background()
	now := j.now().In(j.loc)
	clock := now.Format("15:04")

	candidates, err := j.repo.ListScheduleCandidates(ctx, now, clock)
	if err != nil {
		j.logger.Error("failed to list schedule candidates", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	aiCfg, err := j.repo.GetAIConfig(ctx)
	if err != nil {
		j.logger.Warn("failed to load AI config; rendering literal templates", "error", err)
		aiCfg = nil
	}
	gwCfg, err := j.repo.GetGatewayConfig(ctx)
	if err != nil {
		j.logger.Warn("failed to load gateway config; assuming auto-send allowed", "error", err)
		gwCfg = nil
	}

	created := 0
	for i := range candidates {
		sub := &candidates[i]

		days := sub.DaysUntilExpiry(now, j.loc)
		if !j.isDue(days) {
			continue
		}

		event := &domain.NotificationEvent{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			Phone:          sub.Phone,
			Message:        j.renderer.Render(ctx, sub, "", aiCfg, now),
			ScheduledDay:   now,
			ScheduledFor:   now,
			Status:         domain.EventPending,
			MaxAttempts:    j.config.MaxDeliveryAttempts,
		}

		if err := j.repo.CreateNotificationEvent(ctx, event); err != nil {
			if err == store.ErrDuplicateEventDay {
				// Another tick already enqueued this subscription today.
				continue
			}
			j.logger.Error("failed to create notification event", "subscription_id", sub.ID, "error", err)
			continue
		}
		created++

		if err := j.repo.SetLastNotifiedDay(ctx, sub.ID, now); err != nil {
			j.logger.Warn("failed to record notified day", "subscription_id", sub.ID, "error", err)
		}

		if canAutoSend(gwCfg, clock) {
			if err := j.publisher.PublishNotificationQueued(ctx, rabbitmq.RoutingKeyCreated, domain.NotificationQueuedEvent{
				EventID:   event.ID,
				Timestamp: now,
			}); err != nil {
				// The event stays pending; the retry scan re-drives it.
				j.logger.Warn("failed to publish notification event", "event_id", event.ID, "error", err)
			}
		}
	}

	if created > 0 {
		j.logger.Info("due scan finished", "candidates", len(candidates), "events_created", created)
	}
}

// ScanDueRetries re-publishes retrying events whose backoff has elapsed and
// pending events that were never handed off. Hand-off stays gated by the
// auto-send window; duplicate publishes are harmless because the sending
// claim is exclusive.
func (j *Jobs) ScanDueRetries() {
	ctx := context.Background()
	now := j.now().In(j.loc)
	clock := now.Format("15:04")

	gwCfg, err := j.repo.GetGatewayConfig(ctx)
	if err != nil {
		j.logger.Warn("failed to load gateway config; assuming auto-send allowed", "error", err)
		gwCfg = nil
	}
	if !canAutoSend(gwCfg, clock) {
		return
	}

	retries, err := j.repo.FindDueRetryEvents(ctx, now, retryScanBatchSize)
	if err != nil {
		j.logger.Error("failed to find due retry events", "error", err)
	}
	for _, ev := range retries {
		if err := j.publisher.PublishNotificationQueued(ctx, rabbitmq.RoutingKeyRetry, domain.NotificationQueuedEvent{
			EventID:   ev.ID,
			Timestamp: now,
		}); err != nil {
			j.logger.Warn("failed to publish retry event", "event_id", ev.ID, "error", err)
		}
	}

	stale, err := j.repo.FindStalePendingEvents(ctx, now.Add(-stalePendingAge), retryScanBatchSize)
	if err != nil {
		j.logger.Error("failed to find stale pending events", "error", err)
	}
	for _, ev := range stale {
		if err := j.publisher.PublishNotificationQueued(ctx, rabbitmq.RoutingKeyCreated, domain.NotificationQueuedEvent{
			EventID:   ev.ID,
			Timestamp: now,
		}); err != nil {
			j.logger.Warn("failed to publish stale pending event", "event_id", ev.ID, "error", err)
		}
	}
}
