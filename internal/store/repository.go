/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the renewal service. Defining an
 * interface decouples the business logic from the PostgreSQL implementation
 * and lets the app-layer tests use hand-written stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Subscription methods
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) error
	// DeleteSubscription removes the subscription and cascade-deletes its
	// still-pending/retrying events. Returns false when the id is unknown.
	DeleteSubscription(ctx context.Context, id uuid.UUID) (bool, error)
	// ListSubscriptions applies the derived-status filters relative to today
	// (a calendar date in the service timezone) and returns the page plus the
	// unpaginated total count.
	ListSubscriptions(ctx context.Context, opts domain.SubscriptionListOptions, today time.Time) ([]domain.Subscription, int, error)
	// RenewSubscription advances expiry_date by days from its current value,
	// sets the stored status to renewed, clears the notified-day marker, and
	// deletes still-pending/retrying events carrying stale content.
	RenewSubscription(ctx context.Context, id uuid.UUID, days int) (*domain.Subscription, error)
	SetLastNotifiedDay(ctx context.Context, id uuid.UUID, day time.Time) error
	// ListScheduleCandidates returns subscriptions whose notification time
	// (HH:MM) has elapsed at nowClock and which have not yet had an event
	// created for today. Due-ness policy is applied by the caller.
	ListScheduleCandidates(ctx context.Context, today time.Time, nowClock string) ([]domain.Subscription, error)

	// Notification event methods
	// CreateNotificationEvent inserts the event; a duplicate
	// (subscription_id, scheduled_day) pair yields ErrDuplicateEventDay.
	CreateNotificationEvent(ctx context.Context, event *domain.NotificationEvent) error
	GetNotificationEvent(ctx context.Context, id uuid.UUID) (*domain.NotificationEvent, error)
	ListNotificationEvents(ctx context.Context, opts domain.MessageListOptions, from, to *time.Time) ([]domain.NotificationEvent, int, error)
	// ClaimEventForSending performs the exclusive pending/retrying -> sending
	// transition, incrementing attempt_count. ErrEventNotClaimable when the
	// event is in any other state (including already sending).
	ClaimEventForSending(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error)
	// ReleaseEventClaim undoes a claim whose attempt never reached the
	// gateway: sending -> retrying with attempt_count decremented, due at
	// nextAttemptAt.
	ReleaseEventClaim(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error
	MarkEventSent(ctx context.Context, id uuid.UUID, gatewayMessageID string, sentAt time.Time) error
	MarkEventRetrying(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, errorMessage string) error
	MarkEventFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	// ResetEventForManualRetry is permitted only from failed; it sets
	// attempt_count to max_attempts-1 so exactly one more attempt can run.
	ResetEventForManualRetry(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error)
	// FindDueRetryEvents returns retrying events whose backoff has elapsed.
	FindDueRetryEvents(ctx context.Context, now time.Time, limit int) ([]domain.NotificationEvent, error)
	// FindStalePendingEvents returns pending events created before olderThan
	// that were never handed off (broker outage, paused auto-send).
	FindStalePendingEvents(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationEvent, error)

	// Stats methods. Each aggregate is produced by a single statement so the
	// numbers reflect one snapshot of the data.
	SubscriptionStats(ctx context.Context, productType string, today time.Time) (*domain.SubscriptionStats, error)
	MessageStats(ctx context.Context, productType string, from, to *time.Time) (*domain.MessageStats, error)

	// Singleton config rows (created on first read)
	GetAIConfig(ctx context.Context) (*domain.AIConfig, error)
	UpdateAIConfig(ctx context.Context, cfg *domain.AIConfig) error
	GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error)
	UpdateGatewayConfig(ctx context.Context, cfg *domain.GatewayConfig) error
}
