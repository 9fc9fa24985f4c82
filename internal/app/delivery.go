/**
 * @description
 * The delivery engine: a bounded worker pool that executes sends against the
 * WhatsApp gateway, drives the per-event state machine, and spaces outbound
 * calls with a rate limiter so the external channel is never flooded.
 *
 * State machine per event:
 *   pending -> sending -> {sent | retrying | failed}
 *   retrying -> sending (after backoff) -> {sent | retrying | failed}
 * The pending/retrying -> sending claim is exclusive (store-level conditional
 * update), so at most one attempt per event is ever in flight.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/JeffiBR/Boot-WhatsApp/internal/config"
	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/whatsapp"
)

// DeliveryStore defines the database operations needed by the engine.
type DeliveryStore interface {
	ClaimEventForSending(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error)
	ReleaseEventClaim(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error
	MarkEventSent(ctx context.Context, id uuid.UUID, gatewayMessageID string, sentAt time.Time) error
	MarkEventRetrying(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, errorMessage string) error
	MarkEventFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	ResetEventForManualRetry(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
}

// GatewaySender is the send capability consumed from the gateway adapter.
type GatewaySender interface {
	Send(ctx context.Context, phone, text string) (string, error)
}

// Engine executes notification deliveries.
type Engine struct {
	repo    DeliveryStore
	gateway GatewaySender
	limiter *rate.Limiter
	logger  *slog.Logger
	config  config.Config
	loc     *time.Location
	queue   chan uuid.UUID
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewEngine creates a delivery engine. messageIntervalSeconds comes from the
// gateway configuration and spaces consecutive sends.
func NewEngine(repo DeliveryStore, gateway GatewaySender, logger *slog.Logger, cfg config.Config, loc *time.Location, messageIntervalSeconds int) *Engine {
	return &Engine{
		repo:    repo,
		gateway: gateway,
		limiter: rate.NewLimiter(intervalToRate(messageIntervalSeconds), 1),
		logger:  logger,
		config:  cfg,
		loc:     loc,
		queue:   make(chan uuid.UUID, cfg.DeliveryWorkers*4),
		now:     time.Now,
	}
}

func intervalToRate(seconds int) rate.Limit {
	if seconds <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Duration(seconds) * time.Second)
}

// UpdateSendInterval adjusts the outbound spacing when the gateway
// configuration changes.
func (e *Engine) UpdateSendInterval(seconds int) {
	e.limiter.SetLimit(intervalToRate(seconds))
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they have drained.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.config.DeliveryWorkers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-e.queue:
					e.deliver(ctx, id)
				}
			}
		}()
	}
	e.logger.Info("delivery engine started", "workers", e.config.DeliveryWorkers)
}

// Wait blocks until all workers have stopped.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// HandleQueuedNotification is the RabbitMQ consumer handler. Returning false
// nacks the message so the broker redelivers it once a worker slot frees up.
func (e *Engine) HandleQueuedNotification(body []byte) bool {
	var event domain.NotificationQueuedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		e.logger.Error("failed to unmarshal queued notification", "error", err)
		return true // malformed payloads are dropped, not requeued forever
	}
	if event.EventID == uuid.Nil {
		e.logger.Error("queued notification missing event id")
		return true
	}

	select {
	case e.queue <- event.EventID:
		return true
	default:
		return false
	}
}

// Enqueue hands an event id directly to the worker pool, bypassing the
// broker. Used for manual retries.
func (e *Engine) Enqueue(id uuid.UUID) bool {
	select {
	case e.queue <- id:
		return true
	default:
		return false
	}
}

// deliver runs one attempt for one event. Every outcome is recorded on the
// event itself; nothing propagates to the scheduler loop.
func (e *Engine) deliver(ctx context.Context, id uuid.UUID) {
	now := e.now()

	event, err := e.repo.ClaimEventForSending(ctx, id, now)
	if err != nil {
		if errors.Is(err, store.ErrEventNotClaimable) {
			// Already sending elsewhere, already sent, or cancelled.
			return
		}
		e.logger.Error("failed to claim event for sending", "event_id", id, "error", err)
		return
	}

	// Re-check due-ness against the *current* subscription state. A renew or
	// delete that won the race since enqueue must not produce a stale send.
	sub, err := e.repo.GetSubscription(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			e.markFailed(ctx, event.ID, "subscription deleted before delivery")
			return
		}
		e.markRetryOrFail(ctx, event, "subscription lookup failed: "+err.Error())
		return
	}
	if days := sub.DaysUntilExpiry(now, e.loc); !reminderDue(e.config, days) {
		e.markFailed(ctx, event.ID, "subscription no longer due for a reminder")
		return
	}

	if err := e.limiter.Wait(ctx); err != nil {
		// Shutdown while waiting for a send slot: the gateway was never
		// called, so the claim is released without spending an attempt. The
		// worker ctx is already cancelled, hence the fresh context.
		if relErr := e.repo.ReleaseEventClaim(context.Background(), event.ID, e.now()); relErr != nil {
			e.logger.Error("failed to release event claim", "event_id", event.ID, "error", relErr)
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.DeliveryTimeout())
	gatewayMessageID, sendErr := e.gateway.Send(sendCtx, event.Phone, event.Message)
	cancel()

	if sendErr == nil {
		if err := e.repo.MarkEventSent(ctx, event.ID, gatewayMessageID, e.now()); err != nil {
			e.logger.Error("failed to mark event sent", "event_id", event.ID, "error", err)
			return
		}
		e.logger.Info("notification delivered", "event_id", event.ID, "subscription_id", event.SubscriptionID, "attempt", event.AttemptCount)
		return
	}

	if whatsapp.IsPermanent(sendErr) {
		// Invalid or unregistered number: retrying can never succeed.
		e.markFailed(ctx, event.ID, sendErr.Error())
		e.logger.Warn("permanent delivery failure", "event_id", event.ID, "error", sendErr)
		return
	}

	e.markRetryOrFail(ctx, event, sendErr.Error())
}

// markRetryOrFail schedules a linear-backoff retry while the attempt budget
// lasts, then fails terminally.
func (e *Engine) markRetryOrFail(ctx context.Context, event *domain.NotificationEvent, reason string) {
	if event.AttemptCount >= event.MaxAttempts {
		e.markFailed(ctx, event.ID, reason)
		e.logger.Warn("delivery failed after exhausting attempts", "event_id", event.ID, "attempts", event.AttemptCount, "error", reason)
		return
	}

	nextAttempt := e.now().Add(e.config.RetryInterval() * time.Duration(event.AttemptCount))
	if err := e.repo.MarkEventRetrying(ctx, event.ID, nextAttempt, reason); err != nil {
		e.logger.Error("failed to mark event retrying", "event_id", event.ID, "error", err)
		return
	}
	e.logger.Info("delivery attempt failed; retry scheduled",
		"event_id", event.ID, "attempt", event.AttemptCount, "next_attempt_at", nextAttempt, "error", reason)
}

func (e *Engine) markFailed(ctx context.Context, id uuid.UUID, reason string) {
	if err := e.repo.MarkEventFailed(ctx, id, reason); err != nil {
		e.logger.Error("failed to mark event failed", "event_id", id, "error", err)
	}
}

// Retry re-arms a failed event for exactly one more attempt and hands it to
// the worker pool. Permitted only from the failed state.
func (e *Engine) Retry(ctx context.Context, id uuid.UUID) (*domain.NotificationEvent, error) {
	event, err := e.repo.ResetEventForManualRetry(ctx, id, e.now())
	if err != nil {
		return nil, err
	}
	if !e.Enqueue(event.ID) {
		// Pool saturated; the retry scan will pick it up.
		e.logger.Warn("manual retry queued for next scan; worker pool full", "event_id", event.ID)
	}
	return event, nil
}

// SendDirect performs a synchronous send that bypasses the scheduler and the
// event log. Used by the dashboard's test-message endpoint; it still honors
// the send rate limiter.
func (e *Engine) SendDirect(ctx context.Context, phone, text string) (string, error) {
	normalized, err := normalizePhone(phone)
	if err != nil {
		return "", err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.config.DeliveryTimeout())
	defer cancel()
	return e.gateway.Send(sendCtx, normalized, text)
}
