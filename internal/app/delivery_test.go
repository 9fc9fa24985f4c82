package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/config"
	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/whatsapp"
)

type deliveryStoreStub struct {
	claimEvent *domain.NotificationEvent
	claimErr   error

	subscription *domain.Subscription

	resetEvent *domain.NotificationEvent
	resetErr   error

	sentID        *uuid.UUID
	sentGatewayID string

	retryingID    *uuid.UUID
	nextAttemptAt time.Time
	retryReason   string

	failedID     *uuid.UUID
	failedReason string

	releasedID *uuid.UUID
	releasedAt time.Time
}

func (s *deliveryStoreStub) ClaimEventForSending(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return s.claimEvent, nil
}

func (s *deliveryStoreStub) ReleaseEventClaim(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	s.releasedID = &id
	s.releasedAt = nextAttemptAt
	return nil
}

func (s *deliveryStoreStub) MarkEventSent(ctx context.Context, id uuid.UUID, gatewayMessageID string, sentAt time.Time) error {
	s.sentID = &id
	s.sentGatewayID = gatewayMessageID
	return nil
}

func (s *deliveryStoreStub) MarkEventRetrying(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, errorMessage string) error {
	s.retryingID = &id
	s.nextAttemptAt = nextAttemptAt
	s.retryReason = errorMessage
	return nil
}

func (s *deliveryStoreStub) MarkEventFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	s.failedID = &id
	s.failedReason = errorMessage
	return nil
}

func (s *deliveryStoreStub) ResetEventForManualRetry(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error) {
	if s.resetErr != nil {
		return nil, s.resetErr
	}
	return s.resetEvent, nil
}

func (s *deliveryStoreStub) GetSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	if s.subscription == nil {
		return nil, store.ErrSubscriptionNotFound
	}
	return s.subscription, nil
}

type gatewayStub struct {
	messageID string
	err       error

	sentPhone string
	sentText  string
	calls     int
}

func (g *gatewayStub) Send(ctx context.Context, phone, text string) (string, error) {
	g.calls++
	g.sentPhone = phone
	g.sentText = text
	return g.messageID, g.err
}

func testDeliveryConfig() config.Config {
	return config.Config{
		LeadDays:               7,
		DunningEnabled:         true,
		DunningIntervalDays:    3,
		RetryIntervalMinutes:   30,
		MaxDeliveryAttempts:    3,
		DeliveryWorkers:        2,
		DeliveryTimeoutSeconds: 5,
	}
}

var deliveryNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine(repo *deliveryStoreStub, gateway *gatewayStub) *Engine {
	engine := NewEngine(repo, gateway, discardLogger(), testDeliveryConfig(), time.UTC, 0)
	engine.now = func() time.Time { return deliveryNow }
	return engine
}

func claimedEvent(attempt int) *domain.NotificationEvent {
	return &domain.NotificationEvent{
		ID:             uuid.New(),
		SubscriptionID: uuid.New(),
		Phone:          "+5511987654321",
		Message:        "Olá Ana!",
		Status:         domain.EventSending,
		AttemptCount:   attempt,
		MaxAttempts:    3,
	}
}

func dueSubscription() *domain.Subscription {
	return &domain.Subscription{
		ID:         uuid.New(),
		ExpiryDate: deliveryNow.AddDate(0, 0, 3),
	}
}

func TestDeliverMarksSentOnSuccess(t *testing.T) {
	event := claimedEvent(1)
	repo := &deliveryStoreStub{claimEvent: event, subscription: dueSubscription()}
	gateway := &gatewayStub{messageID: "wamid.123"}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), event.ID)

	if repo.sentID == nil || *repo.sentID != event.ID {
		t.Fatal("expected the event to be marked sent")
	}
	if repo.sentGatewayID != "wamid.123" {
		t.Fatalf("expected the gateway message id to be recorded, got %q", repo.sentGatewayID)
	}
	if gateway.sentPhone != event.Phone || gateway.sentText != event.Message {
		t.Fatal("expected the event's phone and message to reach the gateway")
	}
	if repo.retryingID != nil || repo.failedID != nil {
		t.Fatal("expected no retry or failure bookkeeping on success")
	}
}

func TestDeliverSchedulesLinearBackoffRetry(t *testing.T) {
	event := claimedEvent(1)
	repo := &deliveryStoreStub{claimEvent: event, subscription: dueSubscription()}
	gateway := &gatewayStub{err: &whatsapp.SendError{Detail: "gateway timeout"}}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), event.ID)

	if repo.retryingID == nil || *repo.retryingID != event.ID {
		t.Fatal("expected the event to be marked retrying")
	}
	want := deliveryNow.Add(30 * time.Minute) // interval * attempt 1
	if !repo.nextAttemptAt.Equal(want) {
		t.Fatalf("expected next attempt at %s, got %s", want, repo.nextAttemptAt)
	}
	if repo.failedID != nil {
		t.Fatal("expected no terminal failure with attempts remaining")
	}
}

func TestDeliverSecondRetryBacksOffFurther(t *testing.T) {
	event := claimedEvent(2)
	repo := &deliveryStoreStub{claimEvent: event, subscription: dueSubscription()}
	gateway := &gatewayStub{err: &whatsapp.SendError{Detail: "gateway timeout"}}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), event.ID)

	want := deliveryNow.Add(60 * time.Minute) // interval * attempt 2
	if !repo.nextAttemptAt.Equal(want) {
		t.Fatalf("expected next attempt at %s, got %s", want, repo.nextAttemptAt)
	}
}

func TestDeliverFailsAfterExhaustingAttempts(t *testing.T) {
	event := claimedEvent(3) // final attempt
	repo := &deliveryStoreStub{claimEvent: event, subscription: dueSubscription()}
	gateway := &gatewayStub{err: &whatsapp.SendError{Detail: "gateway timeout"}}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), event.ID)

	if repo.failedID == nil || *repo.failedID != event.ID {
		t.Fatal("expected the event to fail terminally after the attempt budget")
	}
	if repo.retryingID != nil {
		t.Fatal("expected no further retry past the attempt budget")
	}
}

func TestDeliverPermanentFailureNeverRetries(t *testing.T) {
	event := claimedEvent(1)
	repo := &deliveryStoreStub{claimEvent: event, subscription: dueSubscription()}
	gateway := &gatewayStub{err: &whatsapp.SendError{Permanent: true, Detail: "invalid number"}}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), event.ID)

	if repo.failedID == nil || *repo.failedID != event.ID {
		t.Fatal("expected a permanent failure to fail immediately")
	}
	if repo.retryingID != nil {
		t.Fatal("expected no retry for a permanent failure")
	}
}

func TestDeliverSkipsUnclaimableEvent(t *testing.T) {
	repo := &deliveryStoreStub{claimErr: store.ErrEventNotClaimable}
	gateway := &gatewayStub{}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), uuid.New())

	if gateway.calls != 0 {
		t.Fatal("expected no gateway call for an unclaimable event")
	}
	if repo.sentID != nil || repo.retryingID != nil || repo.failedID != nil {
		t.Fatal("expected no state change for an unclaimable event")
	}
}

func TestDeliverFailsWhenSubscriptionDeleted(t *testing.T) {
	event := claimedEvent(1)
	repo := &deliveryStoreStub{claimEvent: event} // no subscription
	gateway := &gatewayStub{}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), event.ID)

	if gateway.calls != 0 {
		t.Fatal("expected no gateway call for a deleted subscription")
	}
	if repo.failedID == nil || repo.failedReason != "subscription deleted before delivery" {
		t.Fatalf("expected the deletion to be recorded, got %q", repo.failedReason)
	}
}

func TestDeliverFailsStaleEventAfterRenewal(t *testing.T) {
	event := claimedEvent(1)
	renewed := &domain.Subscription{
		ID:         event.SubscriptionID,
		ExpiryDate: deliveryNow.AddDate(0, 0, 30), // renewed since the event was queued
	}
	repo := &deliveryStoreStub{claimEvent: event, subscription: renewed}
	gateway := &gatewayStub{}
	engine := newTestEngine(repo, gateway)

	engine.deliver(context.Background(), event.ID)

	if gateway.calls != 0 {
		t.Fatal("expected no gateway call for a no-longer-due subscription")
	}
	if repo.failedID == nil || repo.failedReason != "subscription no longer due for a reminder" {
		t.Fatalf("expected the stale event to be failed, got %q", repo.failedReason)
	}
}

func TestDeliverReleasesClaimOnShutdown(t *testing.T) {
	event := claimedEvent(1)
	repo := &deliveryStoreStub{claimEvent: event, subscription: dueSubscription()}
	gateway := &gatewayStub{}
	engine := newTestEngine(repo, gateway)

	// A cancelled worker context makes the rate limiter refuse the send slot.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine.deliver(ctx, event.ID)

	if gateway.calls != 0 {
		t.Fatal("expected no gateway call after cancellation")
	}
	if repo.releasedID == nil || *repo.releasedID != event.ID {
		t.Fatal("expected the claim to be released")
	}
	if !repo.releasedAt.Equal(deliveryNow) {
		t.Fatalf("expected the event to rejoin the retry scan immediately, got %s", repo.releasedAt)
	}
	if repo.retryingID != nil || repo.failedID != nil {
		t.Fatal("expected the interrupted attempt to spend no attempt budget")
	}
}

func TestManualRetryOnlyFromFailed(t *testing.T) {
	repo := &deliveryStoreStub{resetErr: store.ErrEventNotRetryable}
	engine := newTestEngine(repo, &gatewayStub{})

	if _, err := engine.Retry(context.Background(), uuid.New()); !errors.Is(err, store.ErrEventNotRetryable) {
		t.Fatalf("expected ErrEventNotRetryable, got %v", err)
	}
}

func TestManualRetryEnqueuesEvent(t *testing.T) {
	event := claimedEvent(2)
	repo := &deliveryStoreStub{resetEvent: event}
	engine := newTestEngine(repo, &gatewayStub{})

	got, err := engine.Retry(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got.ID != event.ID {
		t.Fatal("expected the re-armed event to be returned")
	}
	select {
	case id := <-engine.queue:
		if id != event.ID {
			t.Fatalf("expected event %s on the queue, got %s", event.ID, id)
		}
	default:
		t.Fatal("expected the event to be enqueued for immediate delivery")
	}
}

func TestHandleQueuedNotification(t *testing.T) {
	engine := newTestEngine(&deliveryStoreStub{}, &gatewayStub{})

	body, _ := json.Marshal(domain.NotificationQueuedEvent{EventID: uuid.New(), Timestamp: deliveryNow})
	if !engine.HandleQueuedNotification(body) {
		t.Fatal("expected a well-formed payload to be accepted")
	}
	if len(engine.queue) != 1 {
		t.Fatalf("expected one queued id, got %d", len(engine.queue))
	}

	if !engine.HandleQueuedNotification([]byte("not json")) {
		t.Fatal("expected a malformed payload to be dropped, not requeued")
	}
}

func TestHandleQueuedNotificationNacksWhenSaturated(t *testing.T) {
	engine := newTestEngine(&deliveryStoreStub{}, &gatewayStub{})
	for i := 0; i < cap(engine.queue); i++ {
		engine.queue <- uuid.New()
	}

	body, _ := json.Marshal(domain.NotificationQueuedEvent{EventID: uuid.New(), Timestamp: deliveryNow})
	if engine.HandleQueuedNotification(body) {
		t.Fatal("expected a saturated pool to push back onto the broker")
	}
}

func TestSendDirectNormalizesPhone(t *testing.T) {
	gateway := &gatewayStub{messageID: "wamid.test"}
	engine := newTestEngine(&deliveryStoreStub{}, gateway)

	id, err := engine.SendDirect(context.Background(), "+55 (11) 98765-4321", "mensagem de teste")
	if err != nil {
		t.Fatalf("expected the test send to succeed, got %v", err)
	}
	if id != "wamid.test" {
		t.Fatalf("expected the gateway message id, got %q", id)
	}
	if gateway.sentPhone != "+5511987654321" {
		t.Fatalf("expected a normalized phone, got %q", gateway.sentPhone)
	}
}

func TestSendDirectRejectsInvalidPhone(t *testing.T) {
	gateway := &gatewayStub{}
	engine := newTestEngine(&deliveryStoreStub{}, gateway)

	_, err := engine.SendDirect(context.Background(), "123", "mensagem de teste")
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if gateway.calls != 0 {
		t.Fatal("expected no gateway call for an invalid phone")
	}
}
