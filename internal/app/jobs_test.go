package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/config"
	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/rabbitmq"
)

type schedulerStoreStub struct {
	candidates []domain.Subscription
	createErr  error

	createdEvents []*domain.NotificationEvent
	notifiedIDs   []uuid.UUID

	gatewayConfig *domain.GatewayConfig

	retryEvents []domain.NotificationEvent
	staleEvents []domain.NotificationEvent
}

func (s *schedulerStoreStub) ListScheduleCandidates(ctx context.Context, today time.Time, nowClock string) ([]domain.Subscription, error) {
	return s.candidates, nil
}

func (s *schedulerStoreStub) CreateNotificationEvent(ctx context.Context, event *domain.NotificationEvent) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.createdEvents = append(s.createdEvents, event)
	return nil
}

func (s *schedulerStoreStub) SetLastNotifiedDay(ctx context.Context, id uuid.UUID, day time.Time) error {
	s.notifiedIDs = append(s.notifiedIDs, id)
	return nil
}

func (s *schedulerStoreStub) GetAIConfig(ctx context.Context) (*domain.AIConfig, error) {
	return &domain.AIConfig{}, nil
}

func (s *schedulerStoreStub) GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error) {
	if s.gatewayConfig == nil {
		return &domain.GatewayConfig{AutoSendEnabled: true}, nil
	}
	return s.gatewayConfig, nil
}

func (s *schedulerStoreStub) FindDueRetryEvents(ctx context.Context, now time.Time, limit int) ([]domain.NotificationEvent, error) {
	return s.retryEvents, nil
}

func (s *schedulerStoreStub) FindStalePendingEvents(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationEvent, error) {
	return s.staleEvents, nil
}

type publisherStub struct {
	published []domain.NotificationQueuedEvent
	keys      []string
}

func (p *publisherStub) PublishNotificationQueued(ctx context.Context, routingKey string, event domain.NotificationQueuedEvent) error {
	p.published = append(p.published, event)
	p.keys = append(p.keys, routingKey)
	return nil
}

func testJobsConfig() config.Config {
	return config.Config{
		LeadDays:            7,
		DunningEnabled:      true,
		DunningIntervalDays: 3,
		MaxDeliveryAttempts: 3,
	}
}

func newTestJobs(repo *schedulerStoreStub, pub *publisherStub, now time.Time) *Jobs {
	return &Jobs{
		repo:      repo,
		renderer:  NewRenderer(nil, time.UTC, discardLogger()),
		publisher: pub,
		logger:    discardLogger(),
		config:    testJobsConfig(),
		loc:       time.UTC,
		now:       func() time.Time { return now },
	}
}

func TestReminderDue(t *testing.T) {
	cfg := testJobsConfig()

	tests := []struct {
		name string
		days int
		want bool
	}{
		{name: "inside lead window", days: 3, want: true},
		{name: "expiry day", days: 0, want: true},
		{name: "edge of lead window", days: 7, want: true},
		{name: "outside lead window", days: 8, want: false},
		{name: "overdue on dunning cadence", days: -3, want: true},
		{name: "overdue off dunning cadence", days: -4, want: false},
		{name: "overdue second cadence", days: -6, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reminderDue(cfg, tt.days); got != tt.want {
				t.Fatalf("reminderDue(%d): expected %v, got %v", tt.days, tt.want, got)
			}
		})
	}
}

func TestReminderDueDunningDisabled(t *testing.T) {
	cfg := testJobsConfig()
	cfg.DunningEnabled = false

	if reminderDue(cfg, -3) {
		t.Fatal("expected no overdue reminders when dunning is disabled")
	}
}

func TestWithinWorkingHours(t *testing.T) {
	daytime := &domain.GatewayConfig{WorkingHoursStart: "08:00", WorkingHoursEnd: "21:00"}
	overnight := &domain.GatewayConfig{WorkingHoursStart: "22:00", WorkingHoursEnd: "06:00"}

	tests := []struct {
		name  string
		cfg   *domain.GatewayConfig
		clock string
		want  bool
	}{
		{name: "inside daytime window", cfg: daytime, clock: "10:30", want: true},
		{name: "before daytime window", cfg: daytime, clock: "07:59", want: false},
		{name: "after daytime window", cfg: daytime, clock: "21:01", want: false},
		{name: "window edges inclusive", cfg: daytime, clock: "21:00", want: true},
		{name: "overnight late evening", cfg: overnight, clock: "23:15", want: true},
		{name: "overnight early morning", cfg: overnight, clock: "05:00", want: true},
		{name: "overnight midday", cfg: overnight, clock: "12:00", want: false},
		{name: "no window configured", cfg: &domain.GatewayConfig{}, clock: "03:00", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinWorkingHours(tt.cfg, tt.clock); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func dueCandidate(expiry time.Time) domain.Subscription {
	return domain.Subscription{
		ID:                uuid.New(),
		Name:              "Ana",
		Phone:             "+5511987654321",
		ProductType:       domain.ProductIPTV,
		Plan:              "Premium IPTV",
		MonthlyValueCents: 4990,
		ExpiryDate:        expiry,
		NotificationTime:  "09:00",
	}
}

func TestScanDueSubscriptionsCreatesAndPublishes(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	repo := &schedulerStoreStub{candidates: []domain.Subscription{
		dueCandidate(time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)), // due in 3 days
		dueCandidate(time.Date(2025, 7, 30, 0, 0, 0, 0, time.UTC)), // far future, not due
	}}
	pub := &publisherStub{}
	jobs := newTestJobs(repo, pub, now)

	jobs.ScanDueSubscriptions()

	if len(repo.createdEvents) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(repo.createdEvents))
	}
	event := repo.createdEvents[0]
	if event.SubscriptionID != repo.candidates[0].ID {
		t.Fatal("expected the event to belong to the due subscription")
	}
	if event.Status != domain.EventPending {
		t.Fatalf("expected a pending event, got %q", event.Status)
	}
	if event.Message == "" {
		t.Fatal("expected the message to be rendered at event creation")
	}
	if len(repo.notifiedIDs) != 1 || repo.notifiedIDs[0] != repo.candidates[0].ID {
		t.Fatal("expected the notified-day marker to be set for the due subscription")
	}
	if len(pub.published) != 1 || pub.published[0].EventID != event.ID {
		t.Fatal("expected the event to be handed to the delivery queue")
	}
	if pub.keys[0] != rabbitmq.RoutingKeyCreated {
		t.Fatalf("expected routing key %q, got %q", rabbitmq.RoutingKeyCreated, pub.keys[0])
	}
}

func TestScanDueSubscriptionsToleratesDuplicateDay(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	repo := &schedulerStoreStub{
		candidates: []domain.Subscription{dueCandidate(time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))},
		createErr:  store.ErrDuplicateEventDay,
	}
	pub := &publisherStub{}
	jobs := newTestJobs(repo, pub, now)

	jobs.ScanDueSubscriptions()

	if len(repo.notifiedIDs) != 0 {
		t.Fatal("expected no notified-day update for an already-scheduled subscription")
	}
	if len(pub.published) != 0 {
		t.Fatal("expected no publish for an already-scheduled subscription")
	}
}

func TestScanDueSubscriptionsPausedAutoSendStillCreates(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	repo := &schedulerStoreStub{
		candidates:    []domain.Subscription{dueCandidate(time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))},
		gatewayConfig: &domain.GatewayConfig{AutoSendEnabled: false},
	}
	pub := &publisherStub{}
	jobs := newTestJobs(repo, pub, now)

	jobs.ScanDueSubscriptions()

	if len(repo.createdEvents) != 1 {
		t.Fatal("expected the event to be recorded even while sending is paused")
	}
	if len(pub.published) != 0 {
		t.Fatal("expected no queue hand-off while sending is paused")
	}
}

func TestScanDueSubscriptionsOutsideWorkingHours(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)
	repo := &schedulerStoreStub{
		candidates: []domain.Subscription{dueCandidate(time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC))},
		gatewayConfig: &domain.GatewayConfig{
			AutoSendEnabled:   true,
			WorkingHoursStart: "08:00",
			WorkingHoursEnd:   "21:00",
		},
	}
	pub := &publisherStub{}
	jobs := newTestJobs(repo, pub, now)

	jobs.ScanDueSubscriptions()

	if len(repo.createdEvents) != 1 {
		t.Fatal("expected the event to be recorded outside working hours")
	}
	if len(pub.published) != 0 {
		t.Fatal("expected no queue hand-off outside working hours")
	}
}

func TestScanDueRetriesPublishesDueAndStale(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	retry := domain.NotificationEvent{ID: uuid.New()}
	stale := domain.NotificationEvent{ID: uuid.New()}
	repo := &schedulerStoreStub{
		retryEvents: []domain.NotificationEvent{retry},
		staleEvents: []domain.NotificationEvent{stale},
	}
	pub := &publisherStub{}
	jobs := newTestJobs(repo, pub, now)

	jobs.ScanDueRetries()

	if len(pub.published) != 2 {
		t.Fatalf("expected two publishes, got %d", len(pub.published))
	}
	if pub.published[0].EventID != retry.ID || pub.keys[0] != rabbitmq.RoutingKeyRetry {
		t.Fatal("expected the due retry to be published on the retry key")
	}
	if pub.published[1].EventID != stale.ID || pub.keys[1] != rabbitmq.RoutingKeyCreated {
		t.Fatal("expected the stale pending event to be published on the created key")
	}
}

func TestScanDueRetriesGatedByAutoSend(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	repo := &schedulerStoreStub{
		retryEvents:   []domain.NotificationEvent{{ID: uuid.New()}},
		gatewayConfig: &domain.GatewayConfig{AutoSendEnabled: false},
	}
	pub := &publisherStub{}
	jobs := newTestJobs(repo, pub, now)

	jobs.ScanDueRetries()

	if len(pub.published) != 0 {
		t.Fatal("expected no retry hand-off while sending is paused")
	}
}
