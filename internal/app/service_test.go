package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
)

type serviceRepoStub struct {
	store.Repository

	created *domain.Subscription
	updated *domain.Subscription
	stored  *domain.Subscription

	renewedDays int
	deleted     bool

	listOpts domain.SubscriptionListOptions
}

func (s *serviceRepoStub) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	s.created = sub
	return nil
}

func (s *serviceRepoStub) GetSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	if s.stored == nil {
		return nil, store.ErrSubscriptionNotFound
	}
	return s.stored, nil
}

func (s *serviceRepoStub) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	s.updated = sub
	return nil
}

func (s *serviceRepoStub) DeleteSubscription(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.deleted, nil
}

func (s *serviceRepoStub) ListSubscriptions(ctx context.Context, opts domain.SubscriptionListOptions, today time.Time) ([]domain.Subscription, int, error) {
	s.listOpts = opts
	return nil, 0, nil
}

func (s *serviceRepoStub) RenewSubscription(ctx context.Context, id uuid.UUID, days int) (*domain.Subscription, error) {
	if s.stored == nil {
		return nil, store.ErrSubscriptionNotFound
	}
	s.renewedDays = days
	renewed := *s.stored
	renewed.ExpiryDate = renewed.ExpiryDate.AddDate(0, 0, days)
	renewed.Status = domain.SubscriptionRenewed
	renewed.LastNotifiedDay = nil
	return &renewed, nil
}

func validPayload() SubscriptionPayload {
	return SubscriptionPayload{
		Name:         "Ana",
		Phone:        "+55 (11) 98765-4321",
		ProductType:  "IPTV",
		Plan:         "Premium IPTV",
		MonthlyValue: 49.90,
		ExpiryDate:   "2025-07-01",
	}
}

func newTestService(repo store.Repository) *Service {
	return &Service{
		repo:        repo,
		validate:    newValidator(),
		loc:         time.UTC,
		maxPageSize: 100,
		now:         func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) },
	}
}

func TestCreateNormalizesPhoneAndDefaults(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := newTestService(repo)

	view, err := svc.Create(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	if repo.created.Phone != "+5511987654321" {
		t.Fatalf("expected normalized phone, got %q", repo.created.Phone)
	}
	if repo.created.NotificationTime != "09:00" {
		t.Fatalf("expected default notification time 09:00, got %q", repo.created.NotificationTime)
	}
	if repo.created.MonthlyValueCents != 4990 {
		t.Fatalf("expected 4990 cents, got %d", repo.created.MonthlyValueCents)
	}
	if repo.created.Status != domain.SubscriptionActive {
		t.Fatalf("expected default active status, got %q", repo.created.Status)
	}
	if view.MonthlyValue != 49.90 {
		t.Fatalf("expected view monthly value 49.90, got %v", view.MonthlyValue)
	}
}

func TestCreateRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubscriptionPayload)
		field  string
	}{
		{name: "unknown product", mutate: func(p *SubscriptionPayload) { p.ProductType = "CABLE" }, field: "product_type"},
		{name: "zero value", mutate: func(p *SubscriptionPayload) { p.MonthlyValue = 0 }, field: "monthly_value"},
		{name: "short phone", mutate: func(p *SubscriptionPayload) { p.Phone = "119876" }, field: "phone"},
		{name: "phone with letters", mutate: func(p *SubscriptionPayload) { p.Phone = "11abc9876543" }, field: "phone"},
		{name: "bad expiry date", mutate: func(p *SubscriptionPayload) { p.ExpiryDate = "01/07/2025" }, field: "expiry_date"},
		{name: "bad notification time", mutate: func(p *SubscriptionPayload) { p.NotificationTime = "25:99" }, field: "notification_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &serviceRepoStub{}
			svc := newTestService(repo)

			payload := validPayload()
			tt.mutate(&payload)

			_, err := svc.Create(context.Background(), payload)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if validationErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, validationErr.Field)
			}
			if repo.created != nil {
				t.Fatal("expected nothing to be persisted on validation failure")
			}
		})
	}
}

func TestUpdatePreservesIdentityAndNotifiedDay(t *testing.T) {
	notified := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	existing := &domain.Subscription{
		ID:              uuid.New(),
		LastNotifiedDay: &notified,
		CreatedAt:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	repo := &serviceRepoStub{stored: existing}
	svc := newTestService(repo)

	if _, err := svc.Update(context.Background(), existing.ID, validPayload()); err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	if repo.updated.ID != existing.ID {
		t.Fatal("expected the stored identity to be preserved")
	}
	if repo.updated.LastNotifiedDay == nil || !repo.updated.LastNotifiedDay.Equal(notified) {
		t.Fatal("expected the notified-day marker to be preserved")
	}
	if !repo.updated.CreatedAt.Equal(existing.CreatedAt) {
		t.Fatal("expected the creation timestamp to be preserved")
	}
}

func TestRenewAdvancesFromCurrentExpiry(t *testing.T) {
	// An expired subscription renewed for 30 days lands 30 days past its old
	// due date, not 30 days from today.
	repo := &serviceRepoStub{stored: &domain.Subscription{
		ID:         uuid.New(),
		ExpiryDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	svc := newTestService(repo)

	view, err := svc.Renew(context.Background(), repo.stored.ID, 30)
	if err != nil {
		t.Fatalf("expected renew to succeed, got %v", err)
	}
	want := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	if !view.ExpiryDate.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want.Format("2006-01-02"), view.ExpiryDate.Format("2006-01-02"))
	}
	if view.Status != domain.SubscriptionRenewed {
		t.Fatalf("expected renewed status, got %q", view.Status)
	}
}

func TestRenewRejectsNonPositiveDays(t *testing.T) {
	svc := newTestService(&serviceRepoStub{})

	for _, days := range []int{0, -5} {
		_, err := svc.Renew(context.Background(), uuid.New(), days)
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected validation error for %d days, got %v", days, err)
		}
	}
}

func TestDeleteUnknownSubscription(t *testing.T) {
	svc := newTestService(&serviceRepoStub{deleted: false})

	if err := svc.Delete(context.Background(), uuid.New()); !errors.Is(err, store.ErrSubscriptionNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestListClampsPagination(t *testing.T) {
	repo := &serviceRepoStub{}
	svc := newTestService(repo)

	if _, _, err := svc.List(context.Background(), domain.SubscriptionListOptions{Page: -1, PageSize: 9999}); err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}
	if repo.listOpts.Page != 1 {
		t.Fatalf("expected page clamped to 1, got %d", repo.listOpts.Page)
	}
	if repo.listOpts.PageSize != 100 {
		t.Fatalf("expected page size clamped to 100, got %d", repo.listOpts.PageSize)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(&serviceRepoStub{})

	_, _, err := svc.List(context.Background(), domain.SubscriptionListOptions{Status: "archived"})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
