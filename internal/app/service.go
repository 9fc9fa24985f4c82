/**
 * @description
 * This file contains the core business logic for the subscription registry.
 * The Service layer validates and normalizes inbound payloads, orchestrates
 * the repository, and computes the derived expiry state for API responses.
 */
package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
)

// ValidationError reports a rejected payload. Nothing is mutated when one is
// returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// minPhoneDigits is the minimum digit count for a normalizable phone number.
const minPhoneDigits = 10

// SubscriptionPayload is the inbound shape for create and update operations.
type SubscriptionPayload struct {
	Name             string  `json:"name" validate:"required,max=100"`
	Phone            string  `json:"phone" validate:"required"`
	ProductType      string  `json:"product_type" validate:"required,oneof=IPTV VPN"`
	Plan             string  `json:"plan" validate:"required,max=100"`
	MonthlyValue     float64 `json:"monthly_value" validate:"gt=0"`
	ExpiryDate       string  `json:"expiry_date" validate:"required"`
	NotificationTime string  `json:"notification_time"`
	CustomMessage    *string `json:"custom_message"`
	Status           string  `json:"status" validate:"omitempty,oneof=active renewed"`
}

// Service provides the business logic for subscription management.
type Service struct {
	repo        store.Repository
	validate    *validator.Validate
	loc         *time.Location
	maxPageSize int
	now         func() time.Time
}

// NewService creates a new subscription registry service.
func NewService(repo store.Repository, loc *time.Location, maxPageSize int) *Service {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Service{
		repo:        repo,
		validate:    newValidator(),
		loc:         loc,
		maxPageSize: maxPageSize,
		now:         time.Now,
	}
}

// normalizePhone strips formatting and keeps an optional leading +.
func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// formatting characters, dropped
		default:
			return "", &ValidationError{Field: "phone", Reason: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	normalized := b.String()
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < minPhoneDigits {
		return "", &ValidationError{Field: "phone", Reason: fmt.Sprintf("must contain at least %d digits", minPhoneDigits)}
	}
	return normalized, nil
}

// parsePayload validates and converts the inbound payload into a subscription
// record, without touching identity or timestamps.
func (s *Service) parsePayload(payload SubscriptionPayload) (*domain.Subscription, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, firstValidationError(err)
	}

	phone, err := normalizePhone(payload.Phone)
	if err != nil {
		return nil, err
	}

	expiry, err := time.ParseInLocation("2006-01-02", payload.ExpiryDate, s.loc)
	if err != nil {
		return nil, &ValidationError{Field: "expiry_date", Reason: "must be a valid YYYY-MM-DD date"}
	}

	notificationTime := payload.NotificationTime
	if notificationTime == "" {
		notificationTime = "09:00"
	}
	if _, err := time.Parse("15:04", notificationTime); err != nil {
		return nil, &ValidationError{Field: "notification_time", Reason: "must be a valid HH:MM time"}
	}

	status := domain.SubscriptionStatus(payload.Status)
	if payload.Status == "" {
		status = domain.SubscriptionActive
	}

	var custom *string
	if payload.CustomMessage != nil && strings.TrimSpace(*payload.CustomMessage) != "" {
		trimmed := strings.TrimSpace(*payload.CustomMessage)
		custom = &trimmed
	}

	return &domain.Subscription{
		Name:              strings.TrimSpace(payload.Name),
		Phone:             phone,
		ProductType:       domain.ProductType(payload.ProductType),
		Plan:              strings.TrimSpace(payload.Plan),
		MonthlyValueCents: int64(math.Round(payload.MonthlyValue * 100)),
		ExpiryDate:        expiry,
		NotificationTime:  notificationTime,
		CustomTemplate:    custom,
		Status:            status,
	}, nil
}

// Create registers a new subscription.
func (s *Service) Create(ctx context.Context, payload SubscriptionPayload) (*domain.SubscriptionView, error) {
	sub, err := s.parsePayload(payload)
	if err != nil {
		return nil, err
	}
	sub.ID = uuid.New()

	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	view := domain.NewSubscriptionView(sub, s.now(), s.loc)
	return &view, nil
}

// Update replaces the mutable fields of an existing subscription.
func (s *Service) Update(ctx context.Context, id uuid.UUID, payload SubscriptionPayload) (*domain.SubscriptionView, error) {
	existing, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	sub, err := s.parsePayload(payload)
	if err != nil {
		return nil, err
	}
	sub.ID = existing.ID
	sub.LastNotifiedDay = existing.LastNotifiedDay
	sub.CreatedAt = existing.CreatedAt

	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	view := domain.NewSubscriptionView(sub, s.now(), s.loc)
	return &view, nil
}

// Delete removes a subscription; its pending reminders are dropped with it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.DeleteSubscription(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrSubscriptionNotFound
	}
	return nil
}

// Get returns a single subscription with its derived state.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.SubscriptionView, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	view := domain.NewSubscriptionView(sub, s.now(), s.loc)
	return &view, nil
}

// List returns one page of subscriptions with derived state plus the total
// count for the filter set. Derived fields are computed against a single
// "now" for the whole page.
func (s *Service) List(ctx context.Context, opts domain.SubscriptionListOptions) ([]domain.SubscriptionView, int, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > s.maxPageSize {
		opts.PageSize = s.maxPageSize
	}

	switch opts.Status {
	case "", "active", "expired", "expiring", "renewed":
	default:
		return nil, 0, &ValidationError{Field: "status", Reason: "must be one of active, expired, expiring, renewed"}
	}

	now := s.now()
	subs, total, err := s.repo.ListSubscriptions(ctx, opts, now.In(s.loc))
	if err != nil {
		return nil, 0, err
	}

	views := make([]domain.SubscriptionView, 0, len(subs))
	for i := range subs {
		views = append(views, domain.NewSubscriptionView(&subs[i], now, s.loc))
	}
	return views, total, nil
}

// Renew advances the expiry date by exactly `days` calendar days from the
// current expiry date, never from today, so an already-expired subscription
// renewed for 30 days lands 30 days past its old due date.
func (s *Service) Renew(ctx context.Context, id uuid.UUID, days int) (*domain.SubscriptionView, error) {
	if days <= 0 {
		return nil, &ValidationError{Field: "days", Reason: "must be a positive number of days"}
	}

	sub, err := s.repo.RenewSubscription(ctx, id, days)
	if err != nil {
		return nil, err
	}

	view := domain.NewSubscriptionView(sub, s.now(), s.loc)
	return &view, nil
}

// Stats computes the subscription aggregate for the dashboard.
func (s *Service) Stats(ctx context.Context, productType string) (*domain.SubscriptionStats, error) {
	if productType != "" && !domain.ProductType(productType).Valid() {
		return nil, &ValidationError{Field: "product_type", Reason: "must be IPTV or VPN"}
	}
	return s.repo.SubscriptionStats(ctx, productType, s.now().In(s.loc))
}
