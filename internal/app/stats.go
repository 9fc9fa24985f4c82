/**
 * @description
 * Read-side service over the notification event log: the delivery history
 * listing with its named date windows, and the message outcome aggregate for
 * the dashboard.
 */
package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
)

// MessageService exposes the delivery log and its aggregates.
type MessageService struct {
	repo        store.Repository
	loc         *time.Location
	maxPageSize int
	now         func() time.Time
}

// NewMessageService creates a message log service.
func NewMessageService(repo store.Repository, loc *time.Location, maxPageSize int) *MessageService {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &MessageService{
		repo:        repo,
		loc:         loc,
		maxPageSize: maxPageSize,
		now:         time.Now,
	}
}

// resolveDateWindow maps a named filter onto a [from, to) interval in loc.
// "week" and "month" are rolling windows ending now, not calendar periods.
func resolveDateWindow(filter string, now time.Time, loc *time.Location) (*time.Time, *time.Time, error) {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch filter {
	case "", "all":
		return nil, nil, nil
	case "today":
		to := midnight.AddDate(0, 0, 1)
		return &midnight, &to, nil
	case "yesterday":
		from := midnight.AddDate(0, 0, -1)
		return &from, &midnight, nil
	case "week":
		from := midnight.AddDate(0, 0, -6)
		return &from, nil, nil
	case "month":
		from := midnight.AddDate(0, -1, 0)
		return &from, nil, nil
	default:
		return nil, nil, &ValidationError{Field: "date_filter", Reason: "must be one of today, yesterday, week, month, all"}
	}
}

// List returns one page of the delivery log, newest first.
func (s *MessageService) List(ctx context.Context, opts domain.MessageListOptions) ([]domain.NotificationEvent, int, error) {
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
	case "", "pending", "sending", "sent", "retrying", "failed":
	default:
		return nil, 0, &ValidationError{Field: "status", Reason: "must be one of pending, sending, sent, retrying, failed"}
	}
	if opts.ProductType != "" && !domain.ProductType(opts.ProductType).Valid() {
		return nil, 0, &ValidationError{Field: "product_type", Reason: "must be IPTV or VPN"}
	}

	from, to, err := resolveDateWindow(opts.DateFilter, s.now(), s.loc)
	if err != nil {
		return nil, 0, err
	}

	return s.repo.ListNotificationEvents(ctx, opts, from, to)
}

// Get returns a single event from the delivery log.
func (s *MessageService) Get(ctx context.Context, id uuid.UUID) (*domain.NotificationEvent, error) {
	return s.repo.GetNotificationEvent(ctx, id)
}

// Stats computes the delivery outcome aggregate, optionally scoped to one
// product and one named date window.
func (s *MessageService) Stats(ctx context.Context, productType, dateFilter string) (*domain.MessageStats, error) {
	if productType != "" && !domain.ProductType(productType).Valid() {
		return nil, &ValidationError{Field: "product_type", Reason: "must be IPTV or VPN"}
	}
	from, to, err := resolveDateWindow(dateFilter, s.now(), s.loc)
	if err != nil {
		return nil, err
	}
	return s.repo.MessageStats(ctx, productType, from, to)
}
