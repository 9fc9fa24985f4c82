/**
 * @description
 * PostgreSQL implementation of the notification-event portion of the
 * Repository: the delivery log, the exclusive state-machine transitions, and
 * the aggregate stats queries.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
)

const eventColumns = `id, subscription_id, phone, message, scheduled_day, scheduled_for, status, attempt_count, max_attempts, last_attempt_at, next_attempt_at, sent_at, error_message, gateway_message_id, created_at`

func scanEvent(row pgx.Row) (*domain.NotificationEvent, error) {
	var ev domain.NotificationEvent
	err := row.Scan(
		&ev.ID,
		&ev.SubscriptionID,
		&ev.Phone,
		&ev.Message,
		&ev.ScheduledDay,
		&ev.ScheduledFor,
		&ev.Status,
		&ev.AttemptCount,
		&ev.MaxAttempts,
		&ev.LastAttemptAt,
		&ev.NextAttemptAt,
		&ev.SentAt,
		&ev.ErrorMessage,
		&ev.GatewayMessageID,
		&ev.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// CreateNotificationEvent inserts a pending event. The unique index on
// (subscription_id, scheduled_day) is the idempotency gate: a duplicate tick
// or scheduler restart surfaces as ErrDuplicateEventDay, never a second row.
func (r *PostgresRepository) CreateNotificationEvent(ctx context.Context, event *domain.NotificationEvent) error {
	query := `
        INSERT INTO notification_events (id, subscription_id, phone, message, scheduled_day, scheduled_for, status, attempt_count, max_attempts)
        VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)
        RETURNING created_at
    `
	err := r.db.QueryRow(ctx, query,
		event.ID,
		event.SubscriptionID,
		event.Phone,
		event.Message,
		event.ScheduledDay,
		event.ScheduledFor,
		event.Status,
		event.AttemptCount,
		event.MaxAttempts,
	).Scan(&event.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEventDay
		}
		return err
	}
	return nil
}

// GetNotificationEvent retrieves a single event by id.
func (r *PostgresRepository) GetNotificationEvent(ctx context.Context, id uuid.UUID) (*domain.NotificationEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_events WHERE id = $1`, eventColumns)
	return scanEvent(r.db.QueryRow(ctx, query, id))
}

// ListNotificationEvents returns one page of the delivery log, newest first,
// with the unpaginated total for the same filters.
func (r *PostgresRepository) ListNotificationEvents(ctx context.Context, opts domain.MessageListOptions, from, to *time.Time) ([]domain.NotificationEvent, int, error) {
	clauses := []string{}
	args := []interface{}{}

	if opts.ProductType != "" {
		args = append(args, opts.ProductType)
		clauses = append(clauses, fmt.Sprintf("e.subscription_id IN (SELECT id FROM subscriptions WHERE product_type = $%d)", len(args)))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		clauses = append(clauses, fmt.Sprintf("e.status = $%d", len(args)))
	}
	if from != nil {
		args = append(args, *from)
		clauses = append(clauses, fmt.Sprintf("e.created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		clauses = append(clauses, fmt.Sprintf("e.created_at < $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+escapeLike(opts.Search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(e.phone ILIKE $%d OR e.message ILIKE $%d)", n, n))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM notification_events e"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (opts.Page - 1) * opts.PageSize
	args = append(args, opts.PageSize, offset)
	cols := "e." + strings.ReplaceAll(eventColumns, ", ", ", e.")
	query := fmt.Sprintf("SELECT %s FROM notification_events e%s ORDER BY e.created_at DESC LIMIT $%d OFFSET $%d",
		cols, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []domain.NotificationEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *ev)
	}
	return events, total, rows.Err()
}

// ClaimEventForSending performs the exclusive pending/retrying -> sending
// transition. The conditional UPDATE is what guarantees at most one in-flight
// attempt per event: a concurrent second claim matches no row.
func (r *PostgresRepository) ClaimEventForSending(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error) {
	query := fmt.Sprintf(`
        UPDATE notification_events
        SET status = 'sending', attempt_count = attempt_count + 1, last_attempt_at = $2, next_attempt_at = NULL
        WHERE id = $1 AND status IN ('pending', 'retrying')
        RETURNING %s
    `, eventColumns)

	ev, err := scanEvent(r.db.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, ErrEventNotClaimable
		}
		return nil, err
	}
	return ev, nil
}

// ReleaseEventClaim undoes a claim whose attempt never reached the gateway
// (worker shut down while waiting for a send slot). The attempt_count
// increment from the claim is rolled back and the event rejoins the retry
// scan at nextAttemptAt.
func (r *PostgresRepository) ReleaseEventClaim(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE notification_events
        SET status = 'retrying', attempt_count = attempt_count - 1, next_attempt_at = $2
        WHERE id = $1 AND status = 'sending'
    `, id, nextAttemptAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkEventSent records a successful delivery.
func (r *PostgresRepository) MarkEventSent(ctx context.Context, id uuid.UUID, gatewayMessageID string, sentAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE notification_events
        SET status = 'sent', sent_at = $2, gateway_message_id = $3, error_message = NULL
        WHERE id = $1 AND status = 'sending'
    `, id, sentAt, gatewayMessageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkEventRetrying schedules the next automatic attempt.
func (r *PostgresRepository) MarkEventRetrying(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, errorMessage string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE notification_events
        SET status = 'retrying', next_attempt_at = $2, error_message = $3
        WHERE id = $1 AND status = 'sending'
    `, id, nextAttemptAt, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkEventFailed moves the event to its terminal failed state. The row stays
// queryable and manually retriable indefinitely.
func (r *PostgresRepository) MarkEventFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE notification_events
        SET status = 'failed', next_attempt_at = NULL, error_message = $2
        WHERE id = $1 AND status = 'sending'
    `, id, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ResetEventForManualRetry re-arms a failed event for exactly one more
// attempt: attempt_count is set to max_attempts-1, so the next failure goes
// straight back to failed.
func (r *PostgresRepository) ResetEventForManualRetry(ctx context.Context, id uuid.UUID, now time.Time) (*domain.NotificationEvent, error) {
	query := fmt.Sprintf(`
        UPDATE notification_events
        SET status = 'retrying', attempt_count = max_attempts - 1, next_attempt_at = $2
        WHERE id = $1 AND status = 'failed'
        RETURNING %s
    `, eventColumns)

	ev, err := scanEvent(r.db.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			// Distinguish "unknown id" from "known but not failed".
			if _, getErr := r.GetNotificationEvent(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrEventNotRetryable
		}
		return nil, err
	}
	return ev, nil
}

// FindDueRetryEvents returns retrying events whose backoff has elapsed.
func (r *PostgresRepository) FindDueRetryEvents(ctx context.Context, now time.Time, limit int) ([]domain.NotificationEvent, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM notification_events
        WHERE status = 'retrying' AND next_attempt_at IS NOT NULL AND next_attempt_at <= $1
        ORDER BY next_attempt_at ASC
        LIMIT $2
    `, eventColumns)

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.NotificationEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// FindStalePendingEvents returns pending events that have been waiting since
// before olderThan. Used to re-drive hand-off after a broker outage or a
// paused auto-send window.
func (r *PostgresRepository) FindStalePendingEvents(ctx context.Context, olderThan time.Time, limit int) ([]domain.NotificationEvent, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM notification_events
        WHERE status = 'pending' AND created_at <= $1
        ORDER BY created_at ASC
        LIMIT $2
    `, eventColumns)

	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.NotificationEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// subscriptionStatsQuery buckets every subscription by expiry_date relative
// to $1 (today). Active means non-expired, so it includes the expiring-soon
// subset; revenue sums only non-expired subscriptions; renewed reads the
// stored flag.
var subscriptionStatsQuery = fmt.Sprintf(`
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE expiry_date >= $1::date),
            COUNT(*) FILTER (WHERE expiry_date < $1::date),
            COUNT(*) FILTER (WHERE expiry_date >= $1::date AND expiry_date <= $1::date + %d),
            COUNT(*) FILTER (WHERE status = 'renewed'),
            COALESCE(SUM(monthly_value_cents) FILTER (WHERE expiry_date >= $1::date), 0)
        FROM subscriptions
        WHERE ($2 = '' OR product_type = $2)
    `, domain.ExpiringSoonWindowDays)

// SubscriptionStats computes the dashboard aggregate in a single statement so
// every counter reflects the same snapshot.
func (r *PostgresRepository) SubscriptionStats(ctx context.Context, productType string, today time.Time) (*domain.SubscriptionStats, error) {
	var stats domain.SubscriptionStats
	err := r.db.QueryRow(ctx, subscriptionStatsQuery, today, productType).Scan(
		&stats.TotalClients,
		&stats.ActiveClients,
		&stats.ExpiredClients,
		&stats.ExpiringSoon,
		&stats.RenewedClients,
		&stats.MonthlyRevenueCents,
	)
	if err != nil {
		return nil, err
	}
	stats.MonthlyRevenue = float64(stats.MonthlyRevenueCents) / 100
	return &stats, nil
}

// MessageStats counts delivery outcomes for events joined to subscriptions of
// the given product within the date window.
func (r *PostgresRepository) MessageStats(ctx context.Context, productType string, from, to *time.Time) (*domain.MessageStats, error) {
	clauses := []string{"($1 = '' OR e.subscription_id IN (SELECT id FROM subscriptions WHERE product_type = $1))"}
	args := []interface{}{productType}

	if from != nil {
		args = append(args, *from)
		clauses = append(clauses, fmt.Sprintf("e.created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		clauses = append(clauses, fmt.Sprintf("e.created_at < $%d", len(args)))
	}

	query := `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE e.status = 'sent'),
            COUNT(*) FILTER (WHERE e.status = 'failed'),
            COUNT(*) FILTER (WHERE e.status IN ('pending', 'sending', 'retrying'))
        FROM notification_events e
        WHERE ` + strings.Join(clauses, " AND ")

	var stats domain.MessageStats
	err := r.db.QueryRow(ctx, query, args...).Scan(&stats.Total, &stats.Sent, &stats.Failed, &stats.Pending)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
