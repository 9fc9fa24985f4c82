/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for subscription records. It contains the SQL for CRUD, the
 * derived-status list filters, and the renew operation.
 *
 * @dependencies
 * - context, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrEventNotFound        = errors.New("notification event not found")
	ErrDuplicateEventDay    = errors.New("notification event already exists for this subscription and day")
	ErrEventNotClaimable    = errors.New("notification event is not claimable for sending")
	ErrEventNotRetryable    = errors.New("notification event is not in a failed state")
)

const subscriptionColumns = `id, name, phone, product_type, plan, monthly_value_cents, expiry_date, notification_time, custom_message, status, last_notified_day, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface
// for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.Name,
		&sub.Phone,
		&sub.ProductType,
		&sub.Plan,
		&sub.MonthlyValueCents,
		&sub.ExpiryDate,
		&sub.NotificationTime,
		&sub.CustomTemplate,
		&sub.Status,
		&sub.LastNotifiedDay,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription inserts a new subscription record.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
        INSERT INTO subscriptions (id, name, phone, product_type, plan, monthly_value_cents, expiry_date, notification_time, custom_message, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at, updated_at
    `
	return r.db.QueryRow(ctx, query,
		sub.ID,
		sub.Name,
		sub.Phone,
		sub.ProductType,
		sub.Plan,
		sub.MonthlyValueCents,
		sub.ExpiryDate,
		sub.NotificationTime,
		sub.CustomTemplate,
		sub.Status,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
}

// GetSubscription retrieves a subscription by its id.
func (r *PostgresRepository) GetSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)
	return scanSubscription(r.db.QueryRow(ctx, query, id))
}

// UpdateSubscription persists the mutable fields of a subscription.
func (r *PostgresRepository) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
        UPDATE subscriptions
        SET name = $2, phone = $3, product_type = $4, plan = $5, monthly_value_cents = $6,
            expiry_date = $7, notification_time = $8, custom_message = $9, status = $10,
            updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	err := r.db.QueryRow(ctx, query,
		sub.ID,
		sub.Name,
		sub.Phone,
		sub.ProductType,
		sub.Plan,
		sub.MonthlyValueCents,
		sub.ExpiryDate,
		sub.NotificationTime,
		sub.CustomTemplate,
		sub.Status,
	).Scan(&sub.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrSubscriptionNotFound
	}
	return err
}

// DeleteSubscription removes the subscription and cascade-deletes its
// pending/retrying events inside one transaction, so no orphaned reminder can
// still fire for a deleted client.
func (r *PostgresRepository) DeleteSubscription(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM notification_events WHERE subscription_id = $1 AND status IN ('pending', 'retrying')`, id); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	return true, tx.Commit(ctx)
}

// escapeLike escapes the LIKE/ILIKE metacharacters so user-supplied search
// input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildSubscriptionFilters translates the list options into a WHERE clause.
// Derived-status filters compare expiry_date against today; only "renewed"
// reads the stored status flag.
func buildSubscriptionFilters(opts domain.SubscriptionListOptions, today time.Time) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	if opts.ProductType != "" {
		args = append(args, opts.ProductType)
		clauses = append(clauses, fmt.Sprintf("product_type = $%d", len(args)))
	}

	switch opts.Status {
	case "expired":
		args = append(args, today)
		clauses = append(clauses, fmt.Sprintf("expiry_date < $%d::date", len(args)))
	case "expiring":
		args = append(args, today)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("expiry_date >= $%d::date AND expiry_date <= $%d::date + %d", n, n, domain.ExpiringSoonWindowDays))
	case "active":
		args = append(args, today)
		clauses = append(clauses, fmt.Sprintf("expiry_date >= $%d::date", len(args)))
	case "renewed":
		clauses = append(clauses, "status = 'renewed'")
	}

	if opts.Search != "" {
		args = append(args, "%"+escapeLike(opts.Search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR phone ILIKE $%d OR plan ILIKE $%d)", n, n, n))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListSubscriptions returns one page of subscriptions plus the unpaginated
// total for the same filter set.
func (r *PostgresRepository) ListSubscriptions(ctx context.Context, opts domain.SubscriptionListOptions, today time.Time) ([]domain.Subscription, int, error) {
	where, args := buildSubscriptionFilters(opts, today)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM subscriptions"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (opts.Page - 1) * opts.PageSize
	args = append(args, opts.PageSize, offset)
	query := fmt.Sprintf("SELECT %s FROM subscriptions%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		subscriptionColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, *sub)
	}
	return subs, total, rows.Err()
}

// RenewSubscription advances expiry_date by exactly `days` calendar days from
// its *current* value (never from now), preserving the billing cadence. The
// notified-day marker is cleared so a fresh reminder cycle can occur, and
// stale pending events are dropped in the same transaction.
func (r *PostgresRepository) RenewSubscription(ctx context.Context, id uuid.UUID, days int) (*domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
        UPDATE subscriptions
        SET expiry_date = expiry_date + $2, status = 'renewed', last_notified_day = NULL, updated_at = NOW()
        WHERE id = $1
        RETURNING %s
    `, subscriptionColumns)

	sub, err := scanSubscription(tx.QueryRow(ctx, query, id, days))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM notification_events WHERE subscription_id = $1 AND status IN ('pending', 'retrying')`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// SetLastNotifiedDay records that a reminder was created for the given
// calendar day.
func (r *PostgresRepository) SetLastNotifiedDay(ctx context.Context, id uuid.UUID, day time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET last_notified_day = $2::date, updated_at = NOW() WHERE id = $1`, id, day)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListScheduleCandidates returns subscriptions whose notification time has
// elapsed today and which have no event recorded for today. The notification
// time column holds "HH:MM" strings, so lexicographic comparison is correct.
func (r *PostgresRepository) ListScheduleCandidates(ctx context.Context, today time.Time, nowClock string) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM subscriptions s
        WHERE s.notification_time <= $2
          AND (s.last_notified_day IS NULL OR s.last_notified_day < $1::date)
          AND NOT EXISTS (
              SELECT 1 FROM notification_events e
              WHERE e.subscription_id = s.id AND e.scheduled_day = $1::date
          )
        ORDER BY s.notification_time ASC
    `, "s."+strings.ReplaceAll(subscriptionColumns, ", ", ", s."))

	rows, err := r.db.Query(ctx, query, today, nowClock)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
