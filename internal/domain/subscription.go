/**
 * @description
 * This file defines the core domain models for subscription clients.
 * It includes the Subscription struct that maps to the database table,
 * the product/status enums, and the derived expiry-state helpers that
 * are computed at read time and never stored.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProductType identifies which product a subscription belongs to.
type ProductType string

const (
	ProductIPTV ProductType = "IPTV"
	ProductVPN  ProductType = "VPN"
)

// Valid reports whether the product type is one of the known products.
func (p ProductType) Valid() bool {
	return p == ProductIPTV || p == ProductVPN
}

// SubscriptionStatus is the *stored* status flag. The temporal classification
// (active / expiring / expired) is derived from expiry_date and is never stored.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionRenewed SubscriptionStatus = "renewed"
)

// ExpiringSoonWindowDays is the derived-state window for "expiring soon".
const ExpiringSoonWindowDays = 7

// Subscription represents a client's paid plan record with an expiry date.
type Subscription struct {
	ID                uuid.UUID          `json:"id"`
	Name              string             `json:"name"`
	Phone             string             `json:"phone"` // normalized: digits only, optional leading +
	ProductType       ProductType        `json:"product_type"`
	Plan              string             `json:"plan"`
	MonthlyValueCents int64              `json:"monthly_value_cents"`
	ExpiryDate        time.Time          `json:"expiry_date"`        // calendar date, time component ignored
	NotificationTime  string             `json:"notification_time"`  // "HH:MM" in the configured timezone
	CustomTemplate    *string            `json:"custom_message,omitempty"`
	Status            SubscriptionStatus `json:"status"`
	LastNotifiedDay   *time.Time         `json:"last_notified_day,omitempty"` // calendar date of the last created reminder
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// DaysUntilExpiry returns the whole number of calendar days between "now"
// (interpreted in loc) and the expiry date. Negative when already expired.
func (s *Subscription) DaysUntilExpiry(now time.Time, loc *time.Location) int {
	return DaysBetween(now.In(loc), s.ExpiryDate)
}

// IsExpired reports whether the subscription's expiry date has passed.
func (s *Subscription) IsExpired(now time.Time, loc *time.Location) bool {
	return s.DaysUntilExpiry(now, loc) < 0
}

// IsExpiringSoon reports whether expiry falls within the next seven days,
// inclusive of the expiry day itself. Mutually exclusive with IsExpired.
func (s *Subscription) IsExpiringSoon(now time.Time, loc *time.Location) bool {
	days := s.DaysUntilExpiry(now, loc)
	return days >= 0 && days <= ExpiringSoonWindowDays
}

// DaysBetween computes to - from in whole calendar days, ignoring the
// time-of-day component of both values. DST-safe because both endpoints are
// re-anchored to midnight UTC before subtracting.
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// SubscriptionView is the API representation of a subscription. It carries the
// derived temporal fields alongside the stored record.
type SubscriptionView struct {
	Subscription
	MonthlyValue    float64 `json:"monthly_value"`
	DaysUntilExpiry int     `json:"days_until_expiry"`
	IsExpired       bool    `json:"is_expired"`
	IsExpiringSoon  bool    `json:"is_expiring_soon"`
}

// NewSubscriptionView computes the derived fields for a single point in time.
func NewSubscriptionView(s *Subscription, now time.Time, loc *time.Location) SubscriptionView {
	days := s.DaysUntilExpiry(now, loc)
	return SubscriptionView{
		Subscription:    *s,
		MonthlyValue:    float64(s.MonthlyValueCents) / 100,
		DaysUntilExpiry: days,
		IsExpired:       days < 0,
		IsExpiringSoon:  days >= 0 && days <= ExpiringSoonWindowDays,
	}
}

// SubscriptionListOptions carries the filter and pagination parameters for
// listing subscriptions. Pages are 1-indexed.
type SubscriptionListOptions struct {
	ProductType string // "", "IPTV", "VPN"
	Status      string // "", "active", "expired", "expiring", "renewed"
	Search      string // case-insensitive substring over name, phone, plan
	Page        int
	PageSize    int
}

// SubscriptionStats is the dashboard aggregate for a product (or all products).
// ActiveClients counts every non-expired subscription, so it includes the
// expiring-soon subset.
type SubscriptionStats struct {
	TotalClients        int     `json:"total_clients"`
	ActiveClients       int     `json:"active_clients"`
	ExpiredClients      int     `json:"expired_clients"`
	ExpiringSoon        int     `json:"expiring_soon"`
	RenewedClients      int     `json:"renewed_clients"`
	MonthlyRevenueCents int64   `json:"monthly_revenue_cents"`
	MonthlyRevenue      float64 `json:"monthly_revenue"`
}
