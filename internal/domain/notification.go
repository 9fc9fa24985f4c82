/**
 * @description
 * Domain models for notification events: one row per scheduled/attempted
 * renewal reminder, including the delivery state machine fields.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the delivery state of a NotificationEvent.
//
// Transitions: pending -> sending -> {sent | retrying | failed};
// retrying -> sending (after backoff). The pending/retrying -> sending
// transition is exclusive: a second concurrent claim is rejected.
type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventSending  EventStatus = "sending"
	EventSent     EventStatus = "sent"
	EventRetrying EventStatus = "retrying"
	EventFailed   EventStatus = "failed"
)

// DefaultMaxAttempts is the automatic attempt budget per event.
const DefaultMaxAttempts = 3

// NotificationEvent is one scheduled reminder message instance. It keeps a
// non-owning reference to its subscription; the subscription may be deleted
// independently.
type NotificationEvent struct {
	ID               uuid.UUID   `json:"id"`
	SubscriptionID   uuid.UUID   `json:"subscription_id"`
	Phone            string      `json:"phone"`
	Message          string      `json:"message"`
	ScheduledDay     time.Time   `json:"scheduled_day"` // calendar day, unique per subscription
	ScheduledFor     time.Time   `json:"scheduled_for"`
	Status           EventStatus `json:"status"`
	AttemptCount     int         `json:"attempt_count"`
	MaxAttempts      int         `json:"max_attempts"`
	LastAttemptAt    *time.Time  `json:"last_attempt_at,omitempty"`
	NextAttemptAt    *time.Time  `json:"next_attempt_at,omitempty"`
	SentAt           *time.Time  `json:"sent_at,omitempty"`
	ErrorMessage     *string     `json:"error_message,omitempty"`
	GatewayMessageID *string     `json:"gateway_message_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// MessageListOptions carries filters for the delivery log listing.
type MessageListOptions struct {
	ProductType string
	Status      string // "", "pending", "sending", "sent", "retrying", "failed"
	DateFilter  string // "", "today", "yesterday", "week", "month", "all"
	Search      string // substring over phone and message content
	Page        int
	PageSize    int
}

// MessageStats aggregates delivery outcomes for the dashboard. Pending counts
// events that have not reached a terminal state yet (pending, sending,
// retrying).
type MessageStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// NotificationQueuedEvent is the payload published to RabbitMQ when an event
// is handed off to the delivery engine.
type NotificationQueuedEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}
