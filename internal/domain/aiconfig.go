/**
 * @description
 * Process-wide configuration singletons persisted in the database: the AI
 * message-personalization settings and the WhatsApp gateway send settings.
 */
package domain

import "time"

// PersonalizationLevel controls how much subscription context is fed to the
// AI collaborator when composing a message.
type PersonalizationLevel string

const (
	PersonalizationLow    PersonalizationLevel = "low"
	PersonalizationMedium PersonalizationLevel = "medium"
	PersonalizationHigh   PersonalizationLevel = "high"
)

// Valid reports whether the level is one of the known values.
func (p PersonalizationLevel) Valid() bool {
	return p == PersonalizationLow || p == PersonalizationMedium || p == PersonalizationHigh
}

// AIConfig is the single-instance configuration for AI message generation.
// It is read by the template renderer and written only through the explicit
// update operation.
type AIConfig struct {
	Enabled              bool                 `json:"enabled"`
	Model                string               `json:"model"`
	Temperature          float64              `json:"temperature"` // [0,1]
	MaxTokens            int                  `json:"max_tokens"`
	SystemPrompt         string               `json:"system_prompt"`
	IPTVContext          string               `json:"iptv_context"`
	VPNContext           string               `json:"vpn_context"`
	PersonalizationLevel PersonalizationLevel `json:"personalization_level"`
	// AutoImprove is persisted for the dashboard but has no behavioral
	// contract yet; no component reads it.
	AutoImprove bool      `json:"auto_improve"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductContext returns the per-product context string for prompt composition.
func (c *AIConfig) ProductContext(product ProductType) string {
	if product == ProductVPN {
		return c.VPNContext
	}
	return c.IPTVContext
}

// GatewayConfig is the single-instance configuration for automatic delivery
// through the WhatsApp gateway.
type GatewayConfig struct {
	AutoSendEnabled        bool      `json:"auto_send_enabled"`
	WorkingHoursStart      string    `json:"working_hours_start"` // "HH:MM"
	WorkingHoursEnd        string    `json:"working_hours_end"`   // "HH:MM"
	MessageIntervalSeconds int       `json:"message_interval_seconds"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// GatewayStatus reflects the external channel's connection state as reported
// by the gateway adapter.
type GatewayStatus struct {
	Connected bool    `json:"connected"`
	Identity  *string `json:"identity,omitempty"` // phone number of the paired session
}
