/**
 * @description
 * Service for the two persisted configuration singletons: AI message
 * generation and WhatsApp gateway send behavior. Gateway updates propagate
 * the send interval to the delivery engine's rate limiter immediately.
 */
package app

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
)

// SendIntervalUpdater receives the new outbound message spacing when the
// gateway configuration changes.
type SendIntervalUpdater interface {
	UpdateSendInterval(seconds int)
}

// AIConfigPayload is the inbound shape for updating the AI configuration.
type AIConfigPayload struct {
	Enabled              bool    `json:"enabled"`
	Model                string  `json:"model" validate:"required,max=100"`
	Temperature          float64 `json:"temperature" validate:"gte=0,lte=1"`
	MaxTokens            int     `json:"max_tokens" validate:"gt=0,lte=4096"`
	SystemPrompt         string  `json:"system_prompt" validate:"max=4000"`
	IPTVContext          string  `json:"iptv_context" validate:"max=4000"`
	VPNContext           string  `json:"vpn_context" validate:"max=4000"`
	PersonalizationLevel string  `json:"personalization_level" validate:"required,oneof=low medium high"`
	AutoImprove          bool    `json:"auto_improve"`
}

// GatewayConfigPayload is the inbound shape for updating gateway send settings.
type GatewayConfigPayload struct {
	AutoSendEnabled        bool   `json:"auto_send_enabled"`
	WorkingHoursStart      string `json:"working_hours_start" validate:"required"`
	WorkingHoursEnd        string `json:"working_hours_end" validate:"required"`
	MessageIntervalSeconds int    `json:"message_interval_seconds" validate:"gte=0,lte=3600"`
}

// ConfigService manages the persisted configuration singletons.
type ConfigService struct {
	repo     store.Repository
	ai       AICompleter
	engine   SendIntervalUpdater
	validate *validator.Validate
	now      func() time.Time
}

// NewConfigService creates a config service. ai and engine may be nil.
func NewConfigService(repo store.Repository, ai AICompleter, engine SendIntervalUpdater) *ConfigService {
	return &ConfigService{
		repo:     repo,
		ai:       ai,
		engine:   engine,
		validate: newValidator(),
		now:      time.Now,
	}
}

// GetAIConfig returns the AI configuration, creating the default row on first
// read.
func (s *ConfigService) GetAIConfig(ctx context.Context) (*domain.AIConfig, error) {
	return s.repo.GetAIConfig(ctx)
}

// UpdateAIConfig validates and persists the AI configuration.
func (s *ConfigService) UpdateAIConfig(ctx context.Context, payload AIConfigPayload) (*domain.AIConfig, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, firstValidationError(err)
	}

	cfg := &domain.AIConfig{
		Enabled:              payload.Enabled,
		Model:                payload.Model,
		Temperature:          payload.Temperature,
		MaxTokens:            payload.MaxTokens,
		SystemPrompt:         payload.SystemPrompt,
		IPTVContext:          payload.IPTVContext,
		VPNContext:           payload.VPNContext,
		PersonalizationLevel: domain.PersonalizationLevel(payload.PersonalizationLevel),
		AutoImprove:          payload.AutoImprove,
		UpdatedAt:            s.now(),
	}
	if err := s.repo.UpdateAIConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TestPrompt runs one synchronous completion against the configured provider
// so the dashboard can preview the AI output.
func (s *ConfigService) TestPrompt(ctx context.Context, prompt string) (string, error) {
	if s.ai == nil {
		return "", &ValidationError{Field: "prompt", Reason: "no AI provider is configured"}
	}
	if prompt == "" {
		return "", &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}

	cfg, err := s.repo.GetAIConfig(ctx)
	if err != nil {
		return "", err
	}
	return s.ai.Complete(ctx, cfg.Model, prompt, cfg.Temperature, cfg.MaxTokens)
}

// GetGatewayConfig returns the gateway send settings, creating the default
// row on first read.
func (s *ConfigService) GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error) {
	return s.repo.GetGatewayConfig(ctx)
}

// UpdateGatewayConfig validates and persists the gateway send settings and
// re-arms the delivery engine's rate limiter.
func (s *ConfigService) UpdateGatewayConfig(ctx context.Context, payload GatewayConfigPayload) (*domain.GatewayConfig, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, firstValidationError(err)
	}
	if _, err := time.Parse("15:04", payload.WorkingHoursStart); err != nil {
		return nil, &ValidationError{Field: "working_hours_start", Reason: "must be a valid HH:MM time"}
	}
	if _, err := time.Parse("15:04", payload.WorkingHoursEnd); err != nil {
		return nil, &ValidationError{Field: "working_hours_end", Reason: "must be a valid HH:MM time"}
	}

	cfg := &domain.GatewayConfig{
		AutoSendEnabled:        payload.AutoSendEnabled,
		WorkingHoursStart:      payload.WorkingHoursStart,
		WorkingHoursEnd:        payload.WorkingHoursEnd,
		MessageIntervalSeconds: payload.MessageIntervalSeconds,
		UpdatedAt:              s.now(),
	}
	if err := s.repo.UpdateGatewayConfig(ctx, cfg); err != nil {
		return nil, err
	}

	if s.engine != nil {
		s.engine.UpdateSendInterval(cfg.MessageIntervalSeconds)
	}
	return cfg, nil
}

// firstValidationError converts the first validator error into the service's
// ValidationError shape. Field names come from the json tags registered in
// newValidator.
func firstValidationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return &ValidationError{Field: errs[0].Field(), Reason: "failed " + errs[0].Tag() + " validation"}
	}
	return err
}
