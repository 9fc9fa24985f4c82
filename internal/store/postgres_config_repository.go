/**
 * @description
 * PostgreSQL implementation of the singleton configuration rows: the AI
 * message-generation settings and the WhatsApp gateway send settings. Both
 * tables hold exactly one row, created with defaults on first read.
 */

package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
)

// GetAIConfig returns the AI configuration, inserting the default row if none
// exists yet.
func (r *PostgresRepository) GetAIConfig(ctx context.Context) (*domain.AIConfig, error) {
	query := `
        SELECT enabled, model, temperature, max_tokens, system_prompt, iptv_context, vpn_context, personalization_level, auto_improve, updated_at
        FROM ai_config WHERE singleton = TRUE
    `
	var cfg domain.AIConfig
	err := r.db.QueryRow(ctx, query).Scan(
		&cfg.Enabled,
		&cfg.Model,
		&cfg.Temperature,
		&cfg.MaxTokens,
		&cfg.SystemPrompt,
		&cfg.IPTVContext,
		&cfg.VPNContext,
		&cfg.PersonalizationLevel,
		&cfg.AutoImprove,
		&cfg.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		if _, insErr := r.db.Exec(ctx, `INSERT INTO ai_config (singleton) VALUES (TRUE) ON CONFLICT DO NOTHING`); insErr != nil {
			return nil, insErr
		}
		err = r.db.QueryRow(ctx, query).Scan(
			&cfg.Enabled,
			&cfg.Model,
			&cfg.Temperature,
			&cfg.MaxTokens,
			&cfg.SystemPrompt,
			&cfg.IPTVContext,
			&cfg.VPNContext,
			&cfg.PersonalizationLevel,
			&cfg.AutoImprove,
			&cfg.UpdatedAt,
		)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateAIConfig overwrites the AI configuration row.
func (r *PostgresRepository) UpdateAIConfig(ctx context.Context, cfg *domain.AIConfig) error {
	query := `
        INSERT INTO ai_config (singleton, enabled, model, temperature, max_tokens, system_prompt, iptv_context, vpn_context, personalization_level, auto_improve, updated_at)
        VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
        ON CONFLICT (singleton) DO UPDATE SET
            enabled = EXCLUDED.enabled,
            model = EXCLUDED.model,
            temperature = EXCLUDED.temperature,
            max_tokens = EXCLUDED.max_tokens,
            system_prompt = EXCLUDED.system_prompt,
            iptv_context = EXCLUDED.iptv_context,
            vpn_context = EXCLUDED.vpn_context,
            personalization_level = EXCLUDED.personalization_level,
            auto_improve = EXCLUDED.auto_improve,
            updated_at = NOW()
        RETURNING updated_at
    `
	return r.db.QueryRow(ctx, query,
		cfg.Enabled,
		cfg.Model,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.SystemPrompt,
		cfg.IPTVContext,
		cfg.VPNContext,
		cfg.PersonalizationLevel,
		cfg.AutoImprove,
	).Scan(&cfg.UpdatedAt)
}

// GetGatewayConfig returns the gateway send configuration, inserting the
// default row if none exists yet.
func (r *PostgresRepository) GetGatewayConfig(ctx context.Context) (*domain.GatewayConfig, error) {
	query := `
        SELECT auto_send_enabled, working_hours_start, working_hours_end, message_interval_seconds, updated_at
        FROM gateway_config WHERE singleton = TRUE
    `
	var cfg domain.GatewayConfig
	err := r.db.QueryRow(ctx, query).Scan(
		&cfg.AutoSendEnabled,
		&cfg.WorkingHoursStart,
		&cfg.WorkingHoursEnd,
		&cfg.MessageIntervalSeconds,
		&cfg.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		if _, insErr := r.db.Exec(ctx, `INSERT INTO gateway_config (singleton) VALUES (TRUE) ON CONFLICT DO NOTHING`); insErr != nil {
			return nil, insErr
		}
		err = r.db.QueryRow(ctx, query).Scan(
			&cfg.AutoSendEnabled,
			&cfg.WorkingHoursStart,
			&cfg.WorkingHoursEnd,
			&cfg.MessageIntervalSeconds,
			&cfg.UpdatedAt,
		)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateGatewayConfig overwrites the gateway send configuration row.
func (r *PostgresRepository) UpdateGatewayConfig(ctx context.Context, cfg *domain.GatewayConfig) error {
	query := `
        INSERT INTO gateway_config (singleton, auto_send_enabled, working_hours_start, working_hours_end, message_interval_seconds, updated_at)
        VALUES (TRUE, $1, $2, $3, $4, NOW())
        ON CONFLICT (singleton) DO UPDATE SET
            auto_send_enabled = EXCLUDED.auto_send_enabled,
            working_hours_start = EXCLUDED.working_hours_start,
            working_hours_end = EXCLUDED.working_hours_end,
            message_interval_seconds = EXCLUDED.message_interval_seconds,
            updated_at = NOW()
        RETURNING updated_at
    `
	return r.db.QueryRow(ctx, query,
		cfg.AutoSendEnabled,
		cfg.WorkingHoursStart,
		cfg.WorkingHoursEnd,
		cfg.MessageIntervalSeconds,
	).Scan(&cfg.UpdatedAt)
}
