/**
 * @description
 * Template renderer for reminder messages. Placeholder substitution is
 * literal string replacement; unknown placeholders are left verbatim. When AI
 * generation is enabled the renderer asks the collaborator for a personalized
 * message and falls back to the literal template on any failure, so AI
 * augmentation is never a hard dependency of delivery.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
)

// AICompleter is the contract consumed from the AI collaborator.
type AICompleter interface {
	Complete(ctx context.Context, model, prompt string, temperature float64, maxTokens int) (string, error)
}

// Renderer turns a subscription plus optional AI context into message text.
type Renderer struct {
	ai     AICompleter
	loc    *time.Location
	logger *slog.Logger
}

// NewRenderer creates a renderer. ai may be nil when no provider is configured.
func NewRenderer(ai AICompleter, loc *time.Location, logger *slog.Logger) *Renderer {
	return &Renderer{ai: ai, loc: loc, logger: logger}
}

// Default templates per product. The {days} placeholder always carries the
// absolute day count; the copy around it disambiguates upcoming vs overdue.
func defaultTemplate(product domain.ProductType, days int) string {
	switch {
	case days < 0 && product == domain.ProductVPN:
		return "Olá {name}! Sua {plan} venceu há {days} dias. Renove por R$ {value} e volte a navegar com segurança."
	case days < 0:
		return "Olá {name}! Seu plano {plan} venceu há {days} dias. Renove por R$ {value} para reativar o acesso."
	case days == 0 && product == domain.ProductVPN:
		return "Olá {name}! Sua {plan} vence hoje. Renove por R$ {value} e mantenha sua privacidade."
	case days == 0:
		return "Olá {name}! Seu plano {plan} vence hoje. Renove por R$ {value} e continue assistindo sem interrupções."
	case product == domain.ProductVPN:
		return "Olá {name}! Sua {plan} vence em {days} dias. Renove por R$ {value} e mantenha sua privacidade."
	default:
		return "Olá {name}! Seu plano {plan} vence em {days} dias. Renove por R$ {value} e continue assistindo sem interrupções."
	}
}

// substitute performs the literal placeholder replacement. {dias} is accepted
// as a legacy alias for {days}; anything else unknown stays verbatim.
func substitute(template string, sub *domain.Subscription, days int) string {
	absDays := days
	if absDays < 0 {
		absDays = -absDays
	}

	replacer := strings.NewReplacer(
		"{name}", sub.Name,
		"{plan}", sub.Plan,
		"{value}", fmt.Sprintf("%.2f", float64(sub.MonthlyValueCents)/100),
		"{days}", fmt.Sprintf("%d", absDays),
		"{dias}", fmt.Sprintf("%d", absDays),
	)
	return replacer.Replace(template)
}

// Render produces the message text for a subscription. Template precedence:
// explicit override, then the subscription's custom template, then the
// product default for the current derived state.
func (r *Renderer) Render(ctx context.Context, sub *domain.Subscription, override string, aiCfg *domain.AIConfig, now time.Time) string {
	days := sub.DaysUntilExpiry(now, r.loc)

	template := override
	if template == "" && sub.CustomTemplate != nil {
		template = *sub.CustomTemplate
	}
	if template == "" {
		template = defaultTemplate(sub.ProductType, days)
	}

	literal := substitute(template, sub, days)

	if aiCfg == nil || !aiCfg.Enabled || r.ai == nil {
		return literal
	}

	text, err := r.ai.Complete(ctx, aiCfg.Model, r.composePrompt(sub, aiCfg, days), aiCfg.Temperature, aiCfg.MaxTokens)
	if err != nil {
		r.logger.Warn("AI generation failed; falling back to literal template",
			"subscription_id", sub.ID, "error", err)
		return literal
	}
	return text
}

// composePrompt assembles the collaborator prompt from the system prompt, the
// per-product context, and the subscription facts. The personalization level
// controls how much client detail is included.
func (r *Renderer) composePrompt(sub *domain.Subscription, cfg *domain.AIConfig, days int) string {
	var b strings.Builder

	if cfg.SystemPrompt != "" {
		b.WriteString(cfg.SystemPrompt)
		b.WriteString("\n\n")
	}
	if productContext := cfg.ProductContext(sub.ProductType); productContext != "" {
		b.WriteString(productContext)
		b.WriteString("\n\n")
	}

	state := "vence hoje"
	switch {
	case days > 0:
		state = fmt.Sprintf("vence em %d dias", days)
	case days < 0:
		state = fmt.Sprintf("venceu há %d dias", -days)
	}

	fmt.Fprintf(&b, "Escreva uma mensagem curta de WhatsApp lembrando o cliente da renovação. O plano %s (%s) %s e custa R$ %.2f por mês.",
		sub.Plan, sub.ProductType, state, float64(sub.MonthlyValueCents)/100)

	switch cfg.PersonalizationLevel {
	case domain.PersonalizationLow:
		// No client identity; keep the message generic.
	case domain.PersonalizationHigh:
		fmt.Fprintf(&b, " O cliente se chama %s e é assinante desde %s; use um tom próximo e pessoal.",
			sub.Name, sub.CreatedAt.In(r.loc).Format("January 2006"))
	default:
		fmt.Fprintf(&b, " O cliente se chama %s.", sub.Name)
	}

	return b.String()
}
