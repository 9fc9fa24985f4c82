/**
 * @description
 * HTTP handlers for the persisted configuration singletons (AI generation,
 * WhatsApp gateway send settings) and the gateway connection status probe.
 */
package api

import (
	"encoding/json"
	"net/http"

	"github.com/JeffiBR/Boot-WhatsApp/internal/app"
)

// handleGetAIConfig handles GET /api/ai/config.
func (h *Handler) handleGetAIConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.GetAIConfig(r.Context())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

// handleUpdateAIConfig handles PUT /api/ai/config.
func (h *Handler) handleUpdateAIConfig(w http.ResponseWriter, r *http.Request) {
	var payload app.AIConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	cfg, err := h.configs.UpdateAIConfig(r.Context(), payload)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

// handleTestAI handles POST /api/ai/test: one synchronous completion so the
// dashboard can preview output before enabling generation.
func (h *Handler) handleTestAI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	text, err := h.configs.TestPrompt(r.Context(), req.Prompt)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"text": text})
}

// handleGetGatewayConfig handles GET /api/whatsapp/config.
func (h *Handler) handleGetGatewayConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.GetGatewayConfig(r.Context())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

// handleUpdateGatewayConfig handles PUT /api/whatsapp/config.
func (h *Handler) handleUpdateGatewayConfig(w http.ResponseWriter, r *http.Request) {
	var payload app.GatewayConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	cfg, err := h.configs.UpdateGatewayConfig(r.Context(), payload)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

// handleGatewayStatus handles GET /api/whatsapp/status. An unreachable
// gateway reports disconnected rather than erroring, so the dashboard badge
// degrades gracefully.
func (h *Handler) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.gateway.GetStatus(r.Context())
	if err != nil {
		h.logger.Warn("gateway status probe failed", "error", err)
		respondWithJSON(w, http.StatusOK, map[string]bool{"connected": false})
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}
