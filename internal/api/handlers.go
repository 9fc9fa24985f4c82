/**
 * @description
 * This file contains the HTTP handler functions for the client (subscription)
 * endpoints. Handlers parse incoming requests, call the appropriate business
 * logic in the service layer, and write the HTTP response.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JeffiBR/Boot-WhatsApp/internal/app"
	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/whatsapp"
)

// GatewayStatusProvider reports the external channel's connection state.
type GatewayStatusProvider interface {
	GetStatus(ctx context.Context) (*whatsapp.Status, error)
}

// Handler holds the application services that handlers interact with.
type Handler struct {
	subscriptions *app.Service
	messages      *app.MessageService
	configs       *app.ConfigService
	engine        *app.Engine
	gateway       GatewayStatusProvider
	logger        *slog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(subscriptions *app.Service, messages *app.MessageService, configs *app.ConfigService, engine *app.Engine, gateway GatewayStatusProvider, logger *slog.Logger) *Handler {
	return &Handler{
		subscriptions: subscriptions,
		messages:      messages,
		configs:       configs,
		engine:        engine,
		gateway:       gateway,
		logger:        logger,
	}
}

// parseID extracts and parses the {id} route parameter.
func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, &app.ValidationError{Field: "id", Reason: "must be a valid UUID"}
	}
	return id, nil
}

// parsePage reads page/page_size query parameters; invalid values fall back
// to the service defaults.
func parsePage(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

type listResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func subscriptionListOptions(r *http.Request) domain.SubscriptionListOptions {
	q := r.URL.Query()
	page, pageSize := parsePage(r)
	return domain.SubscriptionListOptions{
		ProductType: q.Get("product_type"),
		Status:      q.Get("status"),
		Search:      q.Get("search"),
		Page:        page,
		PageSize:    pageSize,
	}
}

// handleListClients handles GET /api/clients.
func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) {
	opts := subscriptionListOptions(r)

	views, total, err := h.subscriptions.List(r.Context(), opts)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	respondWithJSON(w, http.StatusOK, listResponse{
		Items:    views,
		Total:    total,
		Page:     opts.Page,
		PageSize: len(views),
	})
}

// handleCreateClient handles POST /api/clients.
func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var payload app.SubscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	view, err := h.subscriptions.Create(r.Context(), payload)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, view)
}

// handleGetClient handles GET /api/clients/{id}.
func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	view, err := h.subscriptions.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// handleUpdateClient handles PUT /api/clients/{id}.
func (h *Handler) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	var payload app.SubscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	view, err := h.subscriptions.Update(r.Context(), id, payload)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// handleDeleteClient handles DELETE /api/clients/{id}.
func (h *Handler) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	if err := h.subscriptions.Delete(r.Context(), id); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRenewClient handles POST /api/clients/{id}/renew.
func (h *Handler) handleRenewClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	view, err := h.subscriptions.Renew(r.Context(), id, req.Days)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// handleClientStats handles GET /api/clients/stats.
func (h *Handler) handleClientStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.subscriptions.Stats(r.Context(), r.URL.Query().Get("product_type"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleExportClients handles GET /api/export/clients: the full filtered
// client list as a JSON document, for dashboard backup downloads.
func (h *Handler) handleExportClients(w http.ResponseWriter, r *http.Request) {
	opts := subscriptionListOptions(r)
	opts.Page = 1
	opts.PageSize = 0 // service default, then loop pages below

	var all []domain.SubscriptionView
	for {
		views, total, err := h.subscriptions.List(r.Context(), opts)
		if err != nil {
			respondWithError(w, h.logger, err)
			return
		}
		all = append(all, views...)
		if len(all) >= total || len(views) == 0 {
			break
		}
		opts.Page++
	}

	w.Header().Set("Content-Disposition", `attachment; filename="clients.json"`)
	respondWithJSON(w, http.StatusOK, all)
}
