/**
 * @description
 * HTTP handlers for the delivery log: listing, manual retry, synchronous test
 * sends, the outcome aggregate, and the CSV export.
 */
package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/JeffiBR/Boot-WhatsApp/internal/domain"
)

func messageListOptions(r *http.Request) domain.MessageListOptions {
	q := r.URL.Query()
	page, pageSize := parsePage(r)
	return domain.MessageListOptions{
		ProductType: q.Get("product_type"),
		Status:      q.Get("status"),
		DateFilter:  q.Get("date_filter"),
		Search:      q.Get("search"),
		Page:        page,
		PageSize:    pageSize,
	}
}

// handleListMessages handles GET /api/messages.
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	opts := messageListOptions(r)

	events, total, err := h.messages.List(r.Context(), opts)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	respondWithJSON(w, http.StatusOK, listResponse{
		Items:    events,
		Total:    total,
		Page:     opts.Page,
		PageSize: len(events),
	})
}

// handleRetryMessage handles POST /api/messages/{id}/retry. Only failed
// messages can be re-armed, and for exactly one more attempt.
func (h *Handler) handleRetryMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	event, err := h.engine.Retry(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, event)
}

// handleTestMessage handles POST /api/messages/test: a synchronous send that
// bypasses the scheduler and the event log.
func (h *Handler) handleTestMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Message == "" {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "message must not be empty", Field: "message"})
		return
	}

	gatewayMessageID, err := h.engine.SendDirect(r.Context(), req.Phone, req.Message)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"gateway_message_id": gatewayMessageID})
}

// handleMessageStats handles GET /api/messages/stats.
func (h *Handler) handleMessageStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := h.messages.Stats(r.Context(), q.Get("product_type"), q.Get("date_filter"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

var messageCSVHeader = []string{
	"id", "subscription_id", "phone", "message", "status",
	"attempt_count", "scheduled_day", "sent_at", "error_message",
}

// handleExportMessages handles GET /api/export/messages: the filtered
// delivery log as a CSV download.
func (h *Handler) handleExportMessages(w http.ResponseWriter, r *http.Request) {
	opts := messageListOptions(r)
	opts.Page = 1
	opts.PageSize = 0

	var all []domain.NotificationEvent
	for {
		events, total, err := h.messages.List(r.Context(), opts)
		if err != nil {
			respondWithError(w, h.logger, err)
			return
		}
		all = append(all, events...)
		if len(all) >= total || len(events) == 0 {
			break
		}
		opts.Page++
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="messages.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write(messageCSVHeader)
	for i := range all {
		ev := &all[i]
		sentAt := ""
		if ev.SentAt != nil {
			sentAt = ev.SentAt.Format(time.RFC3339)
		}
		errorMessage := ""
		if ev.ErrorMessage != nil {
			errorMessage = *ev.ErrorMessage
		}
		cw.Write([]string{
			ev.ID.String(),
			ev.SubscriptionID.String(),
			ev.Phone,
			ev.Message,
			string(ev.Status),
			strconv.Itoa(ev.AttemptCount),
			ev.ScheduledDay.Format("2006-01-02"),
			sentAt,
			errorMessage,
		})
	}
	cw.Flush()
}
