/**
 * @description
 * JSON response helpers and the error-to-status mapping shared by all
 * handlers. Service and store errors carry the semantics; this file decides
 * the HTTP shape.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JeffiBR/Boot-WhatsApp/internal/app"
	"github.com/JeffiBR/Boot-WhatsApp/internal/store"
	"github.com/JeffiBR/Boot-WhatsApp/pkg/whatsapp"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondWithJSON writes a JSON response body with the given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError maps service/store errors onto HTTP statuses. Unrecognized
// errors become opaque 500s; their detail goes to the log, not the client.
func respondWithError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *app.ValidationError
	var sendErr *whatsapp.SendError
	switch {
	case errors.As(err, &validationErr):
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Reason, Field: validationErr.Field})
	case errors.As(err, &sendErr):
		respondWithJSON(w, http.StatusBadGateway, errorResponse{Error: sendErr.Error()})
	case errors.Is(err, store.ErrSubscriptionNotFound):
		respondWithJSON(w, http.StatusNotFound, errorResponse{Error: "client not found"})
	case errors.Is(err, store.ErrEventNotFound):
		respondWithJSON(w, http.StatusNotFound, errorResponse{Error: "message not found"})
	case errors.Is(err, store.ErrDuplicateEventDay):
		respondWithJSON(w, http.StatusConflict, errorResponse{Error: "a reminder for this client already exists today"})
	case errors.Is(err, store.ErrEventNotRetryable):
		respondWithJSON(w, http.StatusConflict, errorResponse{Error: "only failed messages can be retried"})
	default:
		logger.Error("request failed", "error", err)
		respondWithJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
