package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pbeck/parley/internal/chat"
)

// Every response, success or failure, carries the same envelope.
type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, message string, extra envelope) {
	body := envelope{"success": status < 400, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the service taxonomy to statuses. Dependency failures and
// anything unclassified are logged and answered generically; internal causes
// never reach the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		writeJSON(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, chat.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, "Forbidden", nil)
	case errors.Is(err, chat.ErrNotFound):
		writeJSON(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, chat.ErrConflict):
		writeJSON(w, http.StatusConflict, err.Error(), nil)
	default:
		log.Printf("handlers: %v", err)
		writeJSON(w, http.StatusInternalServerError, "Internal Server Error", nil)
	}
}
