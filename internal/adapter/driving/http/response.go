package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
)

// Client-facing error messages.
const (
	msgMethodNotAllowed = "Method Not Allowed"
	msgInvalidBody      = "Invalid request body"
	msgInvalidAPIKey    = `Invalid or missing API key. Must start with "sk-".`
	msgInvalidUserID    = "Invalid or missing user ID."
	msgUnauthorized     = "Unauthorized"
	msgForbidden        = "Forbidden"
	msgConfiguration    = "Internal Server Configuration Error"
	msgStorage          = "Failed to store API key"
	msgInternal         = "Internal Server Error"
	msgNotFound         = "Not Found"
	msgStored           = "API key stored successfully."
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body. Details is only set for
// store failures and never contains a secret.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StoreResponse is the JSON body returned after a successful upsert.
type StoreResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Data    ConfirmationResponse `json:"data"`
}

// ConfirmationResponse carries the non-secret columns of the stored record.
type ConfirmationResponse struct {
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toConfirmationResponse(c model.Confirmation) ConfirmationResponse {
	return ConfirmationResponse{
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
