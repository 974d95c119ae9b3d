// Package httphandler is the HTTP driving adapter that exposes the credential
// upsert function.
package httphandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ericfisherdev/keyrelay/internal/application"
	"github.com/ericfisherdev/keyrelay/internal/domain/model"
)

// maxBodyBytes caps the request body; larger bodies are treated as malformed.
const maxBodyBytes = 64 << 10

// credentialStorer is the use case the handler drives.
type credentialStorer interface {
	Store(ctx context.Context, userID, apiKey string) (model.Confirmation, error)
}

// Handler serves the credential upsert function and the health endpoint.
type Handler struct {
	svc      credentialStorer
	verifier *TokenVerifier
	logger   *slog.Logger
}

// NewHandler creates a Handler. verifier may be nil, in which case the
// caller's identity is not checked against userId.
func NewHandler(svc credentialStorer, verifier *TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		verifier: verifier,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with CORS, request id, logging and recovery middleware.
func NewServeMux(h *Handler, allowedOrigin string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/{$}", h.StoreCredential)
	mux.HandleFunc("/functions/v1/store-api-key", h.StoreCredential)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, msgNotFound)
	})

	// Recovery sits inside CORS so recovered panics still carry the headers.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = corsMiddleware(allowedOrigin, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// storeRequest is the decoded body. Fields that are absent or not JSON
// strings decode as "".
type storeRequest struct {
	APIKey string
	UserID string
}

// StoreCredential validates the body and upserts the caller's API key.
func (h *Handler) StoreCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.logger.Warn("method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	req, ok := decodeStoreRequest(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	h.logger.Debug("request body received",
		"user_id", req.UserID,
		"api_key_provided", req.APIKey != "",
		"request_id", RequestID(r.Context()),
	)

	if err := application.Validate(req.APIKey, req.UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if h.verifier != nil {
		sub, err := h.verifier.Subject(r)
		if err != nil {
			h.logger.Warn("access token rejected", "error", err, "request_id", RequestID(r.Context()))
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		if sub != req.UserID {
			h.logger.Warn("access token subject does not match user id",
				"user_id", req.UserID,
				"request_id", RequestID(r.Context()),
			)
			writeError(w, http.StatusForbidden, msgForbidden)
			return
		}
	}

	conf, err := h.svc.Store(r.Context(), req.UserID, req.APIKey)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StoreResponse{
		Success: true,
		Message: msgStored,
		Data:    toConfirmationResponse(conf),
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeStoreRequest reads at most maxBodyBytes and extracts the two string
// fields. It reports false when the body is not valid JSON. A valid body that
// is not an object yields empty fields. A repeated key takes its last value.
func decodeStoreRequest(w http.ResponseWriter, r *http.Request) (storeRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !gjson.ValidBytes(body) {
		return storeRequest{}, false
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return storeRequest{}, true
	}

	var req storeRequest
	doc.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "apiKey":
			req.APIKey = stringValue(value)
		case "userId":
			req.UserID = stringValue(value)
		}
		return true
	})
	return req, true
}

// stringValue returns v as a string, or "" when it is not a JSON string.
func stringValue(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// writeServiceError maps application errors onto status codes and bodies.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var storageErr *application.StorageError

	switch {
	case errors.Is(err, application.ErrInvalidAPIKey):
		writeError(w, http.StatusBadRequest, msgInvalidAPIKey)
	case errors.Is(err, application.ErrInvalidUserID):
		writeError(w, http.StatusBadRequest, msgInvalidUserID)
	case errors.Is(err, application.ErrConfiguration):
		writeError(w, http.StatusInternalServerError, msgConfiguration)
	case errors.As(err, &storageErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgStorage, Details: storageErr.Details})
	default:
		h.logger.Error("unexpected error storing credential", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
