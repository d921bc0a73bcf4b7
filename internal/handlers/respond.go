package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sublym/backend/internal/logging"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// authenticate resolves the Bearer token on the request to a user id. On
// failure it writes a 401 response and returns ok=false.
func authenticate(w http.ResponseWriter, r *http.Request, sessions SessionManager) (string, bool) {
	ctx := r.Context()

	if sessions == nil {
		logging.FromContext(ctx).Error("session manager unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "session service unavailable"})
		return "", false
	}

	token := bearerToken(r)
	if token == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}

	userID, err := sessions.Authenticate(ctx, token)
	if err != nil {
		logging.FromContext(ctx).Warn("token authentication failed", "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
		return "", false
	}

	return userID, true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
