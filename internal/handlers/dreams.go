package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sublym/backend/internal/logging"
	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/repositories"
)

const defaultDreamStyle = "cinematic_soft"

// DreamHandler implements the dream creation and generation endpoints.
type DreamHandler struct {
	Dreams   DreamStore
	Runs     RunStore
	Pipeline GenerationEnqueuer
	Sessions SessionManager
	NowFunc  func() time.Time
}

// Create handles POST /api/v1/dreams.
func (h DreamHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Dreams == nil {
		logger.Error("dream store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "dream services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	var req createDreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid dream payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Description = strings.TrimSpace(req.Description)
	if err := validate.Struct(req); err != nil {
		logger.Warn("dream validation failed", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "description must be at least 20 characters"})
		return
	}

	if req.Style == "" {
		req.Style = defaultDreamStyle
	}

	reject := make([]string, 0, len(req.Reject))
	for _, term := range req.Reject {
		if trimmed := strings.TrimSpace(term); trimmed != "" {
			reject = append(reject, trimmed)
		}
	}

	dream := models.Dream{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: req.Description,
		Reject:      reject,
		Style:       req.Style,
		PhotoIDs:    req.PhotoIDs,
		Status:      models.DreamStatusDraft,
		CreatedAt:   h.now(),
	}

	if err := h.Dreams.Create(ctx, dream); err != nil {
		logger.Error("persist dream", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to save dream"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"success": true,
		"dream":   toDreamResponse(dream),
	})
}

// List handles GET /api/v1/dreams.
func (h DreamHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Dreams == nil {
		logger.Error("dream store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "dream services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	dreams, err := h.Dreams.ListForUser(ctx, userID)
	if err != nil {
		logger.Error("list dreams", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list dreams"})
		return
	}

	payload := make([]dreamResponse, 0, len(dreams))
	for _, dream := range dreams {
		payload = append(payload, toDreamResponse(dream))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"dreams": payload})
}

// Delete handles DELETE /api/v1/dreams/{id}.
func (h DreamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Dreams == nil {
		logger.Error("dream store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "dream services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	dreamID := r.PathValue("id")
	if err := h.Dreams.Delete(ctx, dreamID, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "dream not found"})
			return
		}
		logger.Error("delete dream", "error", err, "dreamId", dreamID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to delete dream"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true})
}

// Generate handles POST /api/v1/dreams/{id}/generate: a run record is created
// and the dream queued for background rendering. Clients poll the returned
// trace id.
func (h DreamHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Dreams == nil || h.Runs == nil || h.Pipeline == nil {
		logger.Error("generation dependencies unavailable", "hasDreams", h.Dreams != nil, "hasRuns", h.Runs != nil, "hasPipeline", h.Pipeline != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "generation services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	dreamID := r.PathValue("id")
	dream, err := h.Dreams.Find(ctx, dreamID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "dream not found"})
			return
		}
		logger.Error("load dream", "error", err, "dreamId", dreamID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load dream"})
		return
	}

	now := h.now()
	run := models.GenerationRun{
		ID:          uuid.NewString(),
		TraceID:     uuid.NewString(),
		UserID:      userID,
		DreamID:     dream.ID,
		Status:      models.RunStatusPending,
		Progress:    0,
		CurrentStep: "Queued",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.Runs.Create(ctx, run); err != nil {
		logger.Error("persist run", "error", err, "dreamId", dream.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to start generation"})
		return
	}

	if err := h.Pipeline.Enqueue(ctx, run, dream); err != nil {
		logger.Error("enqueue generation", "error", err, "traceId", run.TraceID)
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "generation queue unavailable"})
		return
	}

	logger.Info("generation queued", "traceId", run.TraceID, "dreamId", dream.ID)
	respondJSON(ctx, w, http.StatusAccepted, map[string]any{
		"run": map[string]string{"traceId": run.TraceID},
	})
}

type createDreamRequest struct {
	Description string   `json:"description" validate:"required,min=20"`
	Reject      []string `json:"reject"`
	Style       string   `json:"style"`
	PhotoIDs    []string `json:"photoIds"`
}

type dreamResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Reject      []string  `json:"reject"`
	Style       string    `json:"style"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toDreamResponse(dream models.Dream) dreamResponse {
	return dreamResponse{
		ID:          dream.ID,
		Description: dream.Description,
		Reject:      dream.Reject,
		Style:       dream.Style,
		Status:      dream.Status,
		CreatedAt:   dream.CreatedAt,
	}
}

func (h DreamHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
