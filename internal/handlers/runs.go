package handlers

import (
	"errors"
	"net/http"

	"github.com/sublym/backend/internal/logging"
	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/repositories"
)

// RunHandler exposes the polling and cancellation endpoints for runs.
type RunHandler struct {
	Runs     RunStore
	Sessions SessionManager
}

// Get handles GET /api/v1/runs/{traceId}.
func (h RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Runs == nil {
		logger.Error("run store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "run services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	run, ok := h.loadOwnedRun(w, r, userID)
	if !ok {
		return
	}

	respondJSON(ctx, w, http.StatusOK, toRunResponse(run))
}

// Cancel handles POST /api/v1/runs/{traceId}/cancel. Cancelling a run that
// already finished is not an error; the current status is reported back.
func (h RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Runs == nil {
		logger.Error("run store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "run services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	run, ok := h.loadOwnedRun(w, r, userID)
	if !ok {
		return
	}

	status := models.RunStatusCancelled
	if err := h.Runs.MarkCancelled(ctx, run.TraceID); err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("cancel run", "error", err, "traceId", run.TraceID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to cancel run"})
			return
		}
		// Already terminal; report the status it finished with.
		status = run.Status
	}

	logger.Info("run cancelled", "traceId", run.TraceID, "status", status)
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "status": status})
}

func (h RunHandler) loadOwnedRun(w http.ResponseWriter, r *http.Request, userID string) (models.GenerationRun, bool) {
	ctx := r.Context()

	traceID := r.PathValue("traceId")
	run, err := h.Runs.FindByTraceID(ctx, traceID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return models.GenerationRun{}, false
		}
		logging.FromContext(ctx).Error("load run", "error", err, "traceId", traceID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load run"})
		return models.GenerationRun{}, false
	}

	// Other users' runs are indistinguishable from missing ones.
	if run.UserID != userID {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return models.GenerationRun{}, false
	}

	return run, true
}

type runResponse struct {
	TraceID       string   `json:"traceId"`
	Status        string   `json:"status"`
	Progress      int      `json:"progress"`
	CurrentStep   string   `json:"currentStep"`
	VideoURL      string   `json:"videoUrl,omitempty"`
	TeaserURL     string   `json:"teaserUrl,omitempty"`
	KeyframesURLs []string `json:"keyframesUrls,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func toRunResponse(run models.GenerationRun) runResponse {
	return runResponse{
		TraceID:       run.TraceID,
		Status:        run.Status,
		Progress:      run.Progress,
		CurrentStep:   run.CurrentStep,
		VideoURL:      run.VideoURL,
		TeaserURL:     run.TeaserURL,
		KeyframesURLs: run.KeyframesURLs,
		Error:         run.Error,
	}
}
