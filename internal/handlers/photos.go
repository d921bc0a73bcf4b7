package handlers

import (
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sublym/backend/internal/logging"
	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/repositories"
)

const maxUploadBytes = 32 << 20

// PhotoHandler implements the source-photo endpoints.
type PhotoHandler struct {
	Photos   PhotoStore
	Storage  AssetStorage
	Sessions SessionManager
	NowFunc  func() time.Time
}

// Upload handles POST /api/v1/photos/upload. Photos arrive as a multipart
// form under photos[], together with a capture source and explicit consent.
func (h PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Photos == nil || h.Storage == nil {
		logger.Error("photo dependencies unavailable", "hasPhotos", h.Photos != nil, "hasStorage", h.Storage != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "photo services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.Warn("invalid upload form", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	source := r.FormValue("source")
	if source != models.PhotoSourceWebcam && source != models.PhotoSourceUpload {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "source must be webcam|upload"})
		return
	}

	if r.FormValue("consent") != "true" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "consent is required"})
		return
	}

	files := r.MultipartForm.File["photos[]"]
	if len(files) == 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "at least one photo is required"})
		return
	}

	now := h.now()
	created := make([]photoResponse, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			logger.Error("open uploaded photo", "error", err, "filename", header.Filename)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to read uploaded photo"})
			return
		}

		photoID := uuid.NewString()
		ext := filepath.Ext(header.Filename)
		if ext == "" {
			ext = ".jpg"
		}

		location, err := h.Storage.Save(ctx, path.Join("photos", userID, photoID+ext), file)
		file.Close()
		if err != nil {
			logger.Error("store uploaded photo", "error", err, "filename", header.Filename)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store uploaded photo"})
			return
		}

		photo := models.Photo{
			ID:        photoID,
			UserID:    userID,
			Location:  location,
			Source:    source,
			Consent:   true,
			CreatedAt: now,
		}
		if err := h.Photos.Create(ctx, photo); err != nil {
			logger.Error("persist uploaded photo", "error", err, "photoId", photoID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to save uploaded photo"})
			return
		}

		created = append(created, toPhotoResponse(photo))
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"success": true,
		"photos":  created,
		"total":   len(created),
	})
}

// List handles GET /api/v1/photos.
func (h PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Photos == nil {
		logger.Error("photo store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "photo services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	photos, err := h.Photos.ListForUser(ctx, userID)
	if err != nil {
		logger.Error("list photos", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list photos"})
		return
	}

	payload := make([]photoResponse, 0, len(photos))
	for _, photo := range photos {
		payload = append(payload, toPhotoResponse(photo))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"photos": payload})
}

// Delete handles DELETE /api/v1/photos/{id}.
func (h PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Photos == nil {
		logger.Error("photo store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "photo services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	photoID := r.PathValue("id")
	if err := h.Photos.Delete(ctx, photoID, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "photo not found"})
			return
		}
		logger.Error("delete photo", "error", err, "photoId", photoID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to delete photo"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true})
}

type photoResponse struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

func toPhotoResponse(photo models.Photo) photoResponse {
	return photoResponse{
		ID:        photo.ID,
		Location:  photo.Location,
		Source:    photo.Source,
		CreatedAt: photo.CreatedAt,
	}
}

func (h PhotoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
