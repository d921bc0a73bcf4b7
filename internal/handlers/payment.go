package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sublym/backend/internal/logging"
	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/payment"
)

// PaymentHandler implements checkout and no-cost-offer endpoints.
type PaymentHandler struct {
	Users    UserStore
	Checkout CheckoutProvider
	Sessions SessionManager
	NowFunc  func() time.Time
}

// CreateSession handles POST /api/v1/payment/create-session for an already
// authenticated user.
func (h PaymentHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Checkout == nil {
		logger.Error("payment dependencies unavailable", "hasUsers", h.Users != nil, "hasCheckout", h.Checkout != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "payment services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	var req checkoutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid checkout payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := validate.Struct(req); err != nil {
		logger.Warn("checkout validation failed", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid checkout request"})
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		logger.Error("load user for checkout", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load account"})
		return
	}

	user.SubscriptionLevel = req.Level
	user.BillingPeriod = req.Period
	if err := h.Users.UpdateSubscription(ctx, user); err != nil {
		logger.Error("record plan selection", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to record plan selection"})
		return
	}

	redirect, err := h.Checkout.CreateSession(ctx, payment.SessionRequest{
		UserID:     user.ID,
		Email:      user.Email,
		Level:      req.Level,
		Period:     req.Period,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		logger.Error("open checkout session", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "payment provider unavailable"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"url": redirect})
}

// StartSmile handles POST /api/v1/smile/start, activating the time-limited
// promotional tier for the authenticated user.
func (h PaymentHandler) StartSmile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "payment services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		logger.Error("load user for smile activation", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load account"})
		return
	}

	expiresAt := h.now().Add(smileOfferDuration)
	user.SubscriptionLevel = models.PlanSmile
	user.SmileExpiresAt = &expiresAt
	if err := h.Users.UpdateSubscription(ctx, user); err != nil {
		logger.Error("activate smile offer", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to activate offer"})
		return
	}

	logger.Info("smile offer activated", "userId", userID, "expiresAt", expiresAt)
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"success":   true,
		"level":     models.PlanSmile,
		"expiresAt": expiresAt,
	})
}

type checkoutSessionRequest struct {
	Level      string `json:"level" validate:"required,oneof=level_1 level_2 level_3"`
	Period     string `json:"period" validate:"required,oneof=monthly yearly"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

func (h PaymentHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
