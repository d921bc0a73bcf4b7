package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sublym/backend/internal/auth"
	"github.com/sublym/backend/internal/logging"
	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/payment"
	"github.com/sublym/backend/internal/repositories"
)

// smileOfferDuration bounds the promotional tier granted without payment.
const smileOfferDuration = 7 * 24 * time.Hour

// AuthHandler implements user authentication endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Checkout CheckoutProvider
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts, try again later"})
		return
	}

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication services unavailable"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		logger.Warn("login missing credentials", "email", req.Email)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		logger.Warn("login user lookup failed", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "session service unavailable"})
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		logger.Warn("missing refresh token")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "refresh token is required"})
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Error("refresh failed", "error", err, "status", status)
		respondJSON(ctx, w, status, map[string]string{"error": "unable to refresh session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// RegisterAndCheckout handles POST /api/v1/auth/register-and-checkout: the
// account is created, a session issued, and a checkout session opened in one
// round-trip so the client can redirect straight to the payment page.
func (h AuthHandler) RegisterAndCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "register") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts, try again later"})
		return
	}

	if h.Users == nil || h.Sessions == nil || h.Checkout == nil {
		logger.Error("registration dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil, "hasCheckout", h.Checkout != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "registration services unavailable"})
		return
	}

	var req registerCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := validate.Struct(req); err != nil {
		logger.Warn("registration validation failed", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid registration request"})
		return
	}

	user, ok := h.registerUser(w, r, req.Email, req.Password)
	if !ok {
		return
	}

	user.SubscriptionLevel = req.Level
	user.BillingPeriod = req.Period
	if err := h.Users.UpdateSubscription(ctx, user); err != nil {
		logger.Error("record plan selection", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to record plan selection"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("registration failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
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
		logger.Error("open checkout session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "payment provider unavailable"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, registerCheckoutResponse{Tokens: tokens, URL: redirect})
}

// RegisterAndSmile handles POST /api/v1/auth/register-and-smile: account
// creation combined with activation of the no-cost offer, no payment redirect.
func (h AuthHandler) RegisterAndSmile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "register") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts, try again later"})
		return
	}

	if h.Users == nil || h.Sessions == nil {
		logger.Error("registration dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "registration services unavailable"})
		return
	}

	var req registerSmileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := validate.Struct(req); err != nil {
		logger.Warn("registration validation failed", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid registration request"})
		return
	}

	user, ok := h.registerUser(w, r, req.Email, req.Password)
	if !ok {
		return
	}

	expiresAt := h.now().Add(smileOfferDuration)
	user.SubscriptionLevel = models.PlanSmile
	user.SmileExpiresAt = &expiresAt
	if err := h.Users.UpdateSubscription(ctx, user); err != nil {
		logger.Error("activate smile offer", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to activate offer"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("registration failed to issue session", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{Tokens: tokens})
}

// registerUser validates the credentials and persists a new account. It
// writes the error response itself when registration cannot proceed.
func (h AuthHandler) registerUser(w http.ResponseWriter, r *http.Request, email, password string) (models.User, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		logger.Warn("registration invalid email", "email", email, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return models.User{}, false
	}

	if _, err := h.Users.FindByEmail(ctx, email); err == nil {
		logger.Warn("registration existing account", "email", email)
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "account already exists"})
		return models.User{}, false
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("registration user lookup failed", "error", err, "email", email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to verify existing accounts"})
		return models.User{}, false
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("registration failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return models.User{}, false
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("registration conflict", "email", email)
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "account already exists"})
			return models.User{}, false
		}
		logger.Error("registration failed to create user", "error", err, "email", email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return models.User{}, false
	}

	return user, true
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type registerCheckoutRequest struct {
	Email      string `json:"email" validate:"required"`
	Password   string `json:"password" validate:"required,min=8"`
	Level      string `json:"level" validate:"required,oneof=level_1 level_2 level_3"`
	Period     string `json:"period" validate:"required,oneof=monthly yearly"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

type registerSmileRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
}

type registerCheckoutResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
	URL    string               `json:"url"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
