package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sublym/backend/internal/models"
)

func postJSON(t *testing.T, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
}

func TestAuthHandlerLoginSuccess(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("secret-password"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	users := newUserStoreStub()
	users.users["user-1"] = models.User{ID: "user-1", Email: "dreamer@example.com", Password: string(hashed)}
	sessions := &sessionManagerStub{userID: "user-1"}

	handler := AuthHandler{Users: users, Sessions: sessions}
	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON(t, "/api/v1/auth/login", map[string]string{
		"email":    "dreamer@example.com",
		"password": "secret-password",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.AccessToken == "" {
		t.Fatal("expected access token in response")
	}
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("secret-password"), bcrypt.DefaultCost)
	users := newUserStoreStub()
	users.users["user-1"] = models.User{ID: "user-1", Email: "dreamer@example.com", Password: string(hashed)}

	handler := AuthHandler{Users: users, Sessions: &sessionManagerStub{}}
	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON(t, "/api/v1/auth/login", map[string]string{
		"email":    "dreamer@example.com",
		"password": "wrong",
	}))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandlerLoginRateLimited(t *testing.T) {
	handler := AuthHandler{Users: newUserStoreStub(), Sessions: &sessionManagerStub{}, Limiter: &limiterStub{allow: false}}
	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON(t, "/api/v1/auth/login", map[string]string{
		"email":    "dreamer@example.com",
		"password": "secret-password",
	}))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestAuthHandlerRegisterAndCheckout(t *testing.T) {
	users := newUserStoreStub()
	sessions := &sessionManagerStub{}
	checkout := &checkoutStub{}

	handler := AuthHandler{Users: users, Sessions: sessions, Checkout: checkout}
	rec := httptest.NewRecorder()
	handler.RegisterAndCheckout(rec, postJSON(t, "/api/v1/auth/register-and-checkout", map[string]string{
		"email":      "dreamer@example.com",
		"password":   "secret-password",
		"level":      "level_2",
		"period":     "monthly",
		"successUrl": "http://localhost:5173/create?payment=success",
		"cancelUrl":  "http://localhost:5173/create?payment=cancelled",
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp registerCheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.AccessToken == "" {
		t.Fatal("expected access token in response")
	}
	if resp.URL != "https://pay.example.com/cs_test" {
		t.Fatalf("unexpected redirect url: %s", resp.URL)
	}

	if len(checkout.requests) != 1 {
		t.Fatalf("expected one checkout session, got %d", len(checkout.requests))
	}
	if checkout.requests[0].Level != "level_2" || checkout.requests[0].Period != "monthly" {
		t.Fatalf("unexpected checkout request: %+v", checkout.requests[0])
	}

	if len(users.updated) != 1 || users.updated[0].SubscriptionLevel != "level_2" {
		t.Fatalf("expected plan selection recorded on user, got %+v", users.updated)
	}
}

func TestAuthHandlerRegisterAndCheckoutRejectsSmileLevel(t *testing.T) {
	handler := AuthHandler{Users: newUserStoreStub(), Sessions: &sessionManagerStub{}, Checkout: &checkoutStub{}}
	rec := httptest.NewRecorder()
	handler.RegisterAndCheckout(rec, postJSON(t, "/api/v1/auth/register-and-checkout", map[string]string{
		"email":      "dreamer@example.com",
		"password":   "secret-password",
		"level":      "smile",
		"period":     "monthly",
		"successUrl": "http://localhost:5173/create?payment=success",
		"cancelUrl":  "http://localhost:5173/create?payment=cancelled",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAuthHandlerRegisterAndSmile(t *testing.T) {
	users := newUserStoreStub()
	sessions := &sessionManagerStub{}
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	handler := AuthHandler{Users: users, Sessions: sessions, NowFunc: func() time.Time { return now }}
	rec := httptest.NewRecorder()
	handler.RegisterAndSmile(rec, postJSON(t, "/api/v1/auth/register-and-smile", map[string]string{
		"email":    "dreamer@example.com",
		"password": "secret-password",
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	if len(users.updated) != 1 {
		t.Fatalf("expected one subscription update, got %d", len(users.updated))
	}
	updated := users.updated[0]
	if updated.SubscriptionLevel != models.PlanSmile {
		t.Fatalf("unexpected level: %s", updated.SubscriptionLevel)
	}
	if updated.SmileExpiresAt == nil || !updated.SmileExpiresAt.Equal(now.Add(smileOfferDuration)) {
		t.Fatalf("unexpected smile expiry: %v", updated.SmileExpiresAt)
	}
}

func TestAuthHandlerRegisterDuplicateEmail(t *testing.T) {
	users := newUserStoreStub()
	users.users["user-1"] = models.User{ID: "user-1", Email: "dreamer@example.com"}

	handler := AuthHandler{Users: users, Sessions: &sessionManagerStub{}}
	rec := httptest.NewRecorder()
	handler.RegisterAndSmile(rec, postJSON(t, "/api/v1/auth/register-and-smile", map[string]string{
		"email":    "dreamer@example.com",
		"password": "secret-password",
	}))

	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusConflict)
	}
}

func TestAuthHandlerRegisterShortPassword(t *testing.T) {
	handler := AuthHandler{Users: newUserStoreStub(), Sessions: &sessionManagerStub{}}
	rec := httptest.NewRecorder()
	handler.RegisterAndSmile(rec, postJSON(t, "/api/v1/auth/register-and-smile", map[string]string{
		"email":    "dreamer@example.com",
		"password": "short",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
}
