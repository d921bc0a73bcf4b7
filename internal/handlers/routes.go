package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Checkout: deps.Checkout, Limiter: deps.Limiter}
	photos := PhotoHandler{Photos: deps.Photos, Storage: deps.Storage, Sessions: deps.Sessions}
	dreams := DreamHandler{Dreams: deps.Dreams, Runs: deps.Runs, Pipeline: deps.Pipeline, Sessions: deps.Sessions}
	pay := PaymentHandler{Users: deps.Users, Checkout: deps.Checkout, Sessions: deps.Sessions}
	runs := RunHandler{Runs: deps.Runs, Sessions: deps.Sessions}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/register-and-checkout", auth.RegisterAndCheckout)
	mux.HandleFunc("/api/v1/auth/register-and-smile", auth.RegisterAndSmile)
	mux.HandleFunc("POST /api/v1/photos/upload", photos.Upload)
	mux.HandleFunc("GET /api/v1/photos", photos.List)
	mux.HandleFunc("DELETE /api/v1/photos/{id}", photos.Delete)
	mux.HandleFunc("POST /api/v1/dreams", dreams.Create)
	mux.HandleFunc("GET /api/v1/dreams", dreams.List)
	mux.HandleFunc("DELETE /api/v1/dreams/{id}", dreams.Delete)
	mux.HandleFunc("POST /api/v1/dreams/{id}/generate", dreams.Generate)
	mux.HandleFunc("GET /api/v1/runs/{traceId}", runs.Get)
	mux.HandleFunc("POST /api/v1/runs/{traceId}/cancel", runs.Cancel)
	mux.HandleFunc("/api/v1/payment/create-session", pay.CreateSession)
	mux.HandleFunc("/api/v1/smile/start", pay.StartSmile)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserStore
	Sessions SessionManager
	Photos   PhotoStore
	Dreams   DreamStore
	Runs     RunStore
	Storage  AssetStorage
	Pipeline GenerationEnqueuer
	Checkout CheckoutProvider
	Limiter  RateLimiter
}
