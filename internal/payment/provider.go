package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SessionRequest describes the checkout session to open with the provider.
type SessionRequest struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Level      string `json:"level"`
	Period     string `json:"period"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// CheckoutProvider opens hosted checkout sessions and returns the redirect URL.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
}

// HTTPProvider talks to an external checkout service over its JSON API.
type HTTPProvider struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewHTTPProvider constructs a checkout client for the given endpoint.
func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		Endpoint:   strings.TrimSuffix(endpoint, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// CreateSession opens a checkout session and returns the hosted payment page URL.
func (p *HTTPProvider) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	if req.Level == "" || req.Period == "" {
		return "", fmt.Errorf("checkout session: level and period are required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("checkout provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("checkout provider returned %s", resp.Status)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode checkout response: %w", err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("checkout provider returned no redirect url")
	}

	return payload.URL, nil
}

// StubProvider simulates a checkout provider for development. The returned
// redirect points straight at the success return URL, so the flow completes
// without an external payment page.
type StubProvider struct{}

// CreateSession validates the request and echoes back the success URL.
func (StubProvider) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Level == "" || req.Period == "" {
		return "", fmt.Errorf("checkout session: level and period are required")
	}
	if _, err := url.Parse(req.SuccessURL); err != nil || req.SuccessURL == "" {
		return "", fmt.Errorf("checkout session: invalid success url %q", req.SuccessURL)
	}
	return req.SuccessURL, nil
}
