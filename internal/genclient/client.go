// Package genclient wraps the backend's generation contract. Every other
// component calls through this client; nothing else issues raw requests.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sublym/backend/internal/media"
)

// RunStatus is the client's read-only projection of a generation run. Each
// poll overwrites it wholesale; the client never merges fields.
type RunStatus struct {
	TraceID       string   `json:"traceId"`
	Status        string   `json:"status"`
	Progress      int      `json:"progress"`
	CurrentStep   string   `json:"currentStep"`
	VideoURL      string   `json:"videoUrl,omitempty"`
	TeaserURL     string   `json:"teaserUrl,omitempty"`
	KeyframesURLs []string `json:"keyframesUrls,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Client talks to the SUBLYM backend API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token string
}

// New constructs a client for the provided API base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// SetToken installs the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Authenticated reports whether a bearer token has been installed.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// Token returns the installed bearer token, if any.
func (c *Client) Token() string {
	return c.token
}

// UploadPhotos sends the attachments as a multipart form and returns the
// server-assigned photo ids.
func (c *Client) UploadPhotos(ctx context.Context, photos []media.Attachment, source string) ([]string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, photo := range photos {
		part, err := writer.CreateFormFile("photos[]", photo.Name)
		if err != nil {
			return nil, fmt.Errorf("build upload form: %w", err)
		}
		if _, err := part.Write(photo.Data); err != nil {
			return nil, fmt.Errorf("write upload form: %w", err)
		}
	}
	if err := writer.WriteField("consent", "true"); err != nil {
		return nil, fmt.Errorf("write consent field: %w", err)
	}
	if err := writer.WriteField("source", source); err != nil {
		return nil, fmt.Errorf("write source field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/photos/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &UploadError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &UploadError{Message: serverMessage(resp)}
	}

	var payload struct {
		Photos []struct {
			ID string `json:"id"`
		} `json:"photos"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &UploadError{Message: fmt.Sprintf("parse upload response: %v", err)}
	}

	ids := make([]string, 0, len(payload.Photos))
	for _, photo := range payload.Photos {
		ids = append(ids, photo.ID)
	}
	return ids, nil
}

// ActivateSmile activates the no-cost offer for the authenticated user,
// granting a time-limited subscription tier before generation starts.
func (c *Client) ActivateSmile(ctx context.Context) error {
	resp, err := c.postJSON(ctx, "/smile/start", struct{}{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &PaymentError{Message: serverMessage(resp)}
	}
	return nil
}

// CreateDream persists the textual dream description and returns its id.
func (c *Client) CreateDream(ctx context.Context, description string, reject []string) (string, error) {
	resp, err := c.postJSON(ctx, "/dreams", map[string]any{
		"description": description,
		"reject":      reject,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &ValidationError{Message: serverMessage(resp)}
	}

	var payload struct {
		Dream struct {
			ID string `json:"id"`
		} `json:"dream"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("parse dream response: %w", err)
	}
	return payload.Dream.ID, nil
}

// StartGeneration triggers the backend pipeline and returns the trace id used
// for polling.
func (c *Client) StartGeneration(ctx context.Context, dreamID string) (string, error) {
	resp, err := c.postJSON(ctx, "/dreams/"+dreamID+"/generate", struct{}{})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &NotFoundError{Resource: "dream " + dreamID}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &StatusError{Message: serverMessage(resp)}
	}

	var payload struct {
		Run struct {
			TraceID string `json:"traceId"`
		} `json:"run"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("parse generation response: %w", err)
	}
	return payload.Run.TraceID, nil
}

// PollStatus fetches the current projection of a generation run.
func (c *Client) PollStatus(ctx context.Context, traceID string) (RunStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/runs/"+traceID, nil)
	if err != nil {
		return RunStatus{}, err
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return RunStatus{}, &StatusError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return RunStatus{}, &NotFoundError{Resource: "run " + traceID}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return RunStatus{}, &StatusError{Message: serverMessage(resp)}
	}

	var status RunStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return RunStatus{}, &StatusError{Message: fmt.Sprintf("parse run status: %v", err)}
	}
	return status, nil
}

// CancelRun asks the backend to cancel an in-flight run.
func (c *Client) CancelRun(ctx context.Context, traceID string) error {
	resp, err := c.postJSON(ctx, "/runs/"+traceID+"/cancel", struct{}{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: "run " + traceID}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{Message: serverMessage(resp)}
	}
	return nil
}

// CreateCheckoutSession asks the payment backend for a redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, level, period, successURL, cancelURL string) (string, error) {
	resp, err := c.postJSON(ctx, "/payment/create-session", map[string]string{
		"level":      level,
		"period":     period,
		"successUrl": successURL,
		"cancelUrl":  cancelURL,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &PaymentError{Message: serverMessage(resp)}
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &PaymentError{Message: fmt.Sprintf("parse checkout response: %v", err)}
	}
	return payload.URL, nil
}

// RegisterAndCheckout creates an account and a checkout session in one call.
// The issued access token is installed on the client; the returned URL is the
// external payment redirect.
func (c *Client) RegisterAndCheckout(ctx context.Context, email, password, level, period, successURL, cancelURL string) (string, error) {
	resp, err := c.postJSON(ctx, "/auth/register-and-checkout", map[string]string{
		"email":      email,
		"password":   password,
		"level":      level,
		"period":     period,
		"successUrl": successURL,
		"cancelUrl":  cancelURL,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &AuthError{Message: serverMessage(resp)}
	}

	var payload struct {
		Tokens struct {
			AccessToken string `json:"accessToken"`
		} `json:"tokens"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &AuthError{Message: fmt.Sprintf("parse registration response: %v", err)}
	}

	c.SetToken(payload.Tokens.AccessToken)
	return payload.URL, nil
}

// RegisterAndSmile creates an account and activates the no-cost offer in one
// call, installing the issued access token on the client.
func (c *Client) RegisterAndSmile(ctx context.Context, email, password string) error {
	resp, err := c.postJSON(ctx, "/auth/register-and-smile", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &AuthError{Message: serverMessage(resp)}
	}

	var payload struct {
		Tokens struct {
			AccessToken string `json:"accessToken"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return &AuthError{Message: fmt.Sprintf("parse registration response: %v", err)}
	}

	c.SetToken(payload.Tokens.AccessToken)
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.HTTPClient.Do(req)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// serverMessage extracts the error message from a failed response body,
// falling back to the HTTP status text.
func serverMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			if payload.Error != "" {
				return payload.Error
			}
			if payload.Message != "" {
				return payload.Message
			}
		}
	}
	return resp.Status
}
