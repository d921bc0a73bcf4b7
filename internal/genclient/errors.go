package genclient

import "fmt"

// ValidationError reports input the backend rejected, e.g. a dream
// description that is too short.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// UploadError reports a failed photo upload, carrying the server message.
type UploadError struct {
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("photo upload failed: %s", e.Message)
}

// AuthError reports a failed registration or login.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// PaymentError reports a failed checkout session creation.
type PaymentError struct {
	Message string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("checkout failed: %s", e.Message)
}

// StatusError reports a failed status poll.
type StatusError struct {
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status poll failed: %s", e.Message)
}

// NotFoundError reports a missing run or resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}
