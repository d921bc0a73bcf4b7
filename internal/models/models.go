package models

import "time"

// User represents an account within the SUBLYM platform.
type User struct {
	ID                string
	Email             string
	Password          string
	SubscriptionLevel string
	BillingPeriod     string
	SmileExpiresAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Subscription plan identifiers. PlanSmile is the promotional no-cost offer
// granting a time-limited tier without payment.
const (
	PlanLevel1 = "level_1"
	PlanLevel2 = "level_2"
	PlanLevel3 = "level_3"
	PlanSmile  = "smile"
)

// Billing periods accepted by the checkout contract.
const (
	BillingMonthly = "monthly"
	BillingYearly  = "yearly"
)

// Photo stores an uploaded source image along with its storage location.
type Photo struct {
	ID        string
	UserID    string
	Location  string
	Source    string
	Consent   bool
	CreatedAt time.Time
}

// Photo capture sources accepted by the upload endpoint.
const (
	PhotoSourceWebcam = "webcam"
	PhotoSourceUpload = "upload"
)

// Dream holds the textual creation request a generation run is built from.
type Dream struct {
	ID          string
	UserID      string
	Description string
	Reject      []string
	Style       string
	PhotoIDs    []string
	Status      string
	LastRunID   string
	CreatedAt   time.Time
}

const (
	DreamStatusDraft     = "draft"
	DreamStatusCompleted = "completed"
)

// GenerationRun tracks one generation attempt, identified by a trace id that
// clients poll for status.
type GenerationRun struct {
	ID            string
	TraceID       string
	UserID        string
	DreamID       string
	Status        string
	Progress      int
	CurrentStep   string
	VideoURL      string
	TeaserURL     string
	KeyframesURLs []string
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Run statuses. Completed, failed and cancelled are terminal; clients stop
// polling once any of them is observed.
const (
	RunStatusPending    = "pending"
	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusCancelled  = "cancelled"
)

// TerminalRunStatus reports whether the provided run status is terminal.
func TerminalRunStatus(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
