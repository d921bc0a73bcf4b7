// Package draft holds the user's in-progress creation request and persists it
// across the external payment redirect round-trip.
package draft

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sublym/backend/internal/media"
)

// MinDreamLength is the shortest dream description accepted for submission.
const MinDreamLength = 20

// Draft is the not-yet-submitted creation request.
type Draft struct {
	DreamText     string
	RejectText    string
	Photos        []media.Attachment
	SelectedPlan  string
	BillingPeriod string
	SavedAt       time.Time
}

// Valid reports whether the draft may be submitted. Plan and billing period
// are allowed to be empty here; they are required only before generation
// starts. Length is counted in runes on the trimmed text, the same way the
// server validates dream descriptions.
func (d Draft) Valid() bool {
	return utf8.RuneCountInString(strings.TrimSpace(d.DreamText)) >= MinDreamLength && len(d.Photos) >= 1
}

// RejectList splits the comma-separated exclusion text into a trimmed list.
func (d Draft) RejectList() []string {
	if strings.TrimSpace(d.RejectText) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(d.RejectText, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
