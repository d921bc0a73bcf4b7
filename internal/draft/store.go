package draft

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sublym/backend/internal/media"
)

// slotKey is the single fixed key the draft occupies in the backing store.
// The flow assumes one active instance; concurrent writers simply overwrite
// each other, last write wins.
const slotKey = "sublym.draft"

// DefaultTTL bounds how old a stored draft may be before Load discards it.
const DefaultTTL = time.Hour

// KV is the minimal string key-value contract the store persists through.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Store durably holds at most one Draft.
type Store struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger

	// NowFunc overrides the clock in tests.
	NowFunc func() time.Time
}

// NewStore wraps the provided key-value backend.
func NewStore(kv KV, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, ttl: ttl, logger: logger}
}

type storedPhoto struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

type storedDraft struct {
	Dream         string        `json:"dream"`
	RejectText    string        `json:"rejectText"`
	PhotosBase64  []storedPhoto `json:"photosBase64"`
	SelectedPlan  string        `json:"selectedPlan"`
	BillingPeriod string        `json:"billingPeriod"`
	Timestamp     int64         `json:"timestamp"`
}

// Save serializes the draft into the slot, overwriting any previous draft.
// Persistence is best effort: a failed save only costs the user the resume
// convenience, so errors are logged and swallowed.
func (s *Store) Save(d Draft) {
	doc := storedDraft{
		Dream:         d.DreamText,
		RejectText:    d.RejectText,
		SelectedPlan:  d.SelectedPlan,
		BillingPeriod: d.BillingPeriod,
		Timestamp:     s.now().UnixMilli(),
	}
	for _, photo := range d.Photos {
		doc.PhotosBase64 = append(doc.PhotosBase64, storedPhoto{
			Name: photo.Name,
			Type: photo.Type,
			Data: media.Encode(photo),
		})
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("serialize draft", "error", err)
		return
	}

	if err := s.kv.Set(slotKey, string(payload)); err != nil {
		s.logger.Error("persist draft", "error", err)
	}
}

// Load reads the slot and reconstructs the draft. A missing, stale, or
// corrupt entry yields false, and stale or corrupt entries are deleted so
// they can never be loaded twice.
func (s *Store) Load() (Draft, bool) {
	raw, ok, err := s.kv.Get(slotKey)
	if err != nil {
		s.logger.Error("read draft slot", "error", err)
		return Draft{}, false
	}
	if !ok {
		return Draft{}, false
	}

	var doc storedDraft
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		s.logger.Warn("discarding corrupt draft", "error", err)
		s.Clear()
		return Draft{}, false
	}

	savedAt := time.UnixMilli(doc.Timestamp)
	if s.now().Sub(savedAt) > s.ttl {
		s.logger.Info("discarding expired draft", "savedAt", savedAt)
		s.Clear()
		return Draft{}, false
	}

	d := Draft{
		DreamText:     doc.Dream,
		RejectText:    doc.RejectText,
		SelectedPlan:  doc.SelectedPlan,
		BillingPeriod: doc.BillingPeriod,
		SavedAt:       savedAt,
	}
	for _, photo := range doc.PhotosBase64 {
		attachment, err := media.Decode(photo.Data, photo.Name, photo.Type)
		if err != nil {
			s.logger.Warn("discarding draft with corrupt photo", "name", photo.Name, "error", err)
			s.Clear()
			return Draft{}, false
		}
		d.Photos = append(d.Photos, attachment)
	}

	return d, true
}

// Clear deletes the slot unconditionally.
func (s *Store) Clear() {
	if err := s.kv.Delete(slotKey); err != nil {
		s.logger.Error("clear draft slot", "error", err)
	}
}

func (s *Store) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
