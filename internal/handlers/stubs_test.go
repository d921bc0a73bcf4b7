package handlers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/payment"
	"github.com/sublym/backend/internal/repositories"
)

type userStoreStub struct {
	users     map[string]models.User
	createErr error
	updated   []models.User
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{users: make(map[string]models.User)}
}

func (s *userStoreStub) Create(ctx context.Context, user models.User) error {
	_ = ctx
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *userStoreStub) FindByEmail(ctx context.Context, email string) (models.User, error) {
	_ = ctx
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (models.User, error) {
	_ = ctx
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *userStoreStub) UpdateSubscription(ctx context.Context, user models.User) error {
	_ = ctx
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.users[user.ID] = user
	s.updated = append(s.updated, user)
	return nil
}

type sessionManagerStub struct {
	userID   string
	issued   []string
	issueErr error
	authErr  error
}

func (s *sessionManagerStub) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	_ = ctx
	if s.issueErr != nil {
		return models.SessionTokens{}, s.issueErr
	}
	s.issued = append(s.issued, userID)
	return models.SessionTokens{
		AccessToken:      "access-" + userID,
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshToken:     "refresh-" + userID,
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (s *sessionManagerStub) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	_ = ctx
	_ = refreshToken
	return models.SessionTokens{AccessToken: "refreshed"}, nil
}

func (s *sessionManagerStub) Authenticate(ctx context.Context, accessToken string) (string, error) {
	_ = ctx
	_ = accessToken
	if s.authErr != nil {
		return "", s.authErr
	}
	return s.userID, nil
}

type photoStoreStub struct {
	photos    []models.Photo
	createErr error
	deleteErr error
}

func (s *photoStoreStub) Create(ctx context.Context, photo models.Photo) error {
	_ = ctx
	if s.createErr != nil {
		return s.createErr
	}
	s.photos = append(s.photos, photo)
	return nil
}

func (s *photoStoreStub) ListForUser(ctx context.Context, userID string) ([]models.Photo, error) {
	_ = ctx
	var owned []models.Photo
	for _, photo := range s.photos {
		if photo.UserID == userID {
			owned = append(owned, photo)
		}
	}
	return owned, nil
}

func (s *photoStoreStub) Delete(ctx context.Context, photoID, userID string) error {
	_ = ctx
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i, photo := range s.photos {
		if photo.ID == photoID && photo.UserID == userID {
			s.photos = append(s.photos[:i], s.photos[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

type dreamStoreStub struct {
	dreams    map[string]models.Dream
	createErr error
}

func newDreamStoreStub() *dreamStoreStub {
	return &dreamStoreStub{dreams: make(map[string]models.Dream)}
}

func (s *dreamStoreStub) Create(ctx context.Context, dream models.Dream) error {
	_ = ctx
	if s.createErr != nil {
		return s.createErr
	}
	s.dreams[dream.ID] = dream
	return nil
}

func (s *dreamStoreStub) Find(ctx context.Context, dreamID, userID string) (models.Dream, error) {
	_ = ctx
	dream, ok := s.dreams[dreamID]
	if !ok || dream.UserID != userID {
		return models.Dream{}, repositories.ErrNotFound
	}
	return dream, nil
}

func (s *dreamStoreStub) ListForUser(ctx context.Context, userID string) ([]models.Dream, error) {
	_ = ctx
	var owned []models.Dream
	for _, dream := range s.dreams {
		if dream.UserID == userID {
			owned = append(owned, dream)
		}
	}
	return owned, nil
}

func (s *dreamStoreStub) Delete(ctx context.Context, dreamID, userID string) error {
	_ = ctx
	dream, ok := s.dreams[dreamID]
	if !ok || dream.UserID != userID {
		return repositories.ErrNotFound
	}
	delete(s.dreams, dreamID)
	return nil
}

type runStoreStub struct {
	runs      map[string]models.GenerationRun
	createErr error
	cancelled []string
}

func newRunStoreStub() *runStoreStub {
	return &runStoreStub{runs: make(map[string]models.GenerationRun)}
}

func (s *runStoreStub) Create(ctx context.Context, run models.GenerationRun) error {
	_ = ctx
	if s.createErr != nil {
		return s.createErr
	}
	s.runs[run.TraceID] = run
	return nil
}

func (s *runStoreStub) FindByTraceID(ctx context.Context, traceID string) (models.GenerationRun, error) {
	_ = ctx
	run, ok := s.runs[traceID]
	if !ok {
		return models.GenerationRun{}, repositories.ErrNotFound
	}
	return run, nil
}

func (s *runStoreStub) MarkCancelled(ctx context.Context, traceID string) error {
	_ = ctx
	run, ok := s.runs[traceID]
	if !ok || models.TerminalRunStatus(run.Status) {
		return repositories.ErrNotFound
	}
	run.Status = models.RunStatusCancelled
	s.runs[traceID] = run
	s.cancelled = append(s.cancelled, traceID)
	return nil
}

type storageStub struct {
	saved map[string][]byte
	err   error
}

func (s *storageStub) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	_ = ctx
	if s.err != nil {
		return "", s.err
	}
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.saved[name] = data
	return fmt.Sprintf("https://cdn.example.com/%s", name), nil
}

type enqueuerStub struct {
	jobs []models.GenerationRun
	err  error
}

func (s *enqueuerStub) Enqueue(ctx context.Context, run models.GenerationRun, dream models.Dream) error {
	_ = ctx
	_ = dream
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, run)
	return nil
}

type checkoutStub struct {
	requests []payment.SessionRequest
	url      string
	err      error
}

func (s *checkoutStub) CreateSession(ctx context.Context, req payment.SessionRequest) (string, error) {
	_ = ctx
	if s.err != nil {
		return "", s.err
	}
	s.requests = append(s.requests, req)
	if s.url == "" {
		return "https://pay.example.com/cs_test", nil
	}
	return s.url, nil
}

type limiterStub struct {
	allow bool
	keys  []string
}

func (s *limiterStub) Allow(key string) bool {
	s.keys = append(s.keys, key)
	return s.allow
}
