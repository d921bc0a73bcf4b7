package wizard

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublym/backend/internal/draft"
	"github.com/sublym/backend/internal/genclient"
	"github.com/sublym/backend/internal/media"
	"github.com/sublym/backend/internal/models"
)

type fakeGenerator struct {
	mu sync.Mutex

	authenticated bool

	uploadErr   error
	uploadCalls int

	dreamErr   error
	dreamCalls int

	startErr   error
	startCalls int

	pollQueue []genclient.RunStatus
	pollErr   error
	pollCalls int

	cancelled []string

	checkoutURL string
	checkoutErr error

	smileCalls    int
	smileErr      error
	registerCalls int
}

func (f *fakeGenerator) UploadPhotos(_ context.Context, photos []media.Attachment, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	ids := make([]string, len(photos))
	for i := range photos {
		ids[i] = "pho_" + photos[i].Name
	}
	return ids, nil
}

func (f *fakeGenerator) ActivateSmile(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.smileCalls++
	return f.smileErr
}

func (f *fakeGenerator) CreateDream(_ context.Context, _ string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dreamCalls++
	if f.dreamErr != nil {
		return "", f.dreamErr
	}
	return "drm_1", nil
}

func (f *fakeGenerator) StartGeneration(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	return "trc_1", nil
}

func (f *fakeGenerator) PollStatus(_ context.Context, traceID string) (genclient.RunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.pollErr != nil {
		return genclient.RunStatus{}, f.pollErr
	}
	if len(f.pollQueue) == 0 {
		return genclient.RunStatus{TraceID: traceID, Status: models.RunStatusProcessing}, nil
	}
	next := f.pollQueue[0]
	if len(f.pollQueue) > 1 {
		f.pollQueue = f.pollQueue[1:]
	}
	return next, nil
}

func (f *fakeGenerator) CancelRun(_ context.Context, traceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, traceID)
	return nil
}

func (f *fakeGenerator) CreateCheckoutSession(_ context.Context, _, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.checkoutURL, nil
}

func (f *fakeGenerator) RegisterAndCheckout(_ context.Context, _, _, _, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	f.authenticated = true
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.checkoutURL, nil
}

func (f *fakeGenerator) RegisterAndSmile(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.smileErr != nil {
		return f.smileErr
	}
	f.authenticated = true
	return nil
}

func (f *fakeGenerator) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *fakeGenerator) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

func newTestController(gen Generator) (*Controller, *draft.Store) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	drafts := draft.NewStore(draft.NewMemoryKV(), time.Hour, logger)
	c := NewController(gen, drafts, logger)
	c.ReturnURL = "http://localhost:5173/create"
	c.PollInterval = time.Millisecond
	c.ResumeDelay = 0
	return c, drafts
}

func validPhoto() media.Attachment {
	return media.Attachment{Name: "p1.jpg", Type: "image/jpeg", Data: []byte{1, 2, 3}}
}

const validDream = "AAAAAAAAAAAAAAAAAAAAAAAAA" // 25 chars, over the minimum

func TestDreamStepGuardsSubmission(t *testing.T) {
	c, _ := newTestController(&fakeGenerator{})

	// No photos yet: stuck at the photos step, dream submission is a no-op.
	require.False(t, c.SubmitDream(validDream, ""))
	assert.Equal(t, StatePhotos, c.State())

	c.AddPhotos(validPhoto())
	assert.Equal(t, StateDream, c.State())

	// Too-short dream text never reaches payment.
	require.False(t, c.SubmitDream("short dream", ""))
	assert.Equal(t, StateDream, c.State())

	require.True(t, c.SubmitDream(validDream, "spiders, heights"))
	assert.Equal(t, StatePayment, c.State())
}

func TestBackNavigationPreservesDraft(t *testing.T) {
	c, _ := newTestController(&fakeGenerator{})
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, "clowns"))

	c.BackToDream()
	assert.Equal(t, StateDream, c.State())
	assert.Equal(t, validDream, c.Draft().DreamText)
	assert.Equal(t, "clowns", c.Draft().RejectText)
	assert.Len(t, c.Draft().Photos, 1)
}

func TestCheckoutRequiresRegistration(t *testing.T) {
	gen := &fakeGenerator{}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly)

	_, err := c.Checkout(context.Background())
	require.ErrorIs(t, err, ErrRegistrationRequired)
	assert.Equal(t, StateRegister, c.State())
}

func TestRegisterSmileSubmitsInProcess(t *testing.T) {
	gen := &fakeGenerator{pollQueue: []genclient.RunStatus{{Status: models.RunStatusProcessing}}}
	c, drafts := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanSmile, "")

	_, err := c.Checkout(context.Background())
	require.ErrorIs(t, err, ErrRegistrationRequired)

	url, err := c.Register(context.Background(), "a@b.c", "hunter22")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Equal(t, StatePending, c.State())
	assert.Equal(t, 1, gen.registerCalls)
	assert.Equal(t, 1, gen.startCalls)

	// Draft is deleted after successful submission.
	if _, ok := drafts.Load(); ok {
		t.Fatal("expected draft slot to be cleared after submission")
	}
}

func TestAuthenticatedPaidCheckoutSavesDraftAndRedirects(t *testing.T) {
	gen := &fakeGenerator{authenticated: true, checkoutURL: "https://pay.example.com/s/1"}
	c, drafts := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, "spiders"))
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly)

	url, err := c.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/s/1", url)

	saved, ok := drafts.Load()
	require.True(t, ok, "draft must be persisted before the external redirect")
	assert.Equal(t, validDream, saved.DreamText)
	assert.Equal(t, models.PlanLevel2, saved.SelectedPlan)
	assert.Len(t, saved.Photos, 1)
}

func TestHandleReturnSuccessResumesOnce(t *testing.T) {
	gen := &fakeGenerator{authenticated: true, checkoutURL: "https://pay.example.com/s/1"}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly)
	_, err := c.Checkout(context.Background())
	require.NoError(t, err)

	query := url.Values{"payment": {"success"}, "utm": {"x"}}

	stripped := c.HandleReturn(context.Background(), query)
	assert.Empty(t, stripped.Get("payment"), "flag must be stripped")
	assert.Equal(t, "x", stripped.Get("utm"), "other params survive")
	assert.Equal(t, StatePending, c.State())
	assert.Equal(t, 1, gen.startCalls)

	// A second render with the same query must not replay the branch.
	c.HandleReturn(context.Background(), query)
	assert.Equal(t, 1, gen.startCalls)
}

func TestHandleReturnCancelledKeepsDraft(t *testing.T) {
	gen := &fakeGenerator{authenticated: true, checkoutURL: "https://pay.example.com/s/1"}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, "spiders"))
	c.SelectPlan(models.PlanLevel3, models.BillingYearly)
	_, err := c.Checkout(context.Background())
	require.NoError(t, err)

	// Simulate losing the in-memory state across the redirect.
	fresh := NewController(gen, c.drafts, c.logger)
	fresh.ResumeDelay = 0

	fresh.HandleReturn(context.Background(), url.Values{"payment": {"cancelled"}})
	assert.Equal(t, StatePaymentCancelled, fresh.State())
	assert.Equal(t, validDream, fresh.Draft().DreamText)
	assert.Equal(t, "spiders", fresh.Draft().RejectText)
	assert.Len(t, fresh.Draft().Photos, 1)
	assert.Equal(t, 0, gen.startCalls)

	fresh.RetryPayment()
	assert.Equal(t, StatePayment, fresh.State())
}

func TestResumeToleratesUploadFailure(t *testing.T) {
	gen := &fakeGenerator{
		authenticated: true,
		checkoutURL:   "https://pay.example.com/s/1",
		uploadErr:     &genclient.UploadError{Message: "photos already exist"},
	}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly)
	_, err := c.Checkout(context.Background())
	require.NoError(t, err)

	c.HandleReturn(context.Background(), url.Values{"payment": {"success"}})

	assert.Equal(t, StatePending, c.State())
	assert.Equal(t, 1, gen.dreamCalls, "createDream must still run")
	assert.Equal(t, 1, gen.startCalls, "startGeneration must still run")
}

func TestFirstPassUploadFailureAbortsToPayment(t *testing.T) {
	gen := &fakeGenerator{uploadErr: &genclient.UploadError{Message: "storage offline"}}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanSmile, "")

	_, err := c.Checkout(context.Background())
	require.ErrorIs(t, err, ErrRegistrationRequired)
	_, err = c.Register(context.Background(), "a@b.c", "hunter22")
	require.Error(t, err)

	assert.Equal(t, StatePayment, c.State(), "failed submission falls back to payment, not photos")
	assert.Contains(t, c.LastError(), "storage offline")
	assert.Len(t, c.Draft().Photos, 1, "photos are retained")
	assert.Equal(t, 0, gen.startCalls)
}

func TestPollingStopsOnTerminalStatus(t *testing.T) {
	gen := &fakeGenerator{
		authenticated: true,
		pollQueue: []genclient.RunStatus{
			{TraceID: "trc_1", Status: models.RunStatusProcessing, Progress: 10},
			{TraceID: "trc_1", Status: models.RunStatusCompleted, Progress: 100, VideoURL: "https://x/v.mp4"},
		},
	}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanSmile, "")
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly) // plan change simply overwrites
	gen.checkoutURL = "https://pay.example.com/s/1"
	_, err := c.Checkout(context.Background())
	require.NoError(t, err)
	c.HandleReturn(context.Background(), url.Values{"payment": {"success"}})
	require.Equal(t, StatePending, c.State())

	require.False(t, c.PollOnce(context.Background(), 0))
	assert.Equal(t, models.RunStatusProcessing, c.Run().Status)
	assert.Equal(t, StatePending, c.State())

	require.True(t, c.PollOnce(context.Background(), 0))
	assert.Equal(t, models.RunStatusCompleted, c.Run().Status)
	assert.Equal(t, "https://x/v.mp4", c.Run().VideoURL)

	// Terminal status observed; no further poll may be issued.
	polls := gen.polls()
	require.True(t, c.PollOnce(context.Background(), 0))
	assert.Equal(t, polls, gen.polls())
}

func TestPollUntilDoneTerminates(t *testing.T) {
	gen := &fakeGenerator{
		authenticated: true,
		checkoutURL:   "https://pay.example.com/s/1",
		pollQueue: []genclient.RunStatus{
			{TraceID: "trc_1", Status: models.RunStatusProcessing, Progress: 50},
			{TraceID: "trc_1", Status: models.RunStatusFailed, Error: "montage failed"},
		},
	}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly)
	_, err := c.Checkout(context.Background())
	require.NoError(t, err)
	c.HandleReturn(context.Background(), url.Values{"payment": {"success"}})

	done := make(chan struct{})
	go func() {
		c.PollUntilDone(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("polling loop did not terminate on terminal status")
	}
	assert.Equal(t, models.RunStatusFailed, c.Run().Status)
	assert.Contains(t, c.Run().Error, "montage")
}

func TestCancelDiscardsLatePollResponse(t *testing.T) {
	gen := &fakeGenerator{
		authenticated: true,
		checkoutURL:   "https://pay.example.com/s/1",
		pollQueue:     []genclient.RunStatus{{TraceID: "trc_1", Status: models.RunStatusProcessing, Progress: 70}},
	}
	c, _ := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, ""))
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly)
	_, err := c.Checkout(context.Background())
	require.NoError(t, err)
	c.HandleReturn(context.Background(), url.Values{"payment": {"success"}})
	require.Equal(t, StatePending, c.State())

	c.Cancel(context.Background())
	assert.Equal(t, models.RunStatusCancelled, c.Run().Status)
	assert.Equal(t, []string{"trc_1"}, gen.cancelled)

	// A poll issued under the pre-cancel epoch resolves late: its response
	// must be discarded and the loop told to stop.
	require.True(t, c.PollOnce(context.Background(), 0))
	assert.Equal(t, models.RunStatusCancelled, c.Run().Status, "late response must not overwrite the cancelled projection")
}

func TestResetClearsEverything(t *testing.T) {
	gen := &fakeGenerator{authenticated: true, checkoutURL: "https://pay.example.com/s/1"}
	c, drafts := newTestController(gen)
	c.AddPhotos(validPhoto())
	require.True(t, c.SubmitDream(validDream, "spiders"))
	c.SelectPlan(models.PlanLevel2, models.BillingMonthly)
	_, err := c.Checkout(context.Background())
	require.NoError(t, err)

	c.Reset()
	assert.Equal(t, StatePhotos, c.State())
	assert.Empty(t, c.Draft().DreamText)
	assert.Empty(t, c.Draft().Photos)
	if _, ok := drafts.Load(); ok {
		t.Fatal("expected persisted draft to be cleared on reset")
	}
}

func TestHandleReturnIgnoresUnknownFlag(t *testing.T) {
	c, _ := newTestController(&fakeGenerator{})
	out := c.HandleReturn(context.Background(), url.Values{"payment": {"maybe"}, "ref": {"mail"}})
	assert.Equal(t, StatePhotos, c.State())
	assert.Empty(t, out.Get("payment"))
	assert.Equal(t, "mail", out.Get("ref"))
}

func TestReturnURLsCarryFlag(t *testing.T) {
	c, _ := newTestController(&fakeGenerator{})
	require.True(t, strings.HasSuffix(c.successURL(), "payment=success"))
	require.True(t, strings.HasSuffix(c.cancelURL(), "payment=cancelled"))
}
