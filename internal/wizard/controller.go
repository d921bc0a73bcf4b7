// Package wizard drives the guided creation flow from photo capture through
// payment to generation submission and status polling.
package wizard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sublym/backend/internal/draft"
	"github.com/sublym/backend/internal/genclient"
	"github.com/sublym/backend/internal/media"
	"github.com/sublym/backend/internal/models"
)

// State identifies the single active step of the wizard.
type State string

const (
	StatePhotos           State = "photos"
	StateDream            State = "dream"
	StatePayment          State = "payment"
	StateRegister         State = "register"
	StateProcessing       State = "processing"
	StatePending          State = "pending"
	StatePaymentSuccess   State = "payment-success"
	StatePaymentCancelled State = "payment-cancelled"
	StatePaymentError     State = "payment-error"
)

// DefaultPollInterval is the fixed delay between status polls.
const DefaultPollInterval = 3 * time.Second

// DefaultResumeDelay paces the payment-confirmed display before submission
// resumes. It is cosmetic, not a wait condition; tests set it to zero.
const DefaultResumeDelay = 2 * time.Second

// Generator is the subset of the generation client the wizard drives.
type Generator interface {
	UploadPhotos(ctx context.Context, photos []media.Attachment, source string) ([]string, error)
	ActivateSmile(ctx context.Context) error
	CreateDream(ctx context.Context, description string, reject []string) (string, error)
	StartGeneration(ctx context.Context, dreamID string) (string, error)
	PollStatus(ctx context.Context, traceID string) (genclient.RunStatus, error)
	CancelRun(ctx context.Context, traceID string) error
	CreateCheckoutSession(ctx context.Context, level, period, successURL, cancelURL string) (string, error)
	RegisterAndCheckout(ctx context.Context, email, password, level, period, successURL, cancelURL string) (string, error)
	RegisterAndSmile(ctx context.Context, email, password string) error
	Authenticated() bool
}

// Controller is the wizard's state machine. All mutation goes through its
// methods; the one-shot payment-return latch and the cancellation epoch are
// fields here rather than ambient state so the machine is testable without a
// UI runtime.
type Controller struct {
	client Generator
	drafts *draft.Store
	logger *slog.Logger

	// ReturnURL is the application route the payment provider redirects
	// back to, before the payment query flag is appended.
	ReturnURL    string
	PollInterval time.Duration
	ResumeDelay  time.Duration

	mu            sync.Mutex
	state         State
	draft         draft.Draft
	traceID       string
	run           genclient.RunStatus
	lastErr       string
	handledReturn bool
	epoch         int
}

// NewController constructs a wizard at the photos step.
func NewController(client Generator, drafts *draft.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client:       client,
		drafts:       drafts,
		logger:       logger,
		PollInterval: DefaultPollInterval,
		ResumeDelay:  DefaultResumeDelay,
		state:        StatePhotos,
	}
}

// State returns the currently active step.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Draft returns a snapshot of the in-progress creation request.
func (c *Controller) Draft() draft.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Run returns the latest generation run projection.
func (c *Controller) Run() genclient.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run
}

// LastError returns the most recent user-visible failure message.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// AddPhotos appends attachments from either capture sub-flow. Once at least
// one photo is present the wizard advances from photos to dream.
func (c *Controller) AddPhotos(photos ...media.Attachment) {
	if len(photos) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.draft.Photos = append(c.draft.Photos, photos...)
	if c.state == StatePhotos {
		c.state = StateDream
	}
}

// SubmitDream records the dream text and exclusions and advances to payment.
// Invalid drafts are rejected silently, mirroring a disabled submit control.
func (c *Controller) SubmitDream(dreamText, rejectText string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.draft.DreamText = dreamText
	c.draft.RejectText = rejectText

	if c.state != StateDream || !c.draft.Valid() {
		return false
	}
	c.state = StatePayment
	return true
}

// BackToDream navigates from payment back to the dream step. Backward
// transitions never clear entered data.
func (c *Controller) BackToDream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePayment {
		c.state = StateDream
	}
}

// SelectPlan records the chosen plan and billing period, overwriting any
// prior choice without confirmation.
func (c *Controller) SelectPlan(plan, period string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.SelectedPlan = plan
	c.draft.BillingPeriod = period
}

// ErrRegistrationRequired signals that the caller must collect account
// details before the flow can continue.
var ErrRegistrationRequired = errors.New("registration required")

// Checkout advances from the payment step. Without an authenticated session
// it moves to the register step and reports ErrRegistrationRequired. With a
// session, the no-cost offer is activated and submission proceeds in-process,
// while a paid plan yields the external redirect URL; the draft is persisted
// first so the flow can be resumed when control returns.
func (c *Controller) Checkout(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StatePayment || c.draft.SelectedPlan == "" {
		c.mu.Unlock()
		return "", errors.New("no plan selected")
	}
	current := c.draft
	c.mu.Unlock()

	if !c.client.Authenticated() {
		c.mu.Lock()
		c.state = StateRegister
		c.mu.Unlock()
		return "", ErrRegistrationRequired
	}

	if current.SelectedPlan == models.PlanSmile {
		if err := c.client.ActivateSmile(ctx); err != nil {
			c.failPayment(err)
			return "", err
		}
		return "", c.submit(ctx, false)
	}

	c.drafts.Save(current)
	url, err := c.client.CreateCheckoutSession(ctx, current.SelectedPlan, current.BillingPeriod, c.successURL(), c.cancelURL())
	if err != nil {
		c.failPayment(err)
		return "", err
	}
	return url, nil
}

// Register creates the account chosen at the register step. The no-cost
// offer proceeds straight to submission; a paid plan returns the external
// redirect URL after persisting the draft.
func (c *Controller) Register(ctx context.Context, email, password string) (string, error) {
	c.mu.Lock()
	if c.state != StateRegister {
		c.mu.Unlock()
		return "", errors.New("not at the register step")
	}
	current := c.draft
	c.mu.Unlock()

	if current.SelectedPlan == models.PlanSmile {
		if err := c.client.RegisterAndSmile(ctx, email, password); err != nil {
			c.recordError(err)
			return "", err
		}
		return "", c.submit(ctx, false)
	}

	c.drafts.Save(current)
	url, err := c.client.RegisterAndCheckout(ctx, email, password, current.SelectedPlan, current.BillingPeriod, c.successURL(), c.cancelURL())
	if err != nil {
		var payErr *genclient.PaymentError
		if errors.As(err, &payErr) {
			c.failPayment(err)
		} else {
			c.recordError(err)
		}
		return "", err
	}
	return url, nil
}

// RetryPayment replays the plan step after a cancelled or failed payment.
func (c *Controller) RetryPayment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatePaymentCancelled, StatePaymentError:
		c.state = StatePayment
		c.lastErr = ""
	}
}

// Reset restarts the wizard from the photos step, clearing the persisted
// draft and all in-memory fields. Reachable from any state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.draft = draft.Draft{}
	c.run = genclient.RunStatus{}
	c.traceID = ""
	c.lastErr = ""
	c.state = StatePhotos
	c.drafts.Clear()
}

// Cancel optimistically marks the run cancelled, halting the polling loop
// immediately, and notifies the backend best-effort. A poll response that
// resolves after cancellation is discarded by the epoch guard.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	if c.state != StatePending && c.state != StateProcessing {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.run.Status = models.RunStatusCancelled
	traceID := c.traceID
	c.mu.Unlock()

	if traceID == "" {
		return
	}
	if err := c.client.CancelRun(ctx, traceID); err != nil {
		c.logger.Warn("cancel run", "traceId", traceID, "error", err)
	}
}

// submit runs the full submission sequence: photo upload, dream creation,
// generation start. On the resume-after-payment path a failed upload is
// tolerated because photos may already exist server-side; on the first pass
// it aborts. Any other failure falls back to the payment step, never to
// photos, so the user's text and photos are retained.
func (c *Controller) submit(ctx context.Context, resume bool) error {
	c.mu.Lock()
	current := c.draft
	c.state = StateProcessing
	c.mu.Unlock()

	if _, err := c.client.UploadPhotos(ctx, current.Photos, models.PhotoSourceUpload); err != nil {
		if !resume {
			c.failPayment(err)
			return err
		}
		c.logger.Warn("tolerating photo upload failure on resume", "error", err)
	}

	dreamID, err := c.client.CreateDream(ctx, current.DreamText, current.RejectList())
	if err != nil {
		c.failPayment(err)
		return err
	}

	traceID, err := c.client.StartGeneration(ctx, dreamID)
	if err != nil {
		c.failPayment(err)
		return err
	}

	c.mu.Lock()
	c.traceID = traceID
	c.run = genclient.RunStatus{TraceID: traceID, Status: models.RunStatusPending, CurrentStep: "Queued"}
	c.state = StatePending
	c.mu.Unlock()

	c.drafts.Clear()
	return nil
}

// PollUntilDone runs the sequential polling loop: one poll at a time, each
// rescheduled a fixed interval after the previous one resolves, until a
// terminal status is observed, the epoch changes, or the context ends.
func (c *Controller) PollUntilDone(ctx context.Context) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	for {
		timer := time.NewTimer(c.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if c.PollOnce(ctx, epoch) {
			return
		}
	}
}

// PollOnce performs a single status fetch for the supplied epoch and reports
// whether polling should stop. Responses arriving after a cancel or reset
// (epoch mismatch) are discarded without touching the projection.
func (c *Controller) PollOnce(ctx context.Context, epoch int) bool {
	c.mu.Lock()
	if c.epoch != epoch || c.state != StatePending || models.TerminalRunStatus(c.run.Status) {
		c.mu.Unlock()
		return true
	}
	traceID := c.traceID
	c.mu.Unlock()

	status, err := c.client.PollStatus(ctx, traceID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return true
	}

	if err != nil {
		var notFound *genclient.NotFoundError
		if errors.As(err, &notFound) {
			c.lastErr = err.Error()
			return true
		}
		c.logger.Warn("status poll failed", "traceId", traceID, "error", err)
		return false
	}

	c.run = status
	return models.TerminalRunStatus(status.Status)
}

func (c *Controller) failPayment(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err.Error()
	var payErr *genclient.PaymentError
	if errors.As(err, &payErr) {
		c.state = StatePaymentError
		return
	}
	c.state = StatePayment
}

func (c *Controller) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err.Error()
}

func (c *Controller) successURL() string {
	return c.ReturnURL + "?" + ReturnParam + "=" + ReturnSuccess
}

func (c *Controller) cancelURL() string {
	return c.ReturnURL + "?" + ReturnParam + "=" + ReturnCancelled
}
