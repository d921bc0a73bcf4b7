package wizard

import (
	"context"
	"net/url"
	"time"
)

// ReturnParam is the query flag the payment provider sets on the return URL.
const ReturnParam = "payment"

// Values the return flag may carry.
const (
	ReturnSuccess   = "success"
	ReturnCancelled = "cancelled"
)

// HandleReturn inspects the URL query on startup to detect a return from the
// external payment redirect and drives recovery. It executes at most once
// per controller instance; subsequent calls return the query untouched
// except for stripping the flag, so a replayed render cannot re-trigger the
// branch. The returned values have the flag removed and should replace the
// visible URL.
func (c *Controller) HandleReturn(ctx context.Context, query url.Values) url.Values {
	stripped := cloneWithoutFlag(query)

	flag := query.Get(ReturnParam)
	if flag != ReturnSuccess && flag != ReturnCancelled {
		return stripped
	}

	c.mu.Lock()
	if c.handledReturn {
		c.mu.Unlock()
		return stripped
	}
	c.handledReturn = true
	c.mu.Unlock()

	switch flag {
	case ReturnSuccess:
		c.resumeAfterPayment(ctx)
	case ReturnCancelled:
		c.recoverCancelledPayment()
	}

	return stripped
}

// resumeAfterPayment shows the payment-confirmed state, recovers the saved
// draft, and, after the pacing delay, replays the full submission sequence
// with uploads tolerated.
func (c *Controller) resumeAfterPayment(ctx context.Context) {
	c.mu.Lock()
	c.state = StatePaymentSuccess
	c.mu.Unlock()

	recovered, ok := c.drafts.Load()
	if !ok {
		c.logger.Warn("no draft to resume after payment")
		return
	}

	c.mu.Lock()
	c.draft = recovered
	c.mu.Unlock()

	if c.ResumeDelay > 0 {
		timer := time.NewTimer(c.ResumeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if err := c.submit(ctx, true); err != nil {
		c.logger.Error("resume submission failed", "error", err)
	}
}

// recoverCancelledPayment shows the cancellation state and reloads the saved
// draft so the user's text and photos are not lost.
func (c *Controller) recoverCancelledPayment() {
	recovered, ok := c.drafts.Load()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StatePaymentCancelled
	if ok {
		c.draft = recovered
	}
}

func cloneWithoutFlag(query url.Values) url.Values {
	stripped := make(url.Values, len(query))
	for key, values := range query {
		if key == ReturnParam {
			continue
		}
		stripped[key] = append([]string(nil), values...)
	}
	return stripped
}
