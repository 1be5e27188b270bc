package ingest

import (
	"context"
	"time"
)

// Hooks are optional observation callbacks. Any field may be nil.
type Hooks struct {
	OnAttempt func(ctx context.Context, requestID string, attempt int)
	OnRetry   func(ctx context.Context, requestID string, attempt int, delay time.Duration, err error)
	OnDone    func(ctx context.Context, requestID string, res Result)
}

func (h *Hooks) safeAttempt(ctx context.Context, requestID string, attempt int) {
	if h != nil && h.OnAttempt != nil {
		h.OnAttempt(ctx, requestID, attempt)
	}
}

func (h *Hooks) safeRetry(ctx context.Context, requestID string, attempt int, delay time.Duration, err error) {
	if h != nil && h.OnRetry != nil {
		h.OnRetry(ctx, requestID, attempt, delay, err)
	}
}

func (h *Hooks) safeDone(ctx context.Context, requestID string, res Result) {
	if h != nil && h.OnDone != nil {
		h.OnDone(ctx, requestID, res)
	}
}
