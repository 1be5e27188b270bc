package ingest

import (
	"context"

	"novelstream/internal/sse"
)

// Handle tracks an ingest started with Go.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Go runs Ingest on its own goroutine and returns immediately. The callbacks
// keep the Ingest guarantees: sequential, never re-entrant, onDone once.
func (in *Ingestor) Go(ctx context.Context, req Request, policy RetryPolicy, onMessage func(sse.Message), onDone func()) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.result = in.Ingest(ctx, req, policy, onMessage, onDone)
	}()
	return h
}

// Cancel aborts the stream. It is safe to call more than once.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed after onDone has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the stream finishes and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}
