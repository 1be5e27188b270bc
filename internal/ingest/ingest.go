package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"novelstream/internal/sse"
	"novelstream/internal/transport"
)

// Request is one logical streaming call. Body is marshalled once and the same
// bytes are sent on every attempt.
type Request struct {
	Endpoint string
	Body     any
	Header   http.Header
}

// Result summarizes a finished Ingest call.
type Result struct {
	RequestID string
	Attempts  int
	Delivered int
	// Err is the last attempt failure, nil when the final attempt succeeded.
	Err      error
	Canceled bool
}

type Ingestor struct {
	baseURL   string
	doer      transport.Doer
	logger    *slog.Logger
	hooks     *Hooks
	chunkSize int
}

type Option func(*Ingestor)

func WithDoer(d transport.Doer) Option {
	return func(in *Ingestor) { in.doer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(in *Ingestor) { in.logger = l }
}

func WithHooks(h *Hooks) Option {
	return func(in *Ingestor) { in.hooks = h }
}

// WithChunkSize sets the body read size. Small values are useful in tests.
func WithChunkSize(n int) Option {
	return func(in *Ingestor) { in.chunkSize = n }
}

func New(baseURL string, opts ...Option) *Ingestor {
	in := &Ingestor{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.doer == nil {
		in.doer = transport.New(transport.Options{})
	}
	return in
}

// Ingest performs req with retries and blocks until the stream is finished.
//
// onMessage receives every decoded message in arrival order, stamped with the
// epoch (attempt index) that produced it; attempt failures are delivered to it
// as {"type":"error"} messages before the next attempt starts. onDone is
// called exactly once, after the last message. Both callbacks run on the
// calling goroutine and are never invoked concurrently.
//
// Cancelling ctx aborts the in-flight read or the backoff wait; no error
// message is delivered for the cancellation itself.
func (in *Ingestor) Ingest(ctx context.Context, req Request, policy RetryPolicy, onMessage func(sse.Message), onDone func()) Result {
	res := Result{RequestID: uuid.NewString()}
	deliver := func(m sse.Message) {
		res.Delivered++
		if onMessage != nil {
			onMessage(m)
		}
	}
	defer func() {
		in.hooks.safeDone(ctx, res.RequestID, res)
		if onDone != nil {
			onDone()
		}
	}()

	body, err := json.Marshal(req.Body)
	if err != nil {
		res.Err = fmt.Errorf("encode request body: %w", err)
		deliver(sse.ErrorMessage(res.Err.Error()))
		return res
	}
	url := in.baseURL + req.Endpoint
	log := in.logger.With("request_id", res.RequestID, "endpoint", req.Endpoint)

	attempts := policy.Attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		res.Attempts++
		in.hooks.safeAttempt(ctx, res.RequestID, attempt)
		err := in.attempt(ctx, url, body, req.Header, res.RequestID, attempt, deliver)
		if err == nil {
			res.Err = nil
			return res
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = ctxErr
			res.Canceled = true
			log.Debug("stream canceled", "attempt", attempt)
			return res
		}
		res.Err = err
		log.Warn("stream attempt failed", "attempt", attempt, "error", err)
		m := sse.ErrorMessage(err.Error())
		m.Epoch = attempt
		deliver(m)
		if attempt == attempts-1 {
			break
		}
		delay := policy.Delay(attempt)
		in.hooks.safeRetry(ctx, res.RequestID, attempt, delay, err)
		if err := sleep(ctx, delay); err != nil {
			res.Err = err
			res.Canceled = true
			return res
		}
	}
	return res
}

func (in *Ingestor) attempt(ctx context.Context, url string, body []byte, header http.Header, requestID string, epoch int, deliver func(sse.Message)) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: "build request", Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("X-Stream-Attempt", strconv.Itoa(epoch))

	resp, err := in.doer.Do(httpReq)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(text)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil
	}

	msgs, done := sse.StartFramePump(ctx, resp.Body, in.chunkSize)
	for m := range msgs {
		m.Epoch = epoch
		deliver(m)
	}
	if err := <-done; err != nil {
		if errors.Is(err, sse.ErrFrameTooLarge) {
			return &TransportError{Op: "decode", Err: err}
		}
		return &TransportError{Op: "read", Err: err}
	}
	return nil
}
