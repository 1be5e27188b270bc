package sse

import (
	"context"
	"errors"
	"io"
)

const (
	messageBufferSize = 128
	// DefaultChunkSize is the read size used when the caller passes zero.
	DefaultChunkSize = 32 * 1024
)

// StartFramePump reads body chunk by chunk, decodes frames and emits their
// messages in order. On clean end of input the unterminated tail is flushed
// and nil is sent on the error channel; a read or decode failure is sent
// instead and the tail is discarded. The message channel is closed after the
// error channel has been written.
func StartFramePump(ctx context.Context, body io.Reader, chunkSize int) (<-chan Message, <-chan error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	out := make(chan Message, messageBufferSize)
	done := make(chan error, 1)
	go func() {
		defer close(out)
		dec := NewDecoder()
		buf := make([]byte, chunkSize)
		emit := func(msgs []Message) bool {
			for _, m := range msgs {
				select {
				case out <- m:
				case <-ctx.Done():
					done <- ctx.Err()
					return false
				}
			}
			return true
		}
		for {
			if err := ctx.Err(); err != nil {
				done <- err
				return
			}
			n, readErr := body.Read(buf)
			if n > 0 {
				msgs, err := dec.Feed(buf[:n])
				if !emit(msgs) {
					return
				}
				if err != nil {
					done <- err
					return
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					if ctxErr := ctx.Err(); ctxErr != nil {
						readErr = ctxErr
					}
					done <- readErr
					return
				}
				if !emit(dec.Flush()) {
					return
				}
				done <- nil
				return
			}
		}
	}()
	return out, done
}
