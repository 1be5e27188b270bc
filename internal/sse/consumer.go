package sse

import (
	"io"
	"strings"
)

// CollectResult holds every message of a fully consumed stream together with
// the assistant text they add up to.
type CollectResult struct {
	Messages []Message
	Text     string
	Errors   []string
}

// Collect consumes r to completion. This is the non-streaming path used for
// captured bodies and for tests that compare against chunked decoding.
func Collect(r io.Reader) (CollectResult, error) {
	dec := NewDecoder()
	var res CollectResult
	buf := make([]byte, DefaultChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			msgs, err := dec.Feed(buf[:n])
			res.Messages = append(res.Messages, msgs...)
			if err != nil {
				return finish(res), err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return finish(res), readErr
		}
	}
	res.Messages = append(res.Messages, dec.Flush()...)
	return finish(res), nil
}

func finish(res CollectResult) CollectResult {
	text := strings.Builder{}
	for _, m := range res.Messages {
		if m.IsError() {
			res.Errors = append(res.Errors, m.StringField("message"))
			continue
		}
		text.WriteString(m.Content())
	}
	res.Text = text.String()
	return res
}
