package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WriteFrame writes v as a single "data: <json>" frame and flushes when w
// supports it.
func WriteFrame(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
