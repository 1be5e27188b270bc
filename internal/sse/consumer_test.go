package sse

import (
	"bytes"
	"strings"
	"testing"
)

func TestCollectAggregatesText(t *testing.T) {
	var body bytes.Buffer
	for _, v := range []any{
		map[string]any{"type": "start"},
		map[string]any{"type": "token", "token": "Once "},
		map[string]any{"type": "error", "message": "slow upstream"},
		map[string]any{"type": "assistant", "content": "upon "},
	} {
		if err := WriteFrame(&body, v); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	body.WriteString("data: a time")

	res, err := Collect(&body)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(res.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(res.Messages))
	}
	if res.Text != "Once upon a time" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "slow upstream" {
		t.Fatalf("unexpected errors: %#v", res.Errors)
	}
}

func TestWriteFrameFormat(t *testing.T) {
	var sb strings.Builder
	if err := WriteFrame(&sb, map[string]string{"type": "done"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if sb.String() != "data: {\"type\":\"done\"}\n\n" {
		t.Fatalf("unexpected frame %q", sb.String())
	}
}
