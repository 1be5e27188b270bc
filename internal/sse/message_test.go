package sse

import "testing"

func TestParsePayloadJSONScalar(t *testing.T) {
	m := ParsePayload("42")
	if !m.IsJSON() || m.Value() != float64(42) {
		t.Fatalf("expected json number, got %#v", m)
	}
	if m.Type() != "" {
		t.Fatalf("scalar should have no type, got %q", m.Type())
	}
}

func TestErrorMessageShape(t *testing.T) {
	m := ErrorMessage("HTTP 502 bad gateway")
	if !m.IsError() {
		t.Fatalf("expected error message: %s", m)
	}
	if got := m.StringField("message"); got != "HTTP 502 bad gateway" {
		t.Fatalf("unexpected message field %q", got)
	}
}

func TestMessageContent(t *testing.T) {
	cases := []struct {
		msg  Message
		want string
	}{
		{ParsePayload(`{"type":"token","token":"a"}`), "a"},
		{ParsePayload(`{"type":"assistant","content":"b"}`), "b"},
		{ParsePayload(`{"type":"done"}`), ""},
		{RawMessage("c"), "c"},
	}
	for _, tc := range cases {
		if got := tc.msg.Content(); got != tc.want {
			t.Fatalf("content of %s: got %q want %q", tc.msg, got, tc.want)
		}
	}
}

func TestMessageDecodeRejectsRaw(t *testing.T) {
	var v map[string]any
	if err := RawMessage("x").Decode(&v); err == nil {
		t.Fatal("expected decode error for raw message")
	}
}
