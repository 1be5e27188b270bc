package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the two shapes a decoded frame can take.
type Kind int

const (
	// KindRaw is a payload that did not parse as JSON and is delivered verbatim.
	KindRaw Kind = iota
	// KindJSON is a payload that parsed as a JSON value of any shape.
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one decoded frame.
type Message struct {
	Kind Kind
	JSON json.RawMessage
	Raw  string
	// Epoch is the attempt index that produced the message. Decoders leave it
	// at zero; the ingestor stamps it.
	Epoch int
}

// ParsePayload turns a prefix-stripped payload into a Message. Parse failure is
// not an error: the payload falls back to a raw message.
func ParsePayload(payload string) Message {
	b := []byte(payload)
	if json.Valid(b) {
		return Message{Kind: KindJSON, JSON: json.RawMessage(bytes.TrimSpace(b))}
	}
	return Message{Kind: KindRaw, Raw: payload}
}

// JSONMessage marshals v into a structured message.
func JSONMessage(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: KindJSON, JSON: b}, nil
}

// ErrorMessage builds the in-band {"type":"error","message":...} message used to
// surface attempt failures on the data channel.
func ErrorMessage(text string) Message {
	m, _ := JSONMessage(map[string]string{"type": "error", "message": text})
	return m
}

func RawMessage(text string) Message {
	return Message{Kind: KindRaw, Raw: text}
}

func (m Message) IsJSON() bool { return m.Kind == KindJSON }

// Decode unmarshals a structured message into v.
func (m Message) Decode(v any) error {
	if m.Kind != KindJSON {
		return fmt.Errorf("decode %s message", m.Kind)
	}
	return json.Unmarshal(m.JSON, v)
}

// Value returns the message as a generic Go value: the decoded JSON value for
// structured messages, the string for raw ones.
func (m Message) Value() any {
	if m.Kind != KindJSON {
		return m.Raw
	}
	var v any
	if err := json.Unmarshal(m.JSON, &v); err != nil {
		return nil
	}
	return v
}

func (m Message) object() map[string]any {
	if m.Kind != KindJSON || len(m.JSON) == 0 || m.JSON[0] != '{' {
		return nil
	}
	obj := map[string]any{}
	if err := json.Unmarshal(m.JSON, &obj); err != nil {
		return nil
	}
	return obj
}

// Field returns a top-level field of a JSON object message.
func (m Message) Field(name string) (any, bool) {
	obj := m.object()
	if obj == nil {
		return nil, false
	}
	v, ok := obj[name]
	return v, ok
}

// StringField returns a top-level string field, or "" when absent.
func (m Message) StringField(name string) string {
	v, _ := m.Field(name)
	s, _ := v.(string)
	return s
}

// Type returns the "type" discriminator of an object message.
func (m Message) Type() string {
	return m.StringField("type")
}

// IsError reports whether the message is an in-band error.
func (m Message) IsError() bool {
	return m.Type() == "error"
}

// Content returns the assistant text a message contributes to a transcript:
// the token of a token message, the content of an assistant message, or the
// whole text of a raw message.
func (m Message) Content() string {
	if m.Kind == KindRaw {
		return m.Raw
	}
	switch m.Type() {
	case "token":
		return m.StringField("token")
	case "assistant":
		return m.StringField("content")
	}
	return ""
}

func (m Message) String() string {
	if m.Kind == KindJSON {
		return string(m.JSON)
	}
	return m.Raw
}
