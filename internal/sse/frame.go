package sse

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
)

const (
	dataPrefix = "data:"
	// MaxFrameSize caps how much undelimited text a decoder will hold.
	MaxFrameSize = 2 * 1024 * 1024
)

var (
	frameSeparator = []byte("\n\n")
	lineBreak      = regexp.MustCompile(`\r?\n`)

	ErrFrameTooLarge = errors.New("sse frame exceeds maximum size")
)

// Decoder incrementally cuts a byte stream into blank-line delimited frames.
// A Decoder is owned by a single reader and is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	maxSize int
}

func NewDecoder() *Decoder {
	return &Decoder{maxSize: MaxFrameSize}
}

// Feed appends chunk and returns the messages of every frame completed by it,
// in buffer order. Frames whose payload is empty are dropped.
func (d *Decoder) Feed(chunk []byte) ([]Message, error) {
	d.buf = append(d.buf, chunk...)
	var out []Message
	for {
		idx := bytes.Index(d.buf, frameSeparator)
		if idx == -1 {
			break
		}
		frame := decodeText(d.buf[:idx])
		d.buf = d.buf[idx+len(frameSeparator):]
		if payload := FramePayload(frame); strings.TrimSpace(payload) != "" {
			out = append(out, ParsePayload(payload))
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	if d.maxSize > 0 && len(d.buf) > d.maxSize {
		return out, ErrFrameTooLarge
	}
	return out, nil
}

// Flush performs the end-of-input extraction over whatever is left in the
// buffer and empties it.
func (d *Decoder) Flush() []Message {
	rest := decodeText(d.buf)
	d.buf = nil
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	payload := leftoverPayload(rest)
	if payload == "" {
		return nil
	}
	return []Message{ParsePayload(payload)}
}

// Reset discards buffered text.
func (d *Decoder) Reset() {
	d.buf = nil
}

// Buffered returns the number of bytes waiting for a separator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// FramePayload extracts the payload of one complete frame: lines are trimmed,
// blank lines dropped, a leading "data:" marker (and one following space)
// stripped, and survivors joined with "\n". Unmarked lines are kept as data.
func FramePayload(frame string) string {
	lines := lineBreak.Split(frame, -1)
	data := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		data = append(data, stripDataPrefix(trimmed))
	}
	return strings.Join(data, "\n")
}

// leftoverPayload is the best-effort extraction applied to an unterminated
// tail: the marker is stripped before trimming.
func leftoverPayload(rest string) string {
	lines := lineBreak.Split(rest, -1)
	data := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(stripDataPrefix(l))
		if l == "" {
			continue
		}
		data = append(data, l)
	}
	return strings.Join(data, "\n")
}

// decodeText turns buffered bytes into text, replacing invalid UTF-8 with
// U+FFFD. Frames are cut on ASCII separators, so a well-formed multi-byte
// sequence is never split across two frames.
func decodeText(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func stripDataPrefix(line string) string {
	if !strings.HasPrefix(line, dataPrefix) {
		return line
	}
	line = line[len(dataPrefix):]
	if line != "" && isSpace(line[0]) {
		line = line[1:]
	}
	return line
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
