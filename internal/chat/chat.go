package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"novelstream/internal/ingest"
	"novelstream/internal/notify"
	"novelstream/internal/sse"
	"novelstream/internal/transcript"
)

const ChapterContentEndpoint = "/working_flow/create_chapter_content"

var (
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrStreaming   = errors.New("a reply is already streaming")
	ErrNoSession   = errors.New("session index out of range")
)

// Streamer is satisfied by *ingest.Ingestor.
type Streamer interface {
	Ingest(ctx context.Context, req ingest.Request, policy ingest.RetryPolicy, onMessage func(sse.Message), onDone func()) ingest.Result
}

type Options struct {
	ChapterUID string
	Provider   string
	Policy     ingest.RetryPolicy
	Logger     *slog.Logger
	Toasts     *notify.Toasts
	// Observe sees every streamed message after it was applied.
	Observe func(sse.Message)
}

// Sessions holds the AI chat sessions of one chapter and streams replies into
// them.
type Sessions struct {
	mu        sync.Mutex
	key       string
	store     transcript.Store
	streamer  Streamer
	opts      Options
	logger    *slog.Logger
	sessions  []Session
	selected  int
	streaming bool
	lastError string
}

func NewSessions(store transcript.Store, streamer Streamer, opts Options) *Sessions {
	if opts.Policy == (ingest.RetryPolicy{}) {
		opts.Policy = ingest.DefaultRetryPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		key:      StorageKey(opts.ChapterUID),
		store:    store,
		streamer: streamer,
		opts:     opts,
		logger:   logger,
	}
}

func (s *Sessions) Key() string { return s.key }

// Load reads the persisted sessions. A missing or unreadable record yields a
// single fresh session.
func (s *Sessions) Load(ctx context.Context) error {
	rec, err := s.store.Load(ctx, s.key)
	if err != nil && !errors.Is(err, transcript.ErrNotFound) {
		return err
	}
	s.mu.Lock()
	s.sessions = decodeSessions(rec.Data)
	created := false
	if len(s.sessions) == 0 {
		s.sessions = []Session{newSession()}
		s.selected = 0
		created = true
	}
	if s.selected >= len(s.sessions) {
		s.selected = len(s.sessions) - 1
	}
	s.mu.Unlock()
	if created {
		return s.Save(ctx)
	}
	return nil
}

// Save persists every session under the chapter key.
func (s *Sessions) Save(ctx context.Context) error {
	s.mu.Lock()
	data, err := json.Marshal(s.sessions)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, transcript.Record{Key: s.key, Data: data}); err != nil {
		s.logger.Warn("save sessions failed", "key", s.key, "error", err)
		return err
	}
	return nil
}

// Create appends a new session and selects it.
func (s *Sessions) Create(ctx context.Context) (Session, error) {
	s.mu.Lock()
	sess := newSession()
	s.sessions = append(s.sessions, sess)
	s.selected = len(s.sessions) - 1
	s.mu.Unlock()
	return sess, s.Save(ctx)
}

// Delete removes the session at idx. Deleting the last one leaves a fresh
// session in its place.
func (s *Sessions) Delete(ctx context.Context, idx int) error {
	s.mu.Lock()
	if idx < 0 || idx >= len(s.sessions) {
		s.mu.Unlock()
		return ErrNoSession
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if len(s.sessions) == 0 {
		s.sessions = []Session{newSession()}
		s.selected = 0
	}
	if s.selected >= len(s.sessions) {
		s.selected = len(s.sessions) - 1
	}
	s.mu.Unlock()
	return s.Save(ctx)
}

func (s *Sessions) Select(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.sessions) {
		return ErrNoSession
	}
	s.selected = idx
	return nil
}

func (s *Sessions) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	return out
}

func (s *Sessions) Selected() (Session, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return Session{}, -1
	}
	return s.sessions[s.selected].clone(), s.selected
}

func (s *Sessions) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// LastError is the most recent in-band stream error, cleared by Send.
func (s *Sessions) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Send appends prompt to the selected session and streams the assistant
// reply into a placeholder turn. It returns once the stream is done and the
// sessions are saved.
func (s *Sessions) Send(ctx context.Context, prompt string) (ingest.Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ingest.Result{}, ErrEmptyPrompt
	}

	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ingest.Result{}, ErrStreaming
	}
	if len(s.sessions) == 0 {
		s.sessions = []Session{newSession()}
		s.selected = 0
	}
	sess := &s.sessions[s.selected]
	sess.Messages = append(sess.Messages, Turn{Role: RoleUser, Content: prompt}, Turn{Role: RoleAssistant})
	ap := &applier{sessionID: sess.ID, assistantIndex: len(sess.Messages) - 1}
	conversation := append([]Turn(nil), sess.Messages...)
	s.streaming = true
	s.lastError = ""
	s.mu.Unlock()

	req := ingest.Request{
		Endpoint: ChapterContentEndpoint,
		Body: map[string]any{
			"chapter_uid":           s.opts.ChapterUID,
			"provider":              s.opts.Provider,
			"conversation_messages": conversation,
		},
	}
	var saveErr error
	res := s.streamer.Ingest(ctx, req, s.opts.Policy, func(m sse.Message) {
		s.apply(ap, m)
		if s.opts.Observe != nil {
			s.opts.Observe(m)
		}
	}, func() {
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
		saveErr = s.Save(context.WithoutCancel(ctx))
	})
	if saveErr != nil {
		return res, fmt.Errorf("save sessions: %w", saveErr)
	}
	return res, nil
}

// applier tracks where one streamed reply lands.
type applier struct {
	sessionID      string
	assistantIndex int
	epoch          int
}

func (s *Sessions) apply(ap *applier, m sse.Message) {
	if m.IsError() {
		text := m.StringField("message")
		if text == "" {
			text = "stream error"
		}
		s.mu.Lock()
		s.lastError = text
		s.mu.Unlock()
		notify.Push(s.opts.Toasts, text, notify.LevelError)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.find(ap.sessionID)
	if sess == nil {
		return
	}
	// A new epoch replays the reply from the start; drop what the failed
	// attempt had streamed.
	if m.Epoch > ap.epoch {
		ap.epoch = m.Epoch
		if ap.assistantIndex < len(sess.Messages) && sess.Messages[ap.assistantIndex].Role == RoleAssistant {
			sess.Messages[ap.assistantIndex].Content = ""
		}
		sess.Messages = sess.Messages[:min(len(sess.Messages), ap.assistantIndex+1)]
	}

	text := m.Content()
	switch {
	case m.Kind == sse.KindRaw:
	case m.Type() == "token":
	case m.Type() == "assistant" && text != "":
	default:
		return
	}
	if ap.assistantIndex >= len(sess.Messages) || sess.Messages[ap.assistantIndex].Role != RoleAssistant {
		sess.Messages = append(sess.Messages, Turn{Role: RoleAssistant, Content: text})
		ap.assistantIndex = len(sess.Messages) - 1
		return
	}
	sess.Messages[ap.assistantIndex].Content += text
}

func (s *Sessions) find(id string) *Session {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return &s.sessions[i]
		}
	}
	return nil
}
