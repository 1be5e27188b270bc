package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelstream/internal/devserver"
	"novelstream/internal/ingest"
	"novelstream/internal/notify"
	"novelstream/internal/sse"
	"novelstream/internal/transcript"
)

type scriptedStreamer struct {
	msgs    []sse.Message
	lastReq ingest.Request
}

func (s *scriptedStreamer) Ingest(_ context.Context, req ingest.Request, _ ingest.RetryPolicy, onMessage func(sse.Message), onDone func()) ingest.Result {
	s.lastReq = req
	for _, m := range s.msgs {
		onMessage(m)
	}
	onDone()
	return ingest.Result{Attempts: 1, Delivered: len(s.msgs)}
}

func msg(t *testing.T, payload string, epoch int) sse.Message {
	t.Helper()
	m := sse.ParsePayload(payload)
	m.Epoch = epoch
	return m
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendAppliesTokensAndPersists(t *testing.T) {
	store := transcript.NewMemoryStore()
	streamer := &scriptedStreamer{msgs: []sse.Message{
		msg(t, `{"type":"start"}`, 0),
		msg(t, `{"type":"token","token":"Rain "}`, 0),
		msg(t, `{"type":"assistant","content":"fell"}`, 0),
		msg(t, `and fell`, 0),
	}}
	s := NewSessions(store, streamer, Options{ChapterUID: "c1", Provider: "deepseek", Logger: quietLogger()})
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Send(context.Background(), "  describe the storm  ")
	require.NoError(t, err)

	sess, _ := s.Selected()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "describe the storm"}, sess.Messages[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "Rain felland fell"}, sess.Messages[1])
	assert.False(t, s.Streaming())

	assert.Equal(t, ChapterContentEndpoint, streamer.lastReq.Endpoint)
	body, err := json.Marshal(streamer.lastReq.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chapter_uid":"c1","provider":"deepseek","conversation_messages":[{"role":"user","content":"describe the storm"},{"role":"assistant","content":""}]}`, string(body))

	rec, err := store.Load(context.Background(), "ai_sessions:c1")
	require.NoError(t, err)
	var saved []Session
	require.NoError(t, json.Unmarshal(rec.Data, &saved))
	require.Len(t, saved, 1)
	assert.Equal(t, "Rain felland fell", saved[0].Messages[1].Content)
}

func TestSendDiscardsPartialReplyOnNewEpoch(t *testing.T) {
	toasts := notify.NewToasts()
	var got []notify.Toast
	sub := toasts.Subscribe(func(tt notify.Toast) { got = append(got, tt) })
	defer sub.Unsubscribe()

	streamer := &scriptedStreamer{msgs: []sse.Message{
		msg(t, `{"type":"token","token":"half "}`, 0),
		sse.ErrorMessage("read: unexpected EOF"),
		msg(t, `{"type":"token","token":"whole "}`, 1),
		msg(t, `{"type":"token","token":"reply"}`, 1),
	}}
	s := NewSessions(transcript.NewMemoryStore(), streamer, Options{Toasts: toasts, Logger: quietLogger()})
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Send(context.Background(), "go")
	require.NoError(t, err)

	sess, _ := s.Selected()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "whole reply", sess.Messages[1].Content)
	assert.Equal(t, "read: unexpected EOF", s.LastError())
	assert.Equal(t, []notify.Toast{{Message: "read: unexpected EOF", Level: notify.LevelError}}, got)
	assert.Equal(t, "ai_sessions:global", s.Key())
}

func TestSendRejectsEmptyPrompt(t *testing.T) {
	s := NewSessions(transcript.NewMemoryStore(), &scriptedStreamer{}, Options{Logger: quietLogger()})
	_, err := s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestLoadRecoversFromCorruptRecord(t *testing.T) {
	store := transcript.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), transcript.Record{Key: StorageKey("c9"), Data: json.RawMessage(`"oops"`)}))

	s := NewSessions(store, &scriptedStreamer{}, Options{ChapterUID: "c9", Logger: quietLogger()})
	require.NoError(t, s.Load(context.Background()))
	assert.Len(t, s.List(), 1)
}

func TestCreateDeleteSelect(t *testing.T) {
	s := NewSessions(transcript.NewMemoryStore(), &scriptedStreamer{}, Options{Logger: quietLogger()})
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	_, err := s.Create(ctx)
	require.NoError(t, err)
	_, idx := s.Selected()
	assert.Equal(t, 1, idx)

	require.NoError(t, s.Delete(ctx, 1))
	_, idx = s.Selected()
	assert.Equal(t, 0, idx)

	require.NoError(t, s.Delete(ctx, 0))
	assert.Len(t, s.List(), 1, "deleting the last session leaves a fresh one")
	assert.ErrorIs(t, s.Select(3), ErrNoSession)
	assert.ErrorIs(t, s.Delete(ctx, 7), ErrNoSession)
}

type flakyEcho struct {
	devserver.Echo
	calls atomic.Int32
}

func (f *flakyEcho) ChapterContent(ctx context.Context, req devserver.ChapterContentRequest, emit devserver.Emit) error {
	if f.calls.Add(1) == 1 {
		if err := emit(map[string]any{"type": "token", "token": "lost "}); err != nil {
			return err
		}
		return devserver.ErrAbort
	}
	return f.Echo.ChapterContent(ctx, req, emit)
}

func TestSendAgainstDevServerRecoversFromAbort(t *testing.T) {
	gen := &flakyEcho{}
	ts := httptest.NewServer(devserver.NewApp(gen, quietLogger()).Router)
	defer ts.Close()

	in := ingest.New(ts.URL+"/api", ingest.WithLogger(quietLogger()))
	s := NewSessions(transcript.NewMemoryStore(), in, Options{
		ChapterUID: "c1",
		Policy:     ingest.RetryPolicy{MaxRetries: 2, BaseDelay: 10 * time.Millisecond},
		Logger:     quietLogger(),
	})
	require.NoError(t, s.Load(context.Background()))

	res, err := s.Send(context.Background(), "bright morning")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Attempts)

	sess, _ := s.Selected()
	assert.Equal(t, "bright morning ", sess.Messages[1].Content)
	assert.Contains(t, s.LastError(), "read:")
}
