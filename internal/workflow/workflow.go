// Package workflow drives the novel generation streams that produce lists of
// items: the chapter outline and the character roster.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"novelstream/internal/ingest"
	"novelstream/internal/notify"
	"novelstream/internal/sse"
)

const (
	OutlineEndpoint    = "/working_flow/create_chapter_outline"
	CharactersEndpoint = "/working_flow/create_characters"
)

var ErrNoNovel = errors.New("novel uid is required")

// Streamer is satisfied by *ingest.Ingestor.
type Streamer interface {
	Ingest(ctx context.Context, req ingest.Request, policy ingest.RetryPolicy, onMessage func(sse.Message), onDone func()) ingest.Result
}

type Chapter struct {
	UID      string `json:"uid"`
	NovelUID string `json:"novel_uid"`
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Synopsis string `json:"synopsis"`
}

type Character struct {
	UID         string `json:"uid"`
	NovelUID    string `json:"novel_uid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsMain      bool   `json:"is_main"`
}

// Batch is what one generation stream produced.
type Batch[T any] struct {
	Items []T
	// UIDs is the list the backend reported in its done frame.
	UIDs   []string
	Errors []string
	Result ingest.Result
}

type Options struct {
	Provider string
	Policy   ingest.RetryPolicy
	Logger   *slog.Logger
	Toasts   *notify.Toasts
}

type Runner struct {
	streamer Streamer
	opts     Options
	logger   *slog.Logger
}

func NewRunner(streamer Streamer, opts Options) *Runner {
	if opts.Policy == (ingest.RetryPolicy{}) {
		opts.Policy = ingest.DefaultRetryPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{streamer: streamer, opts: opts, logger: logger}
}

// Outline streams a chapter outline for the novel. targetChapters <= 0 lets
// the backend choose. onChapter sees each chapter as it arrives and onDone
// runs once with the final batch.
func (r *Runner) Outline(ctx context.Context, novelUID string, targetChapters int, onChapter func(Chapter), onDone func(Batch[Chapter])) (Batch[Chapter], error) {
	body := map[string]any{"novel_uid": novelUID, "provider": r.opts.Provider}
	if targetChapters > 0 {
		body["target_chapters"] = targetChapters
	}
	return run(ctx, r, novelUID, OutlineEndpoint, body, "chapter", "chapter_uids", onChapter, onDone)
}

// Characters streams the character roster for the novel.
func (r *Runner) Characters(ctx context.Context, novelUID string, onCharacter func(Character), onDone func(Batch[Character])) (Batch[Character], error) {
	body := map[string]any{"novel_uid": novelUID, "provider": r.opts.Provider}
	return run(ctx, r, novelUID, CharactersEndpoint, body, "character", "character_uids", onCharacter, onDone)
}

func run[T any](ctx context.Context, r *Runner, novelUID, endpoint string, body map[string]any, itemType, uidsField string, onItem func(T), onDone func(Batch[T])) (Batch[T], error) {
	var batch Batch[T]
	if strings.TrimSpace(novelUID) == "" {
		return batch, ErrNoNovel
	}
	epoch := 0
	apply := func(m sse.Message) {
		if m.IsError() {
			text := m.StringField("message")
			if text == "" {
				text = "stream error"
			}
			batch.Errors = append(batch.Errors, text)
			notify.Push(r.opts.Toasts, text, notify.LevelError)
			return
		}
		// A retry regenerates the list from the start.
		if m.Epoch > epoch {
			epoch = m.Epoch
			batch.Items = nil
			batch.UIDs = nil
		}
		switch m.Type() {
		case itemType:
			var frame map[string]json.RawMessage
			var item T
			if err := m.Decode(&frame); err != nil || len(frame[itemType]) == 0 {
				r.logger.Debug("skip item frame without payload", "endpoint", endpoint, "error", err)
				return
			}
			if err := json.Unmarshal(frame[itemType], &item); err != nil {
				r.logger.Debug("skip malformed item", "endpoint", endpoint, "error", err)
				return
			}
			batch.Items = append(batch.Items, item)
			if onItem != nil {
				onItem(item)
			}
		case "done":
			var done map[string]any
			if err := m.Decode(&done); err != nil {
				return
			}
			batch.UIDs = stringList(done[uidsField])
		}
	}

	req := ingest.Request{Endpoint: endpoint, Body: body}
	batch.Result = r.streamer.Ingest(ctx, req, r.opts.Policy, apply, nil)
	r.logger.Info("generation finished", "endpoint", endpoint, "novel_uid", novelUID, "items", len(batch.Items), "attempts", batch.Result.Attempts)
	if onDone != nil {
		onDone(batch)
	}
	return batch, nil
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, x := range raw {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
