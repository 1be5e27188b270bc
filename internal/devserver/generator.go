package devserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAbort makes the handler drop the connection without finishing the
// response, the way a crashed backend would.
var ErrAbort = errors.New("abort stream")

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChapterContentRequest struct {
	ChapterUID           string `json:"chapter_uid"`
	Provider             string `json:"provider"`
	ConversationMessages []Turn `json:"conversation_messages"`
}

type CharactersRequest struct {
	NovelUID string `json:"novel_uid"`
	Provider string `json:"provider"`
}

type OutlineRequest struct {
	NovelUID       string `json:"novel_uid"`
	Provider       string `json:"provider"`
	TargetChapters int    `json:"target_chapters,omitempty"`
}

// Emit writes one frame to the client.
type Emit func(v any) error

// Generator produces the frames of the streaming endpoints.
type Generator interface {
	ChapterContent(ctx context.Context, req ChapterContentRequest, emit Emit) error
	ChapterOutline(ctx context.Context, req OutlineRequest, emit Emit) error
	Characters(ctx context.Context, req CharactersRequest, emit Emit) error
}

// DefaultOutlineChapters is how many chapters Echo outlines when the request
// names no target.
const DefaultOutlineChapters = 3

// Echo streams the last user turn back word by word. It needs no model
// provider and is what `novelstream serve` runs.
type Echo struct {
	Delay time.Duration
}

func (e Echo) ChapterContent(ctx context.Context, req ChapterContentRequest, emit Emit) error {
	prompt := lastUserTurn(req.ConversationMessages)
	if prompt == "" {
		return emit(map[string]any{"type": "error", "message": "no user message"})
	}
	for _, word := range strings.Fields(prompt) {
		if err := e.wait(ctx); err != nil {
			return err
		}
		if err := emit(map[string]any{"type": "token", "token": word + " "}); err != nil {
			return err
		}
	}
	return emit(map[string]any{"type": "done"})
}

func (e Echo) ChapterOutline(ctx context.Context, req OutlineRequest, emit Emit) error {
	n := req.TargetChapters
	if n <= 0 {
		n = DefaultOutlineChapters
	}
	uids := []string{}
	if err := emit(map[string]any{"type": "start", "chapter_uids": uids}); err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		if err := e.wait(ctx); err != nil {
			return err
		}
		uid := fmt.Sprintf("%s-ch-%d", req.NovelUID, i)
		uids = append(uids, uid)
		ev := map[string]any{
			"type": "chapter",
			"chapter": map[string]any{
				"uid":       uid,
				"novel_uid": req.NovelUID,
				"index":     i,
				"title":     fmt.Sprintf("Chapter %d", i),
				"synopsis":  "",
			},
			"created_count": len(uids),
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	return emit(map[string]any{"type": "done", "chapter_uids": uids})
}

func (e Echo) Characters(ctx context.Context, req CharactersRequest, emit Emit) error {
	var uids []string
	if err := emit(map[string]any{"type": "start", "character_uids": []string{}}); err != nil {
		return err
	}
	for i, name := range []string{"Protagonist", "Rival"} {
		if err := e.wait(ctx); err != nil {
			return err
		}
		uid := fmt.Sprintf("%s-char-%d", req.NovelUID, i+1)
		uids = append(uids, uid)
		ev := map[string]any{
			"type": "character",
			"character": map[string]any{
				"uid":         uid,
				"novel_uid":   req.NovelUID,
				"name":        name,
				"description": "",
				"is_main":     i == 0,
			},
			"created_count": len(uids),
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	return emit(map[string]any{"type": "done", "character_uids": uids})
}

func (e Echo) wait(ctx context.Context) error {
	if e.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func lastUserTurn(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			return strings.TrimSpace(turns[i].Content)
		}
	}
	return ""
}
