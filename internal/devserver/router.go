package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"novelstream/internal/sse"
	"novelstream/internal/util"
)

type App struct {
	Router http.Handler
	gen    Generator
	logger *slog.Logger
}

func NewApp(gen Generator, logger *slog.Logger) *App {
	if gen == nil {
		gen = Echo{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{gen: gen, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Get("/healthz", app.health)
	r.Get("/readyz", app.health)
	r.Route("/api/working_flow", func(wr chi.Router) {
		wr.Post("/create_chapter_content", app.chapterContent)
		wr.Post("/create_chapter_outline", app.chapterOutline)
		wr.Post("/create_characters", app.characters)
	})
	app.Router = r
	return app
}

func (a *App) health(w http.ResponseWriter, _ *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) chapterContent(w http.ResponseWriter, r *http.Request) {
	var req ChapterContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// An empty chapter_uid is the global assistant scope.
	if lastUserTurn(req.ConversationMessages) == "" {
		util.WriteError(w, http.StatusBadRequest, "conversation_messages has no user turn")
		return
	}
	a.logger.Info("create chapter content", "chapter_uid", req.ChapterUID, "attempt", r.Header.Get("X-Stream-Attempt"))
	a.stream(w, r, func(emit Emit) error {
		return a.gen.ChapterContent(r.Context(), req, emit)
	})
}

func (a *App) chapterOutline(w http.ResponseWriter, r *http.Request) {
	var req OutlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NovelUID == "" {
		util.WriteError(w, http.StatusBadRequest, "novel_uid is required")
		return
	}
	if req.TargetChapters < 0 {
		util.WriteError(w, http.StatusBadRequest, "target_chapters must not be negative")
		return
	}
	a.logger.Info("create chapter outline", "novel_uid", req.NovelUID, "target_chapters", req.TargetChapters)
	a.stream(w, r, func(emit Emit) error {
		return a.gen.ChapterOutline(r.Context(), req, emit)
	})
}

func (a *App) characters(w http.ResponseWriter, r *http.Request) {
	var req CharactersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NovelUID == "" {
		util.WriteError(w, http.StatusBadRequest, "novel_uid is required")
		return
	}
	a.logger.Info("create characters", "novel_uid", req.NovelUID)
	a.stream(w, r, func(emit Emit) error {
		return a.gen.Characters(r.Context(), req, emit)
	})
}

func (a *App) stream(w http.ResponseWriter, r *http.Request, run func(Emit) error) {
	if _, ok := w.(http.Flusher); !ok {
		util.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(v any) error { return sse.WriteFrame(w, v) }
	err := run(emit)
	switch {
	case err == nil:
	case errors.Is(err, ErrAbort):
		panic(http.ErrAbortHandler)
	case r.Context().Err() != nil:
		a.logger.Debug("client went away", "request_id", middleware.GetReqID(r.Context()))
	default:
		a.logger.Error("generation failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		_ = emit(map[string]any{"type": "error", "message": err.Error()})
	}
}
