package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"novelstream/internal/chat"
	"novelstream/internal/config"
	"novelstream/internal/sse"
	"novelstream/internal/transcript"
)

type chatOptions struct {
	chapterUID string
	provider   string
	retries    int
	newSession bool
}

func newChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a prompt to the chapter assistant and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.chapterUID, "chapter", "", "chapter uid the session belongs to")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "model provider (defaults to config)")
	cmd.Flags().IntVar(&opts.retries, "retries", -1, "retry count (defaults to config)")
	cmd.Flags().BoolVar(&opts.newSession, "new", false, "start a new session instead of continuing the selected one")
	return cmd
}

func runChat(cmd *cobra.Command, opts chatOptions, prompt string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.provider == "" {
		opts.provider = cfg.Provider
	}
	in, err := newIngestor(cfg)
	if err != nil {
		return err
	}

	store, err := transcript.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	toasts, stopToasts := stderrToasts(cmd)
	defer stopToasts()

	out := cmd.OutOrStdout()
	sessions := chat.NewSessions(store, in, chat.Options{
		ChapterUID: opts.chapterUID,
		Provider:   opts.provider,
		Policy:     retryPolicy(cfg, opts.retries),
		Logger:     config.Logger,
		Toasts:     toasts,
		Observe:    printer(out),
	})
	if err := sessions.Load(ctx); err != nil {
		return err
	}
	if opts.newSession {
		if _, err := sessions.Create(ctx); err != nil {
			return err
		}
	}

	res, err := sessions.Send(ctx, prompt)
	fmt.Fprintln(out)
	if err != nil {
		return err
	}
	config.Logger.Debug("stream finished", "request_id", res.RequestID, "attempts", res.Attempts, "messages", res.Delivered)
	if res.Canceled {
		return ctx.Err()
	}
	return res.Err
}

// printer writes streamed text as it arrives. A new epoch restarts the reply,
// so the partial line is abandoned.
func printer(w io.Writer) func(sse.Message) {
	epoch := 0
	return func(m sse.Message) {
		if m.Epoch > epoch {
			epoch = m.Epoch
			fmt.Fprintln(w, "\n--- retrying ---")
		}
		if text := m.Content(); text != "" {
			fmt.Fprint(w, text)
		}
	}
}
