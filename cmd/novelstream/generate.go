package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"novelstream/internal/config"
	"novelstream/internal/ingest"
	"novelstream/internal/workflow"
)

type generateOptions struct {
	novelUID string
	provider string
	retries  int
	chapters int
}

func (o *generateOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.novelUID, "novel", "", "novel uid to generate for")
	cmd.Flags().StringVar(&o.provider, "provider", "", "model provider (defaults to config)")
	cmd.Flags().IntVar(&o.retries, "retries", -1, "retry count (defaults to config)")
	_ = cmd.MarkFlagRequired("novel")
}

func newOutlineCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "outline",
		Short: "Generate the chapter outline of a novel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := newRunner(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			batch, err := runner.Outline(cmd.Context(), opts.novelUID, opts.chapters, func(c workflow.Chapter) {
				fmt.Fprintf(out, "%d. %s\t%s\n", c.Index, c.Title, c.UID)
			}, func(b workflow.Batch[workflow.Chapter]) {
				fmt.Fprintf(out, "created %d chapters\n", len(b.UIDs))
			})
			if err != nil {
				return err
			}
			return finished(cmd, batch.Result)
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVar(&opts.chapters, "chapters", 0, "target chapter count (0 lets the backend decide)")
	return cmd
}

func newCharactersCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "characters",
		Short: "Generate the character roster of a novel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := newRunner(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			batch, err := runner.Characters(cmd.Context(), opts.novelUID, func(c workflow.Character) {
				tag := ""
				if c.IsMain {
					tag = " (main)"
				}
				fmt.Fprintf(out, "%s%s\t%s\n", c.Name, tag, c.UID)
			}, func(b workflow.Batch[workflow.Character]) {
				fmt.Fprintf(out, "created %d characters\n", len(b.UIDs))
			})
			if err != nil {
				return err
			}
			return finished(cmd, batch.Result)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newRunner(cmd *cobra.Command, opts generateOptions) (*workflow.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.provider == "" {
		opts.provider = cfg.Provider
	}
	in, err := newIngestor(cfg)
	if err != nil {
		return nil, err
	}
	toasts, _ := stderrToasts(cmd)
	return workflow.NewRunner(in, workflow.Options{
		Provider: opts.provider,
		Policy:   retryPolicy(cfg, opts.retries),
		Logger:   config.Logger,
		Toasts:   toasts,
	}), nil
}

func finished(cmd *cobra.Command, res ingest.Result) error {
	config.Logger.Debug("stream finished", "request_id", res.RequestID, "attempts", res.Attempts, "messages", res.Delivered)
	if res.Canceled {
		return cmd.Context().Err()
	}
	return res.Err
}
