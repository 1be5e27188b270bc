package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"novelstream/internal/config"
	"novelstream/internal/devserver"
)

func newServeCmd() *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development backend that echoes prompts as token streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg.Port, delay)
		},
	}
	cmd.Flags().DurationVar(&delay, "token-delay", 50*time.Millisecond, "pause between streamed tokens")
	return cmd
}

func serve(ctx context.Context, port string, delay time.Duration) error {
	app := devserver.NewApp(devserver.Echo{Delay: delay}, config.Logger)
	srv := &http.Server{
		Addr:    "127.0.0.1:" + port,
		Handler: app.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		config.Logger.Info("starting novelstream dev backend", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			config.Logger.Error("server stopped unexpectedly", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	config.Logger.Info("shutdown signal received")

	// Allow up to 10 seconds for in-flight streams to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.Logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	config.Logger.Info("server gracefully stopped")
	return nil
}
