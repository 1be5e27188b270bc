package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"novelstream/internal/config"
	"novelstream/internal/ingest"
	"novelstream/internal/notify"
	"novelstream/internal/transport"
)

// newIngestor builds the backend client every streaming command shares.
func newIngestor(cfg config.Config) (*ingest.Ingestor, error) {
	hello, err := transport.ParseHello(cfg.TLSHello)
	if err != nil {
		return nil, err
	}
	doer := transport.New(transport.Options{TLSFingerprint: cfg.TLSFingerprint, Hello: hello})
	return ingest.New(cfg.APIBase, ingest.WithDoer(doer), ingest.WithLogger(config.Logger)), nil
}

func retryPolicy(cfg config.Config, override int) ingest.RetryPolicy {
	policy := ingest.RetryPolicy{MaxRetries: cfg.Retries, BaseDelay: cfg.RetryDelay()}
	if override >= 0 {
		policy.MaxRetries = override
	}
	return policy
}

// stderrToasts prints error toasts on the command's error stream until the
// returned func is called.
func stderrToasts(cmd *cobra.Command) (*notify.Toasts, func()) {
	toasts := notify.NewToasts()
	errOut := cmd.ErrOrStderr()
	sub := toasts.Subscribe(func(t notify.Toast) {
		fmt.Fprintf(errOut, "\n[%s] %s\n", t.Level, t.Message)
	})
	return toasts, sub.Unsubscribe
}
