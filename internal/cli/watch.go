package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"cleanse/internal/domain"
	"cleanse/internal/events"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var natsURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print posts announced by collect runs as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if natsURL == "" {
				natsURL = cfg.NATS.URL
			}
			if natsURL == "" {
				return &domain.ConfigurationError{Key: "nats.url", Reason: "required to watch for new posts"}
			}
			nc, err := nats.Connect(natsURL, nats.Name("cleanse-watch"))
			if err != nil {
				return &domain.TransportError{Op: "nats connect", Err: err}
			}
			defer nc.Close()
			return watchPosts(cmd.Context(), nc, cfg.NATS.Subject, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server to follow (overrides nats.url)")
	return cmd
}

// watchPosts prints one line per announced post until ctx ends.
func watchPosts(ctx context.Context, nc *nats.Conn, subject string, out io.Writer, logger *slog.Logger) error {
	var mu sync.Mutex
	sub, err := events.Subscribe(nc, subject, func(_ context.Context, p domain.Post) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "[%s] r/%s %s %s\n", p.ChampionSearched, p.Subreddit, p.Title, p.URL)
	})
	if err != nil {
		return &domain.TransportError{Op: "nats subscribe", Err: err}
	}
	if err := nc.Flush(); err != nil {
		return &domain.TransportError{Op: "nats flush", Err: err}
	}
	logger.Info("watching for new posts", "subject", sub.Subject)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && nc.IsConnected() {
		logger.Warn("unsubscribe failed", "err", err)
	}
	return nil
}
