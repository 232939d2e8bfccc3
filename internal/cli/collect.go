package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cleanse/internal/config"
	"cleanse/internal/corpus"
	"cleanse/internal/events"
	"cleanse/internal/reddit"
)

func newCollectCmd(opts *rootOptions) *cobra.Command {
	var natsURL string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch new champion posts from Reddit into the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			r := cfg.Reddit

			clientID, err := config.Secret(r.ClientIDEnv)
			if err != nil {
				return err
			}
			clientSecret, err := config.Secret(r.ClientSecretEnv)
			if err != nil {
				return err
			}

			store, err := corpus.Open(cfg.Corpus.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			targets := make([]reddit.Target, len(r.Targets))
			for i, t := range r.Targets {
				targets[i] = reddit.Target{Champion: t.Champion, Subreddit: t.Subreddit}
			}
			client := reddit.NewOAuthClient(ctx, clientID, clientSecret, r.UserAgent, config.Timeout(r.TimeoutSecs))
			collector := reddit.NewCollector(reddit.Config{
				UserAgent:         r.UserAgent,
				Targets:           targets,
				PostLimit:         r.PostLimit,
				CommentsLimit:     r.CommentsLimit,
				MinCommentScore:   r.MinCommentScore,
				RequestsPerSecond: r.RequestsPerSecond,
			}, client, store, logger)

			if natsURL == "" {
				natsURL = cfg.NATS.URL
			}
			if natsURL != "" {
				pub, err := events.Connect(natsURL, cfg.NATS.Subject)
				if err != nil {
					return err
				}
				defer pub.Close()
				collector.WithPublisher(pub)
				logger.Info("publishing new posts", "subject", pub.Subject())
			}

			stats, err := collector.Run(ctx)
			if err != nil {
				return err
			}
			total, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d posts novos de %d encontrados; %d no corpus (%s).\n", stats.Inserted, stats.Matched, total, store.Path())
			if len(stats.Failed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Subreddits com falha: %v\n", stats.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "publish newly stored posts to this NATS server (overrides nats.url)")
	return cmd
}
