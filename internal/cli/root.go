// Package cli is the command-line entrypoint. Each command builds the
// components it needs once and hands them to a front end.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cleanse/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "cleanse",
		Short:        "League of Legends chatbot grounded on Reddit discussions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (default ./config.yaml, then ~/.config/cleanse/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCollectCmd(opts),
		newIndexCmd(opts),
		newChatCmd(opts),
		newTUICmd(opts),
		newServeCmd(opts),
		newDiscordCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// load reads .env, the config file and builds the process logger.
func (o *rootOptions) load() (*config.AppConfig, *slog.Logger, error) {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelOf(o.verbose)}))
	slog.SetDefault(logger)

	var (
		cfg  *config.AppConfig
		path = o.configPath
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("config loaded", "path", path)
	return cfg, logger, nil
}

func levelOf(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
