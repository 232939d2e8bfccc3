package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"cleanse/internal/chat"
	"cleanse/internal/config"
	"cleanse/internal/discord"
	"cleanse/internal/domain"
	"cleanse/internal/httpapi"
	"cleanse/internal/tui"
)

// cliChannel identifies the line-mode conversation.
const cliChannel = "cli"

// newAnswerer returns the remote API client when backend is set, otherwise
// the local chain. The description is shown by interactive front ends.
func newAnswerer(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, backend string) (domain.Answerer, string, func() error, error) {
	if backend == "" {
		backend = cfg.Server.BackendURL
	}
	if backend != "" {
		client := httpapi.NewClient(backend, cfg.Chat.Unreachable, config.Timeout(cfg.LLM.TimeoutSecs), logger)
		return client, "backend " + backend, func() error { return nil }, nil
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, "", nil, err
	}
	desc := fmt.Sprintf("%d chunks de %d posts, %s", a.info.Chunks, a.info.Documents, a.info.Embedder)
	return a.chat, desc, a.Close, nil
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions in a line-by-line terminal session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			answerer, _, closeFn, err := newAnswerer(cmd.Context(), cfg, logger, backend)
			if err != nil {
				return err
			}
			defer closeFn()
			return runChatLoop(cmd.Context(), answerer, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "answer through a running API at this URL")
	return cmd
}

// runChatLoop reads questions line by line until an exit word, end of
// input or cancellation of ctx.
func runChatLoop(ctx context.Context, answerer domain.Answerer, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Chatbot de League of Legends. Digite 'sair' para encerrar.")

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Reading happens on its own goroutine so an interrupt is noticed at the prompt.
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		fmt.Fprint(out, "Você: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if chat.IsExit(line) {
			fmt.Fprintln(out, chat.Farewell)
			return nil
		}
		if ctx.Err() != nil {
			fmt.Fprintln(out)
			return nil
		}
		fmt.Fprintf(out, "Assistente: %s\n\n", answerer.Answer(ctx, cliChannel, line))
	}
}

func newTUICmd(opts *rootOptions) *cobra.Command {
	var (
		backend string
		logPath string
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Ask questions in a full-screen terminal window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			// The window owns the terminal, so logs go to a file.
			f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelOf(opts.verbose)}))

			answerer, desc, closeFn, err := newAnswerer(cmd.Context(), cfg, logger, backend)
			if err != nil {
				return err
			}
			defer closeFn()

			m := tui.New(cmd.Context(), answerer, desc)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "answer through a running API at this URL")
	cmd.Flags().StringVar(&logPath, "log-file", "cleanse-tui.log", "where the window writes its logs")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chatbot over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = cfg.Server.Addr
			}
			return httpapi.NewServer(a.chat, logger).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func newDiscordCmd(opts *rootOptions) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "discord",
		Short: "Run the Discord bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			token, err := config.Secret(cfg.Discord.TokenEnv)
			if err != nil {
				return err
			}
			answerer, _, closeFn, err := newAnswerer(cmd.Context(), cfg, logger, backend)
			if err != nil {
				return err
			}
			defer closeFn()

			bot, err := discord.New(token, cfg.Discord.GuildID, answerer, logger)
			if err != nil {
				return err
			}
			return bot.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "answer through a running API at this URL")
	return cmd
}
