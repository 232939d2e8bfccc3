// Package chat runs one conversation turn: retrieve context, assemble the
// grounded prompt, generate, and keep a short per-channel memory.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cleanse/internal/domain"
	"cleanse/internal/prompt"
)

// Retriever returns context chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Chunk, error)
}

// Options configure the conversation policy.
type Options struct {
	Memory       bool
	HistoryTurns int
	Timeout      time.Duration
	// EmptyQuery is the reply to a blank question.
	EmptyQuery string
	// Failure replaces any error while answering.
	Failure string
}

// Service is the process-wide conversation orchestrator. It is safe for
// concurrent use; turns on the same channel run one at a time.
type Service struct {
	retriever Retriever
	prompt    *prompt.Assembler
	generator domain.Generator
	opts      Options
	history   *History
	locks     *channelLocks
	logger    *slog.Logger
}

// New creates a Service.
func New(retriever Retriever, assembler *prompt.Assembler, generator domain.Generator, opts Options, logger *slog.Logger) *Service {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		prompt:    assembler,
		generator: generator,
		opts:      opts,
		history:   NewHistory(opts.HistoryTurns),
		locks:     newChannelLocks(),
		logger:    logger,
	}
}

// Answer runs a turn and always returns text fit to show the user.
func (s *Service) Answer(ctx context.Context, channelID, query string) string {
	answer, err := s.Turn(ctx, channelID, query)
	if err != nil {
		s.logger.Error("turn failed", "channel_id", channelID, "err", err)
		return s.opts.Failure
	}
	return answer
}

// Turn runs a turn and reports failures. History only changes on success.
func (s *Service) Turn(ctx context.Context, channelID, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.opts.EmptyQuery, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var history []domain.Turn
	if s.opts.Memory {
		release, err := s.locks.acquire(ctx, channelID)
		if err != nil {
			return "", err
		}
		defer release()
		history = s.history.Get(channelID)
	}

	chunks, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	s.logger.Debug("retrieved context", "channel_id", channelID, "chunks", len(chunks))

	answer, err := s.generator.Generate(ctx, s.prompt.Assemble(chunks, query, history))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrGeneration) {
			err = &domain.GenerationError{Kind: domain.GenerationTimeout, Err: err}
		}
		return "", err
	}

	if s.opts.Memory {
		s.history.Append(channelID,
			domain.Turn{Role: domain.RoleUser, Text: query},
			domain.Turn{Role: domain.RoleAssistant, Text: answer},
		)
	}
	return answer, nil
}

// History returns a copy of a channel's remembered turns.
func (s *Service) History(channelID string) []domain.Turn {
	return s.history.Get(channelID)
}

// Farewell is printed when an interactive session ends.
const Farewell = "Volte sempre!"

// IsExit reports whether a line typed into an interactive session asks to leave it.
func IsExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "sair", "exit", "quit":
		return true
	}
	return false
}
