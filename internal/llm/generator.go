// Package llm adapts a hosted chat model, reached through an
// OpenAI-compatible API, to the answer generator contract.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"cleanse/internal/domain"
)

// Config configures the generator.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Generator calls the chat completions endpoint with the assembled prompt.
type Generator struct {
	client      *goopenai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

// New creates a Generator. The API key must already be resolved.
func New(cfg Config, logger *slog.Logger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewConfigurationError("llm.api_key", "missing API key")
	}
	if cfg.Model == "" {
		return nil, domain.NewConfigurationError("llm.model", "no model configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Generator{
		client:      goopenai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Generate returns the model's answer. Every failure is a *domain.GenerationError.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", &domain.GenerationError{Kind: classify(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.GenerationError{Kind: domain.GenerationEmpty, Err: errors.New("no choices returned")}
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", &domain.GenerationError{Kind: domain.GenerationEmpty, Err: errors.New("empty answer")}
	}
	g.logger.Debug("generated answer", "model", g.model, "prompt_len", len(prompt),
		"answer_len", len(answer), "elapsed", time.Since(start))
	return answer, nil
}

func classify(err error) domain.GenerationFailure {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.GenerationTimeout
	}
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.GenerationAuth
	case status == http.StatusTooManyRequests:
		return domain.GenerationRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.GenerationTimeout
	case status != 0:
		return domain.GenerationUpstream
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.GenerationTimeout
	}
	return domain.GenerationNetwork
}
