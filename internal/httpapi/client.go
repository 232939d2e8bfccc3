package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cleanse/internal/domain"
)

// Client calls a remote chatbot API. It satisfies domain.Answerer so front
// ends can use a local service or a remote one interchangeably.
type Client struct {
	baseURL     string
	http        *http.Client
	unreachable string
	logger      *slog.Logger
}

// NewClient targets the API at baseURL. unreachable is the reply used when
// the API cannot be reached.
func NewClient(baseURL, unreachable string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		unreachable: unreachable,
		logger:      logger,
	}
}

// Ask posts the question and returns the API's answer.
func (c *Client) Ask(ctx context.Context, channelID, query string) (string, error) {
	body, err := json.Marshal(AskRequest{Query: query, ChannelID: channelID})
	if err != nil {
		return "", &domain.TransportError{Op: "encode", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return "", &domain.TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &domain.TransportError{Op: "post", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var out AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.TransportError{Op: "decode", Err: err}
	}
	return out.Answer, nil
}

// Answer implements domain.Answerer.
func (c *Client) Answer(ctx context.Context, channelID, query string) string {
	answer, err := c.Ask(ctx, channelID, query)
	if err != nil {
		c.logger.Error("backend unreachable", "channel_id", channelID, "err", err)
		return c.unreachable
	}
	return answer
}
