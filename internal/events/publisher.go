// Package events publishes newly collected posts to NATS so downstream
// consumers (re-indexers, dashboards) can follow the corpus as it grows.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"cleanse/internal/domain"
)

// DefaultSubject is where new posts are announced.
const DefaultSubject = "cleanse.corpus.posts"

// headerCarrier adapts nats.Msg headers for OTel propagation.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher announces stored posts on a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher wraps an established connection.
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Connect dials url and returns a Publisher owning the connection.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("cleanse-collector"))
	if err != nil {
		return nil, fmt.Errorf("events: connecting to %s: %w", url, err)
	}
	return NewPublisher(nc, subject), nil
}

// Subject returns the subject posts are published on.
func (p *Publisher) Subject() string { return p.subject }

// Publish sends post as JSON, carrying the trace context of ctx in the headers.
func (p *Publisher) Publish(ctx context.Context, post domain.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("events: encoding post %s: %w", post.PostID, err)
	}
	msg := &nats.Msg{Subject: p.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: publishing post %s: %w", post.PostID, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

// Subscribe delivers decoded posts from subject to handler. Malformed
// messages are dropped.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, domain.Post)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var post domain.Post
		if err := json.Unmarshal(msg.Data, &post); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, post)
	})
}
