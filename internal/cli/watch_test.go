package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanse/internal/domain"
	"cleanse/internal/events"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchPrintsAnnouncedPosts(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	defer srv.Shutdown()
	require.True(t, srv.ReadyForConnections(3*time.Second))

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() { done <- watchPosts(ctx, nc, "test.posts", out, slog.New(slog.DiscardHandler)) }()

	pub, err := events.Connect(srv.ClientURL(), "test.posts")
	require.NoError(t, err)
	defer pub.Close()

	post := domain.Post{PostID: "j1", Subreddit: "JhinMains", ChampionSearched: "Jhin", Title: "Jhin build", URL: "https://reddit.com/j1"}
	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), post)
		return strings.Contains(out.String(), "[Jhin] r/JhinMains Jhin build https://reddit.com/j1")
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchNeedsServer(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "http://127.0.0.1:1/v1")
	_, err := run(t, "", "--config", cfgPath, "watch")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
