package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanse/internal/domain"
)

type memStore struct {
	mu    sync.Mutex
	posts map[string]domain.Post
	order []string
}

func newMemStore() *memStore {
	return &memStore{posts: map[string]domain.Post{}}
}

func (m *memStore) Insert(_ context.Context, p domain.Post) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[p.PostID]; ok {
		return false, nil
	}
	m.posts[p.PostID] = p
	m.order = append(m.order, p.PostID)
	return true, nil
}

type recordingPublisher struct {
	ids []string
}

func (r *recordingPublisher) Publish(_ context.Context, p domain.Post) error {
	r.ids = append(r.ids, p.PostID)
	return nil
}

func post(id, title, body string) map[string]any {
	return map[string]any{
		"kind": "t3",
		"data": map[string]any{
			"id":          id,
			"title":       title,
			"selftext":    body,
			"author":      "someone",
			"permalink":   "/r/test/comments/" + id + "/",
			"created_utc": 1717000000.0,
		},
	}
}

func comment(author string, score int, body string) map[string]any {
	return map[string]any{
		"kind": "t1",
		"data": map[string]any{"author": author, "score": score, "body": body},
	}
}

func listing(children ...map[string]any) map[string]any {
	if children == nil {
		children = []map[string]any{}
	}
	return map[string]any{"kind": "Listing", "data": map[string]any{"children": children}}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func testConfig(baseURL string, targets ...Target) Config {
	return Config{
		BaseURL:           baseURL,
		UserAgent:         "script:test:v0",
		Targets:           targets,
		PostLimit:         25,
		CommentsLimit:     2,
		MinCommentScore:   2,
		RequestsPerSecond: 1000,
		MaxAttempts:       3,
		RetryWait:         time.Millisecond,
	}
}

func TestCollectorStoresMatchingPosts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/JhinMains/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "script:test:v0", r.Header.Get("User-Agent"))
		writeJSON(t, w, listing(
			post("p1", "Jhin build guide", "Four shots."),
			post("p2", "Off topic", "Nothing here."),
			post("p3", "Question", "Is JHIN good in this patch?"),
		))
	})
	mux.HandleFunc("/comments/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{
			listing(post("p1", "", "")),
			listing(
				comment("a", 5, "low"),
				comment("b", 50, "best"),
				comment("[deleted]", 100, "gone"),
				comment("c", 1, "below threshold"),
				comment("d", 20, "second"),
				map[string]any{"kind": "more", "data": map[string]any{}},
			),
		})
	})
	mux.HandleFunc("/comments/p3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{listing(), listing()})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	pub := &recordingPublisher{}
	c := NewCollector(testConfig(srv.URL, Target{Champion: "Jhin", Subreddit: "JhinMains"}), srv.Client(), store, nil).
		WithPublisher(pub)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 2, stats.Inserted)
	assert.Empty(t, stats.Failed)
	assert.Equal(t, []string{"p1", "p3"}, pub.ids)

	p1 := store.posts["p1"]
	assert.Equal(t, "JhinMains", p1.Subreddit)
	assert.Equal(t, "Jhin", p1.ChampionSearched)
	assert.Equal(t, "https://www.reddit.com/r/test/comments/p1/", p1.URL)
	assert.Equal(t, int64(1717000000), p1.CreatedUTC)
	assert.Equal(t, "Comentário (Score: 50): best\n\n---\n\nComentário (Score: 20): second", p1.CommentsContent)
	assert.Empty(t, store.posts["p3"].CommentsContent)

	// A second run finds nothing new.
	stats, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 0, stats.Inserted)
	assert.Len(t, pub.ids, 2)
}

func TestCollectorRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/r/KaynMains/new", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, listing(post("k1", "Kayn red or blue", "")))
	})
	mux.HandleFunc("/comments/k1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{listing(), listing(comment("x", 3, "Red."))})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	c := NewCollector(testConfig(srv.URL, Target{Champion: "Kayn", Subreddit: "KaynMains"}), srv.Client(), store, nil)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, "Comentário (Score: 3): Red.", store.posts["k1"].CommentsContent)
}

func TestCollectorSkipsFailingSubreddit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/Broken/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/r/ViegoMains/new", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(post("v1", "Viego possession tips", "")))
	})
	mux.HandleFunc("/comments/v1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{listing(), listing()})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	c := NewCollector(testConfig(srv.URL,
		Target{Champion: "Zed", Subreddit: "Broken"},
		Target{Champion: "Viego", Subreddit: "ViegoMains"},
	), srv.Client(), store, nil)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Broken"}, stats.Failed)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, []string{"v1"}, store.order)
}

func TestCollectorSkipsPostWhenCommentsFail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/JhinMains/new", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(post("p1", "Jhin", "")))
	})
	mux.HandleFunc("/comments/p1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	c := NewCollector(testConfig(srv.URL, Target{Champion: "Jhin", Subreddit: "JhinMains"}), srv.Client(), store, nil)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 0, stats.Inserted)
	assert.Empty(t, store.order)
}

func TestCollectorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCollector(testConfig("http://127.0.0.1:1", Target{Champion: "Jhin", Subreddit: "JhinMains"}), http.DefaultClient, newMemStore(), nil)
	_, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatComments(t *testing.T) {
	comments := []listingData{
		{Author: "a", Score: 2, Body: "edge"},
		{Author: "", Score: 99, Body: "anonymous"},
		{Author: "b", Score: 7, Body: "top"},
	}
	assert.Equal(t, "Comentário (Score: 7): top\n\n---\n\nComentário (Score: 2): edge", FormatComments(comments, 5, 2))
	assert.Equal(t, "Comentário (Score: 7): top", FormatComments(comments, 1, 2))
	assert.Empty(t, FormatComments(nil, 5, 2))
}

func TestOAuthClientSendsCredentialsAndUserAgent(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "script:test:v0", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "script:test:v0", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newOAuthClient(context.Background(), srv.URL+"/token", "id", "secret", "script:test:v0", 5*time.Second)
	for range 2 {
		resp, err := client.Get(srv.URL + "/api")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, int32(1), tokenCalls.Load())
}
