package corpus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanse/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func jhinPost() domain.Post {
	return domain.Post{
		PostID:           "abc123",
		Subreddit:        "JhinMains",
		ChampionSearched: "Jhin",
		Title:            "Jhin build",
		Content:          "Jhin builds Rapid Firecannon first.",
		CommentsContent:  "",
		URL:              "https://www.reddit.com/r/JhinMains/comments/abc123/jhin_build/",
		CreatedUTC:       1717000000,
		RetrievedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	inserted, err := store.Insert(ctx, jhinPost())
	require.NoError(t, err)
	assert.True(t, inserted)

	again := jhinPost()
	again.Title = "edited title"
	inserted, err = store.Insert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := store.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "Title: Jhin build")
}

func TestDocumentsRendering(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Insert(ctx, jhinPost())
	require.NoError(t, err)
	second := jhinPost()
	second.PostID = "def456"
	second.Subreddit = "KaynMains"
	second.Title = "Kayn forms"
	second.Content = "Red or blue?"
	second.CommentsContent = "Comentário (Score: 10): Red."
	second.URL = "https://www.reddit.com/r/KaynMains/comments/def456/"
	_, err = store.Insert(ctx, second)
	require.NoError(t, err)

	docs, err := store.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "abc123", docs[0].ID)
	assert.Equal(t, "Title: Jhin build\n\nContent: Jhin builds Rapid Firecannon first.\n\n--- Comments ---\n", docs[0].Text)
	assert.Equal(t, "JhinMains", docs[0].Community)

	assert.Equal(t, "def456", docs[1].ID)
	assert.Equal(t, "KaynMains", docs[1].Community)
	assert.Equal(t, "https://www.reddit.com/r/KaynMains/comments/def456/", docs[1].SourceURL)
	assert.Contains(t, docs[1].Text, "--- Comments ---\nComentário (Score: 10): Red.")
}

func TestReopenKeepsRowsAndSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Insert(ctx, jhinPost())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenExisting(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, path, reopened.Path())
}

func TestOpenExistingMissingIsConfigurationError(t *testing.T) {
	_, err := OpenExisting(filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
