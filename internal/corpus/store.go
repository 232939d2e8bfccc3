// Package corpus stores scraped Reddit posts in SQLite and renders them as
// documents for the indexer.
package corpus

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"cleanse/internal/domain"
)

//go:embed schema.sql
var schema string

// Store is the append-only corpus of scraped posts.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the corpus database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("corpus: creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("corpus: opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenExisting opens the corpus only if it has already been created by the collector.
func OpenExisting(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewConfigurationError(path, "corpus database not found: run the collector first")
		}
		return nil, fmt.Errorf("corpus: stat %s: %w", path, err)
	}
	return Open(path)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Insert stores a post unless its post_id was seen before. It reports whether a row was added.
func (s *Store) Insert(ctx context.Context, p domain.Post) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO posts (post_id, subreddit, champion_searched, title, content, comments_content, url, created_utc, retrieved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.PostID, p.Subreddit, p.ChampionSearched, p.Title, p.Content, p.CommentsContent,
		p.URL, p.CreatedUTC, p.RetrievedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("corpus: inserting post %s: %w", p.PostID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("corpus: rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of stored posts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("corpus: counting posts: %w", err)
	}
	return n, nil
}

// Documents renders every stored post as an indexable document, in insertion order.
func (s *Store) Documents(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, subreddit, COALESCE(title, ''), COALESCE(content, ''), COALESCE(comments_content, ''), COALESCE(url, '')
		FROM posts ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("corpus: querying posts: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var id, subreddit, title, content, comments, url string
		if err := rows.Scan(&id, &subreddit, &title, &content, &comments, &url); err != nil {
			return nil, fmt.Errorf("corpus: scanning post: %w", err)
		}
		docs = append(docs, domain.Document{
			ID:        id,
			Text:      RenderDocument(title, content, comments),
			SourceURL: url,
			Community: subreddit,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: iterating posts: %w", err)
	}
	return docs, nil
}

// RenderDocument is the text layout every post is indexed with.
func RenderDocument(title, content, comments string) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(title)
	b.WriteString("\n\nContent: ")
	b.WriteString(content)
	b.WriteString("\n\n--- Comments ---\n")
	b.WriteString(comments)
	return b.String()
}

// ensureSchema creates the posts table on first use. The statements are
// idempotent, so every open runs them.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("corpus: creating schema: %w", err)
	}
	return nil
}
