package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cleanse/internal/domain"
)

const permalinkHost = "https://www.reddit.com"

// PostStore receives collected posts.
type PostStore interface {
	Insert(ctx context.Context, p domain.Post) (bool, error)
}

// PostPublisher is notified of every newly stored post.
type PostPublisher interface {
	Publish(ctx context.Context, p domain.Post) error
}

// Collector fetches the newest posts of each target subreddit, keeps the ones
// that mention the champion and stores them with their best comments.
type Collector struct {
	cfg       Config
	client    *http.Client
	limiter   *rate.Limiter
	store     PostStore
	publisher PostPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewCollector creates a Collector. The client must already carry authentication.
func NewCollector(cfg Config, client *http.Client, store PostStore, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = APIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PostLimit <= 0 {
		cfg.PostLimit = 50
	}
	if cfg.CommentsLimit <= 0 {
		cfg.CommentsLimit = 5
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 2 * time.Second
	}
	return &Collector{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// WithPublisher attaches a sink that is told about every newly inserted post.
func (c *Collector) WithPublisher(p PostPublisher) *Collector {
	c.publisher = p
	return c
}

// Run collects every configured target. A failing subreddit is logged and skipped.
func (c *Collector) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, target := range c.cfg.Targets {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		c.logger.Info("collecting subreddit", "subreddit", target.Subreddit, "champion", target.Champion)

		matched, inserted, err := c.collectTarget(ctx, target)
		stats.Matched += matched
		stats.Inserted += inserted
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			c.logger.Error("subreddit failed", "subreddit", target.Subreddit, "err", err)
			stats.Failed = append(stats.Failed, target.Subreddit)
			continue
		}
		c.logger.Info("subreddit done", "subreddit", target.Subreddit, "matched", matched, "inserted", inserted)
	}
	return stats, nil
}

func (c *Collector) collectTarget(ctx context.Context, target Target) (matched, inserted int, err error) {
	listing, err := c.fetchNew(ctx, target.Subreddit)
	if err != nil {
		return 0, 0, err
	}

	champion := strings.ToLower(target.Champion)
	for _, child := range listing.Data.Children {
		d := child.Data
		if !strings.Contains(strings.ToLower(d.Title+" "+d.SelfText), champion) {
			continue
		}
		matched++

		comments, err := c.fetchComments(ctx, d.ID)
		if err != nil {
			// Skipped rather than stored without comments, so a later run can pick it up.
			c.logger.Warn("comments failed, skipping post", "post_id", d.ID, "err", err)
			continue
		}

		post := domain.Post{
			PostID:           d.ID,
			Subreddit:        target.Subreddit,
			ChampionSearched: target.Champion,
			Title:            d.Title,
			Content:          d.SelfText,
			CommentsContent:  FormatComments(comments, c.cfg.CommentsLimit, c.cfg.MinCommentScore),
			URL:              permalinkHost + d.Permalink,
			CreatedUTC:       int64(d.CreatedUTC),
			RetrievedAt:      c.now().UTC(),
		}
		ok, err := c.store.Insert(ctx, post)
		if err != nil {
			return matched, inserted, err
		}
		if !ok {
			continue
		}
		inserted++
		if c.publisher != nil {
			if err := c.publisher.Publish(ctx, post); err != nil {
				c.logger.Warn("publish failed", "post_id", post.PostID, "err", err)
			}
		}
	}
	return matched, inserted, nil
}

func (c *Collector) fetchNew(ctx context.Context, subreddit string) (*listingResponse, error) {
	u := fmt.Sprintf("%s/r/%s/new?limit=%d&raw_json=1", c.cfg.BaseURL, url.PathEscape(subreddit), c.cfg.PostLimit)
	var resp listingResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("r/%s listing: %w", subreddit, err)
	}
	return &resp, nil
}

// fetchComments returns the top-level comments of a post.
func (c *Collector) fetchComments(ctx context.Context, postID string) ([]listingData, error) {
	u := fmt.Sprintf("%s/comments/%s?sort=top&depth=1&raw_json=1", c.cfg.BaseURL, url.PathEscape(postID))

	// Reddit returns [postListing, commentListing]
	var listings []listingResponse
	if err := c.getJSON(ctx, u, &listings); err != nil {
		return nil, fmt.Errorf("comments %s: %w", postID, err)
	}
	if len(listings) < 2 {
		return nil, nil
	}
	var comments []listingData
	for _, child := range listings[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		comments = append(comments, child.Data)
	}
	return comments, nil
}

// FormatComments keeps the highest-scored comments with a live author and at
// least minScore points, rendering at most limit of them.
func FormatComments(comments []listingData, limit, minScore int) string {
	sorted := make([]listingData, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var parts []string
	for _, cm := range sorted {
		if len(parts) >= limit {
			break
		}
		if cm.Score < minScore || cm.Author == "" || cm.Author == "[deleted]" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Comentário (Score: %d): %s", cm.Score, cm.Body))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// getJSON performs a throttled GET, retrying on 429 and 5xx.
func (c *Collector) getJSON(ctx context.Context, u string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryWait << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		body, retry, err := c.get(ctx, u)
		if err != nil {
			lastErr = err
			if retry {
				continue
			}
			return err
		}
		err = json.NewDecoder(body).Decode(out)
		body.Close()
		if err != nil {
			return fmt.Errorf("decode %s: %w", u, err)
		}
		return nil
	}
	return lastErr
}

func (c *Collector) get(ctx context.Context, u string) (io.ReadCloser, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, true, fmt.Errorf("http %d from %s", resp.StatusCode, u)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)
	}
	return resp.Body, false, nil
}
