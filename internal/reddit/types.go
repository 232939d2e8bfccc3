// Package reddit collects champion posts and their top comments from Reddit
// into the corpus store.
package reddit

import "time"

// Target pairs the champion name searched for with its subreddit.
type Target struct {
	Champion  string
	Subreddit string
}

// Config controls collector behavior.
type Config struct {
	// BaseURL is the API host; https://oauth.reddit.com when authenticated.
	BaseURL           string
	UserAgent         string
	Targets           []Target
	PostLimit         int
	CommentsLimit     int
	MinCommentScore   int
	RequestsPerSecond float64
	MaxAttempts       int
	RetryWait         time.Duration
}

// Stats summarises one collection run.
type Stats struct {
	Matched  int
	Inserted int
	Failed   []string
}

// Reddit JSON API response types

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

type listingChild struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	ID         string  `json:"id"`
	Subreddit  string  `json:"subreddit"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	SelfText   string  `json:"selftext"`
	Body       string  `json:"body"`
	Permalink  string  `json:"permalink"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}
