package reddit

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// TokenURL issues application-only tokens.
	TokenURL = "https://www.reddit.com/api/v1/access_token"
	// APIBaseURL serves authenticated API calls.
	APIBaseURL = "https://oauth.reddit.com"
)

// userAgentTransport stamps every request, including token requests,
// with the script User-Agent Reddit requires.
type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// NewOAuthClient returns a read-only client authenticated with the
// client-credentials grant.
func NewOAuthClient(ctx context.Context, clientID, clientSecret, userAgent string, timeout time.Duration) *http.Client {
	return newOAuthClient(ctx, TokenURL, clientID, clientSecret, userAgent, timeout)
}

func newOAuthClient(ctx context.Context, tokenURL, clientID, clientSecret, userAgent string, timeout time.Duration) *http.Client {
	base := &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{userAgent: userAgent, base: http.DefaultTransport},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := cc.Client(ctx)
	client.Timeout = timeout
	return client
}
