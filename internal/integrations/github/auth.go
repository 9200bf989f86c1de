package github

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

// NewClient creates a new GitHub-backed hosting client using the provided
// token. If token is empty, it returns an unauthenticated client (useful
// for read-only dry runs against public repositories).
func NewClient(ctx context.Context, token string, opts ...ClientOption) *Client {
	var tc *http.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(ctx, ts)
	}

	c := &Client{
		gh:      github.NewClient(tc),
		timeout: 30 * time.Second,
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout bounds every hosting-API call. No call may block
// indefinitely; on timeout the failure is classified as transient.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryConfig overrides the retry/backoff settings.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}
