// Package github fetches markdown documentation out of a GitHub
// repository and turns it into corpus documents.
package github

import (
	"context"
	"os"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with a rate-limit aware transport.
type Client struct {
	*github.Client
}

// NewClient builds a GitHub client that waits out primary and secondary
// rate limits instead of failing the request. When GITHUB_TOKEN is set
// the client authenticates with it, which raises the hourly quota.
func NewClient(ctx context.Context) (*Client, error) {
	waiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	gh := github.NewClient(waiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		gh = gh.WithAuthToken(token)
	}

	return &Client{Client: gh}, nil
}
