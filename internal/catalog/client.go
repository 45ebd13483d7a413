package catalog

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/pricesync/internal/config"
)

const defaultRetryBackoff = time.Second

// Client searches the asset REST API.
type Client struct {
	baseURL     string
	apiKey      string
	searchLimit int
	httpClient  *http.Client
	logger      *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a search client from the catalog settings. A zero
// timeout or search limit falls back to the configured defaults; MaxRetries
// is taken as is, so zero disables retries.
func NewClient(cfg config.CatalogConfig, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultAPITimeout
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = config.DefaultSearchLimit
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.RestURL, "/"),
		apiKey:       cfg.APIKey,
		searchLimit:  limit,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       slog.Default(),
		maxRetries:   max(cfg.MaxRetries, 0),
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithRetryBackoff sets the base delay between retries. It doubles on each
// attempt.
func WithRetryBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client, including its timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
