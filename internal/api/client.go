package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/infrawatch/infrawatch/internal/version"
)

// Client defaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetries      = 3
	DefaultRetryBackoff = time.Second

	// prefix is where the server mounts the REST API.
	prefix = "/api/v1"
)

// Client talks to one infrawatch server on behalf of one bearer token.
// It is safe for concurrent use.
type Client struct {
	baseURL    string // server URL with the API prefix
	token      string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient returns a client for the server at serverURL, such as
// "http://localhost:8080". token is sent as a bearer credential and may be
// empty for the unauthenticated /health route.
func NewClient(serverURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(serverURL, "/") + prefix,
		token:        token,
		userAgent:    version.UserAgent(),
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
		maxRetries:   DefaultRetries,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithTimeout bounds each HTTP exchange. Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets how often a failed read is retried and the base delay
// between attempts. Writes are never retried.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithUserAgent replaces the "infrawatch/<version>" User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sends requests through hc, e.g. one with a custom transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
