// Package cloud talks to the remote event store: a paginated REST read of the
// events table and a live websocket subscription to inserts against it.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dsifry/metarelay/internal/event"
)

// DefaultFetchLimit is the catch-up page size when the caller passes 0.
const DefaultFetchLimit = 100

// Client is the remote event source. Implementations must return events from
// FetchSince ordered by remote_id ascending and strictly greater than
// afterID. Subscribe delivers events in arrival order, which may differ from
// remote_id order; the stream signals end-of-stream by closing its channels,
// and callers fall back to catch-up.
type Client interface {
	FetchSince(ctx context.Context, repo string, afterID int64, limit int) ([]event.Event, error)
	Subscribe(ctx context.Context, repo string) (<-chan event.Event, <-chan error, error)
}

// HTTPClient implements Client against a hosted Postgres-style REST API with
// a websocket realtime channel. Authentication uses a long-lived API key sent
// in both the apikey header and an Authorization bearer.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) { c.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) { c.logger = logger }
}

// New creates a client for the remote event store at baseURL.
func New(baseURL, apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSince returns events for repo with remote_id strictly greater than
// afterID, ordered ascending, at most limit rows. An empty slice means the
// caller has caught up.
func (c *HTTPClient) FetchSince(ctx context.Context, repo string, afterID int64, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	q := url.Values{}
	q.Set("repo", "eq."+repo)
	q.Set("id", "gt."+strconv.FormatInt(afterID, 10))
	q.Set("order", "id.asc")
	q.Set("limit", strconv.Itoa(limit))

	reqURL := c.baseURL + "/events?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	c.setAuth(req.Header)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transientf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientf("read fetch response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var events []event.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("%w: decode events: %v", ErrFatal, err)
	}

	c.logger.Debug("fetched events",
		"repo", repo,
		"after", afterID,
		"count", len(events),
	)
	return events, nil
}

func (c *HTTPClient) setAuth(h http.Header) {
	h.Set("apikey", c.apiKey)
	h.Set("Authorization", "Bearer "+c.apiKey)
}

// classifyStatus maps an HTTP status to the error taxonomy: 2xx ok, 429 and
// 5xx transient, other 4xx fatal.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return transientf("rate limited (status %d)", status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: authentication rejected (status %d)", ErrFatal, status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: request rejected (status %d)", ErrFatal, status)
	default:
		return transientf("server error (status %d)", status)
	}
}
