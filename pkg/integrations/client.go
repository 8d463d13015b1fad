package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/matzehuels/npmdash/pkg/buildinfo"
	"github.com/matzehuels/npmdash/pkg/cache"
	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/observability"
)

// Client provides shared HTTP functionality for the registry and GitHub
// clients: default headers, retries through an [httputil.Fetcher], and a
// JSON response cache.
type Client struct {
	fetcher *httputil.Fetcher
	cache   *cache.ScopedCache
	ttl     time.Duration
	headers map[string]string
}

// NewClient creates a Client whose cache entries live under prefix and
// expire after ttl. A nil cache disables caching.
// Headers are applied to all requests made through this client.
func NewClient(c cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	return &Client{
		fetcher: httputil.NewFetcher(nil),
		cache:   cache.Scoped(c, prefix),
		ttl:     ttl,
		headers: headers,
	}
}

// SetFetcher replaces the retrying fetcher, typically to share one across
// clients or to point tests at an httptest server.
func (c *Client) SetFetcher(f *httputil.Fetcher) {
	c.fetcher = f
}

// Fetcher returns the fetcher used for requests.
func (c *Client) Fetcher() *httputil.Fetcher { return c.fetcher }

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
// Cache failures never fail the call.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	hooks := observability.Cache()
	keyType := c.cache.Prefix()
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if json.Unmarshal(data, v) == nil {
				hooks.OnCacheHit(ctx, keyType)
				return nil
			}
		}
		hooks.OnCacheMiss(ctx, keyType)
	}
	if err := fetch(); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, key, data, c.ttl) == nil {
			hooks.OnCacheSet(ctx, keyType, len(data))
		}
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	resp, err := c.Do(ctx, url, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Do sends a GET request and returns the raw response regardless of status.
// Callers that need headers or non-200 handling use this directly and must
// close the body.
func (c *Client) Do(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.fetcher.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, httputil.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return resp, nil
}

// StatusError reports an unexpected upstream status. It matches [ErrNetwork]
// with errors.Is.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrNetwork, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrNetwork }

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Code: code}
	}
}
