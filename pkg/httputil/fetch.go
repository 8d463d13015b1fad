package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/matzehuels/npmdash/pkg/observability"
)

// Defaults for [Fetcher].
const (
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = time.Second
	DefaultAttemptTimeout = 15 * time.Second
	DefaultMaxJitter      = time.Second
)

// ErrTimeout is returned when the final attempt exceeds the per-attempt timeout.
var ErrTimeout = errors.New("request timed out")

// Fetcher performs HTTP requests with bounded retries.
//
// Each attempt runs under its own timeout. Successful responses and 4xx
// responses other than 403 and 429 are returned at once. 5xx, 403 and 429
// responses are retried; once the budget is spent the last response is
// returned as-is rather than converted into an error. Network errors are
// retried with the same budget.
//
// Between attempts the Fetcher sleeps BaseDelay * 2^attempt plus up to
// MaxJitter of random jitter.
//
// A Fetcher is safe for concurrent use once configured.
type Fetcher struct {
	Client         *http.Client
	MaxRetries     int           // additional attempts after the first
	BaseDelay      time.Duration // backoff base
	AttemptTimeout time.Duration // per-attempt deadline, 0 disables
	MaxJitter      time.Duration // upper bound of random jitter, 0 disables

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher returns a Fetcher with the default retry policy.
// A nil client uses a plain http.Client; per-attempt timeouts are applied
// through the request context, so the client should not set its own Timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		Client:         client,
		MaxRetries:     DefaultMaxRetries,
		BaseDelay:      DefaultBaseDelay,
		AttemptTimeout: DefaultAttemptTimeout,
		MaxJitter:      DefaultMaxJitter,
	}
}

// ShouldRetryStatus reports whether a response status warrants another attempt.
func ShouldRetryStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusForbidden
}

// Backoff returns the delay before the attempt following the given zero-based
// attempt, excluding jitter.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

// Do sends req, retrying according to the Fetcher's policy.
//
// The request must be replayable: either without a body or with GetBody set
// (as http.NewRequest does for in-memory bodies). The returned response body
// must be closed by the caller; closing it also releases the attempt timeout.
func (f *Fetcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempts := max(f.MaxRetries, 0) + 1

	for attempt := range attempts {
		last := attempt == attempts-1

		resp, err := f.attempt(ctx, req)
		if err == nil {
			if last || !ShouldRetryStatus(resp.StatusCode) {
				return resp, nil
			}
			drain(resp)
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if last {
				return nil, err
			}
		}

		if err := f.wait(ctx, f.delay(attempt)); err != nil {
			return nil, err
		}
	}
	// unreachable: the final attempt always returns
	return nil, fmt.Errorf("fetch %s: no attempts made", req.URL)
}

func (f *Fetcher) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if f.AttemptTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, f.AttemptTimeout)
	}

	r := req.Clone(actx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			cancel()
			return nil, err
		}
		r.Body = body
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := f.client().Do(r)
	if err != nil {
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()
		if timedOut {
			err = fmt.Errorf("%w after %s: %s %s", ErrTimeout, f.AttemptTimeout, req.Method, req.URL)
		}
		hooks.OnError(ctx, req.Method, host, path, err)
		return nil, err
	}

	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}

func (f *Fetcher) delay(attempt int) time.Duration {
	d := Backoff(f.BaseDelay, attempt)
	if f.MaxJitter > 0 {
		d += rand.N(f.MaxJitter)
	}
	return d
}

func (f *Fetcher) wait(ctx context.Context, d time.Duration) error {
	if f.sleep != nil {
		return f.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// drain discards a response that is about to be retried so the connection
// can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
