// Package httputil provides the HTTP resilience layer shared by every
// outbound call npmdash makes (npm registry, npm downloads, GitHub).
//
// # Fetcher
//
// [Fetcher] wraps an http.Client with bounded retries:
//
//   - 2xx and 4xx responses (except 403 and 429) are returned immediately
//   - 5xx, 403 and 429 responses are retried up to MaxRetries more times;
//     the last response is returned once the budget is spent
//   - network errors are retried with the same budget
//   - every attempt gets its own 15 second timeout; a timeout on the final
//     attempt is returned as [ErrTimeout]
//
// Backoff is BaseDelay * 2^attempt plus up to one second of jitter:
//
//	f := httputil.NewFetcher(nil)
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	resp, err := f.Do(ctx, req)
//
// Higher layers (the enrichment pipeline's per-package attempts) add their
// own retry policy on top and are unaware of the Fetcher's internal count.
//
// # Retry
//
// [Retry] is a generic helper for non-HTTP operations such as waiting for a
// history store to accept connections. Only errors wrapped in
// [RetryableError] are retried.
package httputil
