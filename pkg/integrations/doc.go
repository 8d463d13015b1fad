// Package integrations provides the HTTP clients npmdash talks to upstream:
// the npm registry, the npm downloads API and the GitHub REST API.
//
// # Client Pattern
//
// Each upstream has its own subpackage built on the shared [Client]:
//
//	reg := npm.NewClient(npm.Config{Cache: backend, CacheTTL: time.Hour})
//	info, err := reg.FetchPackage(ctx, "express", false)
//
// [Client] handles:
//   - retries with backoff through an [httputil.Fetcher]
//   - default headers (User-Agent, Accept, Authorization)
//   - JSON response caching in a [cache.Cache] under a per-client prefix
//
// # Errors
//
// A 404 maps to [ErrNotFound]. Other non-2xx statuses become a
// [StatusError], which matches [ErrNetwork]. Transport failures wrap
// [ErrNetwork], or [ErrTimeout] when the last attempt timed out.
//
// # Repository URLs
//
// [GitHubRepo] extracts owner and name from the many repository URL shapes
// found in package.json files.
//
// [httputil.Fetcher]: github.com/matzehuels/npmdash/pkg/httputil.Fetcher
// [cache.Cache]: github.com/matzehuels/npmdash/pkg/cache.Cache
package integrations
