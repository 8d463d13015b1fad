// Package enrich implements the server-side lookups behind the dashboard:
// the per-package GitHub enrichment and the per-maintainer package stats.
//
// [Service.Enrich] resolves one npm package to its GitHub repository and
// returns star and open-issue counts. It consults a shared
// [ratelimit.State] first and refuses to call GitHub while the quota is
// exhausted, returning a [errors.RateLimitedError] instead.
//
// [Service.Stats] lists a maintainer's packages with weekly downloads.
// GitHub fields are left at zero; the progressive pipeline fills them in.
//
// Error codes map onto HTTP statuses in internal/api:
//
//	INVALID_PACKAGE, INVALID_USERNAME  400
//	PACKAGE_NOT_FOUND                  404
//	RATE_LIMITED                       429
//	NETWORK_ERROR, TIMEOUT             502
//
// [ratelimit.State]: github.com/matzehuels/npmdash/pkg/ratelimit.State
// [errors.RateLimitedError]: github.com/matzehuels/npmdash/pkg/errors.RateLimitedError
package enrich
