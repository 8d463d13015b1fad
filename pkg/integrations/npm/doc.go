// Package npm provides an HTTP client for the npm registry and the npm
// downloads API.
//
// # Usage
//
//	client := npm.NewClient(npm.Config{CacheTTL: time.Hour})
//
//	pkgs, err := client.SearchMaintainer(ctx, "sindresorhus")
//	weekly, err := client.WeeklyDownloads(ctx, "chalk")
//	info, err := client.FetchPackage(ctx, "chalk", false)
//
// # Search
//
// [Client.SearchMaintainer] pages through the registry search endpoint with
// the query "maintainer:<username>", 250 results per page, stopping at
// [MaxSearchResults].
//
// # Caching
//
// Package documents are cached under the "npm:" prefix. Search results and
// download counts are never cached because the dashboard exists to show
// fresh numbers.
package npm
