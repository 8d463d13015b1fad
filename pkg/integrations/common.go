package integrations

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrNotFound is returned when a package or resource doesn't exist upstream.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")

	// ErrTimeout is returned when the final attempt of a request timed out.
	ErrTimeout = errors.New("request timed out")
)

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"ssh://git@github.com/", "https://github.com/",
	"git://github.com/", "https://github.com/",
	"http://github.com/", "https://github.com/",
	"://www.github.com/", "://github.com/",
)

// NormalizeRepoURL converts various repository URL formats to canonical HTTPS form.
// Handles git@, ssh://, git://, git+ and npm's github: shorthand, drops fragments and query
// strings, and removes trailing slashes and .git suffixes.
// Returns empty string if raw is empty.
func NormalizeRepoURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "git+")
	if rest, ok := strings.CutPrefix(s, "github:"); ok {
		s = "https://github.com/" + rest
	}
	s = repoURLReplacer.Replace(s)
	if i := strings.IndexAny(s, "#?"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	return strings.TrimSuffix(s, ".git")
}

// githubRepoPattern matches owner and repo after normalization. The host may
// be preceded by a scheme or nothing at all ("github.com/owner/repo").
var githubRepoPattern = regexp.MustCompile(`(?i)(?:^|[/@])github\.com[/:]([A-Za-z0-9][A-Za-z0-9-]*)/([A-Za-z0-9._-]+)`)

// GitHubRepo extracts the owner and repository name from a repository URL in
// any of the shapes found in package metadata. ok is false when raw does not
// point at github.com.
func GitHubRepo(raw string) (owner, repo string, ok bool) {
	s := NormalizeRepoURL(raw)
	if s == "" {
		return "", "", false
	}
	m := githubRepoPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	repo = strings.TrimSuffix(m[2], ".git")
	if repo == "" || repo == "." || repo == ".." {
		return "", "", false
	}
	return m[1], repo, true
}

// GitHubURL returns the canonical https URL of a repository.
func GitHubURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo)
}

// URLEncode percent-encodes a string for use in URLs.
// This is a convenience wrapper around [url.QueryEscape].
func URLEncode(s string) string { return url.QueryEscape(s) }

// PathEscape escapes a package name for use as a single path segment, so
// "@scope/name" becomes "@scope%2Fname".
func PathEscape(name string) string { return url.PathEscape(name) }
