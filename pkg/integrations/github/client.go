package github

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/integrations"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// Config configures a [Client].
type Config struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Fetcher *httputil.Fetcher
}

// RateLimit holds the X-RateLimit-* values of a response.
type RateLimit struct {
	Remaining    int
	Reset        time.Time
	HasRemaining bool
	HasReset     bool
}

// ParseRateLimit reads X-RateLimit-Remaining and X-RateLimit-Reset (epoch
// seconds). Missing or malformed headers leave the corresponding Has flag false.
func ParseRateLimit(h http.Header) RateLimit {
	var rl RateLimit
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			rl.Remaining, rl.HasRemaining = n, true
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			rl.Reset, rl.HasReset = time.Unix(n, 0), true
		}
	}
	return rl
}

// RepoResult is the outcome of a repository lookup. Stars and OpenIssues are
// only set when Status is 200.
type RepoResult struct {
	Owner      string
	Repo       string
	Status     int
	Stars      int
	OpenIssues int
	RateLimit  RateLimit
	// Message carries GitHub's error message for non-200 statuses.
	Message string
}

// URL returns the canonical https URL of the repository.
func (r *RepoResult) URL() string { return integrations.GitHubURL(r.Owner, r.Repo) }

// Client provides access to the GitHub repository API.
type Client struct {
	*integrations.Client
	baseURL       string
	authenticated bool
}

// NewClient creates a GitHub API client. An empty token means
// unauthenticated requests with the lower rate limit.
func NewClient(cfg Config) *Client {
	headers := map[string]string{
		"Accept":               "application/vnd.github.v3+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	c := &Client{
		Client:        integrations.NewClient(nil, "github:", 0, headers),
		baseURL:       strings.TrimRight(cmp.Or(cfg.BaseURL, DefaultBaseURL), "/"),
		authenticated: cfg.Token != "",
	}
	if cfg.Fetcher != nil {
		c.SetFetcher(cfg.Fetcher)
	}
	return c
}

// Authenticated reports whether requests carry a token.
func (c *Client) Authenticated() bool { return c.authenticated }

// FetchRepo looks up owner/repo. Every HTTP status is returned in the result;
// the error is reserved for invalid input and transport failures.
func (c *Client) FetchRepo(ctx context.Context, owner, repo string) (*RepoResult, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo)
	resp, err := c.Do(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &RepoResult{
		Owner:     owner,
		Repo:      repo,
		Status:    resp.StatusCode,
		RateLimit: ParseRateLimit(resp.Header),
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
		if json.Unmarshal(body, &e) == nil {
			res.Message = e.Message
		}
		return res, nil
	}

	var data repoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode github repo %s/%s: %v", integrations.ErrNetwork, owner, repo, err)
	}
	res.Stars = max(data.Stars, 0)
	res.OpenIssues = max(data.OpenIssues, 0)
	return res, nil
}

type repoResponse struct {
	FullName   string `json:"full_name"`
	Stars      int    `json:"stargazers_count"`
	OpenIssues int    `json:"open_issues_count"`
}

type errorResponse struct {
	Message string `json:"message"`
}
