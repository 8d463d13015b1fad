package npm

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/npmdash/pkg/cache"
	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/integrations"
)

const (
	DefaultRegistryURL  = "https://registry.npmjs.org"
	DefaultDownloadsURL = "https://api.npmjs.org"

	// SearchPageSize is the largest page the search endpoint accepts.
	SearchPageSize = 250
	// MaxSearchResults caps how far SearchMaintainer pages.
	MaxSearchResults = 1000
)

// Config configures a [Client]. Zero values select the public npm endpoints
// and no caching.
type Config struct {
	RegistryURL  string
	DownloadsURL string
	Cache        cache.Cache
	CacheTTL     time.Duration
	Fetcher      *httputil.Fetcher
}

// PackageInfo is the subset of a registry document used for enrichment.
type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Repository  string `json:"repository,omitempty"`
	Bugs        string `json:"bugs,omitempty"`
	HomePage    string `json:"homepage,omitempty"`
}

// RepoSource returns the first URL likely to point at the source repository:
// the repository field, then the bug tracker, then the homepage.
func (p *PackageInfo) RepoSource() string {
	for _, u := range []string{p.Repository, p.Bugs, p.HomePage} {
		if u != "" {
			return u
		}
	}
	return ""
}

// SearchResult is one package from a maintainer search.
type SearchResult struct {
	Name            string
	Version         string
	Description     string
	RepositoryURL   string
	NpmURL          string
	WeeklyDownloads int
	Dependents      int
	// HasDownloads reports whether the search response carried a weekly
	// download count at all.
	HasDownloads bool
}

// Client talks to the npm registry and downloads API.
type Client struct {
	*integrations.Client
	registryURL  string
	downloadsURL string
}

// NewClient creates an npm client.
func NewClient(cfg Config) *Client {
	c := &Client{
		Client:       integrations.NewClient(cfg.Cache, "npm:", cfg.CacheTTL, nil),
		registryURL:  strings.TrimRight(cmp.Or(cfg.RegistryURL, DefaultRegistryURL), "/"),
		downloadsURL: strings.TrimRight(cmp.Or(cfg.DownloadsURL, DefaultDownloadsURL), "/"),
	}
	if cfg.Fetcher != nil {
		c.SetFetcher(cfg.Fetcher)
	}
	return c
}

// FetchPackage returns metadata for the latest version of pkg.
// If refresh is true, cached data is bypassed.
func (c *Client) FetchPackage(ctx context.Context, pkg string, refresh bool) (*PackageInfo, error) {
	pkg = strings.TrimSpace(pkg)

	var info PackageInfo
	err := c.Cached(ctx, pkg, refresh, &info, func() error {
		return c.fetch(ctx, pkg, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) fetch(ctx context.Context, pkg string, info *PackageInfo) error {
	var data registryResponse
	if err := c.Get(ctx, c.registryURL+"/"+integrations.PathEscape(pkg), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: npm package %s", err, pkg)
		}
		return err
	}

	latest := data.DistTags.Latest
	v := data.Versions[latest]

	*info = PackageInfo{
		Name:        cmp.Or(data.Name, pkg),
		Version:     latest,
		Description: cmp.Or(v.Description, data.Description),
		Repository:  cmp.Or(extractField(v.Repository, "url"), extractField(data.Repository, "url")),
		Bugs:        cmp.Or(extractField(v.Bugs, "url"), extractField(data.Bugs, "url")),
		HomePage:    cmp.Or(v.HomePage, data.HomePage),
	}
	return nil
}

// SearchMaintainer lists the packages maintained by username.
func (c *Client) SearchMaintainer(ctx context.Context, username string) ([]SearchResult, error) {
	var results []SearchResult
	for from := 0; from < MaxSearchResults; from += SearchPageSize {
		q := url.Values{
			"text": {"maintainer:" + username},
			"size": {strconv.Itoa(SearchPageSize)},
			"from": {strconv.Itoa(from)},
		}
		var page searchResponse
		if err := c.Get(ctx, c.registryURL+"/-/v1/search?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("search maintainer %s: %w", username, err)
		}
		for _, obj := range page.Objects {
			results = append(results, obj.result())
		}
		if len(page.Objects) < SearchPageSize || len(results) >= page.Total {
			break
		}
	}
	if len(results) > MaxSearchResults {
		results = results[:MaxSearchResults]
	}
	return results, nil
}

// WeeklyDownloads returns the download count of pkg over the last week.
// Packages the downloads API has no data for report ErrNotFound.
func (c *Client) WeeklyDownloads(ctx context.Context, pkg string) (int, error) {
	var data pointResponse
	u := c.downloadsURL + "/downloads/point/last-week/" + integrations.PathEscape(pkg)
	if err := c.Get(ctx, u, &data); err != nil {
		return 0, fmt.Errorf("weekly downloads %s: %w", pkg, err)
	}
	return data.Downloads, nil
}

// extractField reads a package.json field that may be a plain string or an
// object such as {"type": "git", "url": "..."}.
func extractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

type registryResponse struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	DistTags    distTags                  `json:"dist-tags"`
	Versions    map[string]versionDetails `json:"versions"`
	Repository  any                       `json:"repository"`
	Bugs        any                       `json:"bugs"`
	HomePage    string                    `json:"homepage"`
}

type distTags struct {
	Latest string `json:"latest"`
}

type versionDetails struct {
	Description string `json:"description"`
	Repository  any    `json:"repository"`
	Bugs        any    `json:"bugs"`
	HomePage    string `json:"homepage"`
}

type searchResponse struct {
	Objects []searchObject `json:"objects"`
	Total   int            `json:"total"`
}

type searchObject struct {
	Package struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description"`
		Links       struct {
			Npm        string `json:"npm"`
			Repository string `json:"repository"`
			Homepage   string `json:"homepage"`
			Bugs       string `json:"bugs"`
		} `json:"links"`
	} `json:"package"`
	Downloads *struct {
		Weekly  int `json:"weekly"`
		Monthly int `json:"monthly"`
	} `json:"downloads"`
	Dependents flexInt `json:"dependents"`
}

func (o searchObject) result() SearchResult {
	p := o.Package
	r := SearchResult{
		Name:          p.Name,
		Version:       p.Version,
		Description:   p.Description,
		RepositoryURL: cmp.Or(p.Links.Repository, p.Links.Bugs, p.Links.Homepage),
		NpmURL:        p.Links.Npm,
		Dependents:    int(o.Dependents),
	}
	if o.Downloads != nil {
		r.WeeklyDownloads = o.Downloads.Weekly
		r.HasDownloads = true
	}
	return r
}

type pointResponse struct {
	Downloads int    `json:"downloads"`
	Package   string `json:"package"`
}

// flexInt accepts both 12 and "12"; the search API has served both.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if json.Unmarshal(b, &s) != nil {
			*f = 0
			return nil
		}
		n = json.Number(s)
	}
	v, err := n.Int64()
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}
