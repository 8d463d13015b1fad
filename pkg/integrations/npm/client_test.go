package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/npmdash/pkg/cache"
	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/integrations"
)

func testClient(t *testing.T, srv *httptest.Server, c cache.Cache) *Client {
	t.Helper()
	f := httputil.NewFetcher(srv.Client())
	f.BaseDelay, f.MaxJitter = 0, 0
	return NewClient(Config{
		RegistryURL:  srv.URL,
		DownloadsURL: srv.URL,
		Cache:        c,
		CacheTTL:     time.Hour,
		Fetcher:      f,
	})
}

func TestFetchPackage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.EscapedPath() != "/@scope%2Fwidget" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{
			"name": "@scope/widget",
			"dist-tags": {"latest": "2.1.0"},
			"versions": {
				"2.1.0": {
					"description": "A widget",
					"repository": {"type": "git", "url": "git+https://github.com/scope/widget.git"},
					"bugs": {"url": "https://github.com/scope/widget/issues"},
					"homepage": "https://widget.dev"
				}
			}
		}`)
	}))
	defer srv.Close()

	fc, _ := cache.NewFileCache(t.TempDir())
	c := testClient(t, srv, fc)

	info, err := c.FetchPackage(context.Background(), "@scope/widget", false)
	if err != nil {
		t.Fatalf("FetchPackage() error: %v", err)
	}
	if info.Name != "@scope/widget" || info.Version != "2.1.0" {
		t.Errorf("identity = %s@%s", info.Name, info.Version)
	}
	if info.Repository != "git+https://github.com/scope/widget.git" {
		t.Errorf("Repository = %q", info.Repository)
	}
	if info.RepoSource() != info.Repository {
		t.Errorf("RepoSource() = %q, want repository field", info.RepoSource())
	}

	if _, err := c.FetchPackage(context.Background(), "@scope/widget", false); err != nil {
		t.Fatalf("second FetchPackage() error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("registry calls = %d, want 1 (second served from cache)", calls.Load())
	}
}

func TestFetchPackageStringRepository(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name": "tiny",
			"repository": "github:someone/tiny",
			"dist-tags": {"latest": "1.0.0"},
			"versions": {"1.0.0": {}}
		}`)
	}))
	defer srv.Close()

	info, err := testClient(t, srv, nil).FetchPackage(context.Background(), "tiny", true)
	if err != nil {
		t.Fatalf("FetchPackage() error: %v", err)
	}
	if info.Repository != "github:someone/tiny" {
		t.Errorf("Repository = %q, want top-level fallback", info.Repository)
	}
}

func TestRepoSourceFallback(t *testing.T) {
	tests := []struct {
		info PackageInfo
		want string
	}{
		{PackageInfo{Repository: "r", Bugs: "b", HomePage: "h"}, "r"},
		{PackageInfo{Bugs: "b", HomePage: "h"}, "b"},
		{PackageInfo{HomePage: "h"}, "h"},
		{PackageInfo{}, ""},
	}
	for _, tt := range tests {
		if got := tt.info.RepoSource(); got != tt.want {
			t.Errorf("RepoSource(%+v) = %q, want %q", tt.info, got, tt.want)
		}
	}
}

func TestFetchPackageNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testClient(t, srv, nil).FetchPackage(context.Background(), "nope", false)
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("FetchPackage() error = %v, want ErrNotFound", err)
	}
}

func searchHandler(t *testing.T, total int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/-/v1/search" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("text"); got != "maintainer:alice" {
			t.Errorf("text = %q", got)
		}
		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))

		var objs []map[string]any
		for i := from; i < min(from+size, total); i++ {
			objs = append(objs, map[string]any{
				"package": map[string]any{
					"name":    fmt.Sprintf("pkg-%d", i),
					"version": "1.0.0",
					"links":   map[string]any{"repository": fmt.Sprintf("https://github.com/alice/pkg-%d", i)},
				},
				"downloads":  map[string]any{"weekly": i * 10, "monthly": i * 40},
				"dependents": strconv.Itoa(i),
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"objects": objs, "total": total})
	}
}

func TestSearchMaintainerPaging(t *testing.T) {
	tests := []struct {
		name  string
		total int
		want  int
	}{
		{"none", 0, 0},
		{"single page", 3, 3},
		{"exact page", 250, 250},
		{"two pages", 300, 300},
		{"capped", 1500, MaxSearchResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(searchHandler(t, tt.total))
			defer srv.Close()

			got, err := testClient(t, srv, nil).SearchMaintainer(context.Background(), "alice")
			if err != nil {
				t.Fatalf("SearchMaintainer() error: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if tt.want > 2 {
				r := got[2]
				if r.Name != "pkg-2" || r.WeeklyDownloads != 20 || r.Dependents != 2 || !r.HasDownloads {
					t.Errorf("result[2] = %+v", r)
				}
				if r.RepositoryURL != "https://github.com/alice/pkg-2" {
					t.Errorf("RepositoryURL = %q", r.RepositoryURL)
				}
			}
		})
	}
}

func TestSearchMaintainerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(t, srv, nil).SearchMaintainer(context.Background(), "alice")
	if !errors.Is(err, integrations.ErrNetwork) {
		t.Errorf("SearchMaintainer() error = %v, want ErrNetwork", err)
	}
}

func TestWeeklyDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/downloads/point/last-week/chalk":
			fmt.Fprint(w, `{"downloads": 12345, "package": "chalk"}`)
		case "/downloads/point/last-week/@scope%2Fwidget":
			fmt.Fprint(w, `{"downloads": 7, "package": "@scope/widget"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error": "package not found"}`)
		}
	}))
	defer srv.Close()
	c := testClient(t, srv, nil)

	tests := []struct {
		pkg     string
		want    int
		wantErr error
	}{
		{"chalk", 12345, nil},
		{"@scope/widget", 7, nil},
		{"brand-new", 0, integrations.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			got, err := c.WeeklyDownloads(context.Background(), tt.pkg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("WeeklyDownloads() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("WeeklyDownloads() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{`12`, 12},
		{`"34"`, 34},
		{`null`, 0},
		{`"many"`, 0},
	}
	for _, tt := range tests {
		var f flexInt
		if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.in, err)
		}
		if int(f) != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, f, tt.want)
		}
	}
}
