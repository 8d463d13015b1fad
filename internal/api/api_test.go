package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmdash/pkg/cache"
	"github.com/matzehuels/npmdash/pkg/enrich"
	"github.com/matzehuels/npmdash/pkg/history"
	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/integrations/github"
	"github.com/matzehuels/npmdash/pkg/integrations/npm"
	"github.com/matzehuels/npmdash/pkg/ratelimit"
)

// upstream fakes the npm registry, the downloads API and GitHub.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	reset := time.Now().Add(40 * time.Minute).Unix()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/-/v1/search":
			if r.URL.Query().Get("text") == "maintainer:broken" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"total": 2, "objects": [
				{"package": {"name": "left-pad", "version": "1.3.0",
				  "links": {"npm": "https://www.npmjs.com/package/left-pad", "repository": "https://github.com/o/left-pad"}},
				 "downloads": {"weekly": 100, "monthly": 400}, "dependents": "12"},
				{"package": {"name": "tiny", "version": "0.0.1", "links": {}}, "dependents": 0}
			]}`)
		case "/downloads/point/last-week/tiny":
			fmt.Fprint(w, `{"downloads": 7, "package": "tiny"}`)
		case "/left-pad":
			fmt.Fprint(w, `{"name": "left-pad", "dist-tags": {"latest": "1.3.0"},
				"versions": {"1.3.0": {"repository": {"type": "git", "url": "git+https://github.com/o/left-pad.git"}}}}`)
		case "/norepo":
			fmt.Fprint(w, `{"name": "norepo", "dist-tags": {"latest": "1.0.0"}, "versions": {"1.0.0": {}}}`)
		case "/limited":
			fmt.Fprint(w, `{"name": "limited", "dist-tags": {"latest": "1.0.0"},
				"versions": {"1.0.0": {"repository": "github:o/limited"}}}`)
		case "/repos/o/left-pad":
			w.Header().Set("X-RateLimit-Remaining", "4999")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			fmt.Fprint(w, `{"full_name": "o/left-pad", "stargazers_count": 42, "open_issues_count": 3}`)
		case "/repos/o/limited":
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

type testEnv struct {
	router http.Handler
	limits *ratelimit.State
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	up := upstream(t)
	t.Cleanup(up.Close)

	f := httputil.NewFetcher(up.Client())
	f.BaseDelay, f.MaxJitter = 0, 0
	logger := log.New(io.Discard)

	reg := npm.NewClient(npm.Config{RegistryURL: up.URL, DownloadsURL: up.URL, Fetcher: f})
	repos := github.NewClient(github.Config{BaseURL: up.URL, Fetcher: f})
	limits := ratelimit.New()
	svc := enrich.NewService(reg, repos, limits, logger)

	env := &testEnv{limits: limits}
	cfg := &RouterConfig{Service: svc, Logger: logger}
	if withHistory {
		env.redis = miniredis.RunT(t)
		backend, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{Addr: env.redis.Addr()})
		if err != nil {
			t.Fatalf("NewRedisCache: %v", err)
		}
		t.Cleanup(func() { backend.Close() })
		cfg.History = history.New(backend, history.Options{Logger: logger})
	}
	env.router = NewRouter(cfg)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			data, _ := json.Marshal(b)
			rd = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: invalid JSON %q", method, target, rec.Body.String())
		}
	}
	return rec, out
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rec, body := env.do(t, http.MethodGet, "/api/stats?username=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	if body["username"] != "alice" || body["totalDownloads"] != float64(107) || body["totalStars"] != float64(0) {
		t.Errorf("body = %v", body)
	}
	pkgs := body["packages"].([]any)
	if len(pkgs) != 2 {
		t.Fatalf("packages = %v", pkgs)
	}
	first := pkgs[0].(map[string]any)
	if first["dependents"] != float64(12) || first["repoUrl"] != "https://github.com/o/left-pad" || first["npmUrl"] != "https://www.npmjs.com/package/left-pad" {
		t.Errorf("first package = %v", first)
	}
	if second := pkgs[1].(map[string]any); second["weeklyDownloads"] != float64(7) || second["repoUrl"] != nil {
		t.Errorf("second package = %v", second)
	}
}

func TestStatsEndpointErrors(t *testing.T) {
	env := newTestEnv(t, false)
	tests := []struct {
		target string
		status int
		errMsg string
	}{
		{"/api/stats", 400, "Username is required"},
		{"/api/stats?username=a%20b", 400, ""},
		{"/api/stats?username=broken", 500, "Failed to fetch package data"},
	}
	for _, tt := range tests {
		rec, body := env.do(t, http.MethodGet, tt.target, nil)
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.target, rec.Code, tt.status)
		}
		if tt.errMsg != "" && body["error"] != tt.errMsg {
			t.Errorf("%s: error = %v, want %q", tt.target, body["error"], tt.errMsg)
		}
		if body["error"] == nil {
			t.Errorf("%s: missing error field", tt.target)
		}
	}
}

func TestGitHubStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rec, body := env.do(t, http.MethodGet, "/api/github-stats?package=left-pad", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	if body["stars"] != float64(42) || body["openIssues"] != float64(3) || body["repoUrl"] != "https://github.com/o/left-pad" ||
		body["success"] != true || body["rateLimited"] != false || body["packageName"] != "left-pad" {
		t.Errorf("body = %v", body)
	}

	rec, body = env.do(t, http.MethodGet, "/api/github-stats?package=norepo", nil)
	if rec.Code != http.StatusOK || body["stars"] != float64(0) || body["success"] != true {
		t.Errorf("norepo: %d %v", rec.Code, body)
	}
	if v, ok := body["repoUrl"]; !ok || v != nil {
		t.Errorf("norepo repoUrl = %v (present %v), want null", v, ok)
	}

	rec, body = env.do(t, http.MethodGet, "/api/github-stats?package=missing", nil)
	if rec.Code != http.StatusNotFound || body["success"] != false {
		t.Errorf("missing: %d %v", rec.Code, body)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/github-stats", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no package: status = %d", rec.Code)
	}
}

func TestGitHubStatsRateLimited(t *testing.T) {
	env := newTestEnv(t, false)

	rec, body := env.do(t, http.MethodGet, "/api/github-stats?package=limited", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	if body["rateLimited"] != true || body["success"] != false || body["error"] != "GitHub API rate limit exceeded" {
		t.Errorf("body = %v", body)
	}
	resetMs, _ := body["resetTime"].(float64)
	if reset := time.UnixMilli(int64(resetMs)); time.Until(reset) < 30*time.Minute {
		t.Errorf("resetTime = %v, want about 40 minutes ahead", reset)
	}
	if details, _ := body["details"].(string); !strings.Contains(details, "Consider adding a GitHub token") {
		t.Errorf("details = %q", details)
	}

	if limited, _ := env.limits.Limited(time.Now()); !limited {
		t.Fatal("shared rate-limit state not marked")
	}

	// Later lookups short-circuit, even for repositories that would work.
	rec, body = env.do(t, http.MethodGet, "/api/github-stats?package=left-pad", nil)
	if rec.Code != http.StatusTooManyRequests || body["rateLimited"] != true {
		t.Errorf("short-circuit: %d %v", rec.Code, body)
	}

	rec, body = env.do(t, http.MethodGet, "/api/rate-limit", nil)
	if rec.Code != http.StatusOK || body["isLimited"] != true {
		t.Errorf("rate-limit: %d %v", rec.Code, body)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	rec, body := env.do(t, http.MethodGet, "/api/user-stats-history?githubUserId=github%7C42&npmUsername=alice", nil)
	if rec.Code != http.StatusOK || body["data"] != nil || body["lastCheckedDate"] != nil || body["redisAvailable"] != true {
		t.Fatalf("empty history: %d %v", rec.Code, body)
	}

	snap := history.Snapshot{
		Packages:     []history.PackageSnapshot{{Name: "left-pad", WeeklyDownloads: 100, GithubStars: 42}},
		TotalStars:   42,
		PackageCount: 1,
		Username:     "alice",
	}
	rec, body = env.do(t, http.MethodPost, "/api/user-stats-history",
		map[string]any{"githubUserId": "github|42", "npmUsername": "alice", "data": snap})
	if rec.Code != http.StatusOK || body["success"] != true || body["redisAvailable"] != true {
		t.Fatalf("save: %d %v", rec.Code, body)
	}
	date, _ := body["date"].(string)
	if date != time.Now().UTC().Format("2006-01-02") {
		t.Errorf("date = %q", date)
	}

	rec, body = env.do(t, http.MethodGet, "/api/user-stats-history?githubUserId=github%7C42&npmUsername=alice", nil)
	if rec.Code != http.StatusOK || body["lastCheckedDate"] != date {
		t.Fatalf("load: %d %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["totalStars"] != float64(42) || data["username"] != "alice" {
		t.Errorf("data = %v", data)
	}
}

func TestHistoryKeepsPostedRows(t *testing.T) {
	env := newTestEnv(t, true)

	row := map[string]any{
		"name":                "left-pad",
		"version":             "1.3.0",
		"weeklyDownloads":     float64(100),
		"dependents":          float64(2),
		"githubStars":         float64(42),
		"openIssues":          float64(3),
		"lastChecked":         "2026-10-18T12:00:00Z",
		"npmUrl":              "https://www.npmjs.com/package/left-pad",
		"repoUrl":             "https://github.com/stevemao/left-pad",
		"githubFetchFailed":   true,
		"previousGithubStars": float64(40),
	}
	data := map[string]any{
		"packages":       []any{row},
		"totalDownloads": float64(100),
		"totalStars":     float64(42),
		"packageCount":   float64(1),
		"timestamp":      "2026-10-18T12:00:00Z",
		"username":       "alice",
	}
	rec, body := env.do(t, http.MethodPost, "/api/user-stats-history",
		map[string]any{"githubUserId": "github|7", "npmUsername": "alice", "data": data})
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("save: %d %v", rec.Code, body)
	}

	_, body = env.do(t, http.MethodGet, "/api/user-stats-history?githubUserId=github%7C7&npmUsername=alice", nil)
	got, _ := body["data"].(map[string]any)
	if !reflect.DeepEqual(got, data) {
		t.Errorf("data round trip:\n got  %v\n want %v", got, data)
	}
}

func TestHistoryEndpointValidation(t *testing.T) {
	env := newTestEnv(t, true)
	tests := []struct {
		name   string
		method string
		target string
		body   any
		status int
	}{
		{"get missing user", http.MethodGet, "/api/user-stats-history?npmUsername=alice", nil, 400},
		{"get missing npm user", http.MethodGet, "/api/user-stats-history?githubUserId=u1", nil, 400},
		{"post invalid json", http.MethodPost, "/api/user-stats-history", "{not json", 400},
		{"post missing data", http.MethodPost, "/api/user-stats-history",
			map[string]any{"githubUserId": "u1", "npmUsername": "alice"}, 400},
		{"post missing user", http.MethodPost, "/api/user-stats-history",
			map[string]any{"npmUsername": "alice", "data": map[string]any{}}, 400},
		{"put not allowed", http.MethodPut, "/api/user-stats-history", nil, 405},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (%v)", rec.Code, tt.status, body)
			}
			if body["error"] == nil {
				t.Errorf("missing error field: %v", body)
			}
		})
	}
}

func TestHistoryUnavailable(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		env := newTestEnv(t, false)
		rec, body := env.do(t, http.MethodGet, "/api/user-stats-history?githubUserId=u1&npmUsername=alice", nil)
		if rec.Code != http.StatusOK || body["redisAvailable"] != false || body["data"] != nil {
			t.Errorf("get: %d %v", rec.Code, body)
		}
		rec, body = env.do(t, http.MethodPost, "/api/user-stats-history",
			map[string]any{"githubUserId": "u1", "npmUsername": "alice", "data": map[string]any{"packages": []any{}}})
		if rec.Code != http.StatusOK || body["success"] != false || body["redisAvailable"] != false {
			t.Errorf("post: %d %v", rec.Code, body)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		env := newTestEnv(t, true)
		env.redis.Close()
		rec, body := env.do(t, http.MethodGet, "/api/user-stats-history?githubUserId=u1&npmUsername=alice", nil)
		if rec.Code != http.StatusOK || body["redisAvailable"] != false {
			t.Errorf("get: %d %v", rec.Code, body)
		}
		rec, body = env.do(t, http.MethodGet, "/api/health", nil)
		if rec.Code != http.StatusOK || body["status"] != "degraded" {
			t.Errorf("health: %d %v", rec.Code, body)
		}
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)
	rec, body := env.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", rec.Code, body)
	}
	services := body["services"].(map[string]any)
	if services["history"] != "healthy" || services["github"] != "anonymous" {
		t.Errorf("services = %v", services)
	}
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t, false)

	rec, _ := env.do(t, http.MethodOptions, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" ||
		!strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("CORS headers = %v", rec.Header())
	}

	rec, _ = env.do(t, http.MethodGet, "/api/health", nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("request id = %q, want the caller's", rr.Header().Get(RequestIDHeader))
	}

	rec, body := env.do(t, http.MethodGet, "/api/nothing", nil)
	if rec.Code != http.StatusNotFound || body["error"] != "Not found" {
		t.Errorf("unknown route: %d %v", rec.Code, body)
	}
}
