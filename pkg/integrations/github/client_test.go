package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/integrations"
)

func testClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	f := httputil.NewFetcher(srv.Client())
	f.BaseDelay, f.MaxJitter = 0, 0
	return NewClient(Config{BaseURL: srv.URL, Token: token, Fetcher: f})
}

func TestFetchRepo(t *testing.T) {
	var auth, version string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		version = r.Header.Get("X-GitHub-Api-Version")
		if r.URL.Path != "/repos/expressjs/express" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Reset", "1767225600")
		json.NewEncoder(w).Encode(repoResponse{FullName: "expressjs/express", Stars: 65000, OpenIssues: 180})
	}))
	defer srv.Close()

	c := testClient(t, srv, "secret")
	res, err := c.FetchRepo(context.Background(), "expressjs", "express")
	if err != nil {
		t.Fatalf("FetchRepo() error: %v", err)
	}

	if res.Status != 200 || res.Stars != 65000 || res.OpenIssues != 180 {
		t.Errorf("result = %+v", res)
	}
	if !res.RateLimit.HasRemaining || res.RateLimit.Remaining != 4999 {
		t.Errorf("remaining = %+v", res.RateLimit)
	}
	if !res.RateLimit.Reset.Equal(time.Unix(1767225600, 0)) {
		t.Errorf("reset = %v", res.RateLimit.Reset)
	}
	if res.URL() != "https://github.com/expressjs/express" {
		t.Errorf("URL() = %q", res.URL())
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if version != "2022-11-28" {
		t.Errorf("X-GitHub-Api-Version = %q", version)
	}
	if !c.Authenticated() {
		t.Error("client with token should be authenticated")
	}
}

func TestFetchRepoStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
		{"too many", http.StatusTooManyRequests},
		{"server error", http.StatusBadGateway},
		{"teapot", http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(errorResponse{Message: "nope"})
			}))
			defer srv.Close()

			res, err := testClient(t, srv, "").FetchRepo(context.Background(), "o", "r")
			if err != nil {
				t.Fatalf("FetchRepo() error: %v", err)
			}
			if res.Status != tt.status {
				t.Errorf("Status = %d, want %d", res.Status, tt.status)
			}
			if res.Message != "nope" {
				t.Errorf("Message = %q", res.Message)
			}
			if res.Stars != 0 || res.OpenIssues != 0 {
				t.Errorf("counts should be zero on %d", tt.status)
			}
		})
	}
}

func TestFetchRepoInvalidRef(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.FetchRepo(context.Background(), "-bad", "repo"); err == nil {
		t.Error("expected validation error")
	}
	if c.Authenticated() {
		t.Error("client without token should not be authenticated")
	}
}

func TestFetchRepoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := testClient(t, srv, "")
	srv.Close()

	_, err := c.FetchRepo(context.Background(), "o", "r")
	if !errors.Is(err, integrations.ErrNetwork) {
		t.Errorf("FetchRepo() error = %v, want ErrNetwork", err)
	}
}

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		name          string
		remaining     string
		reset         string
		wantRemaining int
		hasRemaining  bool
		hasReset      bool
	}{
		{"both", "42", "1700000000", 42, true, true},
		{"missing", "", "", 0, false, false},
		{"garbage", "lots", "soon", 0, false, false},
		{"zero", "0", "1700000000", 0, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.remaining != "" {
				h.Set("X-RateLimit-Remaining", tt.remaining)
			}
			if tt.reset != "" {
				h.Set("X-RateLimit-Reset", tt.reset)
			}
			rl := ParseRateLimit(h)
			if rl.HasRemaining != tt.hasRemaining || rl.Remaining != tt.wantRemaining {
				t.Errorf("remaining = %d (%v), want %d (%v)", rl.Remaining, rl.HasRemaining, tt.wantRemaining, tt.hasRemaining)
			}
			if rl.HasReset != tt.hasReset {
				t.Errorf("HasReset = %v, want %v", rl.HasReset, tt.hasReset)
			}
		})
	}
}

func TestValidateRepoRef(t *testing.T) {
	tests := []struct {
		owner, repo string
		wantErr     bool
	}{
		{"expressjs", "express", false},
		{"lodash", "lodash.js", false},
		{"-owner", "repo", true},
		{"owner", "", true},
		{"owner", "..", true},
		{"", "repo", true},
	}
	for _, tt := range tests {
		err := ValidateRepoRef(tt.owner, tt.repo)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRepoRef(%q, %q) error = %v, wantErr %v", tt.owner, tt.repo, err, tt.wantErr)
		}
	}
}
