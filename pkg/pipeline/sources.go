package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/matzehuels/npmdash/pkg/buildinfo"
	"github.com/matzehuels/npmdash/pkg/enrich"
	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/history"
	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/integrations"
)

// StatsSource lists a maintainer's packages with their npm numbers.
type StatsSource interface {
	Stats(ctx context.Context, username string) (*UserStats, error)
}

// HistoryStore loads and saves dashboard snapshots. *history.Store
// implements it.
type HistoryStore interface {
	Load(ctx context.Context, userID, npmUser string) (history.Lookup, error)
	Save(ctx context.Context, userID, npmUser string, snap *history.Snapshot) (history.SaveResult, error)
}

// =============================================================================
// In-process
// =============================================================================

// ServiceStatsSource reads stats from an enrich.Service.
type ServiceStatsSource struct {
	Service *enrich.Service
}

// Stats implements StatsSource.
func (s *ServiceStatsSource) Stats(ctx context.Context, username string) (*UserStats, error) {
	st, err := s.Service.Stats(ctx, username)
	if err != nil {
		return nil, err
	}
	return FromEnrich(st), nil
}

// FromEnrich converts a stats response into a dashboard.
func FromEnrich(st *enrich.Stats) *UserStats {
	if st == nil {
		return nil
	}
	out := &UserStats{
		Username:       st.Username,
		Packages:       make([]Package, len(st.Packages)),
		TotalDownloads: st.TotalDownloads,
		TotalStars:     st.TotalStars,
	}
	for i, p := range st.Packages {
		out.Packages[i] = Package{
			Name:            p.Name,
			Version:         p.Version,
			WeeklyDownloads: p.WeeklyDownloads,
			Dependents:      p.Dependents,
			GithubStars:     p.GithubStars,
			OpenIssues:      p.OpenIssues,
			LastChecked:     p.LastChecked,
			NpmURL:          p.NpmURL,
			RepoURL:         clonePtr(p.RepoURL),
		}
	}
	return out
}

// =============================================================================
// HTTP
// =============================================================================

// HTTPStatsSource calls the /api/stats endpoint of a running server.
// Transient failures are retried by the fetcher.
type HTTPStatsSource struct {
	BaseURL string
	Fetcher *httputil.Fetcher
}

// Stats implements StatsSource.
func (s *HTTPStatsSource) Stats(ctx context.Context, username string) (*UserStats, error) {
	url := apiURL(s.BaseURL, "/api/stats?username="+integrations.URLEncode(username))
	var out UserStats
	if err := getJSON(ctx, s.fetcher(), url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *HTTPStatsSource) fetcher() *httputil.Fetcher {
	if s.Fetcher != nil {
		return s.Fetcher
	}
	return httputil.NewFetcher(nil)
}

// HTTPHistory calls the /api/user-stats-history endpoint of a running
// server.
type HTTPHistory struct {
	BaseURL string
	Fetcher *httputil.Fetcher
}

type historyGetBody struct {
	Data            *history.Snapshot `json:"data"`
	LastCheckedDate *string           `json:"lastCheckedDate"`
	RedisAvailable  bool              `json:"redisAvailable"`
}

type historyPostBody struct {
	Success        bool   `json:"success"`
	Date           string `json:"date"`
	RedisAvailable bool   `json:"redisAvailable"`
}

// Load implements HistoryStore.
func (h *HTTPHistory) Load(ctx context.Context, userID, npmUser string) (history.Lookup, error) {
	url := apiURL(h.BaseURL, fmt.Sprintf("/api/user-stats-history?githubUserId=%s&npmUsername=%s",
		integrations.URLEncode(userID), integrations.URLEncode(npmUser)))
	var body historyGetBody
	if err := getJSON(ctx, h.fetcher(), url, &body); err != nil {
		return history.Lookup{}, err
	}
	lookup := history.Lookup{Snapshot: body.Data, Available: body.RedisAvailable}
	if body.LastCheckedDate != nil {
		lookup.LastCheckedDate = *body.LastCheckedDate
	}
	return lookup, nil
}

// Save implements HistoryStore.
func (h *HTTPHistory) Save(ctx context.Context, userID, npmUser string, snap *history.Snapshot) (history.SaveResult, error) {
	payload, err := json.Marshal(map[string]any{
		"githubUserId": userID,
		"npmUsername":  npmUser,
		"data":         snap,
	})
	if err != nil {
		return history.SaveResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(h.BaseURL, "/api/user-stats-history"), bytes.NewReader(payload))
	if err != nil {
		return history.SaveResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var body historyPostBody
	if err := doJSON(h.fetcher(), req, &body); err != nil {
		return history.SaveResult{}, err
	}
	return history.SaveResult{Success: body.Success, Date: body.Date, Available: body.RedisAvailable}, nil
}

func (h *HTTPHistory) fetcher() *httputil.Fetcher {
	if h.Fetcher != nil {
		return h.Fetcher
	}
	return httputil.NewFetcher(nil)
}

// =============================================================================
// Helpers
// =============================================================================

func apiURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func getJSON(ctx context.Context, f *httputil.Fetcher, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(f, req, v)
}

// doJSON sends req and decodes a 2xx body into v. A non-2xx answer becomes
// a coded error carrying the body's "error" field.
func doJSON(f *httputil.Fetcher, req *http.Request, v any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := f.Do(req.Context(), req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "read %s", req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		msg := fmt.Sprintf("%s returned %d", req.URL.Path, resp.StatusCode)
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			msg = body.Error
		}
		return errors.New(statusCode(resp.StatusCode), "%s", msg)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(errors.ErrCodeUpstream, err, "decode %s", req.URL.Path)
	}
	return nil
}

func statusCode(status int) errors.Code {
	switch {
	case status == http.StatusBadRequest:
		return errors.ErrCodeInvalidInput
	case status == http.StatusNotFound:
		return errors.ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return errors.ErrCodeRateLimited
	case status == http.StatusServiceUnavailable:
		return errors.ErrCodeUnavailable
	default:
		return errors.ErrCodeUpstream
	}
}
