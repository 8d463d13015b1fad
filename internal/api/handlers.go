package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmdash/pkg/buildinfo"
	"github.com/matzehuels/npmdash/pkg/enrich"
	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/history"
	"github.com/matzehuels/npmdash/pkg/ratelimit"
)

// maxBodyBytes bounds POST bodies. A dashboard snapshot of 1000 packages
// is well under this.
const maxBodyBytes = 4 << 20

// Handler serves the API endpoints.
type Handler struct {
	svc     *enrich.Service
	history *history.Store
	logger  *log.Logger
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// Health
// =============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Version   string             `json:"version"`
	Services  map[string]string  `json:"services"`
	RateLimit ratelimit.Snapshot `json:"rateLimit"`
}

// Health handles GET /api/health. History is best-effort, so an unreachable
// store degrades the status without failing the check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{"github": "anonymous", "history": "disabled"}
	status := "ok"

	if h.svc.Repos != nil && h.svc.Repos.Authenticated() {
		services["github"] = "authenticated"
	}
	if h.history.Configured() {
		if err := h.history.Ping(r.Context()); err != nil {
			h.logger.Warn("history health check failed", "err", err)
			services["history"] = "unavailable"
			status = "degraded"
		} else {
			services["history"] = "healthy"
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   buildinfo.Version,
		Services:  services,
		RateLimit: h.svc.RateLimit(),
	})
}

// RateLimit handles GET /api/rate-limit.
func (h *Handler) RateLimit(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.RateLimit())
}

// =============================================================================
// Stats
// =============================================================================

// Stats handles GET /api/stats?username=.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		respondError(w, http.StatusBadRequest, "Username is required", "")
		return
	}

	stats, err := h.svc.Stats(r.Context(), username)
	if err != nil {
		if status := errors.HTTPStatus(err); status == http.StatusBadRequest {
			respondError(w, status, errors.UserMessage(err), "")
			return
		}
		h.logger.Error("stats lookup failed", "username", username, "err", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch package data", errors.UserMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// =============================================================================
// GitHub stats
// =============================================================================

// GitHubStatsResponse is the body of a successful enrichment.
type GitHubStatsResponse struct {
	PackageName string  `json:"packageName"`
	Stars       int     `json:"stars"`
	OpenIssues  int     `json:"openIssues"`
	RepoURL     *string `json:"repoUrl"`
	Success     bool    `json:"success"`
	RateLimited bool    `json:"rateLimited"`
}

// GitHubErrorResponse is the body of a failed enrichment. ResetTime is in
// milliseconds since the epoch and only set on 429.
type GitHubErrorResponse struct {
	Error       string `json:"error"`
	Details     string `json:"details,omitempty"`
	PackageName string `json:"packageName"`
	Success     bool   `json:"success"`
	RateLimited bool   `json:"rateLimited"`
	ResetTime   int64  `json:"resetTime,omitempty"`
}

// GitHubStats handles GET /api/github-stats?package=.
func (h *Handler) GitHubStats(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("package"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "Package name is required", "")
		return
	}

	res, err := h.svc.Enrich(r.Context(), name)
	if err != nil {
		if rl, ok := errors.AsRateLimited(err); ok {
			respondJSON(w, http.StatusTooManyRequests, GitHubErrorResponse{
				Error:       "GitHub API rate limit exceeded",
				Details:     rl.Message,
				PackageName: name,
				RateLimited: true,
				ResetTime:   rl.ResetTime.UnixMilli(),
			})
			return
		}

		status := errors.HTTPStatus(err)
		body := GitHubErrorResponse{PackageName: name, Error: errors.UserMessage(err)}
		if status >= 500 {
			h.logger.Warn("enrichment failed", "package", name, "err", err)
			body.Error = "Failed to fetch GitHub data"
			body.Details = errors.UserMessage(err)
		}
		respondJSON(w, status, body)
		return
	}

	out := GitHubStatsResponse{
		PackageName: res.PackageName,
		Stars:       res.Stars,
		OpenIssues:  res.OpenIssues,
		Success:     true,
	}
	if res.RepoURL != "" {
		out.RepoURL = &res.RepoURL
	}
	respondJSON(w, http.StatusOK, out)
}

// =============================================================================
// History
// =============================================================================

// HistoryResponse is the body of GET /api/user-stats-history.
type HistoryResponse struct {
	Data            *history.Snapshot `json:"data"`
	LastCheckedDate *string           `json:"lastCheckedDate"`
	RedisAvailable  bool              `json:"redisAvailable"`
	Message         string            `json:"message,omitempty"`
}

// SaveRequest is the body of POST /api/user-stats-history.
type SaveRequest struct {
	GitHubUserID string            `json:"githubUserId"`
	NpmUsername  string            `json:"npmUsername"`
	Data         *history.Snapshot `json:"data"`
}

// SaveResponse is the answer to a save.
type SaveResponse struct {
	Success        bool   `json:"success"`
	Date           string `json:"date"`
	RedisAvailable bool   `json:"redisAvailable"`
	Message        string `json:"message,omitempty"`
}

// GetHistory handles GET /api/user-stats-history. An unavailable store is
// reported in the body, never as an error status.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, npmUser := strings.TrimSpace(q.Get("githubUserId")), strings.TrimSpace(q.Get("npmUsername"))
	if userID == "" || npmUser == "" {
		respondError(w, http.StatusBadRequest, "githubUserId and npmUsername are required", "")
		return
	}

	lookup, err := h.history.Load(r.Context(), userID, npmUser)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.UserMessage(err), "")
		return
	}

	out := HistoryResponse{Data: lookup.Snapshot, RedisAvailable: lookup.Available}
	if lookup.LastCheckedDate != "" {
		out.LastCheckedDate = &lookup.LastCheckedDate
	}
	if !lookup.Available {
		out.Message = "Historical data storage is currently unavailable"
	}
	respondJSON(w, http.StatusOK, out)
}

// SaveHistory handles POST /api/user-stats-history.
func (h *Handler) SaveHistory(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := parseJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	req.GitHubUserID, req.NpmUsername = strings.TrimSpace(req.GitHubUserID), strings.TrimSpace(req.NpmUsername)
	if req.GitHubUserID == "" || req.NpmUsername == "" || req.Data == nil {
		respondError(w, http.StatusBadRequest, "githubUserId, npmUsername, and data are required", "")
		return
	}

	res, err := h.history.Save(r.Context(), req.GitHubUserID, req.NpmUsername, req.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.UserMessage(err), "")
		return
	}

	out := SaveResponse{Success: res.Success, Date: res.Date, RedisAvailable: res.Available}
	switch {
	case !res.Available:
		out.Message = "Data could not be saved - Redis connection issue"
	case !res.Success:
		out.Message = "Data save operation failed"
	}
	respondJSON(w, http.StatusOK, out)
}

// =============================================================================
// Helpers
// =============================================================================

// parseJSON decodes a bounded JSON request body.
func parseJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return stderrors.New("request body too large")
		}
		return err
	}
	return nil
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg, details string) {
	respondJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
