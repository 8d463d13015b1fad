package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matzehuels/npmdash/pkg/buildinfo"
	"github.com/matzehuels/npmdash/pkg/enrich"
	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/integrations"
)

// Enricher fetches the GitHub numbers of one package.
//
// Enrich never returns a Go error: the outcome is encoded in the Response
// so the pipeline can classify it.
type Enricher interface {
	Enrich(ctx context.Context, name string) Response
}

// Response is the outcome of one enrichment call.
type Response struct {
	// Status is the HTTP status of the call, zero when Err is set.
	Status int

	Stars      int
	OpenIssues int

	// RepoURL is empty when the package has no GitHub repository.
	RepoURL string

	// ResetTime and Message are set on 429.
	ResetTime time.Time
	Message   string

	// Err is a transport failure. The call did not produce a status.
	Err error
}

// =============================================================================
// HTTP
// =============================================================================

// HTTPEnricher calls the /api/github-stats endpoint of a running server.
// Every call is a single attempt; retries belong to the pipeline.
type HTTPEnricher struct {
	BaseURL string
	Client  *http.Client
}

// githubStatsBody is the body of /api/github-stats. ResetTime is in
// milliseconds since the epoch.
type githubStatsBody struct {
	Stars       int     `json:"stars"`
	OpenIssues  int     `json:"openIssues"`
	RepoURL     *string `json:"repoUrl"`
	Success     bool    `json:"success"`
	RateLimited bool    `json:"rateLimited"`
	ResetTime   int64   `json:"resetTime"`
	Error       string  `json:"error"`
	Details     string  `json:"details"`
}

// Enrich implements Enricher.
func (e *HTTPEnricher) Enrich(ctx context.Context, name string) Response {
	url := strings.TrimRight(e.BaseURL, "/") + "/api/github-stats?package=" + integrations.URLEncode(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := e.client().Do(req)
	if err != nil {
		return Response{Err: err}
	}
	defer resp.Body.Close()

	out := Response{Status: resp.StatusCode}
	var body githubStatsBody
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{Err: err}
	}
	if err := json.Unmarshal(data, &body); err != nil {
		if resp.StatusCode == http.StatusOK {
			return Response{Err: fmt.Errorf("decode github stats: %w", err)}
		}
		return out
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		out.Stars = body.Stars
		out.OpenIssues = body.OpenIssues
		if body.RepoURL != nil {
			out.RepoURL = *body.RepoURL
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		if body.ResetTime > 0 {
			out.ResetTime = time.UnixMilli(body.ResetTime)
		}
		out.Message = body.Details
	default:
		out.Message = body.Error
	}
	return out
}

func (e *HTTPEnricher) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

// =============================================================================
// In-process
// =============================================================================

// ServiceEnricher calls an enrich.Service directly. Errors are mapped to
// the status the API would have answered with.
type ServiceEnricher struct {
	Service *enrich.Service
}

// Enrich implements Enricher.
func (e *ServiceEnricher) Enrich(ctx context.Context, name string) Response {
	res, err := e.Service.Enrich(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return Response{Err: ctx.Err()}
		}
		out := Response{Status: errors.HTTPStatus(err), Message: errors.UserMessage(err)}
		if rl, ok := errors.AsRateLimited(err); ok {
			out.ResetTime = rl.ResetTime
			out.Message = rl.Message
		}
		return out
	}
	return Response{
		Status:     http.StatusOK,
		Stars:      res.Stars,
		OpenIssues: res.OpenIssues,
		RepoURL:    res.RepoURL,
	}
}
