package enrich

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/integrations"
	"github.com/matzehuels/npmdash/pkg/integrations/github"
	"github.com/matzehuels/npmdash/pkg/integrations/npm"
	"github.com/matzehuels/npmdash/pkg/ratelimit"
)

// Registry is the subset of the npm client the service needs.
type Registry interface {
	FetchPackage(ctx context.Context, name string, refresh bool) (*npm.PackageInfo, error)
	SearchMaintainer(ctx context.Context, username string) ([]npm.SearchResult, error)
	WeeklyDownloads(ctx context.Context, name string) (int, error)
}

// Repos is the subset of the GitHub client the service needs.
type Repos interface {
	FetchRepo(ctx context.Context, owner, repo string) (*github.RepoResult, error)
	Authenticated() bool
}

// Result is the enrichment of one package. RepoURL is empty when the
// package has no GitHub repository.
type Result struct {
	PackageName string
	Stars       int
	OpenIssues  int
	RepoURL     string
}

// Service answers enrichment and stats lookups.
type Service struct {
	Registry Registry
	Repos    Repos
	Limits   *ratelimit.State
	Logger   *log.Logger

	// DownloadWorkers bounds concurrent downloads API calls in Stats.
	DownloadWorkers int

	now func() time.Time
}

// NewService wires a service. A nil limits creates a private State and a
// nil logger uses log.Default().
func NewService(reg Registry, repos Repos, limits *ratelimit.State, logger *log.Logger) *Service {
	if limits == nil {
		limits = ratelimit.New()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		Registry:        reg,
		Repos:           repos,
		Limits:          limits,
		Logger:          logger,
		DownloadWorkers: 8,
		now:             time.Now,
	}
}

// Enrich looks up the GitHub stars and open issues of an npm package.
//
// A package without a recognizable GitHub repository, or whose repository
// no longer exists, is a successful result with zero counts.
func (s *Service) Enrich(ctx context.Context, name string) (*Result, error) {
	name = strings.TrimSpace(name)
	if err := errors.ValidateRegistryPackageName(name); err != nil {
		return nil, err
	}

	if limited, reset := s.Limits.Limited(s.now()); limited {
		s.Logger.Debug("rate limited, skipping github", "package", name, "reset", reset)
		return nil, s.rateLimited(reset)
	}

	info, err := s.Registry.FetchPackage(ctx, name, false)
	if err != nil {
		return nil, upstreamError(err, "fetch npm package %s", name)
	}

	result := &Result{PackageName: name}
	owner, repo, ok := integrations.GitHubRepo(info.RepoSource())
	if !ok {
		s.Logger.Debug("no github repository", "package", name, "source", info.RepoSource())
		return result, nil
	}
	if err := github.ValidateRepoRef(owner, repo); err != nil {
		s.Logger.Debug("unusable github repository", "package", name, "owner", owner, "repo", repo, "err", err)
		return result, nil
	}
	result.RepoURL = integrations.GitHubURL(owner, repo)

	res, err := s.Repos.FetchRepo(ctx, owner, repo)
	if err != nil {
		return nil, upstreamError(err, "fetch github repo %s/%s", owner, repo)
	}

	switch res.Status {
	case http.StatusOK:
		s.observe(res.RateLimit)
		result.Stars, result.OpenIssues = res.Stars, res.OpenIssues
		return result, nil
	case http.StatusNotFound:
		s.observe(res.RateLimit)
		s.Logger.Debug("github repository not found", "repo", owner+"/"+repo)
		return result, nil
	case http.StatusForbidden, http.StatusTooManyRequests:
		var reset time.Time
		if res.RateLimit.HasReset {
			reset = res.RateLimit.Reset
		}
		reset = s.Limits.MarkLimited(s.now(), reset)
		s.Logger.Warn("github rate limit hit", "repo", owner+"/"+repo, "status", res.Status, "reset", reset)
		return nil, s.rateLimited(reset)
	default:
		return nil, errors.Wrap(errors.ErrCodeNetwork, &integrations.StatusError{Code: res.Status},
			"github returned %d for %s/%s", res.Status, owner, repo)
	}
}

// RateLimit returns the current rate-limit view.
func (s *Service) RateLimit() ratelimit.Snapshot {
	return s.Limits.Snapshot(s.now())
}

func (s *Service) observe(rl github.RateLimit) {
	var reset time.Time
	if rl.HasReset {
		reset = rl.Reset
	}
	s.Limits.Observe(s.now(), rl.Remaining, rl.HasRemaining, reset)
}

func (s *Service) rateLimited(reset time.Time) *errors.RateLimitedError {
	minutes := int(math.Ceil(reset.Sub(s.now()).Minutes()))
	msg := fmt.Sprintf("Rate limit will reset in %d minutes.", max(minutes, 0))
	if !s.Repos.Authenticated() {
		msg += " Consider adding a GitHub token for higher limits."
	}
	return &errors.RateLimitedError{ResetTime: reset, Message: msg}
}

// upstreamError assigns an error code to a failed upstream call.
func upstreamError(err error, format string, args ...any) error {
	switch {
	case errors.GetCode(err) != "":
		return err
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	case stderrors.Is(err, integrations.ErrNotFound):
		return errors.Wrap(errors.ErrCodePackageNotFound, err, format, args...)
	case stderrors.Is(err, integrations.ErrTimeout):
		return errors.Wrap(errors.ErrCodeTimeout, err, format, args...)
	default:
		return errors.Wrap(errors.ErrCodeNetwork, err, format, args...)
	}
}
