package enrich

import (
	"cmp"
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/integrations"
	"github.com/matzehuels/npmdash/pkg/integrations/npm"
)

// PackageStats is one row of a maintainer's stats. GitHub counts are zero
// until enriched.
type PackageStats struct {
	Name            string  `json:"name"`
	Version         string  `json:"version"`
	WeeklyDownloads int     `json:"weeklyDownloads"`
	Dependents      int     `json:"dependents"`
	GithubStars     int     `json:"githubStars"`
	OpenIssues      int     `json:"openIssues"`
	LastChecked     string  `json:"lastChecked"`
	NpmURL          string  `json:"npmUrl"`
	RepoURL         *string `json:"repoUrl"`
}

// Stats is the response of a maintainer lookup.
type Stats struct {
	Username       string         `json:"username"`
	Packages       []PackageStats `json:"packages"`
	TotalDownloads int            `json:"totalDownloads"`
	TotalStars     int            `json:"totalStars"`
}

// NpmURL returns the public npm page of a package.
func NpmURL(name string) string {
	return "https://www.npmjs.com/package/" + name
}

// Stats lists the packages maintained by username with their weekly
// downloads. Packages the search response carries no download count for are
// looked up individually; a failed lookup counts as zero downloads.
func (s *Service) Stats(ctx context.Context, username string) (*Stats, error) {
	username = strings.TrimSpace(username)
	if err := errors.ValidateNpmUsername(username); err != nil {
		return nil, err
	}

	results, err := s.Registry.SearchMaintainer(ctx, username)
	if err != nil {
		return nil, upstreamError(err, "search packages of %s", username)
	}

	checked := s.now().UTC().Format(time.RFC3339)
	pkgs := make([]PackageStats, len(results))
	for i, r := range results {
		pkgs[i] = PackageStats{
			Name:            r.Name,
			Version:         r.Version,
			WeeklyDownloads: r.WeeklyDownloads,
			Dependents:      r.Dependents,
			LastChecked:     checked,
			NpmURL:          cmp.Or(r.NpmURL, NpmURL(r.Name)),
		}
		if owner, repo, ok := integrations.GitHubRepo(r.RepositoryURL); ok {
			u := integrations.GitHubURL(owner, repo)
			pkgs[i].RepoURL = &u
		}
	}

	if err := s.fillDownloads(ctx, results, pkgs); err != nil {
		return nil, err
	}

	stats := &Stats{Username: username, Packages: pkgs}
	for _, p := range pkgs {
		stats.TotalDownloads += p.WeeklyDownloads
	}
	s.Logger.Info("maintainer stats", "username", username, "packages", len(pkgs), "downloads", stats.TotalDownloads)
	return stats, nil
}

func (s *Service) fillDownloads(ctx context.Context, results []npm.SearchResult, pkgs []PackageStats) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.DownloadWorkers, 1))

	for i, r := range results {
		if r.HasDownloads {
			continue
		}
		g.Go(func() error {
			n, err := s.Registry.WeeklyDownloads(gctx, r.Name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.Logger.Debug("weekly downloads unavailable", "package", r.Name, "err", err)
				return nil
			}
			pkgs[i].WeeklyDownloads = n
			return nil
		})
	}
	return g.Wait()
}
