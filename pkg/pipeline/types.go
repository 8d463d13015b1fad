package pipeline

import (
	"time"
)

// Package is one row of the dashboard.
//
// The GitHub fields are zero until the package has been enriched.
// The Previous fields come from the last saved snapshot and are nil when
// the package was not part of it.
type Package struct {
	Name            string  `json:"name"`
	Version         string  `json:"version"`
	WeeklyDownloads int     `json:"weeklyDownloads"`
	Dependents      int     `json:"dependents"`
	GithubStars     int     `json:"githubStars"`
	OpenIssues      int     `json:"openIssues"`
	LastChecked     string  `json:"lastChecked"`
	NpmURL          string  `json:"npmUrl"`
	RepoURL         *string `json:"repoUrl"`

	IsLoadingGithubData bool `json:"isLoadingGithubData,omitempty"`
	GithubFetchFailed   bool `json:"githubFetchFailed,omitempty"`

	PreviousWeeklyDownloads *int `json:"previousWeeklyDownloads,omitempty"`
	PreviousGithubStars     *int `json:"previousGithubStars,omitempty"`
	PreviousOpenIssues      *int `json:"previousOpenIssues,omitempty"`
}

// UserStats is the dashboard of one maintainer.
type UserStats struct {
	Username       string    `json:"username"`
	Packages       []Package `json:"packages"`
	TotalDownloads int       `json:"totalDownloads"`
	TotalStars     int       `json:"totalStars"`

	IsLoadingGithubData    bool `json:"isLoadingGithubData,omitempty"`
	PreviousTotalDownloads *int `json:"previousTotalDownloads,omitempty"`
	PreviousTotalStars     *int `json:"previousTotalStars,omitempty"`
}

// Clone returns a deep copy.
func (u *UserStats) Clone() *UserStats {
	if u == nil {
		return nil
	}
	c := *u
	c.Packages = make([]Package, len(u.Packages))
	for i, p := range u.Packages {
		c.Packages[i] = p
		c.Packages[i].RepoURL = clonePtr(p.RepoURL)
		c.Packages[i].PreviousWeeklyDownloads = clonePtr(p.PreviousWeeklyDownloads)
		c.Packages[i].PreviousGithubStars = clonePtr(p.PreviousGithubStars)
		c.Packages[i].PreviousOpenIssues = clonePtr(p.PreviousOpenIssues)
	}
	c.PreviousTotalDownloads = clonePtr(u.PreviousTotalDownloads)
	c.PreviousTotalStars = clonePtr(u.PreviousTotalStars)
	return &c
}

// Package returns a pointer to the package with the given name.
func (u *UserStats) Package(name string) *Package {
	if u == nil {
		return nil
	}
	for i := range u.Packages {
		if u.Packages[i].Name == name {
			return &u.Packages[i]
		}
	}
	return nil
}

// recompute refreshes the stars total and the loading flag from the rows.
func (u *UserStats) recompute() {
	u.TotalStars = 0
	u.IsLoadingGithubData = false
	for _, p := range u.Packages {
		u.TotalStars += p.GithubStars
		if p.IsLoadingGithubData {
			u.IsLoadingGithubData = true
		}
	}
}

// FailureStats counts packages whose enrichment ended in failure.
// 0 <= Failed <= Total always holds.
type FailureStats struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// RateLimitInfo is the session's view of the GitHub rate limit.
type RateLimitInfo struct {
	IsLimited bool      `json:"isLimited"`
	ResetTime time.Time `json:"resetTime,omitzero"`
	Message   string    `json:"message,omitempty"`
}

// Update is a copy of the session state handed to observers.
type Update struct {
	Generation uint64
	Username   string
	Stats      *UserStats
	Failure    FailureStats
	RateLimit  RateLimitInfo
	Retrying   []string

	// Loading is true while a search has not finished its last batch.
	Loading bool

	// NoPackages is true when the last search found nothing.
	NoPackages bool

	// Err is the error of the last search, if any.
	Err error
}

// Done reports whether the last search has finished enriching.
func (u Update) Done() bool {
	return !u.Loading && len(u.Retrying) == 0
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptr[T any](v T) *T {
	return &v
}
