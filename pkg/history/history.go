// Package history persists dashboard snapshots per (user, npm maintainer)
// pair so that the next lookup can show what changed.
//
// The store is best effort. Every operation reports whether the backend was
// reachable instead of failing: an unreachable backend is a normal state
// for a dashboard that runs without Redis, and callers fall back to showing
// no history.
//
// Two keys are written per pair, under a namespace (default "npmdash"):
//
//	<ns>:github-user:<id>:npm-user:<name>:date:<YYYY-MM-DD>   snapshot JSON
//	<ns>:github-user:<id>:npm-user:<name>:last-checked-date   YYYY-MM-DD
package history

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmdash/pkg/cache"
	"github.com/matzehuels/npmdash/pkg/errors"
)

const (
	DefaultNamespace = "npmdash"
	DefaultRetention = 90 * 24 * time.Hour

	dateLayout     = "2006-01-02"
	lastCheckedKey = "last-checked-date"
)

// PackageSnapshot is the saved state of one package: a dashboard row as it
// was posted, flags and previous values included.
type PackageSnapshot struct {
	Name            string  `json:"name"`
	Version         string  `json:"version,omitempty"`
	WeeklyDownloads int     `json:"weeklyDownloads"`
	Dependents      int     `json:"dependents"`
	GithubStars     int     `json:"githubStars"`
	OpenIssues      int     `json:"openIssues"`
	LastChecked     string  `json:"lastChecked,omitempty"`
	NpmURL          string  `json:"npmUrl,omitempty"`
	RepoURL         *string `json:"repoUrl,omitempty"`

	IsLoadingGithubData bool `json:"isLoadingGithubData,omitempty"`
	GithubFetchFailed   bool `json:"githubFetchFailed,omitempty"`

	PreviousWeeklyDownloads *int `json:"previousWeeklyDownloads,omitempty"`
	PreviousGithubStars     *int `json:"previousGithubStars,omitempty"`
	PreviousOpenIssues      *int `json:"previousOpenIssues,omitempty"`
}

// Snapshot is the saved state of a whole dashboard.
type Snapshot struct {
	Packages       []PackageSnapshot `json:"packages"`
	TotalDownloads int               `json:"totalDownloads"`
	TotalStars     int               `json:"totalStars"`
	PackageCount   int               `json:"packageCount"`
	Timestamp      string            `json:"timestamp"`
	Username       string            `json:"username"`
}

// Find returns the saved package with the given name.
func (s *Snapshot) Find(name string) (PackageSnapshot, bool) {
	if s == nil {
		return PackageSnapshot{}, false
	}
	for _, p := range s.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return PackageSnapshot{}, false
}

// Lookup is the result of [Store.Load]. Available is false when the backend
// could not be consulted, which is distinct from "no data yet"
// (Available true, Snapshot nil).
type Lookup struct {
	Snapshot        *Snapshot
	LastCheckedDate string
	Available       bool
}

// SaveResult is the result of [Store.Save]. A snapshot written without its
// date pointer reports Success false; nothing is rolled back.
type SaveResult struct {
	Success   bool
	Date      string
	Available bool
}

// Options configures a [Store].
type Options struct {
	Namespace string
	Retention time.Duration
	Logger    *log.Logger
}

// Store reads and writes snapshots in a cache backend.
type Store struct {
	backend   cache.Cache
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// New creates a store over backend. A nil or null backend yields a store
// that always reports itself unavailable.
func New(backend cache.Cache, opts Options) *Store {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Store{
		backend:   cache.Scoped(backend, opts.Namespace+":"),
		retention: opts.Retention,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Configured reports whether a real backend is attached.
func (s *Store) Configured() bool { return !cache.IsNull(s.backend) }

// Ping checks that the backend answers.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Configured() {
		return cache.ErrUnavailable
	}
	return cache.Ping(ctx, s.backend)
}

// Load returns the most recent snapshot for the pair. The error is reserved
// for invalid identifiers.
func (s *Store) Load(ctx context.Context, userID, npmUser string) (Lookup, error) {
	base, err := pairKey(userID, npmUser)
	if err != nil {
		return Lookup{}, err
	}
	if !s.Configured() {
		return Lookup{}, nil
	}

	date, ok, err := s.backend.Get(ctx, cache.Key(base, lastCheckedKey))
	if err != nil {
		s.logger.Warn("history unavailable", "op", "load", "err", err)
		return Lookup{}, nil
	}
	if !ok {
		return Lookup{Available: true}, nil
	}

	lookup := Lookup{LastCheckedDate: string(date), Available: true}
	data, ok, err := s.backend.Get(ctx, cache.Key(base, "date", string(date)))
	if err != nil {
		s.logger.Warn("history unavailable", "op", "load", "err", err)
		return Lookup{}, nil
	}
	if !ok {
		return lookup, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("discarding corrupt snapshot", "date", lookup.LastCheckedDate, "err", err)
		return lookup, nil
	}
	lookup.Snapshot = &snap
	return lookup, nil
}

// Save writes snap under today's date and then moves the last-checked
// pointer to it. The error is reserved for invalid identifiers.
func (s *Store) Save(ctx context.Context, userID, npmUser string, snap *Snapshot) (SaveResult, error) {
	base, err := pairKey(userID, npmUser)
	if err != nil {
		return SaveResult{}, err
	}
	if snap == nil {
		return SaveResult{}, errors.New(errors.ErrCodeInvalidInput, "snapshot is required")
	}

	date := s.now().UTC().Format(dateLayout)
	result := SaveResult{Date: date}
	if !s.Configured() {
		return result, nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return result, errors.Wrap(errors.ErrCodeInvalidInput, err, "encode snapshot")
	}

	if err := s.backend.Set(ctx, cache.Key(base, "date", date), data, s.retention); err != nil {
		s.logger.Warn("history write failed", "key", "date", "err", err)
		result.Available = s.Ping(ctx) == nil
		return result, nil
	}
	result.Available = true

	if err := s.backend.Set(ctx, cache.Key(base, lastCheckedKey), []byte(date), s.retention); err != nil {
		s.logger.Warn("history write failed", "key", "last-checked-date", "err", err)
		return result, nil
	}
	result.Success = true
	return result, nil
}

func pairKey(userID, npmUser string) (string, error) {
	if err := errors.ValidateUserID(userID); err != nil {
		return "", err
	}
	npmUser = strings.TrimSpace(npmUser)
	if err := errors.ValidateNpmUsername(npmUser); err != nil {
		return "", err
	}
	return cache.Key("github-user", userID, "npm-user", npmUser), nil
}
