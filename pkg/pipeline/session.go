package pipeline

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/history"
	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/observability"
)

var (
	// ErrSuperseded is returned when a newer Search or a Clear took over
	// while an operation was running. Its results were discarded.
	ErrSuperseded = stderrors.New("pipeline: superseded by a newer search")

	// ErrUnknownPackage is returned by RetryPackage for a name that is not
	// part of the current dashboard.
	ErrUnknownPackage = stderrors.New("pipeline: unknown package")
)

// Observer receives a copy of the session state after every change.
// OnUpdate is called with the session lock held and must not call back
// into the session.
type Observer interface {
	OnUpdate(Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

// OnUpdate implements Observer.
func (f ObserverFunc) OnUpdate(u Update) { f(u) }

// Options configures a Session.
type Options struct {
	Stats    StatsSource
	Enricher Enricher

	// History is optional. Snapshots are only loaded and saved for an
	// authenticated UserID.
	History HistoryStore
	UserID  string

	Observer Observer
	Logger   *log.Logger
	Config   Config
}

// Session is the dashboard of one maintainer at a time. It is safe for
// concurrent use.
type Session struct {
	stats    StatsSource
	enricher Enricher
	history  HistoryStore
	userID   string
	observer Observer
	logger   *log.Logger
	cfg      Config

	mu         sync.Mutex
	gen        uint64
	username   string
	dash       *UserStats
	failure    FailureStats
	rateLimit  RateLimitInfo
	retrying   map[string]struct{}
	loading    bool
	noPackages bool
	err        error

	saves sync.WaitGroup
	now   func() time.Time
}

// NewSession creates a session. A nil logger uses log.Default().
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		stats:    opts.Stats,
		enricher: opts.Enricher,
		history:  opts.History,
		userID:   strings.TrimSpace(opts.UserID),
		observer: opts.Observer,
		logger:   logger,
		cfg:      opts.Config.withDefaults(),
		retrying: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked()
}

// Wait blocks until background snapshot saves have finished.
func (s *Session) Wait() {
	s.saves.Wait()
}

// =============================================================================
// Search
// =============================================================================

// Search replaces the dashboard with the packages of username and enriches
// them. It returns once the last batch has been merged; the snapshot save
// continues in the background (see Wait).
//
// The error is that of the stats lookup, ctx's error, or ErrSuperseded.
// Individual enrichment failures are reported through FailureStats.
func (s *Session) Search(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.resetLocked()
	s.username = username
	s.loading = true
	s.publishLocked()
	s.mu.Unlock()

	if username == "" {
		err := errors.New(errors.ErrCodeInvalidUsername, "username is required")
		s.finishSearch(gen, err)
		return err
	}

	dash, err := s.stats.Stats(ctx, username)
	if err != nil {
		s.finishSearch(gen, err)
		return err
	}
	if dash == nil || len(dash.Packages) == 0 {
		s.mu.Lock()
		if gen == s.gen {
			s.noPackages = true
		}
		s.mu.Unlock()
		s.finishSearch(gen, nil)
		return nil
	}

	if limit := s.cfg.PackageLimit; limit > 0 && len(dash.Packages) > limit {
		s.logger.Info("applying package limit", "found", len(dash.Packages), "limit", limit)
		dash.Packages = dash.Packages[:limit]
	}

	prev := s.loadPrevious(ctx, username)
	seed(dash, prev)

	names := make([]string, len(dash.Packages))
	for i, p := range dash.Packages {
		names[i] = p.Name
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.dash = dash
	s.failure = FailureStats{Total: len(names)}
	s.publishLocked()
	s.mu.Unlock()

	err = s.run(ctx, gen, username, names)
	s.finishSearch(gen, err)
	if err != nil {
		return err
	}
	s.saveSnapshot(gen)
	return nil
}

// finishSearch clears the loading flag of generation gen. When the run
// ended early, rows it never reached stop loading too.
func (s *Session) finishSearch(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.loading = false
	if !stderrors.Is(err, ErrSuperseded) {
		s.err = err
	}
	if err != nil && s.dash != nil {
		for i := range s.dash.Packages {
			s.dash.Packages[i].IsLoadingGithubData = false
		}
		s.dash.recompute()
	}
	s.publishLocked()
}

func (s *Session) loadPrevious(ctx context.Context, username string) *history.Snapshot {
	if s.history == nil || s.userID == "" {
		return nil
	}
	lookup, err := s.history.Load(ctx, s.userID, username)
	if err != nil {
		s.logger.Warn("history lookup failed", "username", username, "err", err)
		return nil
	}
	if !lookup.Available {
		s.logger.Debug("history unavailable", "username", username)
	}
	return lookup.Snapshot
}

// seed marks every package loading and attaches the previous numbers.
func seed(dash *UserStats, prev *history.Snapshot) {
	for i := range dash.Packages {
		p := &dash.Packages[i]
		p.IsLoadingGithubData = true
		p.GithubFetchFailed = false
		if old, ok := prev.Find(p.Name); ok {
			p.PreviousWeeklyDownloads = ptr(old.WeeklyDownloads)
			p.PreviousGithubStars = ptr(old.GithubStars)
			p.PreviousOpenIssues = ptr(old.OpenIssues)
		}
	}
	if prev != nil {
		dash.PreviousTotalDownloads = ptr(prev.TotalDownloads)
		dash.PreviousTotalStars = ptr(prev.TotalStars)
	}
	dash.recompute()
}

// run enriches names batch by batch for generation gen.
func (s *Session) run(ctx context.Context, gen uint64, username string, names []string) error {
	runID := uuid.NewString()
	hooks := observability.Pipeline()
	start := time.Now()
	logger := s.logger.With("run", runID[:8])

	hooks.OnRunStart(ctx, runID, username, len(names))
	logger.Info("enriching packages", "username", username, "packages", len(names))

	batches := chunk(names, s.cfg.BatchSize)
	for i, batch := range batches {
		if i > 0 {
			if err := httputil.Sleep(ctx, s.cfg.BatchPause); err != nil {
				return err
			}
		}

		batchStart := time.Now()
		outcomes := make([]outcome, len(batch))
		var g errgroup.Group
		for j, name := range batch {
			g.Go(func() error {
				outcomes[j] = s.enrichItem(ctx, name)
				return nil
			})
		}
		_ = g.Wait()

		failed := 0
		for _, o := range outcomes {
			if o.State != Succeeded {
				failed++
				hooks.OnItemFailed(ctx, runID, o.Name, o.Response.Status, o.Response.Err)
				logger.Debug("package failed", "package", o.Name, "state", o.State,
					"attempts", o.Attempts, "status", o.Response.Status)
			}
		}

		if !s.mergeBatch(gen, outcomes) {
			logger.Debug("discarding stale batch", "batch", i+1)
			return ErrSuperseded
		}
		hooks.OnBatchComplete(ctx, runID, i+1, len(batch), failed, time.Since(batchStart))

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	failure := s.Snapshot().Failure
	hooks.OnRunComplete(ctx, runID, failure.Total, failure.Failed, time.Since(start))
	logger.Info("enrichment complete", "packages", failure.Total, "failed", failure.Failed,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// mergeBatch applies one batch atomically. It reports false when gen is
// stale, in which case nothing was applied.
func (s *Session) mergeBatch(gen uint64, outcomes []outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.dash == nil {
		return false
	}
	for _, o := range outcomes {
		p := s.dash.Package(o.Name)
		if p == nil {
			continue
		}
		switch o.State {
		case Succeeded:
			applySuccess(p, o.Response)
		default:
			if o.State == RateLimited {
				s.recordRateLimitLocked(o.Response)
			}
			p.IsLoadingGithubData = false
			if !p.GithubFetchFailed {
				p.GithubFetchFailed = true
				s.failure.Failed = min(s.failure.Failed+1, s.failure.Total)
			}
		}
	}
	s.dash.recompute()
	s.publishLocked()
	return true
}

func applySuccess(p *Package, r Response) {
	p.GithubStars = r.Stars
	p.OpenIssues = r.OpenIssues
	if r.RepoURL != "" {
		p.RepoURL = ptr(r.RepoURL)
	}
	p.IsLoadingGithubData = false
	p.GithubFetchFailed = false
}

func (s *Session) recordRateLimitLocked(r Response) {
	if r.ResetTime.IsZero() {
		return
	}
	s.rateLimit = RateLimitInfo{IsLimited: true, ResetTime: r.ResetTime, Message: r.Message}
}

// saveSnapshot persists the dashboard of generation gen in the background.
func (s *Session) saveSnapshot(gen uint64) {
	if s.history == nil || s.userID == "" {
		return
	}
	s.mu.Lock()
	if gen != s.gen || s.dash == nil {
		s.mu.Unlock()
		return
	}
	snap := toSnapshot(s.dash, s.now())
	username := s.username
	s.mu.Unlock()

	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
		defer cancel()

		res, err := s.history.Save(ctx, s.userID, username, snap)
		switch {
		case err != nil:
			s.logger.Warn("snapshot save failed", "username", username, "err", err)
		case !res.Success:
			s.logger.Warn("snapshot not saved", "username", username, "available", res.Available)
		default:
			s.logger.Debug("snapshot saved", "username", username, "date", res.Date)
		}
	}()
}

func toSnapshot(dash *UserStats, now time.Time) *history.Snapshot {
	snap := &history.Snapshot{
		Packages:       make([]history.PackageSnapshot, len(dash.Packages)),
		TotalDownloads: dash.TotalDownloads,
		TotalStars:     dash.TotalStars,
		PackageCount:   len(dash.Packages),
		Timestamp:      now.UTC().Format(time.RFC3339),
		Username:       dash.Username,
	}
	for i, p := range dash.Packages {
		snap.Packages[i] = history.PackageSnapshot{
			Name:                    p.Name,
			Version:                 p.Version,
			WeeklyDownloads:         p.WeeklyDownloads,
			Dependents:              p.Dependents,
			GithubStars:             p.GithubStars,
			OpenIssues:              p.OpenIssues,
			LastChecked:             p.LastChecked,
			NpmURL:                  p.NpmURL,
			RepoURL:                 clonePtr(p.RepoURL),
			IsLoadingGithubData:     p.IsLoadingGithubData,
			GithubFetchFailed:       p.GithubFetchFailed,
			PreviousWeeklyDownloads: clonePtr(p.PreviousWeeklyDownloads),
			PreviousGithubStars:     clonePtr(p.PreviousGithubStars),
			PreviousOpenIssues:      clonePtr(p.PreviousOpenIssues),
		}
	}
	return snap
}

// =============================================================================
// Retry
// =============================================================================

// RetryPackage enriches one package again with a single call.
//
// On success the package is updated and, if it was marked failed, the
// failure count drops by one. On 429 the session's rate-limit info is
// updated. Other outcomes leave the package as it was and are returned as
// errors.
func (s *Session) RetryPackage(ctx context.Context, name string) error {
	s.mu.Lock()
	gen := s.gen
	if s.dash.Package(name) == nil {
		s.mu.Unlock()
		return ErrUnknownPackage
	}
	s.retrying[name] = struct{}{}
	s.publishLocked()
	s.mu.Unlock()

	resp := s.enricher.Enrich(ctx, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrSuperseded
	}
	delete(s.retrying, name)
	defer s.publishLocked()

	p := s.dash.Package(name)
	if p == nil {
		return ErrUnknownPackage
	}

	next := classify(resp, s.cfg.MaxAttempts, s.cfg)
	switch next.State {
	case Succeeded:
		if p.GithubFetchFailed {
			s.failure.Failed = max(s.failure.Failed-1, 0)
		}
		applySuccess(p, resp)
		s.dash.recompute()
		return nil
	case RateLimited:
		s.recordRateLimitLocked(resp)
		return &errors.RateLimitedError{ResetTime: resp.ResetTime, Message: resp.Message}
	default:
		if resp.Err != nil {
			return errors.Wrap(errors.ErrCodeNetwork, resp.Err, "retry %s", name)
		}
		return errors.New(errors.ErrCodeUpstream, "retry %s: status %d", name, resp.Status)
	}
}

// RetryAllFailed retries every package currently marked failed, in batches
// like the initial run. It returns how many packages recovered.
func (s *Session) RetryAllFailed(ctx context.Context) (int, error) {
	s.mu.Lock()
	gen := s.gen
	var names []string
	if s.dash != nil {
		for _, p := range s.dash.Packages {
			if p.GithubFetchFailed {
				names = append(names, p.Name)
			}
		}
	}
	s.mu.Unlock()

	recovered := 0
	for i, batch := range chunk(names, s.cfg.BatchSize) {
		if i > 0 {
			if err := httputil.Sleep(ctx, s.cfg.BatchPause); err != nil {
				return recovered, err
			}
		}
		results := make([]error, len(batch))
		var g errgroup.Group
		for j, name := range batch {
			g.Go(func() error {
				results[j] = s.RetryPackage(ctx, name)
				return nil
			})
		}
		_ = g.Wait()

		for j, err := range results {
			switch {
			case err == nil:
				recovered++
			case stderrors.Is(err, ErrSuperseded):
				return recovered, err
			default:
				s.logger.Debug("retry failed", "package", batch[j], "err", err)
			}
		}
		if s.generation() != gen {
			return recovered, ErrSuperseded
		}
	}
	return recovered, nil
}

// =============================================================================
// Clear
// =============================================================================

// Clear empties the dashboard. Operations still running for the previous
// state are discarded.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.resetLocked()
	s.publishLocked()
}

// =============================================================================
// Internals
// =============================================================================

func (s *Session) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Session) resetLocked() {
	s.username = ""
	s.dash = nil
	s.failure = FailureStats{}
	s.rateLimit = RateLimitInfo{}
	s.retrying = make(map[string]struct{})
	s.loading = false
	s.noPackages = false
	s.err = nil
}

func (s *Session) updateLocked() Update {
	retrying := make([]string, 0, len(s.retrying))
	for name := range s.retrying {
		retrying = append(retrying, name)
	}
	slices.Sort(retrying)
	return Update{
		Generation: s.gen,
		Username:   s.username,
		Stats:      s.dash.Clone(),
		Failure:    s.failure,
		RateLimit:  s.rateLimit,
		Retrying:   retrying,
		Loading:    s.loading,
		NoPackages: s.noPackages,
		Err:        s.err,
	}
}

func (s *Session) publishLocked() {
	if s.observer == nil {
		return
	}
	s.observer.OnUpdate(s.updateLocked())
}

func chunk(names []string, size int) [][]string {
	var out [][]string
	for batch := range slices.Chunk(names, size) {
		out = append(out, batch)
	}
	return out
}
