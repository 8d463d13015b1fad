package cli

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmdash/internal/config"
	"github.com/matzehuels/npmdash/pkg/buildinfo"
	"github.com/matzehuels/npmdash/pkg/cache"
	"github.com/matzehuels/npmdash/pkg/dashboard"
	"github.com/matzehuels/npmdash/pkg/enrich"
	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/history"
	"github.com/matzehuels/npmdash/pkg/httputil"
	"github.com/matzehuels/npmdash/pkg/integrations/github"
	"github.com/matzehuels/npmdash/pkg/integrations/npm"
	"github.com/matzehuels/npmdash/pkg/observability"
	"github.com/matzehuels/npmdash/pkg/pipeline"
	"github.com/matzehuels/npmdash/pkg/ratelimit"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "npmdash"

	// backendDialTimeout bounds each connection attempt to redis or mongo.
	backendDialTimeout = 5 * time.Second

	// backendDialAttempts and backendDialDelay retry a backend that is still
	// starting up.
	backendDialAttempts = 3
	backendDialDelay    = 500 * time.Millisecond
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool

	dialAttempts int
	dialDelay    time.Duration
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger:       newLogger(w, level),
		dialAttempts: backendDialAttempts,
		dialDelay:    backendDialDelay,
	}
}

// SetLogLevel updates the logger's level. A debug level also pins the
// level against the configured log_level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.verbose = level == log.DebugLevel
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "npmdash tracks the npm packages of a maintainer",
		Long:         `npmdash looks up every npm package a maintainer publishes, enriches it with GitHub stars and open issues, and remembers each lookup so the next one can show what changed.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			registerHooks(c.Logger)
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "TOML config file (default $NPMDASH_CONFIG)")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.lookupCommand())
	root.AddCommand(c.retryCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the configuration and applies its log level unless
// --verbose was given.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if !c.verbose && cfg.LogLevel != "" {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			c.Logger.Warn("ignoring log level", "value", cfg.LogLevel, "err", err)
		} else {
			c.Logger.SetLevel(level)
		}
	}
	return cfg, nil
}

// =============================================================================
// Service Factory
// =============================================================================

// newService wires the npm and GitHub clients behind an enrich.Service.
// Registry documents are cached on disk unless noCache is set.
func (c *CLI) newService(cfg *config.Config, noCache bool) (*enrich.Service, error) {
	registryCache, err := newRegistryCache(cfg, noCache)
	if err != nil {
		return nil, err
	}
	reg := npm.NewClient(npm.Config{
		RegistryURL:  cfg.NPM.RegistryURL,
		DownloadsURL: cfg.NPM.DownloadsURL,
		Cache:        registryCache,
		CacheTTL:     cfg.NPM.CacheTTL.Duration,
	})
	repos := github.NewClient(github.Config{
		BaseURL: cfg.GitHub.BaseURL,
		Token:   cfg.GitHub.Token,
	})
	if !repos.Authenticated() {
		c.Logger.Debug("no GitHub token configured, using the anonymous rate limit")
	}
	return enrich.NewService(reg, repos, ratelimit.New(), c.Logger), nil
}

func newRegistryCache(cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir := cfg.NPM.CacheDir
	if dir == "" {
		root, err := cacheDir()
		if err != nil {
			return cache.NewNullCache(), nil
		}
		dir = filepath.Join(root, "registry")
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// History Factory
// =============================================================================

// newHistory opens the configured snapshot backend. A backend that cannot
// be reached is logged and replaced by an unavailable store; history is
// best effort and never stops a command.
func (c *CLI) newHistory(ctx context.Context, cfg *config.Config) (*history.Store, func()) {
	backend, err := c.openHistoryBackend(ctx, cfg)
	if err != nil {
		c.Logger.Warn("history store unavailable", "backend", cfg.HistoryBackend(), "err", err)
		backend = nil
	}
	store := history.New(backend, history.Options{
		Namespace: cfg.History.Namespace,
		Retention: cfg.History.Retention.Duration,
		Logger:    c.Logger,
	})
	closeFn := func() {}
	if backend != nil {
		closeFn = func() {
			if err := backend.Close(); err != nil {
				c.Logger.Debug("close history backend", "err", err)
			}
		}
	}
	return store, closeFn
}

func (c *CLI) openHistoryBackend(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.HistoryBackend() {
	case config.BackendRedis:
		return c.dialBackend(ctx, "redis", func() (cache.Cache, error) {
			rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
				URL:         cfg.History.RedisURL,
				DialTimeout: backendDialTimeout,
			})
			if err != nil {
				return nil, err
			}
			return rc, nil
		})
	case config.BackendMongo:
		return c.dialBackend(ctx, "mongo", func() (cache.Cache, error) {
			ctx, cancel := context.WithTimeout(ctx, backendDialTimeout)
			defer cancel()
			mc, err := cache.NewMongoCache(ctx, cache.MongoConfig{
				URI:        cfg.History.MongoURI,
				Database:   cfg.History.MongoDatabase,
				Collection: cfg.History.MongoCollection,
			})
			if err != nil {
				return nil, err
			}
			return mc, nil
		})
	case config.BackendFile:
		dir := cfg.History.Dir
		if dir == "" {
			root, err := cacheDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(root, "history")
		}
		return cache.NewFileCache(dir)
	default:
		return nil, nil
	}
}

// dialBackend calls dial until it succeeds, retrying only while the backend
// reports cache.ErrUnavailable.
func (c *CLI) dialBackend(ctx context.Context, name string, dial func() (cache.Cache, error)) (cache.Cache, error) {
	var backend cache.Cache
	attempt := 0
	err := httputil.Retry(ctx, c.dialAttempts, c.dialDelay, func() error {
		attempt++
		b, err := dial()
		if err == nil {
			backend = b
			return nil
		}
		if stderrors.Is(err, cache.ErrUnavailable) {
			c.Logger.Debug("history backend not reachable", "backend", name, "attempt", attempt, "err", err)
			return httputil.Retryable(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// =============================================================================
// Session Factory
// =============================================================================

// sessionDeps are the pieces a pipeline session runs on. Remote mode talks
// to a running server; local mode calls npm and GitHub directly.
type sessionDeps struct {
	opts  pipeline.Options
	close func()
}

func (c *CLI) newSessionDeps(ctx context.Context, cfg *config.Config, noCache bool) (*sessionDeps, error) {
	plan, err := dashboard.ParsePlan(cfg.Plan)
	if err != nil {
		return nil, err
	}
	pcfg := pipeline.DefaultConfig()
	pcfg.PackageLimit = dashboard.PackageLimit(plan)

	deps := &sessionDeps{
		opts: pipeline.Options{
			UserID: cfg.UserID,
			Logger: c.Logger,
			Config: pcfg,
		},
		close: func() {},
	}

	if cfg.Server != "" {
		if err := errors.ValidateURL(cfg.Server); err != nil {
			return nil, err
		}
		c.Logger.Debug("using remote server", "url", cfg.Server)
		fetcher := httputil.NewFetcher(nil)
		deps.opts.Stats = &pipeline.HTTPStatsSource{BaseURL: cfg.Server, Fetcher: fetcher}
		deps.opts.Enricher = &pipeline.HTTPEnricher{BaseURL: cfg.Server}
		deps.opts.History = &pipeline.HTTPHistory{BaseURL: cfg.Server, Fetcher: fetcher}
		return deps, nil
	}

	svc, err := c.newService(cfg, noCache)
	if err != nil {
		return nil, err
	}
	deps.opts.Stats = &pipeline.ServiceStatsSource{Service: svc}
	deps.opts.Enricher = &pipeline.ServiceEnricher{Service: svc}
	if cfg.UserID != "" {
		store, closeFn := c.newHistory(ctx, cfg)
		deps.opts.History = store
		deps.close = closeFn
	}
	return deps, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/npmdash/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

func registerHooks(logger *log.Logger) {
	hooks := &logHooks{logger: logger}
	observability.SetPipelineHooks(hooks)
	observability.SetCacheHooks(hooks)
	observability.SetHTTPHooks(hooks)
}
