package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/npmdash/internal/config"
	"github.com/matzehuels/npmdash/pkg/dashboard"
	"github.com/matzehuels/npmdash/pkg/pipeline"
)

// lookupFlags are shared by lookup and retry.
type lookupFlags struct {
	server  string
	userID  string
	plan    string
	noCache bool

	name         string
	minDownloads int
	minStars     int
	sort         string
	desc         bool
	json         bool
}

func (f *lookupFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "base URL of a running npmdash server (default $NPMDASH_SERVER)")
	cmd.Flags().StringVar(&f.userID, "user-id", "", "user id to load and save history for (default $NPMDASH_USER_ID)")
	cmd.Flags().StringVar(&f.plan, "plan", "", "account plan: anonymous, free or pro (default $NPMDASH_PLAN)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the registry response cache")

	cmd.Flags().StringVar(&f.name, "name", "", "only show packages whose name contains this text")
	cmd.Flags().IntVar(&f.minDownloads, "min-downloads", 0, "only show packages with at least this many weekly downloads")
	cmd.Flags().IntVar(&f.minStars, "min-stars", 0, "only show packages with at least this many stars")
	cmd.Flags().StringVar(&f.sort, "sort", "", fmt.Sprintf("sort column: %v", dashboard.Fields))
	cmd.Flags().BoolVar(&f.desc, "desc", false, "sort descending")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the dashboard as JSON")
}

// apply overrides configuration values with the flags that were set.
func (f *lookupFlags) apply(cfg *config.Config) {
	if f.server != "" {
		cfg.Server = f.server
	}
	if f.userID != "" {
		cfg.UserID = f.userID
	}
	if f.plan != "" {
		cfg.Plan = f.plan
	}
}

func (f *lookupFlags) view() (view, error) {
	v := view{
		Filter: dashboard.Filter{Name: f.name, MinDownloads: f.minDownloads, MinStars: f.minStars},
		Desc:   f.desc,
	}
	if f.sort != "" {
		field, err := dashboard.ParseField(f.sort)
		if err != nil {
			return view{}, err
		}
		v.Sort = field
	}
	return v, nil
}

// lookupCommand creates the lookup command.
func (c *CLI) lookupCommand() *cobra.Command {
	var (
		flags lookupFlags
		live  bool
	)

	cmd := &cobra.Command{
		Use:   "lookup <npm-username>",
		Short: "Show the npm packages of a maintainer with GitHub stars and issues",
		Long: `Look up every package an npm user maintains and enrich it with GitHub
stars and open issues, two packages at a time.

With a user id, the previous snapshot is loaded first so the table shows
what changed, and the new state is saved once enrichment finishes.`,
		Example: `  npmdash lookup sindresorhus --sort stars --desc
  npmdash lookup sindresorhus --live
  npmdash lookup sindresorhus --server http://localhost:3001 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := flags.view()
			if err != nil {
				return err
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)

			deps, err := c.newSessionDeps(cmd.Context(), cfg, flags.noCache)
			if err != nil {
				return err
			}
			defer deps.close()

			if live {
				return c.runLive(cmd.Context(), deps.opts, args[0], v)
			}

			sess, err := c.search(cmd.Context(), deps.opts, args[0])
			if err != nil {
				return err
			}
			return printDashboard(cmd.OutOrStdout(), sess.Snapshot(), v, flags.json)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&live, "live", "l", false, "show an interactive table that fills in while enriching")

	return cmd
}

// search runs a session to completion behind a spinner and waits for the
// snapshot save.
func (c *CLI) search(ctx context.Context, opts pipeline.Options, username string) (*pipeline.Session, error) {
	spin := newSpinner(ctx, "Fetching packages of "+username)
	opts.Observer = pipeline.ObserverFunc(func(u pipeline.Update) {
		spin.SetMessage(progressMessage(u))
	})
	sess := pipeline.NewSession(opts)

	prog := newProgress(c.Logger)
	spin.Start()
	err := sess.Search(ctx, username)
	sess.Wait()
	if err != nil {
		if spin.Cancelled() {
			spin.Stop()
		} else {
			spin.StopWithError("Lookup failed")
		}
		return nil, err
	}
	spin.Stop()

	u := sess.Snapshot()
	if u.Stats != nil {
		prog.done(fmt.Sprintf("Enriched %d packages", len(u.Stats.Packages)))
	}
	return sess, nil
}

// progressMessage describes a session state in one line.
func progressMessage(u pipeline.Update) string {
	if u.Stats == nil {
		return "Fetching packages of " + u.Username
	}
	pending := 0
	for _, p := range u.Stats.Packages {
		if p.IsLoadingGithubData {
			pending++
		}
	}
	total := len(u.Stats.Packages)
	msg := fmt.Sprintf("Enriching packages %d/%d", total-pending, total)
	if len(u.Retrying) > 0 {
		msg = "Retrying " + strings.Join(u.Retrying, ", ")
	}
	return msg
}

// lookupResult is the JSON form of a dashboard.
type lookupResult struct {
	*pipeline.UserStats
	Failure   pipeline.FailureStats  `json:"failure"`
	RateLimit pipeline.RateLimitInfo `json:"rateLimit"`
}

func printDashboard(w io.Writer, u pipeline.Update, v view, asJSON bool) error {
	if !asJSON {
		writeReport(w, u, v, time.Now())
		return nil
	}
	res := lookupResult{Failure: u.Failure, RateLimit: u.RateLimit}
	if u.Stats != nil {
		res.UserStats = u.Stats.Clone()
		res.UserStats.Packages = v.rows(u.Stats)
	} else {
		res.UserStats = &pipeline.UserStats{Username: u.Username, Packages: []pipeline.Package{}}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
