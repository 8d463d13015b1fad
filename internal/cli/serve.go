package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/npmdash/internal/api"
)

const shutdownTimeout = 10 * time.Second

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		port    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the npmdash HTTP API",
		Long: `Serve the dashboard backend:

  GET  /api/stats?username=         packages of an npm maintainer
  GET  /api/github-stats?package=   GitHub stars and open issues of a package
  GET  /api/user-stats-history      last saved snapshot of a dashboard
  POST /api/user-stats-history      save a snapshot
  GET  /api/rate-limit              shared GitHub rate-limit state
  GET  /api/health                  liveness and backend status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			svc, err := c.newService(cfg, noCache)
			if err != nil {
				return err
			}
			store, closeStore := c.newHistory(cmd.Context(), cfg)
			defer closeStore()

			srv := &http.Server{
				Addr: cfg.Addr(),
				Handler: api.NewRouter(&api.RouterConfig{
					Service: svc,
					History: store,
					Logger:  c.Logger,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return c.listen(cmd.Context(), srv, store.Configured())
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default $PORT or 3001)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the registry response cache")

	return cmd
}

// listen serves until ctx is cancelled, then shuts down gracefully.
func (c *CLI) listen(ctx context.Context, srv *http.Server, historyConfigured bool) error {
	errc := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", srv.Addr, "history", historyConfigured)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
