package cli

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/pipeline"
)

// retryCommand creates the retry command.
func (c *CLI) retryCommand() *cobra.Command {
	var flags lookupFlags

	cmd := &cobra.Command{
		Use:   "retry <npm-username> [package...]",
		Short: "Look up a maintainer, then retry packages whose GitHub data failed",
		Long: `Run a lookup and retry enrichment afterwards. Without package names every
failed package is retried, two at a time; with names only those packages
are retried, whether or not they failed.`,
		Args: cobra.MinimumNArgs(1),
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

			ctx := cmd.Context()
			sess, err := c.search(ctx, deps.opts, args[0])
			if err != nil {
				return err
			}

			names := args[1:]
			if len(names) == 0 {
				failed := sess.Snapshot().Failure.Failed
				if failed == 0 {
					printInfo("No failed packages to retry")
				} else {
					spin := newSpinner(ctx, fmt.Sprintf("Retrying %d failed packages", failed))
					spin.Start()
					recovered, err := sess.RetryAllFailed(ctx)
					if err != nil {
						spin.StopWithError("Retry failed")
						return err
					}
					spin.StopWithSuccess(fmt.Sprintf("Recovered %d of %d failed packages", recovered, failed))
				}
			} else {
				for _, name := range names {
					if err := sess.RetryPackage(ctx, name); err != nil {
						if stderrors.Is(err, pipeline.ErrUnknownPackage) {
							return fmt.Errorf("%s is not a package of %s", name, args[0])
						}
						printError("%s: %s", name, errors.UserMessage(err))
						continue
					}
					printSuccess("%s", name)
				}
			}

			return printDashboard(cmd.OutOrStdout(), sess.Snapshot(), v, flags.json)
		},
	}

	flags.register(cmd)

	return cmd
}
