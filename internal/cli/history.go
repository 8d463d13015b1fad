package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmdash/pkg/dashboard"
	"github.com/matzehuels/npmdash/pkg/history"
)

// historyCommand creates the history command.
func (c *CLI) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved dashboard snapshots",
	}

	cmd.AddCommand(c.historyShowCommand())

	return cmd
}

// historyShowCommand creates the "history show" subcommand.
func (c *CLI) historyShowCommand() *cobra.Command {
	var (
		flags  lookupFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "show <npm-username>",
		Short: "Print the last saved snapshot of a maintainer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)
			if cfg.UserID == "" {
				return errors.New("history is stored per user: set --user-id or NPMDASH_USER_ID")
			}

			deps, err := c.newSessionDeps(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer deps.close()

			lookup, err := deps.opts.History.Load(cmd.Context(), cfg.UserID, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeHistoryJSON(cmd.OutOrStdout(), lookup)
			}
			writeHistory(cmd.OutOrStdout(), args[0], lookup)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.server, "server", "", "base URL of a running npmdash server (default $NPMDASH_SERVER)")
	cmd.Flags().StringVar(&flags.userID, "user-id", "", "user id the history belongs to (default $NPMDASH_USER_ID)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")

	return cmd
}

func writeHistory(w io.Writer, npmUser string, lookup history.Lookup) {
	switch {
	case !lookup.Available:
		fmt.Fprintln(w, StyleWarning.Render("Historical data storage is currently unavailable"))
		return
	case lookup.Snapshot == nil:
		fmt.Fprintln(w, StyleDim.Render("No snapshot saved for "+npmUser))
		return
	}

	snap := lookup.Snapshot
	fmt.Fprintln(w, StyleTitle.Render(fmt.Sprintf("Snapshot of %s from %s", npmUser, lookup.LastCheckedDate)))

	rows := make([][]string, 0, len(snap.Packages))
	for _, p := range snap.Packages {
		rows = append(rows, []string{
			p.Name,
			p.Version,
			dashboard.Thousands(p.WeeklyDownloads),
			dashboard.Thousands(p.Dependents),
			dashboard.Thousands(p.GithubStars),
			dashboard.Thousands(p.OpenIssues),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Package", "Version", "Downloads/wk", "Dependents", "Stars", "Issues").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			return styleCell
		})
	fmt.Fprintln(w, t.Render())

	fmt.Fprintln(w, styleKey.Render("Packages")+" "+StyleValue.Render(dashboard.Thousands(snap.PackageCount)))
	fmt.Fprintln(w, styleKey.Render("Downloads/wk")+" "+StyleValue.Render(dashboard.Thousands(snap.TotalDownloads)))
	fmt.Fprintln(w, styleKey.Render("GitHub stars")+" "+StyleValue.Render(dashboard.Thousands(snap.TotalStars)))
}

func writeHistoryJSON(w io.Writer, lookup history.Lookup) error {
	var date *string
	if lookup.LastCheckedDate != "" {
		date = &lookup.LastCheckedDate
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"data":            lookup.Snapshot,
		"lastCheckedDate": date,
		"redisAvailable":  lookup.Available,
	})
}
