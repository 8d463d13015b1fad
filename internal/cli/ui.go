package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/npmdash/pkg/dashboard"
	"github.com/matzehuels/npmdash/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success, growth
	colorYellow = lipgloss.Color("220") // Amber - warnings, loading
	colorRed    = lipgloss.Color("167") // Soft red - errors, decline
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleUp   = lipgloss.NewStyle().Foreground(colorGreen)
	styleDown = lipgloss.NewStyle().Foreground(colorRed)

	styleHeader = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleCell   = lipgloss.NewStyle().PaddingRight(1)
	styleKey    = lipgloss.NewStyle().Foreground(colorGray).Width(16)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess  = "✓"
	iconError    = "✗"
	iconWarning  = "!"
	iconInfo     = "›"
	iconLoading  = "…"
	iconRetrying = "↻"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconError.Render(iconError) + " " + msg)
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println("  " + StyleDim.Render(msg))
}

// =============================================================================
// Dashboard Report
// =============================================================================

// view selects and orders the rows of a report.
type view struct {
	Filter dashboard.Filter
	Sort   dashboard.Field
	Desc   bool
}

// rows applies the view to the dashboard packages.
func (v view) rows(stats *pipeline.UserStats) []pipeline.Package {
	if stats == nil {
		return nil
	}
	pkgs := v.Filter.Apply(stats.Packages)
	if v.Sort != "" {
		pkgs = dashboard.SortBy(pkgs, v.Sort, v.Desc)
	}
	return pkgs
}

// writeReport renders the dashboard state: a title, the package table and
// a summary with totals, failures and the rate limit.
func writeReport(w io.Writer, u pipeline.Update, v view, now time.Time) {
	if u.Stats == nil {
		if u.NoPackages {
			fmt.Fprintln(w, StyleWarning.Render(fmt.Sprintf("No packages found for %s", u.Username)))
		}
		return
	}

	fmt.Fprintln(w, StyleTitle.Render("npm packages of "+u.Stats.Username))
	fmt.Fprintln(w, renderTable(v.rows(u.Stats), u.Retrying))
	writeSummary(w, u, now)
}

// renderTable renders packages as a bordered table.
func renderTable(pkgs []pipeline.Package, retrying []string) string {
	rows := make([][]string, 0, len(pkgs))
	for _, p := range pkgs {
		rows = append(rows, []string{
			p.Name,
			p.Version,
			withDiff(p.WeeklyDownloads, p.PreviousWeeklyDownloads, false),
			dashboard.Thousands(p.Dependents),
			withDiff(p.GithubStars, p.PreviousGithubStars, false),
			withDiff(p.OpenIssues, p.PreviousOpenIssues, true),
			rowStatus(p, slices.Contains(retrying, p.Name)),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Package", "Version", "Downloads/wk", "Dependents", "Stars", "Issues", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			return styleCell
		})
	return t.Render()
}

func rowStatus(p pipeline.Package, retrying bool) string {
	switch {
	case retrying:
		return StyleWarning.Render(iconRetrying)
	case p.IsLoadingGithubData:
		return StyleWarning.Render(iconLoading)
	case p.GithubFetchFailed:
		return styleIconError.Render(iconError)
	case p.RepoURL == nil:
		return StyleDim.Render("no repo")
	default:
		return ""
	}
}

// withDiff formats a value and, when it changed since the last snapshot,
// the signed difference. For open issues a decrease is the good direction.
func withDiff(current int, previous *int, lowerIsBetter bool) string {
	s := dashboard.Thousands(current)
	c := dashboard.Diff(current, previous)
	if !c.Known {
		return s
	}
	good := c.Delta > 0
	if lowerIsBetter {
		good = !good
	}
	style := styleDown
	if good {
		style = styleUp
	}
	return s + " " + style.Render("("+c.String()+")")
}

func writeSummary(w io.Writer, u pipeline.Update, now time.Time) {
	st := u.Stats
	kv := func(key, value string) {
		fmt.Fprintln(w, styleKey.Render(key)+" "+StyleValue.Render(value))
	}

	kv("Packages", dashboard.Thousands(len(st.Packages)))
	downloads := dashboard.Diff(st.TotalDownloads, st.PreviousTotalDownloads)
	kv("Downloads/wk", joinNonEmpty(dashboard.Thousands(st.TotalDownloads), downloads.String(), downloads.PercentString()))
	stars := dashboard.Diff(st.TotalStars, st.PreviousTotalStars)
	kv("GitHub stars", joinNonEmpty(dashboard.Thousands(st.TotalStars), stars.String(), stars.PercentString()))

	if u.Failure.Failed > 0 {
		fmt.Fprintln(w, styleIconError.Render(iconError)+" "+
			fmt.Sprintf("GitHub data unavailable for %d of %d packages", u.Failure.Failed, u.Failure.Total))
	}
	if u.RateLimit.IsLimited {
		msg := "GitHub rate limit reached."
		if !u.RateLimit.ResetTime.IsZero() {
			msg += " Resets in " + dashboard.FormatUntilReset(u.RateLimit.ResetTime, now) + "."
		}
		fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(msg))
	}
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
