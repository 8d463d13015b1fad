package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/npmdash/pkg/dashboard"
	"github.com/matzehuels/npmdash/pkg/pipeline"
)

func intPtr(n int) *int { return &n }

func sampleUpdate() pipeline.Update {
	repo := "https://github.com/alice/left-pad"
	return pipeline.Update{
		Username: "alice",
		Stats: &pipeline.UserStats{
			Username: "alice",
			Packages: []pipeline.Package{
				{Name: "left-pad", Version: "1.3.0", WeeklyDownloads: 1500, GithubStars: 42, OpenIssues: 3,
					RepoURL: &repo, PreviousGithubStars: intPtr(40), PreviousOpenIssues: intPtr(3)},
				{Name: "right-pad", Version: "0.1.0", WeeklyDownloads: 20, GithubFetchFailed: true},
				{Name: "pending", Version: "2.0.0", WeeklyDownloads: 5, IsLoadingGithubData: true},
			},
			TotalDownloads:         1525,
			TotalStars:             42,
			PreviousTotalDownloads: intPtr(1000),
		},
		Failure: pipeline.FailureStats{Total: 3, Failed: 1},
	}
}

func TestWriteReport(t *testing.T) {
	u := sampleUpdate()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	u.RateLimit = pipeline.RateLimitInfo{IsLimited: true, ResetTime: now.Add(90 * time.Second)}

	var buf bytes.Buffer
	writeReport(&buf, u, view{}, now)
	out := buf.String()

	for _, want := range []string{
		"npm packages of alice",
		"left-pad", "right-pad", "pending",
		"42 (+2)",
		"1,525 +525 +52.5%",
		"GitHub data unavailable for 1 of 3 packages",
		"Resets in 2 minutes.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "3 (+0)") {
		t.Error("unchanged values should not show a diff")
	}
}

func TestWriteReportFilterAndSort(t *testing.T) {
	var buf bytes.Buffer
	v := view{Filter: dashboard.Filter{MinDownloads: 10}, Sort: dashboard.FieldDownloads}
	writeReport(&buf, sampleUpdate(), v, time.Now())
	out := buf.String()

	if strings.Contains(out, "pending") {
		t.Error("filtered package shown")
	}
	if strings.Index(out, "right-pad") > strings.Index(out, "left-pad") {
		t.Error("ascending download sort should list right-pad first")
	}
}

func TestWriteReportNoPackages(t *testing.T) {
	var buf bytes.Buffer
	writeReport(&buf, pipeline.Update{Username: "nobody", NoPackages: true}, view{}, time.Now())
	if !strings.Contains(buf.String(), "No packages found for nobody") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWithDiff(t *testing.T) {
	tests := []struct {
		current  int
		previous *int
		want     string
	}{
		{1200, nil, "1,200"},
		{1200, intPtr(1200), "1,200"},
		{1200, intPtr(1000), "1,200 (+200)"},
		{5, intPtr(8), "5 (-3)"},
	}
	for _, tt := range tests {
		if got := withDiff(tt.current, tt.previous, false); got != tt.want {
			t.Errorf("withDiff(%d, %v) = %q, want %q", tt.current, tt.previous, got, tt.want)
		}
	}
}

func TestProgressMessage(t *testing.T) {
	if got := progressMessage(pipeline.Update{Username: "alice"}); got != "Fetching packages of alice" {
		t.Errorf("before stats: %q", got)
	}
	if got := progressMessage(sampleUpdate()); got != "Enriching packages 2/3" {
		t.Errorf("during run: %q", got)
	}
	u := sampleUpdate()
	u.Retrying = []string{"right-pad"}
	if got := progressMessage(u); got != "Retrying right-pad" {
		t.Errorf("retrying: %q", got)
	}
}

func TestNextField(t *testing.T) {
	var f dashboard.Field
	seen := []dashboard.Field{}
	for range len(dashboard.Fields) + 1 {
		f = nextField(f)
		seen = append(seen, f)
	}
	if seen[0] != dashboard.FieldName || seen[len(seen)-1] != "" {
		t.Errorf("cycle = %v", seen)
	}
}

func TestLiveModelKeys(t *testing.T) {
	m := newLiveModel(context.Background(), nil, "alice", view{})
	m.searching = false
	m.update = sampleUpdate()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = next.(liveModel)
	if m.view.Sort != dashboard.FieldName {
		t.Errorf("sort after s = %q", m.view.Sort)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = next.(liveModel)
	if !m.view.Desc {
		t.Error("d should toggle direction")
	}
	if !strings.Contains(m.help(), "r retry failed") {
		t.Errorf("help = %q", m.help())
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = next.(liveModel)
	if !m.retrying || cmd == nil {
		t.Error("r should start a retry when packages failed")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestLiveModelRetryWaitsForSession(t *testing.T) {
	m := newLiveModel(context.Background(), nil, "alice", view{})
	m.searching = false
	m.update = sampleUpdate()
	m.update.Retrying = []string{"right-pad"}

	if strings.Contains(m.help(), "r retry failed") {
		t.Errorf("help offers retry while a retry runs: %q", m.help())
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if next.(liveModel).retrying || cmd != nil {
		t.Error("r must wait until the session is done")
	}
}

func TestLiveModelView(t *testing.T) {
	m := newLiveModel(context.Background(), nil, "alice", view{})
	m.update = sampleUpdate()
	out := m.View()
	if !strings.Contains(out, "Enriching packages 2/3") || !strings.Contains(out, "left-pad") {
		t.Errorf("view = %s", out)
	}
}
