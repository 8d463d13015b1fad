package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/npmdash/pkg/dashboard"
	"github.com/matzehuels/npmdash/pkg/errors"
	"github.com/matzehuels/npmdash/pkg/pipeline"
)

var (
	liveHelpStyle   = lipgloss.NewStyle().Foreground(colorDim)
	liveStatusStyle = lipgloss.NewStyle().Foreground(colorGray)
)

// =============================================================================
// Live Lookup
// =============================================================================

// runLive runs a lookup inside a bubbletea program that redraws the table
// after every merged batch.
func (c *CLI) runLive(ctx context.Context, opts pipeline.Options, username string, v view) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Observers run under the session lock, so they only leave the newest
	// update behind and a pump goroutine forwards it to the program.
	updates := make(chan pipeline.Update, 1)
	opts.Observer = pipeline.ObserverFunc(func(u pipeline.Update) {
		select {
		case <-updates:
		default:
		}
		updates <- u
	})
	sess := pipeline.NewSession(opts)

	m := newLiveModel(ctx, sess, username, v)
	p := tea.NewProgram(m, tea.WithContext(ctx))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				p.Send(updateMsg(u))
			}
		}
	}()

	final, err := p.Run()
	cancel()
	sess.Wait()
	if err != nil {
		return err
	}
	if fm, ok := final.(liveModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}

// updateMsg carries a session state into the program.
type updateMsg pipeline.Update

type searchDoneMsg struct{ err error }

type retryDoneMsg struct {
	recovered int
	err       error
}

type tickMsg time.Time

// liveModel is the bubbletea model of a running lookup.
type liveModel struct {
	ctx      context.Context
	session  *pipeline.Session
	username string
	view     view

	update    pipeline.Update
	searching bool
	retrying  bool
	status    string
	err       error
	frame     int
	now       func() time.Time
}

func newLiveModel(ctx context.Context, sess *pipeline.Session, username string, v view) liveModel {
	return liveModel{
		ctx:       ctx,
		session:   sess,
		username:  username,
		view:      v,
		update:    pipeline.Update{Username: username},
		searching: true,
		now:       time.Now,
	}
}

func (m liveModel) Init() tea.Cmd {
	return tea.Batch(m.searchCmd(), tick())
}

func (m liveModel) searchCmd() tea.Cmd {
	ctx, sess, username := m.ctx, m.session, m.username
	return func() tea.Msg {
		return searchDoneMsg{err: sess.Search(ctx, username)}
	}
}

func (m liveModel) retryCmd() tea.Cmd {
	ctx, sess := m.ctx, m.session
	return func() tea.Msg {
		n, err := sess.RetryAllFailed(ctx)
		return retryDoneMsg{recovered: n, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.searching || m.retrying || !m.update.Done() || m.update.Failure.Failed == 0 {
				return m, nil
			}
			m.retrying = true
			m.status = fmt.Sprintf("Retrying %d failed packages", m.update.Failure.Failed)
			return m, m.retryCmd()
		case "s":
			m.view.Sort = nextField(m.view.Sort)
		case "d":
			m.view.Desc = !m.view.Desc
		}
	case updateMsg:
		m.update = pipeline.Update(msg)
	case searchDoneMsg:
		m.searching = false
		m.update = m.session.Snapshot()
		if msg.err != nil && !stderrors.Is(msg.err, context.Canceled) {
			m.err = msg.err
			m.status = errors.UserMessage(msg.err)
		} else if m.update.Stats != nil {
			m.status = fmt.Sprintf("Enriched %d packages", len(m.update.Stats.Packages))
		}
	case retryDoneMsg:
		m.retrying = false
		m.update = m.session.Snapshot()
		m.status = fmt.Sprintf("Recovered %d packages", msg.recovered)
		if msg.err != nil && !stderrors.Is(msg.err, context.Canceled) {
			m.status += ": " + errors.UserMessage(msg.err)
		}
	case tickMsg:
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m liveModel) View() string {
	var b strings.Builder

	switch {
	case m.searching || m.retrying:
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		b.WriteString(styleIconSpinner.Render(frame) + " " + liveStatusStyle.Render(progressMessage(m.update)))
	case m.err != nil:
		b.WriteString(styleIconError.Render(iconError) + " " + m.status)
	default:
		b.WriteString(styleIconSuccess.Render(iconSuccess) + " " + liveStatusStyle.Render(m.status))
	}
	b.WriteString("\n\n")

	writeReport(&b, m.update, m.view, m.now())

	b.WriteString("\n")
	b.WriteString(liveHelpStyle.Render(m.help()))
	b.WriteString("\n")
	return b.String()
}

func (m liveModel) help() string {
	sort := "none"
	if m.view.Sort != "" {
		sort = string(m.view.Sort)
		if m.view.Desc {
			sort += " ↓"
		} else {
			sort += " ↑"
		}
	}
	keys := []string{"s sort (" + sort + ")", "d direction"}
	if !m.searching && m.update.Done() && m.update.Failure.Failed > 0 {
		keys = append(keys, "r retry failed")
	}
	keys = append(keys, "q quit")
	return strings.Join(keys, "  ")
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// nextField cycles through the sort columns, ending with no sort.
func nextField(f dashboard.Field) dashboard.Field {
	if f == "" {
		return dashboard.Fields[0]
	}
	i := slices.Index(dashboard.Fields, f)
	if i < 0 || i == len(dashboard.Fields)-1 {
		return ""
	}
	return dashboard.Fields[i+1]
}
