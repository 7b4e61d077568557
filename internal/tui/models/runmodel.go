package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/allbin/boardrun/internal/tui/keys"
	"github.com/allbin/boardrun/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
)

// Stage is how far a test binary has come on its board
type Stage int

const (
	StagePending Stage = iota
	StageDetecting
	StageInstalling
	StageWaiting
	StageCapturing
	StagePassed
	StageQuiet
	StageFailed
	StageReleased
	StageAssigned
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageDetecting:
		return "detecting"
	case StageInstalling:
		return "installing"
	case StageWaiting:
		return "waiting"
	case StageCapturing:
		return "capturing"
	case StagePassed:
		return "complete"
	case StageQuiet:
		return "quiet"
	case StageFailed:
		return "failed"
	case StageReleased:
		return "released"
	case StageAssigned:
		return "assigned"
	default:
		return "unknown"
	}
}

// Active reports whether work is in progress in this stage
func (s Stage) Active() bool {
	return s >= StageDetecting && s <= StageCapturing
}

func (s Stage) status() styles.StatusType {
	switch {
	case s.Active():
		return styles.StatusActive
	case s == StagePassed, s == StageReleased, s == StageAssigned:
		return styles.StatusPassed
	case s == StageQuiet:
		return styles.StatusWarn
	case s == StageFailed:
		return styles.StatusFailed
	default:
		return styles.StatusPending
	}
}

// JobUpdateMsg reports progress of one binary on one platform. Binary is
// empty for updates that concern the board itself.
type JobUpdateMsg struct {
	Platform string
	Binary   string
	Stage    Stage
	Detail   string
	Err      error
}

// RunDoneMsg is sent once every platform has finished
type RunDoneMsg struct {
	Err error
}

type job struct {
	JobUpdateMsg
}

const (
	columnKeyPlatform = "platform"
	columnKeyBinary   = "binary"
	columnKeyStage    = "stage"
	columnKeyDetail   = "detail"
)

// RunModel shows the progress of a test run, one row per platform and binary
type RunModel struct {
	jobs    []*job
	index   map[string]int
	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    keys.RunKeys
	cancel  context.CancelFunc

	showDetail bool
	done       bool
	err        error
}

// NewRunModel returns the model; cancel is called when the user quits early
func NewRunModel(cancel context.CancelFunc) *RunModel {
	columns := []table.Column{
		table.NewColumn(columnKeyPlatform, "Platform", 16),
		table.NewColumn(columnKeyBinary, "Binary", 28),
		table.NewColumn(columnKeyStage, "Stage", 14),
		table.NewColumn(columnKeyDetail, "Detail", 40),
	}

	return &RunModel{
		index: make(map[string]int),
		table: table.New(columns).
			Focused(true).
			BorderRounded().
			HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(styles.Mauve)).
			WithBaseStyle(lipgloss.NewStyle().Foreground(styles.Text).BorderForeground(styles.Surface1).Align(lipgloss.Left)),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Sky)),
		),
		help:   help.New(),
		keys:   keys.NewRunKeys(),
		cancel: cancel,
	}
}

// Done reports whether the run has finished, and with which error
func (m *RunModel) Done() (bool, error) {
	return m.done, m.err
}

func (m *RunModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case JobUpdateMsg:
		m.apply(msg)

	case RunDoneMsg:
		m.done = true
		m.err = msg.Err
		m.refresh()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll

		case key.Matches(msg, m.keys.Details):
			m.showDetail = !m.showDetail
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *RunModel) apply(msg JobUpdateMsg) {
	k := msg.Platform + "\x00" + msg.Binary
	i, ok := m.index[k]
	if !ok {
		i = len(m.jobs)
		m.index[k] = i
		m.jobs = append(m.jobs, &job{})
	}
	m.jobs[i].JobUpdateMsg = msg
	m.refresh()
}

func (m *RunModel) refresh() {
	rows := make([]table.Row, 0, len(m.jobs))
	for _, j := range m.jobs {
		stage := j.Stage.String()
		if j.Stage.Active() && !m.done {
			stage = m.spinner.View() + stage
		}
		binary := j.Binary
		if binary == "" {
			binary = "-"
		}
		detail := j.Detail
		if j.Err != nil {
			detail = j.Err.Error()
		}

		rows = append(rows, table.NewRow(table.RowData{
			columnKeyPlatform: j.Platform,
			columnKeyBinary:   binary,
			columnKeyStage:    table.NewStyledCell(stage, styles.GetStatusStyle(j.Stage.status())),
			columnKeyDetail:   truncate(detail, 38),
		}))
	}
	m.table = m.table.WithRows(rows)
}

func (m *RunModel) View() string {
	sections := []string{
		styles.TitleStyle.Render("boardrun"),
		m.table.View(),
	}

	if m.showDetail {
		if i := m.table.GetHighlightedRowIndex(); i >= 0 && i < len(m.jobs) {
			if err := m.jobs[i].Err; err != nil {
				sections = append(sections, styles.ErrorStyle.Render(err.Error()))
			} else {
				sections = append(sections, styles.InfoStyle.Render("No error"))
			}
		}
	}

	switch {
	case m.done && m.err != nil:
		sections = append(sections, styles.ErrorStyle.Render(fmt.Sprintf("Run finished with errors: %d failed", m.failed())))
	case m.done:
		sections = append(sections, styles.StagePassedStyle.Render("Run complete"))
	}

	if m.help.ShowAll {
		sections = append(sections, styles.HelpBoxStyle.Render(m.help.View(m.keys)))
	} else {
		sections = append(sections, m.help.View(m.keys))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m *RunModel) failed() int {
	n := 0
	for _, j := range m.jobs {
		if j.Stage == StageFailed {
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
