package models

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageString(t *testing.T) {
	tests := []struct {
		stage  Stage
		want   string
		active bool
	}{
		{StagePending, "pending", false},
		{StageDetecting, "detecting", true},
		{StageInstalling, "installing", true},
		{StageWaiting, "waiting", true},
		{StageCapturing, "capturing", true},
		{StagePassed, "complete", false},
		{StageQuiet, "quiet", false},
		{StageFailed, "failed", false},
		{StageReleased, "released", false},
		{StageAssigned, "assigned", false},
		{Stage(99), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.String())
			assert.Equal(t, tt.active, tt.stage.Active())
		})
	}
}

func TestRunModelTracksJobs(t *testing.T) {
	m := NewRunModel(nil)

	m.Update(JobUpdateMsg{Platform: "K64F", Stage: StageDetecting})
	m.Update(JobUpdateMsg{Platform: "K64F", Binary: "a.bin", Stage: StageInstalling})
	m.Update(JobUpdateMsg{Platform: "K64F", Binary: "a.bin", Stage: StageFailed, Err: errors.New("boom")})

	require.Len(t, m.jobs, 2)
	assert.Equal(t, StageFailed, m.jobs[1].Stage)
	assert.Equal(t, 1, m.failed())

	view := m.View()
	assert.Contains(t, view, "K64F")
	assert.Contains(t, view, "a.bin")
	assert.Contains(t, view, "boom")
}

func TestRunModelQuitsWhenDone(t *testing.T) {
	m := NewRunModel(nil)

	_, cmd := m.Update(RunDoneMsg{Err: errors.New("one failed")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	done, err := m.Done()
	assert.True(t, done)
	assert.EqualError(t, err, "one failed")
	assert.Contains(t, m.View(), "Run finished with errors")
}

func TestRunModelQuitCancelsRun(t *testing.T) {
	cancelled := false
	m := NewRunModel(func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.True(t, cancelled)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}
