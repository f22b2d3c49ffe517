package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wintopic/iDanmu-Speed/internal/config"
	"github.com/wintopic/iDanmu-Speed/internal/download"
	"github.com/wintopic/iDanmu-Speed/internal/model"
)

func TestTracker_Observe(t *testing.T) {
	var tr Tracker
	for _, line := range []string{
		"API: http://127.0.0.1:9321",
		"Total tasks: 4",
		"[1/4] Start...",
		"[1/4] OK -> 001_a.xml",
		"[2/4] FAILED -> HTTP 404; body=",
		"[3/4] OK -> 003_c.xml",
		"Success: 2",
		"Failed: 1",
		"Report: /tmp/out/download-report.json",
	} {
		tr.Observe(line)
	}

	assert.Equal(t, 4, tr.Total)
	assert.Equal(t, 2, tr.Succeeded)
	assert.Equal(t, 1, tr.Failed)
	assert.Equal(t, 3, tr.Done())
	assert.InDelta(t, 0.75, tr.Percent(), 1e-9)
	assert.Equal(t, "/tmp/out/download-report.json", tr.ReportPath)
}

func TestTracker_PercentWithoutTotal(t *testing.T) {
	var tr Tracker
	tr.Observe("[1/1] OK -> a.xml")
	assert.Zero(t, tr.Percent())
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestModel_InputToggles(t *testing.T) {
	m := NewModel(config.DefaultSettings())
	assert.False(t, m.jsonFormat)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.True(t, m.jsonFormat)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.True(t, m.verbose)
	assert.Contains(t, m.View(), "Format: json")
	assert.Contains(t, m.View(), "[x] Verbose output")
}

func TestModel_ProgressAndCompletion(t *testing.T) {
	m := NewModel(nil)
	m.state = StateInitializing

	for _, e := range []download.ProgressEvent{
		{Message: "Total tasks: 2", Level: download.LevelInfo},
		{Message: "[1/2] Start...", Level: download.LevelVerbose},
		{Message: "[1/2] OK -> 001_a.xml", Level: download.LevelSuccess},
		{Message: "[2/2] FAILED -> HTTP 500", Level: download.LevelError},
		{Message: "Report: /out/download-report.json", Level: download.LevelInfo},
	} {
		m = update(t, m, ProgressMsg{Event: e})
	}

	assert.Equal(t, StateDownloading, m.state)
	for _, entry := range m.logs {
		assert.NotEqual(t, download.LevelVerbose, entry.Level, "verbose lines are hidden by default")
	}
	assert.Contains(t, m.View(), "Tasks: 2/2 | OK: 1 | Failed: 1")

	m = update(t, m, RunDoneMsg{ExitCode: model.ExitFailed})
	assert.Equal(t, StateComplete, m.state)
	view := m.View()
	assert.Contains(t, view, "Finished with failures")
	assert.Contains(t, view, "Report: /out/download-report.json")
}

func TestModel_CancelledRun(t *testing.T) {
	m := NewModel(nil)
	m.state = StateDownloading

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Error(t, m.ctx.Err())

	m = update(t, m, RunDoneMsg{ExitCode: model.ExitCancelled})
	assert.Equal(t, StateError, m.state)
	assert.Contains(t, m.View(), "cancelled by user")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Equal(t, StateInput, m.state)
	assert.NoError(t, m.ctx.Err())
}
