package monitor

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewModel(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", 2*time.Second)
	assert.Equal(t, "http://127.0.0.1:8787", model.daemonURL)
	assert.Equal(t, 2*time.Second, model.interval)
	assert.False(t, model.quitting)
}

func TestModel_Init(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)
	assert.NotNil(t, model.Init())
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)
	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updated, cmd := model.Update(keyMsg)

	m := updated.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_RefreshKey(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)
	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}
	updated, cmd := model.Update(keyMsg)

	m := updated.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)
	updated, cmd := model.Update(tickMsg(time.Now()))

	m := updated.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_SnapshotMsg_ComputesRates(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)

	updated, cmd := model.Update(snapshotMsg(Snapshot{RequestsOK: 10, WorkerCompleted: 2}))
	m := updated.(Model)
	assert.Nil(t, cmd)
	assert.True(t, m.hasPrev)
	assert.Equal(t, float64(0), m.rates.RequestRate) // no prior snapshot yet

	updated, _ = m.Update(snapshotMsg(Snapshot{RequestsOK: 25, WorkerCompleted: 5}))
	m = updated.(Model)
	assert.Equal(t, float64(15), m.rates.RequestRate)
	assert.Equal(t, float64(3), m.rates.WorkerRate)
	assert.False(t, m.lastUpdate.IsZero())
}

func TestModel_Update_ErrMsg(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)
	updated, cmd := model.Update(errMsg(fmt.Errorf("connection refused")))

	m := updated.(Model)
	assert.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_View_WithError(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)
	model.err = fmt.Errorf("connection refused")

	view := model.View()
	assert.Contains(t, view, "statmcp Monitor")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "[q] quit")
}

func TestModel_View_WithMetrics(t *testing.T) {
	model := NewModel("http://127.0.0.1:8787", time.Second)
	model.rates = Rates{RequestRate: 12.5, WorkerActive: 2, ApprovalApproved: 5, ApprovalDenied: 1}
	model.lastUpdate = time.Date(2026, 7, 31, 12, 34, 56, 0, time.UTC)

	view := model.View()
	assert.Contains(t, view, "Requests")
	assert.Contains(t, view, "12.5 req/s")
	assert.Contains(t, view, "Worker pool")
	assert.Contains(t, view, "Approvals")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}
