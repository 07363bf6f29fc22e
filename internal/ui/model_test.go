package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/taskscope/taskscope/internal/connfsm"
	"github.com/taskscope/taskscope/internal/lint"
	"github.com/taskscope/taskscope/internal/store"
	"github.com/taskscope/taskscope/internal/viewmodel"
)

// fakeSource is a minimal Source backed by a real store/view-model pair,
// so the renderer exercises the same projections the engine would hand
// it, without needing a live transport.
type fakeSource struct {
	store       *store.Store
	vm          *viewmodel.Model
	conn        connfsm.State
	pauseCalls  int
	resumeCalls int
}

func newFakeSource() *fakeSource {
	lintCfg := lint.DefaultConfig()
	st := store.New(store.DefaultConfig(), func(t *store.Task, now uint64) []store.Warning {
		return lint.Evaluate(lintCfg, t, now)
	}, nil)
	st.Apply(store.Batch{
		Now: 100,
		NewTasks: []store.NewTaskRecord{
			{ID: 1, Name: "alpha", CreatedAt: 0},
			{ID: 2, Name: "beta", CreatedAt: 50},
		},
	})
	return &fakeSource{
		store: st,
		vm:    viewmodel.New(st),
		conn:  connfsm.State{Kind: connfsm.Subscribed},
	}
}

func (f *fakeSource) ViewModel() *viewmodel.Model       { return f.vm }
func (f *fakeSource) ConnectionState() connfsm.State    { return f.conn }
func (f *fakeSource) Now() uint64                       { return f.store.LastObservedTime() }
func (f *fakeSource) Pause()                            { f.pauseCalls++ }
func (f *fakeSource) Resume()                           { f.resumeCalls++ }

func TestRefreshPopulatesTaskRows(t *testing.T) {
	src := newFakeSource()
	m := New(src)
	m.refresh()

	require.Len(t, m.taskRows, 2)
	require.Equal(t, 2, len(m.tasksTable.Rows()))
}

func TestTabTogglesBetweenTasksAndResources(t *testing.T) {
	src := newFakeSource()
	m := New(src)
	require.Equal(t, tabTasks, m.active)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m2 := updated.(Model)
	require.Equal(t, tabResources, m2.active)
}

func TestHelpTogglesOverlay(t *testing.T) {
	src := newFakeSource()
	m := New(src)
	require.False(t, m.showHelp)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	m2 := updated.(Model)
	require.True(t, m2.showHelp)
}

func TestPauseKeyInvokesPauseWhenSubscribed(t *testing.T) {
	src := newFakeSource()
	m := New(src)

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	require.Equal(t, 1, src.pauseCalls)
}

func TestResumeKeyInvokesResumeWhenNotSubscribed(t *testing.T) {
	src := newFakeSource()
	src.conn = connfsm.State{Kind: connfsm.Disconnected}
	m := New(src)

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	require.Equal(t, 1, src.resumeCalls)
}

func TestFilterModeCapturesTypedTextAndCommitsOnEnter(t *testing.T) {
	src := newFakeSource()
	m := New(src)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m2 := updated.(Model)
	require.True(t, m2.filtering)

	updated, _ = m2.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m3 := updated.(Model)
	require.Equal(t, "a", m3.filterText)

	updated, _ = m3.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m4 := updated.(Model)
	require.False(t, m4.filtering)
	require.Equal(t, "a", m4.filter.Query)
}

func TestCycleSortAdvancesThroughColumns(t *testing.T) {
	src := newFakeSource()
	m := New(src)
	first := m.taskSort.Column
	m.cycleSort()
	require.NotEqual(t, first, m.taskSort.Column)
}
