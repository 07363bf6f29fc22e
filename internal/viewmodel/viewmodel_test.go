package viewmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskscope/taskscope/internal/connfsm"
	"github.com/taskscope/taskscope/internal/store"
)

func newTestModel(t *testing.T) (*Model, *store.Store) {
	t.Helper()
	s := store.New(store.Config{PausedBufferCap: 4, PendingOpsCap: 4}, nil, nil)
	return New(s), s
}

func TestTasksProjectionSortedByName(t *testing.T) {
	m, s := newTestModel(t)
	s.Apply(store.Batch{Now: 1, NewTasks: []store.NewTaskRecord{
		{ID: 1, Name: "zeta"},
		{ID: 2, Name: "alpha"},
	}})

	rows := m.Tasks(1, SortSpec{Column: ColName}, FilterSpec{})
	require.Len(t, rows, 2)
	require.Equal(t, "alpha", rows[0].Name)
	require.Equal(t, "zeta", rows[1].Name)
}

func TestTasksProjectionCachedUntilStateVersionChanges(t *testing.T) {
	m, s := newTestModel(t)
	s.Apply(store.Batch{Now: 1, NewTasks: []store.NewTaskRecord{{ID: 1, Name: "a"}}})

	first := m.Tasks(1, SortSpec{}, FilterSpec{})
	second := m.Tasks(1, SortSpec{}, FilterSpec{})
	require.Equal(t, 1, len(first))
	require.Equal(t, 1, len(second))

	s.Apply(store.Batch{Now: 2, NewTasks: []store.NewTaskRecord{{ID: 2, Name: "b"}}})
	third := m.Tasks(2, SortSpec{}, FilterSpec{})
	require.Len(t, third, 2)
}

func TestTasksProjectionFiltersByName(t *testing.T) {
	m, s := newTestModel(t)
	s.Apply(store.Batch{Now: 1, NewTasks: []store.NewTaskRecord{
		{ID: 1, Name: "worker-1"},
		{ID: 2, Name: "listener"},
	}})

	rows := m.Tasks(1, SortSpec{}, FilterSpec{Query: "work"})
	require.Len(t, rows, 1)
	require.Equal(t, "worker-1", rows[0].Name)
}

func TestTaskDetailReportsNotFoundForUnknownID(t *testing.T) {
	m, _ := newTestModel(t)
	detail := m.TaskDetail(999, 1)
	require.False(t, detail.Found)
}

func TestResourceDetailIncludesOwnedAsyncOps(t *testing.T) {
	m, s := newTestModel(t)
	s.Apply(store.Batch{
		Now:          1,
		NewResources: []store.NewResourceRecord{{ID: 10, Kind: "Mutex"}},
		NewAsyncOps:  []store.NewAsyncOpRecord{{ID: 20, ResourceID: 10, Source: "lock"}},
	})

	detail := m.ResourceDetail(10, 1, SortSpec{})
	require.True(t, detail.Found)
	require.Len(t, detail.AsyncOps, 1)
	require.Equal(t, "lock", detail.AsyncOps[0].Source)
}

func TestStatusLineReflectsPauseAndDroppedEvents(t *testing.T) {
	m, s := newTestModel(t)
	s.Apply(store.Batch{Now: 1, TaskStats: []store.TaskStatsRecord{{ID: 999}}}) // unknown id -> dropped
	s.Pause()

	line := m.StatusLine(connfsm.State{Kind: connfsm.Subscribed}, "never")
	require.True(t, line.Paused)
	require.Equal(t, uint64(1), line.DroppedEvents)
}

func TestHelpOverlayIsStatic(t *testing.T) {
	first := Help()
	second := Help()
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}
