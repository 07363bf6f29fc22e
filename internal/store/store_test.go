package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(lint LintFunc) *Store {
	return New(Config{
		RetainFor:         0, // sweeps disabled unless a test opts in
		PausedBufferCap:   16,
		PendingOpsCap:     16,
		HistogramMaxValue: 0,
	}, lint, nil)
}

// Scenario 1 (§8): a task is created, polled once, and its derived state
// and stats reflect the single lifecycle.
func TestTaskLifecycleScenario(t *testing.T) {
	s := newTestStore(nil)

	s.Apply(Batch{
		Now:      10,
		NewTasks: []NewTaskRecord{{ID: 1, Name: "worker", CreatedAt: 0}},
	})
	task, ok := s.Task(1)
	require.True(t, ok)
	require.Equal(t, TaskIdle, task.Stats.State())

	s.Apply(Batch{
		Now: 20,
		TaskStats: []TaskStatsRecord{{
			ID:              1,
			LastPollStarted: 10,
			PollCount:       1,
		}},
	})
	task, _ = s.Task(1)
	require.Equal(t, TaskRunning, task.Stats.State())

	s.Apply(Batch{
		Now: 30,
		TaskStats: []TaskStatsRecord{{
			ID:              1,
			LastPollStarted: 10,
			LastPollEnded:   25,
			BusyTotal:       15,
			PollCount:       1,
		}},
	})
	task, _ = s.Task(1)
	require.Equal(t, TaskIdle, task.Stats.State())
	idle, clamped := task.Stats.IdleTotal(30)
	require.False(t, clamped)
	require.Equal(t, uint64(15), idle)
}

// Invariant 3: current_wakers = max(0, waker_clones - waker_drops).
func TestCurrentWakersNeverNegative(t *testing.T) {
	stats := TaskStats{WakerClones: 1, WakerDrops: 4}
	require.Equal(t, uint64(0), stats.CurrentWakers())
}

// P5: state version increases monotonically, one tick per applied batch.
func TestStateVersionMonotonic(t *testing.T) {
	s := newTestStore(nil)
	v0 := s.StateVersion()
	s.Apply(Batch{Now: 1, NewTasks: []NewTaskRecord{{ID: 1}}})
	v1 := s.StateVersion()
	s.Apply(Batch{Now: 2, NewTasks: []NewTaskRecord{{ID: 2}}})
	v2 := s.StateVersion()
	require.Greater(t, v1, v0)
	require.Greater(t, v2, v1)
}

// B1: an id reused after its entity was retired starts from a clean
// record, with the replacement counted as a dropped event.
func TestTaskIDReuseStartsClean(t *testing.T) {
	s := newTestStore(nil)
	s.Apply(Batch{Now: 1, NewTasks: []NewTaskRecord{{ID: 1, Name: "first"}}})
	s.Apply(Batch{Now: 2, TaskStats: []TaskStatsRecord{{ID: 1, Wakes: 9}}})

	s.Apply(Batch{Now: 3, NewTasks: []NewTaskRecord{{ID: 1, Name: "second"}}})

	task, ok := s.Task(1)
	require.True(t, ok)
	require.Equal(t, "second", task.Name)
	require.Zero(t, task.Stats.Wakes)
	require.Equal(t, uint64(1), s.DroppedEvents())
}

// B2: a stats_update referencing an unknown id is dropped and counted,
// never panics, never fabricates an entity.
func TestStatsUpdateForUnknownIDIsDropped(t *testing.T) {
	s := newTestStore(nil)
	s.Apply(Batch{Now: 1, TaskStats: []TaskStatsRecord{{ID: 999, Wakes: 1}}})
	_, ok := s.Task(999)
	require.False(t, ok)
	require.Equal(t, uint64(1), s.DroppedEvents())
}

// Invariant 6: an async-op whose resource hasn't arrived yet is parked, not
// dropped, and becomes visible once the resource shows up.
func TestAsyncOpWaitsForResource(t *testing.T) {
	s := newTestStore(nil)
	s.Apply(Batch{Now: 1, NewAsyncOps: []NewAsyncOpRecord{{ID: 5, ResourceID: 42}}})

	_, ok := s.AsyncOp(5)
	require.False(t, ok)
	require.Equal(t, 1, s.PendingAsyncOps())

	s.Apply(Batch{Now: 2, NewResources: []NewResourceRecord{{ID: 42, Kind: "Mutex"}}})

	op, ok := s.AsyncOp(5)
	require.True(t, ok)
	require.Equal(t, uint64(42), op.ResourceID)
	require.Equal(t, 0, s.PendingAsyncOps())
}

// §4.4.3: while paused, batches are buffered and applied in order on
// Resume, never before.
func TestPauseBuffersAndResumeDrainsInOrder(t *testing.T) {
	s := newTestStore(nil)
	s.Pause()
	require.True(t, s.Paused())

	s.Apply(Batch{Now: 1, NewTasks: []NewTaskRecord{{ID: 1, Name: "a"}}})
	s.Apply(Batch{Now: 2, NewTasks: []NewTaskRecord{{ID: 2, Name: "b"}}})

	_, ok := s.Task(1)
	require.False(t, ok, "task must not be visible while paused")

	s.Resume()
	require.False(t, s.Paused())

	t1, ok := s.Task(1)
	require.True(t, ok)
	require.Equal(t, "a", t1.Name)
	t2, ok := s.Task(2)
	require.True(t, ok)
	require.Equal(t, "b", t2.Name)
}

// §4.4.2: entities past the retention window are swept away; live ones are
// not.
func TestSweepRemovesOnlyExpiredDroppedEntities(t *testing.T) {
	s := New(Config{RetainFor: 5, PausedBufferCap: 4, PendingOpsCap: 4}, nil, nil)
	s.Apply(Batch{Now: 0, NewTasks: []NewTaskRecord{{ID: 1}, {ID: 2}}})
	s.Apply(Batch{Now: 1, DroppedTasks: []uint64{1}})

	s.Sweep(3) // age 2ns, under the 5ns retention window
	_, ok := s.Task(1)
	require.True(t, ok, "not yet past retention")

	s.Sweep(10) // age 9ns, past retention
	_, ok = s.Task(1)
	require.False(t, ok)
	_, ok = s.Task(2)
	require.True(t, ok, "live tasks are never swept")
}

// Reset clears all state, used when the transport reconnects from scratch.
func TestResetClearsEverything(t *testing.T) {
	s := newTestStore(nil)
	s.Apply(Batch{Now: 1, NewTasks: []NewTaskRecord{{ID: 1}}})
	before := s.StateVersion()

	s.Reset()

	_, ok := s.Task(1)
	require.False(t, ok)
	require.Greater(t, s.StateVersion(), before)
}

// P4: iteration order is stable (by id, then insertion order) across calls
// that don't mutate the store.
func TestTasksOrderedStable(t *testing.T) {
	s := newTestStore(nil)
	s.Apply(Batch{Now: 1, NewTasks: []NewTaskRecord{{ID: 5}, {ID: 1}, {ID: 3}}})

	ids := func() []uint64 {
		var out []uint64
		for _, t := range s.Tasks() {
			out = append(out, t.ID)
		}
		return out
	}
	first := ids()
	second := ids()
	require.Equal(t, []uint64{1, 3, 5}, first)
	require.Equal(t, first, second)
}

// Lint is invoked only for tasks whose stats actually changed in the
// batch, and its result fully replaces the previous warning set.
func TestLintInvokedOnlyForTouchedTasks(t *testing.T) {
	var seen []uint64
	lint := func(t *Task, now uint64) []Warning {
		seen = append(seen, t.ID)
		if t.ID == 1 {
			return []Warning{{Kind: "self-wake", Message: "woke itself"}}
		}
		return nil
	}
	s := newTestStore(lint)
	s.Apply(Batch{Now: 1, NewTasks: []NewTaskRecord{{ID: 1}, {ID: 2}}})
	require.Empty(t, seen, "new task creation alone doesn't touch stats")

	s.Apply(Batch{Now: 2, TaskStats: []TaskStatsRecord{{ID: 1, SelfWakes: 1}}})
	require.Equal(t, []uint64{1}, seen)

	task, _ := s.Task(1)
	require.Contains(t, task.Warnings, "self-wake")
}

// RecordClockSkew accumulates independently of DroppedEvents, since a
// clamped timestamp is not itself a dropped record.
func TestRecordClockSkew(t *testing.T) {
	s := newTestStore(nil)
	s.RecordClockSkew(0)
	require.Zero(t, s.ClockSkewClamped())

	s.RecordClockSkew(2)
	s.RecordClockSkew(3)
	require.Equal(t, uint64(5), s.ClockSkewClamped())
	require.Zero(t, s.DroppedEvents())
}
