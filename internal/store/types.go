package store

import "github.com/HdrHistogram/hdrhistogram-go"

// OptU64 is an explicit-presence uint64: zero is a legitimate timestamp
// (tasks may be created at server time zero), so "unset" cannot be encoded
// as the zero value the way ids do.
type OptU64 struct {
	Val   uint64
	Valid bool
}

// Some wraps a present value.
func Some(v uint64) OptU64 { return OptU64{Val: v, Valid: true} }

// TaskState is the derived lifecycle symbol of SPEC_FULL.md §4.6.
type TaskState int

const (
	TaskIdle TaskState = iota
	TaskScheduled
	TaskRunning
	TaskDone
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskScheduled:
		return "scheduled"
	case TaskDone:
		return "done"
	default:
		return "idle"
	}
}

// TaskStats is the per-data-model-§3 stat block for a task. idle_total is
// derived on read (IdleTotal), never stored, so it can never drift from the
// other three.
type TaskStats struct {
	CreatedAt       uint64
	DroppedAt       OptU64
	Wakes           uint64
	WakerClones     uint64
	WakerDrops      uint64
	SelfWakes       uint64
	LastWake        OptU64
	BusyTotal       uint64
	ScheduledTotal  uint64
	PollCount       uint64
	LastPollStarted OptU64
	LastPollEnded   OptU64

	// LastPollReady records whether the most recent poll attributed to
	// this task (via a PollOp with a matching task-ref) ended ready, used
	// by the lost-waker lint to distinguish a task parked waiting for a
	// wake from one that simply hasn't been polled since completing.
	LastPollReady bool
}

// CurrentWakers is max(0, waker_clones - waker_drops), invariant 3.
func (s TaskStats) CurrentWakers() uint64 {
	if s.WakerDrops >= s.WakerClones {
		return 0
	}
	return s.WakerClones - s.WakerDrops
}

// IdleTotal computes the derived idle duration for "now" (or dropped_at, if
// set), clamping negative results to zero per §7's invariant-violation
// policy. The bool return reports whether clamping occurred.
func (s TaskStats) IdleTotal(now uint64) (uint64, bool) {
	end := now
	if s.DroppedAt.Valid {
		end = s.DroppedAt.Val
	}
	if end < s.CreatedAt {
		return 0, true
	}
	total := end - s.CreatedAt
	used := s.BusyTotal + s.ScheduledTotal
	if used > total {
		return 0, true
	}
	return total - used, false
}

// State derives the lifecycle symbol per §4.6's precedence: done, then
// running, then scheduled, then idle.
func (s TaskStats) State() TaskState {
	switch {
	case s.DroppedAt.Valid:
		return TaskDone
	case s.LastPollStarted.Valid && (!s.LastPollEnded.Valid || s.LastPollStarted.Val > s.LastPollEnded.Val):
		return TaskRunning
	case s.LastWake.Valid && (!s.LastPollEnded.Valid || s.LastWake.Val > s.LastPollEnded.Val):
		return TaskScheduled
	default:
		return TaskIdle
	}
}

// Task is the State Store's record for one async task.
type Task struct {
	ID            uint64
	MetadataID    uint64
	RuntimeTaskID uint64
	Name          string
	SpawnLocation string
	Fields        map[string]FieldValue
	Stats         TaskStats

	PollHistogram      *hdrhistogram.Histogram
	ScheduledHistogram *hdrhistogram.Histogram

	Warnings map[string]Warning

	seq uint64 // insertion order, used as the stable sort tie-breaker
}

// Warning is one active lint finding on a task (SPEC_FULL.md §4.5/§4.6).
type Warning struct {
	Kind      string
	Message   string
	Threshold string
}

// Resource is the State Store's record for one sync/timer/other resource.
type Resource struct {
	ID               uint64
	MetadataID       uint64
	ParentResourceID uint64
	Kind             string
	ConcreteType     string
	Visibility       string
	Location         string
	Attributes       map[string]FieldValue
	CreatedAt        uint64
	DroppedAt        OptU64

	seq uint64
}

// AsyncOp is the State Store's record for one task/resource interaction.
type AsyncOp struct {
	ID              uint64
	MetadataID      uint64
	ResourceID      uint64
	ParentAsyncOpID uint64
	Source          string
	TaskID          uint64
	Attributes      map[string]FieldValue
	CreatedAt       uint64
	DroppedAt       OptU64

	BusyTotal uint64
	IdleTotal uint64
	PollCount uint64

	seq uint64
}
