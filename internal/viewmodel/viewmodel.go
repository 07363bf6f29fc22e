// Package viewmodel implements SPEC_FULL.md §4.6: the read side that
// turns internal/store's live entity maps into the six projections a
// renderer needs, recomputing only when the store's state version, sort
// spec, or filter spec actually changed.
package viewmodel

import (
	"sort"
	"strings"
	"sync"

	"github.com/taskscope/taskscope/internal/connfsm"
	"github.com/taskscope/taskscope/internal/store"
)

// Column identifies a sortable field on a table projection.
type Column string

const (
	ColID       Column = "id"
	ColWarnings Column = "warnings"
	ColState    Column = "state"
	ColName     Column = "name"
	ColTotal    Column = "total"
	ColBusy     Column = "busy"
	ColSched    Column = "sched"
	ColIdle     Column = "idle"
	ColPolls    Column = "polls"
	ColKind     Column = "kind"
	ColLocation Column = "location"

	ColParent     Column = "parent"
	ColTargetType Column = "target_type"
	ColVisibility Column = "visibility"
)

// SortSpec picks a column and direction. Durations sort ascending by
// default; any column can be toggled. Ties always break by id.
type SortSpec struct {
	Column     Column
	Descending bool
}

// FilterSpec is a case-insensitive substring match against a row's name
// (tasks) or concrete type (resources). An empty Query matches everything.
type FilterSpec struct {
	Query string
}

func (f FilterSpec) matches(haystack string) bool {
	if f.Query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(f.Query))
}

// cacheKey is SPEC_FULL.md §4.6's (state version, sort spec, filter spec)
// tuple: a render is reused verbatim when none of the three changed.
type cacheKey struct {
	version uint64
	sort    SortSpec
	filter  FilterSpec
}

// Model is the View Model. It holds no entity state of its own; every
// projection is derived fresh from the store (or served from cache) on
// request.
type Model struct {
	store *store.Store

	mu          sync.Mutex
	taskKey     cacheKey
	taskRows    []TaskRow
	resourceKey cacheKey
	resourceRows []ResourceRow
}

// New builds a view model over s. s must outlive the Model.
func New(s *store.Store) *Model {
	return &Model{store: s}
}

// TaskRow is one row of the tasks table.
type TaskRow struct {
	ID         uint64
	Warnings   int
	State      store.TaskState
	Name       string
	TotalNS    uint64
	BusyNS     uint64
	SchedNS    uint64
	IdleNS     uint64
	Polls      uint64
	Kind       string
	Location   string
	FieldsText string
}

// Tasks returns the tasks table projection, sorted and filtered, reusing
// the cached result when the store hasn't published a new state version
// and the sort/filter haven't changed.
func (m *Model) Tasks(now uint64, sortSpec SortSpec, filter FilterSpec) []TaskRow {
	key := cacheKey{version: m.store.StateVersion(), sort: sortSpec, filter: filter}

	m.mu.Lock()
	defer m.mu.Unlock()
	if key == m.taskKey && m.taskRows != nil {
		return m.taskRows
	}

	var rows []TaskRow
	for _, t := range m.store.Tasks() {
		if !filter.matches(t.Name) {
			continue
		}
		idle, _ := t.Stats.IdleTotal(now)
		rows = append(rows, TaskRow{
			ID:         t.ID,
			Warnings:   len(t.Warnings),
			State:      t.Stats.State(),
			Name:       t.Name,
			TotalNS:    t.Stats.BusyTotal + t.Stats.ScheduledTotal + idle,
			BusyNS:     t.Stats.BusyTotal,
			SchedNS:    t.Stats.ScheduledTotal,
			IdleNS:     idle,
			Polls:      t.Stats.PollCount,
			Kind:       fieldString(t.Fields, "kind"),
			Location:   t.SpawnLocation,
			FieldsText: formatFields(t.Fields),
		})
	}
	sortTaskRows(rows, sortSpec)

	m.taskKey = key
	m.taskRows = rows
	return rows
}

// sortTaskRows orders rows by the requested column, always breaking ties
// by id ascending so the table never jitters between equal-valued rows.
func sortTaskRows(rows []TaskRow, s SortSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if sameKey(a, b, s.Column) {
			return a.ID < b.ID
		}
		var lt bool
		switch s.Column {
		case ColWarnings:
			lt = a.Warnings < b.Warnings
		case ColState:
			lt = a.State < b.State
		case ColName:
			lt = a.Name < b.Name
		case ColTotal:
			lt = a.TotalNS < b.TotalNS
		case ColBusy:
			lt = a.BusyNS < b.BusyNS
		case ColSched:
			lt = a.SchedNS < b.SchedNS
		case ColIdle:
			lt = a.IdleNS < b.IdleNS
		case ColPolls:
			lt = a.Polls < b.Polls
		case ColKind:
			lt = a.Kind < b.Kind
		case ColLocation:
			lt = a.Location < b.Location
		default:
			lt = a.ID < b.ID
		}
		if s.Descending {
			return !lt
		}
		return lt
	})
}

func sameKey(a, b TaskRow, c Column) bool {
	switch c {
	case ColWarnings:
		return a.Warnings == b.Warnings
	case ColState:
		return a.State == b.State
	case ColName:
		return a.Name == b.Name
	case ColTotal:
		return a.TotalNS == b.TotalNS
	case ColBusy:
		return a.BusyNS == b.BusyNS
	case ColSched:
		return a.SchedNS == b.SchedNS
	case ColIdle:
		return a.IdleNS == b.IdleNS
	case ColPolls:
		return a.Polls == b.Polls
	case ColKind:
		return a.Kind == b.Kind
	case ColLocation:
		return a.Location == b.Location
	default:
		return false
	}
}

// TaskDetail is the expanded single-task projection. Model.TaskDetail does
// not fill PollHist or SchedHist: both stay zero-valued.
type TaskDetail struct {
	Row       TaskRow
	Stats     store.TaskStats
	PollHist  store.HistogramView
	SchedHist store.HistogramView
	Warnings  []store.Warning
	Found     bool
}

// TaskDetail looks up one task's full detail view. Found is false when the
// id is not (or no longer) present, e.g. it was swept during retention.
func (m *Model) TaskDetail(id uint64, now uint64) TaskDetail {
	t, ok := m.store.Task(id)
	if !ok {
		return TaskDetail{}
	}
	idle, _ := t.Stats.IdleTotal(now)
	warnings := make([]store.Warning, 0, len(t.Warnings))
	for _, w := range t.Warnings {
		warnings = append(warnings, w)
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Kind < warnings[j].Kind })
	return TaskDetail{
		Row: TaskRow{
			ID:         t.ID,
			Warnings:   len(t.Warnings),
			State:      t.Stats.State(),
			Name:       t.Name,
			TotalNS:    t.Stats.BusyTotal + t.Stats.ScheduledTotal + idle,
			BusyNS:     t.Stats.BusyTotal,
			SchedNS:    t.Stats.ScheduledTotal,
			IdleNS:     idle,
			Polls:      t.Stats.PollCount,
			Kind:       fieldString(t.Fields, "kind"),
			Location:   t.SpawnLocation,
			FieldsText: formatFields(t.Fields),
		},
		Stats:     t.Stats,
		Warnings:  warnings,
		Found:     true,
	}
}

func fieldString(fields map[string]store.FieldValue, name string) string {
	if fields == nil {
		return ""
	}
	return fields[name].String()
}

func formatFields(fields map[string]store.FieldValue) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(n)
		b.WriteString("=")
		b.WriteString(fields[n].String())
	}
	return b.String()
}

// ResourceRow is one row of the resources table.
type ResourceRow struct {
	ID         uint64
	ParentID   uint64
	Kind       string
	TotalNS    uint64
	Target     string
	Type       string
	Visibility string
	Location   string
	Attrs      string
}

// Resources returns the resources table projection, sorted and filtered.
func (m *Model) Resources(now uint64, sortSpec SortSpec, filter FilterSpec) []ResourceRow {
	key := cacheKey{version: m.store.StateVersion(), sort: sortSpec, filter: filter}

	m.mu.Lock()
	defer m.mu.Unlock()
	if key == m.resourceKey && m.resourceRows != nil {
		return m.resourceRows
	}

	var rows []ResourceRow
	for _, r := range m.store.Resources() {
		if !filter.matches(r.ConcreteType) {
			continue
		}
		end := now
		if r.DroppedAt.Valid {
			end = r.DroppedAt.Val
		}
		total := uint64(0)
		if end > r.CreatedAt {
			total = end - r.CreatedAt
		}
		rows = append(rows, ResourceRow{
			ID:         r.ID,
			ParentID:   r.ParentResourceID,
			Kind:       r.Kind,
			TotalNS:    total,
			Type:       r.ConcreteType,
			Visibility: r.Visibility,
			Location:   r.Location,
			Attrs:      formatFields(r.Attributes),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if sortSpec.Descending {
			a, b = b, a
		}
		var lt bool
		switch sortSpec.Column {
		case ColParent:
			lt = a.ParentID < b.ParentID
		case ColKind:
			lt = a.Kind < b.Kind
		case ColTotal:
			lt = a.TotalNS < b.TotalNS
		case ColTargetType:
			lt = a.Type < b.Type
		case ColVisibility:
			lt = a.Visibility < b.Visibility
		case ColLocation:
			lt = a.Location < b.Location
		default:
			return a.ID < b.ID
		}
		return lt
	})

	m.resourceKey = key
	m.resourceRows = rows
	return rows
}

// AsyncOpRow is one row of a resource detail's async-op table.
type AsyncOpRow struct {
	ID        uint64
	ParentID  uint64
	TaskID    uint64
	TaskName  string
	Source    string
	TotalNS   uint64
	BusyNS    uint64
	IdleNS    uint64
	Polls     uint64
	Attrs     string
}

// ResourceDetail is the expanded single-resource projection.
type ResourceDetail struct {
	Row     ResourceRow
	AsyncOps []AsyncOpRow
	Found   bool
}

// ResourceDetail looks up one resource's full detail view, including every
// async-op that references it.
func (m *Model) ResourceDetail(id uint64, now uint64, sortSpec SortSpec) ResourceDetail {
	r, ok := m.store.Resource(id)
	if !ok {
		return ResourceDetail{}
	}
	end := now
	if r.DroppedAt.Valid {
		end = r.DroppedAt.Val
	}
	total := uint64(0)
	if end > r.CreatedAt {
		total = end - r.CreatedAt
	}

	var ops []AsyncOpRow
	for _, op := range m.store.AsyncOps() {
		if op.ResourceID != id {
			continue
		}
		taskName := ""
		if t, ok := m.store.Task(op.TaskID); ok {
			taskName = t.Name
		}
		ops = append(ops, AsyncOpRow{
			ID:       op.ID,
			ParentID: op.ParentAsyncOpID,
			TaskID:   op.TaskID,
			TaskName: taskName,
			Source:   op.Source,
			BusyNS:   op.BusyTotal,
			IdleNS:   op.IdleTotal,
			Polls:    op.PollCount,
			TotalNS:  op.BusyTotal + op.IdleTotal,
			Attrs:    formatFields(op.Attributes),
		})
	}
	sort.SliceStable(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if sortSpec.Descending {
			a, b = b, a
		}
		var lt bool
		switch sortSpec.Column {
		case ColTotal:
			lt = a.TotalNS < b.TotalNS
		case ColBusy:
			lt = a.BusyNS < b.BusyNS
		case ColIdle:
			lt = a.IdleNS < b.IdleNS
		case ColPolls:
			lt = a.Polls < b.Polls
		default:
			return a.ID < b.ID
		}
		return lt
	})

	return ResourceDetail{
		Row: ResourceRow{
			ID:         r.ID,
			ParentID:   r.ParentResourceID,
			Kind:       r.Kind,
			TotalNS:    total,
			Type:       r.ConcreteType,
			Visibility: r.Visibility,
			Location:   r.Location,
			Attrs:      formatFields(r.Attributes),
		},
		AsyncOps: ops,
		Found:    true,
	}
}

// StatusLine is the always-visible connection/temporality summary.
type StatusLine struct {
	Connection       connfsm.State
	Paused           bool
	DroppedEvents    uint64
	ClockSkewClamped uint64
	LastSweep        string
}

// StatusLine renders the status line projection. lastSweep is passed in
// formatted already (internal/engine owns wall-clock time).
func (m *Model) StatusLine(conn connfsm.State, lastSweep string) StatusLine {
	return StatusLine{
		Connection:       conn,
		Paused:           m.store.Paused(),
		DroppedEvents:    m.store.DroppedEvents(),
		ClockSkewClamped: m.store.ClockSkewClamped(),
		LastSweep:        lastSweep,
	}
}

// KeyBinding is one row of the static help overlay.
type KeyBinding struct {
	Key         string
	Description string
}

// Help is the static key-binding list SPEC_FULL.md §6.4 describes. It
// never changes at runtime, so it needs no cache key.
func Help() []KeyBinding {
	return []KeyBinding{
		{Key: "tab", Description: "switch between tasks and resources tables"},
		{Key: "j/k, down/up", Description: "move the selection cursor"},
		{Key: "enter", Description: "open the detail view for the selected row"},
		{Key: "esc", Description: "close the detail view"},
		{Key: "s", Description: "cycle the sort column"},
		{Key: "r", Description: "reverse the sort direction"},
		{Key: "/", Description: "filter by name or type"},
		{Key: "p", Description: "pause or resume the update stream"},
		{Key: "?", Description: "toggle this help overlay"},
		{Key: "q, ctrl+c", Description: "quit"},
	}
}
