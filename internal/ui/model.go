// Package ui is the reference renderer of SPEC_FULL.md §4.8: a Bubble Tea
// program that polls an internal/engine.Engine's view model and turns key
// presses into the user intents of §6.4. It sits outside the core: no core
// package imports it; only cmd/taskscope does.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskscope/taskscope/internal/connfsm"
	"github.com/taskscope/taskscope/internal/viewmodel"
)

// pollInterval is how often the renderer re-polls the view model. The
// view model itself is cheap to poll repeatedly: it only recomputes a
// projection when the store's state version, sort, or filter changed.
const pollInterval = 150 * time.Millisecond

// Source is the subset of internal/engine.Engine the renderer depends on.
type Source interface {
	ViewModel() *viewmodel.Model
	ConnectionState() connfsm.State
	Now() uint64
	Pause()
	Resume()
}

// tab selects which table the renderer is currently showing.
type tab int

const (
	tabTasks tab = iota
	tabResources
)

func (t tab) String() string {
	if t == tabResources {
		return "resources"
	}
	return "tasks"
}

var taskColumns = []table.Column{
	{Title: "ID", Width: 6},
	{Title: "State", Width: 10},
	{Title: "Name", Width: 20},
	{Title: "Total", Width: 10},
	{Title: "Busy", Width: 10},
	{Title: "Idle", Width: 10},
	{Title: "Polls", Width: 8},
	{Title: "Warn", Width: 5},
	{Title: "Location", Width: 24},
}

var resourceColumns = []table.Column{
	{Title: "ID", Width: 6},
	{Title: "Parent", Width: 8},
	{Title: "Kind", Width: 12},
	{Title: "Type", Width: 20},
	{Title: "Total", Width: 10},
	{Title: "Visibility", Width: 10},
	{Title: "Location", Width: 24},
}

var taskSortColumns = []viewmodel.Column{
	viewmodel.ColID, viewmodel.ColState, viewmodel.ColName,
	viewmodel.ColTotal, viewmodel.ColBusy, viewmodel.ColIdle, viewmodel.ColPolls,
}

var resourceSortColumns = []viewmodel.Column{
	viewmodel.ColID, viewmodel.ColParent, viewmodel.ColKind,
	viewmodel.ColTargetType, viewmodel.ColTotal, viewmodel.ColVisibility,
}

// Model is the Bubble Tea program state.
type Model struct {
	source Source

	active tab

	tasksTable     table.Model
	resourcesTable table.Model

	taskSort     viewmodel.SortSpec
	resourceSort viewmodel.SortSpec

	taskRows     []viewmodel.TaskRow
	resourceRows []viewmodel.ResourceRow

	filter     viewmodel.FilterSpec
	filtering  bool
	filterText string

	showDetail bool
	detailID   uint64

	showHelp bool

	width, height int
}

// New builds the renderer over source. source must outlive the program.
func New(source Source) Model {
	return Model{
		source:         source,
		tasksTable:     table.New(table.WithColumns(taskColumns), table.WithFocused(true)),
		resourcesTable: table.New(table.WithColumns(resourceColumns)),
		taskSort:       viewmodel.SortSpec{Column: viewmodel.ColID},
		resourceSort:   viewmodel.SortSpec{Column: viewmodel.ColID},
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the poll loop.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements the Core -> UI half of §6.4: key presses become user
// intents, and every tick re-polls the published view-model projections.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		rowHeight := msg.Height - 6
		if rowHeight < 3 {
			rowHeight = 3
		}
		m.tasksTable.SetHeight(rowHeight)
		m.resourcesTable.SetHeight(rowHeight)
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFiltering(msg)
		}
		if handled, cmd := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	if m.active == tabTasks {
		m.tasksTable, cmd = m.tasksTable.Update(msg)
	} else {
		m.resourcesTable, cmd = m.resourcesTable.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateFiltering(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filter = viewmodel.FilterSpec{Query: m.filterText}
		m.filtering = false
	case "esc":
		m.filtering = false
		m.filterText = ""
	case "backspace":
		if len(m.filterText) > 0 {
			m.filterText = m.filterText[:len(m.filterText)-1]
		}
	default:
		if len(msg.Runes) > 0 {
			m.filterText += string(msg.Runes)
		}
	}
	return m, nil
}

// handleKey services the intents of §6.4 that have their own key, sorting
// included (s and r); row selection (cursor movement) is left to the
// embedded table widgets' own Update.
func (m *Model) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return true, tea.Quit
	case "tab":
		if m.active == tabTasks {
			m.active = tabResources
		} else {
			m.active = tabTasks
		}
		return true, nil
	case "enter":
		m.openDetail()
		return true, nil
	case "esc":
		m.showDetail = false
		return true, nil
	case "s":
		m.cycleSort()
		return true, nil
	case "r":
		m.toggleSortDir()
		return true, nil
	case "/":
		m.filtering = true
		m.filterText = m.filter.Query
		return true, nil
	case "p":
		if m.source.ConnectionState().Kind == connfsm.Subscribed {
			m.source.Pause()
		} else {
			m.source.Resume()
		}
		return true, nil
	case "?":
		m.showHelp = !m.showHelp
		return true, nil
	}
	return false, nil
}

func (m *Model) openDetail() {
	rows := m.tasksTable.Rows()
	idx := m.tasksTable.Cursor()
	if m.active == tabResources {
		rows = m.resourcesTable.Rows()
		idx = m.resourcesTable.Cursor()
	}
	if idx < 0 || idx >= len(rows) {
		return
	}
	var id uint64
	if _, err := fmt.Sscanf(rows[idx][0], "%d", &id); err != nil {
		return
	}
	m.detailID = id
	m.showDetail = true
}

func (m *Model) cycleSort() {
	cols := taskSortColumns
	cur := &m.taskSort
	if m.active == tabResources {
		cols = resourceSortColumns
		cur = &m.resourceSort
	}
	for i, c := range cols {
		if c == cur.Column {
			cur.Column = cols[(i+1)%len(cols)]
			return
		}
	}
	cur.Column = cols[0]
}

func (m *Model) toggleSortDir() {
	if m.active == tabTasks {
		m.taskSort.Descending = !m.taskSort.Descending
	} else {
		m.resourceSort.Descending = !m.resourceSort.Descending
	}
}

// refresh re-pulls both table projections from the view model. Cheap to
// call every tick: the view model only recomputes when something
// actually changed.
func (m *Model) refresh() {
	now := m.source.Now()
	vm := m.source.ViewModel()

	m.taskRows = vm.Tasks(now, m.taskSort, m.filter)
	taskTableRows := make([]table.Row, 0, len(m.taskRows))
	for _, r := range m.taskRows {
		warn := ""
		if r.Warnings > 0 {
			warn = fmt.Sprintf("%d", r.Warnings)
		}
		taskTableRows = append(taskTableRows, table.Row{
			fmt.Sprintf("%d", r.ID),
			r.State.String(),
			r.Name,
			formatDuration(r.TotalNS),
			formatDuration(r.BusyNS),
			formatDuration(r.IdleNS),
			fmt.Sprintf("%d", r.Polls),
			warn,
			r.Location,
		})
	}
	m.tasksTable.SetRows(taskTableRows)

	m.resourceRows = vm.Resources(now, m.resourceSort, m.filter)
	resourceTableRows := make([]table.Row, 0, len(m.resourceRows))
	for _, r := range m.resourceRows {
		resourceTableRows = append(resourceTableRows, table.Row{
			fmt.Sprintf("%d", r.ID),
			fmt.Sprintf("%d", r.ParentID),
			r.Kind,
			r.Type,
			formatDuration(r.TotalNS),
			r.Visibility,
			r.Location,
		})
	}
	m.resourcesTable.SetRows(resourceTableRows)
}

func formatDuration(ns uint64) string {
	return time.Duration(ns).Truncate(time.Millisecond).String()
}
