package ui

import (
	"fmt"
	"strings"

	"github.com/taskscope/taskscope/internal/viewmodel"
)

// View implements the rest of tea.Model: status line, active table,
// filter prompt, and the optional detail/help overlays.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.tabsLine())
	b.WriteString("\n\n")

	if m.active == tabTasks {
		b.WriteString(m.tasksTable.View())
	} else {
		b.WriteString(m.resourcesTable.View())
	}
	b.WriteString("\n")

	if m.filtering {
		b.WriteString(fmt.Sprintf("/%s", m.filterText))
	} else if m.filter.Query != "" {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("filter: %s  (press / to change)", m.filter.Query)))
	} else {
		b.WriteString(mutedStyle.Render("press ? for help"))
	}

	if m.showDetail {
		b.WriteString("\n\n")
		b.WriteString(m.detailView())
	}

	if m.showHelp {
		b.WriteString("\n\n")
		b.WriteString(m.helpView())
	}

	return b.String()
}

func (m Model) statusLine() string {
	st := m.source.ViewModel().StatusLine(m.source.ConnectionState(), "")
	conn := connectionStyle(st.Connection.Kind.String()).Render(st.Connection.Kind.String())
	paused := ""
	if st.Paused {
		paused = warnStyle.Render(" paused")
	}
	dropped := ""
	if st.DroppedEvents > 0 {
		dropped = failStyle.Render(fmt.Sprintf(" dropped=%d", st.DroppedEvents))
	}
	skew := ""
	if st.ClockSkewClamped > 0 {
		skew = warnStyle.Render(fmt.Sprintf(" clock-skew=%d", st.ClockSkewClamped))
	}
	return fmt.Sprintf("%s %s%s%s%s", boldStyle.Render("taskscope"), conn, paused, dropped, skew)
}

func (m Model) tabsLine() string {
	tasks := "tasks"
	resources := "resources"
	if m.active == tabTasks {
		tasks = accentStyle.Render(tasks)
	} else {
		resources = accentStyle.Render(resources)
	}
	return fmt.Sprintf("%s | %s", tasks, resources)
}

func (m Model) detailView() string {
	if m.active == tabResources {
		return m.resourceDetailView()
	}
	return m.taskDetailView()
}

func (m Model) taskDetailView() string {
	d := m.source.ViewModel().TaskDetail(m.detailID, m.source.Now())
	if !d.Found {
		return mutedStyle.Render(fmt.Sprintf("task %d is no longer tracked", m.detailID))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d (%s)\n", boldStyle.Render(d.Row.Name), d.Row.ID, d.Row.State)
	fmt.Fprintf(&b, "total=%s busy=%s idle=%s polls=%d\n", formatDuration(d.Row.TotalNS), formatDuration(d.Row.BusyNS), formatDuration(d.Row.IdleNS), d.Row.Polls)
	fmt.Fprintf(&b, "wakes=%d self_wakes=%d current_wakers=%d\n", d.Stats.Wakes, d.Stats.SelfWakes, d.Stats.CurrentWakers())
	for _, w := range d.Warnings {
		fmt.Fprintf(&b, "%s %s: %s\n", warnStyle.Render("warning"), w.Kind, w.Message)
	}
	return helpStyle.Render(b.String())
}

func (m Model) resourceDetailView() string {
	d := m.source.ViewModel().ResourceDetail(m.detailID, m.source.Now(), viewmodel.SortSpec{Column: viewmodel.ColTotal})
	if !d.Found {
		return mutedStyle.Render(fmt.Sprintf("resource %d is no longer tracked", m.detailID))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d (%s)\n", boldStyle.Render(d.Row.Type), d.Row.ID, d.Row.Kind)
	fmt.Fprintf(&b, "total=%s visibility=%s\n", formatDuration(d.Row.TotalNS), d.Row.Visibility)
	for _, op := range d.AsyncOps {
		fmt.Fprintf(&b, "  op #%d task=%s busy=%s idle=%s polls=%d\n", op.ID, op.TaskName, formatDuration(op.BusyNS), formatDuration(op.IdleNS), op.Polls)
	}
	return helpStyle.Render(b.String())
}

func (m Model) helpView() string {
	var b strings.Builder
	for _, k := range viewmodel.Help() {
		fmt.Fprintf(&b, "%-16s %s\n", k.Key, k.Description)
	}
	return helpStyle.Render(strings.TrimRight(b.String(), "\n"))
}
