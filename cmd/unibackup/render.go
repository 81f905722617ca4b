package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tangthinker/unibackup/internal/backup"
	"github.com/tangthinker/unibackup/internal/ipc"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/status"
	"github.com/tangthinker/unibackup/internal/store"
)

type styles struct {
	header    lipgloss.Style
	label     lipgloss.Style
	ok        lipgloss.Style
	warn      lipgloss.Style
	bad       lipgloss.Style
	faint     lipgloss.Style
	box       lipgloss.Style
	cellName  lipgloss.Style
	cellState lipgloss.Style
}

func setupStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#86BBD8")).
			Background(lipgloss.Color("#2D3748")).
			Padding(0, 1).
			Bold(true),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0AEC0")).
			Width(14),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")),
		bad:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		faint: lipgloss.NewStyle().Foreground(lipgloss.Color("#718096")).Faint(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4A5568")).
			Padding(0, 1),
		cellName:  lipgloss.NewStyle().Width(24),
		cellState: lipgloss.NewStyle().Width(30),
	}
}

var st = setupStyles()

func row(label, value string) string {
	return st.label.Render(label) + value
}

func renderStatus(s status.Snapshot, maxLogs int) string {
	var session string
	switch {
	case !s.SessionLoggedIn:
		session = st.bad.Render("not logged in")
	case s.SessionSuspect:
		session = st.warn.Render("logged in (suspect)")
	default:
		session = st.ok.Render("logged in")
	}

	task := st.faint.Render("idle")
	if s.CurrentTask.Running {
		task = s.CurrentTask.Step
		if s.CurrentTask.StartTime != nil {
			task += st.faint.Render(fmt.Sprintf("  (%s)", time.Since(*s.CurrentTask.StartTime).Round(time.Second)))
		}
	}

	next := st.faint.Render("not scheduled")
	if s.NextTrigger != nil {
		next = fmt.Sprintf("%s in %s", s.NextTrigger.Label,
			(time.Duration(s.NextTrigger.SecondsRemaining) * time.Second).String())
	}

	queued := fmt.Sprintf("%d", s.QueueSize)
	if len(s.Pending) > 0 {
		queued += st.faint.Render("  " + strings.Join(s.Pending, ", "))
	}

	summary := st.box.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("Session", session),
		row("Current task", task),
		row("Queued", queued),
		row("Next backup", next),
	))

	return lipgloss.JoinVertical(lipgloss.Left,
		st.header.Render("unibackup"),
		summary,
		renderTargets(s.Targets),
		renderLogs(s.Logs, maxLogs),
	)
}

func renderTargets(ts []store.Target) string {
	if len(ts) == 0 {
		return st.faint.Render("No consoles configured")
	}

	lines := []string{
		st.header.Render("Consoles"),
		st.faint.Render(fmt.Sprintf("%-4s ", "ID")) + st.cellName.Render("NAME") + st.cellState.Render("LAST STATUS") + "LAST BACKUP",
	}
	for _, t := range ts {
		last := "-"
		if t.LastTime != nil {
			last = t.LastTime.Local().Format(time.DateTime)
		}
		lines = append(lines, fmt.Sprintf("%-4d ", t.ID)+
			st.cellName.Render(truncate(t.Name, 22))+
			statusStyle(t.Status).Inherit(st.cellState).Render(truncate(t.Status, 28))+
			last)
	}
	return strings.Join(lines, "\n")
}

func statusStyle(s string) lipgloss.Style {
	switch {
	case s == store.StatusUnknown:
		return st.faint
	case s == backup.StatusSuccess, s == backup.StatusRetrySuccess:
		return st.ok
	default:
		return st.bad
	}
}

func renderLogs(logs []store.LogEntry, limit int) string {
	if limit >= 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	lines := []string{st.header.Render("Recent logs")}
	for _, l := range logs {
		lines = append(lines, st.faint.Render(l.Timestamp.Local().Format(time.DateTime))+"  "+l.Message)
	}
	return strings.Join(lines, "\n")
}

func renderSchedule(d ipc.ScheduleData) string {
	lines := []string{
		row("Backup", describeJob(d.Schedule.Backup)),
		row("Check", describeJob(d.Schedule.Check)),
	}
	for _, w := range d.Warnings {
		lines = append(lines, st.warn.Render("warning: "+w))
	}
	return strings.Join(lines, "\n")
}

func describeJob(j schedule.Job) string {
	if !j.Enabled {
		return st.faint.Render("disabled")
	}
	unit := j.Unit.String()
	if j.Value != 1 {
		unit += "s"
	}
	return fmt.Sprintf("every %d %s", j.Value, unit)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
