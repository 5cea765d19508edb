package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"prism-board/board-client/store"
	"prism-board/domain"
)

const columnWidth = 48

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(columnWidth)

	priorityStyles = map[domain.Priority]lipgloss.Style{
		domain.PriorityLow:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		domain.PriorityMedium:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.PriorityHigh:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		domain.PriorityCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true),
	}
)

// renderState draws the filtered board side by side, followed by any
// failure notices the session collected.
func renderState(st store.State, f store.Filter) string {
	var b strings.Builder
	b.WriteString(renderBoard(f.Apply(st.Board)))
	if st.Loading {
		b.WriteString("\n" + dimStyle.Render("loading..."))
	}
	for _, n := range st.Notices {
		b.WriteString("\n" + noticeStyle.Render(fmt.Sprintf("! %s %s: %v", n.Op, n.EntityID, n.Err)))
	}
	return b.String()
}

func renderBoard(b domain.Board) string {
	header := titleStyle.Render(b.Title) + " " + dimStyle.Render(b.ID)
	if len(b.Columns) == 0 {
		return header + "\n" + dimStyle.Render("no columns yet")
	}
	cols := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		cols = append(cols, renderColumn(c))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}

func renderColumn(c domain.Column) string {
	lines := []string{
		headerStyle.Render(fmt.Sprintf("%s (%d)", c.Title, len(c.Tasks))),
		dimStyle.Render(c.ID),
	}
	for _, t := range c.Tasks {
		lines = append(lines, "", renderTask(t))
	}
	return columnStyle.Render(strings.Join(lines, "\n"))
}

func renderTask(t domain.Task) string {
	style, ok := priorityStyles[t.Priority]
	if !ok {
		style = lipgloss.NewStyle()
	}
	out := style.Render("● " + t.Title)
	if t.Description != "" {
		out += "\n" + t.Description
	}
	meta := string(t.Priority) + " · " + t.ID
	if t.CreatorName != "" {
		meta += " · " + t.CreatorName
	}
	return out + "\n" + dimStyle.Render(meta)
}

func renderBoards(boards []domain.Board) string {
	if len(boards) == 0 {
		return dimStyle.Render("no boards")
	}
	idWidth := 0
	for _, b := range boards {
		idWidth = max(idWidth, lipgloss.Width(b.ID))
	}
	idStyle := dimStyle.Width(idWidth + 2)
	rows := make([]string, 0, len(boards))
	for _, b := range boards {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			idStyle.Render(b.ID),
			titleStyle.Render(b.Title),
			dimStyle.Render("  "+b.CreatedAt.Local().Format("2006-01-02 15:04")),
		))
	}
	return strings.Join(rows, "\n")
}
