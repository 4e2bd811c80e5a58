package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
	"github.com/digitaldrywood/timesheet/internal/tracker"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
	salaryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	filledStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("34"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Center)

	badgeStyles = map[tracker.State]lipgloss.Style{
		tracker.StateReady:        lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		tracker.StateAwaitingAuth: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		tracker.StateFailed:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// renderSnapshot draws the record as two side-by-side day tables under a
// summary block, the way the sheet lays them out.
func renderSnapshot(s tracker.Snapshot, now time.Time) string {
	rec := s.Record
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("BẢNG CHẤM CÔNG  Tháng %d / %d", rec.Month, rec.Year)))
	b.WriteString("\n")
	b.WriteString(renderStatus(s, now))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Tổng giờ làm: ") + rec.TotalHours + " giờ\n")
	b.WriteString(labelStyle.Render("Tổng tăng ca: ") + rec.TotalOvertime + " giờ\n")
	b.WriteString(labelStyle.Render("Tổng lương:   ") + salaryStyle.Render(rec.TotalSalary) + "\n\n")

	left := dayTable(rec, 0, 16)
	right := dayTable(rec, 16, timesheet.DaysInRecord)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))
	b.WriteString("\n")
	return b.String()
}

func renderStatus(s tracker.Snapshot, now time.Time) string {
	badge := s.State.String()
	if style, ok := badgeStyles[s.State]; ok {
		badge = style.Render(badge)
	}

	parts := []string{badge}
	if s.Syncing {
		parts = append(parts, "syncing")
	}
	if s.LastSync.IsZero() {
		parts = append(parts, "never synced")
	} else {
		parts = append(parts, "synced "+humanize.RelTime(s.LastSync, now, "ago", "from now"))
	}
	line := mutedStyle.Render(strings.Join(parts, " · "))

	if s.InitError != "" {
		line += "\n" + s.InitError + "\n" + s.Guidance
	} else if s.LastError != "" {
		line += "\n" + mutedStyle.Render("last error: "+s.LastError)
	}
	return line
}

func dayTable(rec timesheet.Record, from, to int) string {
	rows := make([][]string, 0, to-from)
	for i := from; i < to; i++ {
		rows = append(rows, []string{strconv.Itoa(i + 1), dash(rec.WeekdayLabels[i]), dash(rec.DailyHours[i])})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Ngày", "Thứ", "Giờ").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true)
			}
			if col == 2 && rec.DailyHours[from+row] != "" {
				return cellStyle.Inherit(filledStyle)
			}
			return cellStyle
		}).
		Render()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
