package main

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/util"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = cellStyle.Foreground(lipgloss.Color("245"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func profilesTable(accounts []model.Account, now time.Time) string {
	t := newTable("Username", "Steam ID", "Shared Secret", "Last Comment", "Status")
	for _, acc := range accounts {
		t.Row(acc.Username, orDash(acc.SteamID), maskOrDash(acc.SharedSecret), lastComment(acc, now), readiness(acc, now))
	}
	return t.Render()
}

func availabilityTable(rows []model.CommentAvailability) string {
	t := newTable("Username", "Steam ID", "Posted (24h)", "Available")
	total := 0
	for _, r := range rows {
		t.Row(r.Username, orDash(r.SteamID), strconv.Itoa(r.Posted), strconv.Itoa(r.Available))
		total += r.Available
	}
	t.Row("total", "", "", strconv.Itoa(total))
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch row {
		case table.HeaderRow:
			return headerStyle
		case len(rows):
			return dimStyle
		}
		return cellStyle
	})
	return t.Render()
}

func lastComment(acc model.Account, now time.Time) string {
	hours, ok := acc.HoursSinceLastComment(now)
	if !ok {
		return "never"
	}
	return strconv.Itoa(hours) + "h ago"
}

func readiness(acc model.Account, now time.Time) string {
	if !acc.HasSteamID() {
		return "not logged in"
	}
	if hours, ok := acc.HoursSinceLastComment(now); ok && hours < 24 {
		return "ready in " + strconv.Itoa(24-hours) + "h"
	}
	return "ready"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func maskOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return util.MaskSecret(s)
}
