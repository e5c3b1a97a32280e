package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RosterEntry is one row of the member roster.
type RosterEntry struct {
	ID     string
	Self   bool
	Status string
}

// RosterView renders the room's members using lipgloss/table.
func RosterView(entries []RosterEntry) string {
	if len(entries) == 0 {
		return MutedStyle.Render("Not in a room yet")
	}

	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		name := shortID(e.ID)
		if e.Self {
			name += " (you)"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), name, e.Status})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Member", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomInfoView renders the box shown when a call starts.
func RoomInfoView(roomID, server string) string {
	content := fmt.Sprintf("%s Calling in room\n\n%s Room:    %s\n%s Server:  %s\n\n%s",
		IconCall,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconWeb, MutedStyle.Render(server),
		MutedStyle.Render("Share the room name with the person you want to call."),
	)
	return RoomBoxStyle.Render(content)
}

// shortID trims a member id to its first eight characters for display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
