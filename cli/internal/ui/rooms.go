package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// RenderRooms writes the live room listing as a go-pretty table.
func RenderRooms(w io.Writer, list protocol.RoomList) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle("%s Live rooms", IconRoom)
	t.AppendHeader(table.Row{"Room", "Members", "Seats", "Status"})

	for _, room := range list.Rooms {
		capacity := room.Capacity
		if capacity == 0 {
			capacity = list.Capacity
		}

		members := make([]string, len(room.Members))
		for i, m := range room.Members {
			members[i] = shortID(m)
		}

		status := "waiting"
		if room.Size() >= capacity {
			status = "full"
		}

		t.AppendRow(table.Row{
			room.ID,
			strings.Join(members, ", "),
			fmt.Sprintf("%d/%d", room.Size(), capacity),
			status,
		})
	}

	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d rooms", len(list.Rooms)), ""})
	t.Render()
}
