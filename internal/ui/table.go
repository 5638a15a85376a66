package ui

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Huddle/internal/chat"
	"github.com/BioHazard786/Huddle/internal/media"
	"github.com/BioHazard786/Huddle/internal/mesh"
)

// ParticipantRow is one remote participant as shown in the room.
type ParticipantRow struct {
	Identity  string
	Slot      int
	Announced bool
	Muted     bool
	VideoOff  bool
	AudioLive bool
	VideoLive bool
}

// ParticipantRows projects a session snapshot onto table rows, ordered by
// identity.
func ParticipantRows(st mesh.State, now time.Time) []ParticipantRow {
	rows := make([]ParticipantRow, 0, st.Participants.Len())
	for _, id := range st.Participants.IDs() {
		row := ParticipantRow{Identity: id, Slot: -1}
		if ident, ok := mesh.ParsePeerName(id); ok {
			row.Slot = ident.Slot
		}
		if p, ok := st.Presence[id]; ok {
			row.Announced = true
			row.Muted = p.Muted
			row.VideoOff = p.VideoOff
		}
		if stream, ok := st.Participants.Get(id); ok {
			row.AudioLive = stream.Live(media.KindAudio, now)
			row.VideoLive = stream.Live(media.KindVideo, now)
		}
		rows = append(rows, row)
	}
	return rows
}

func micCell(r ParticipantRow) string {
	switch {
	case r.Announced && r.Muted:
		return IconMicOff
	case r.AudioLive:
		return IconMic
	default:
		return IconStalled
	}
}

func cameraCell(r ParticipantRow) string {
	switch {
	case r.Announced && r.VideoOff:
		return IconCameraOff
	case r.VideoLive:
		return IconCamera
	default:
		return IconStalled
	}
}

// ParticipantTable renders rows with lipgloss/table.
func ParticipantTable(rows []ParticipantRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		slot := "?"
		if r.Slot >= 0 {
			slot = strconv.Itoa(r.Slot)
		}
		data = append(data, []string{slot, r.Identity, micCell(r), cameraCell(r)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Slot", "Peer", "Mic", "Camera").
		Rows(data...).
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

// CallSummary is printed after leaving a room.
type CallSummary struct {
	Room      string
	Identity  string
	Status    mesh.Status
	Duration  time.Duration
	PeakPeers int
	Sent      int
	Received  int
	Err       error
}

// Tally counts sent and received chat messages.
func (c *CallSummary) Tally(msgs []chat.Message) {
	c.Sent, c.Received = 0, 0
	for _, m := range msgs {
		if m.Sender == chat.SenderLocal {
			c.Sent++
		} else {
			c.Received++
		}
	}
}

// RenderCallSummary writes the summary as a go-pretty table.
func RenderCallSummary(w io.Writer, c CallSummary) {
	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Call Summary")
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Colors = text.Colors{text.FgCyan, text.Bold}
	t.Style().Format.Footer = text.FormatDefault

	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Room", c.Room},
		{"Identity", c.Identity},
		{"Duration", c.Duration.Round(time.Second).String()},
		{"Peak participants", c.PeakPeers},
		{"Messages sent", c.Sent},
		{"Messages received", c.Received},
	})
	if c.Err != nil {
		t.AppendFooter(prettytable.Row{"Ended", fmt.Sprintf("%s: %v", c.Status, c.Err)})
	} else {
		t.AppendFooter(prettytable.Row{"Ended", "left the room"})
	}
	t.Render()
}
