package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Huddle/internal/chat"
	"github.com/BioHazard786/Huddle/internal/mesh"
)

// Controller is the part of a session the room view drives.
type Controller interface {
	SendMessage(text string) error
	ToggleMute() bool
	ToggleVideo() bool
	Subscribe() (<-chan mesh.State, func())
}

type stateMsg mesh.State

type stateClosedMsg struct{}

type refreshMsg time.Time

const refreshEvery = time.Second

// RoomModel is the bubbletea model of an active call: participants, chat
// log and an input line that also takes slash commands.
type RoomModel struct {
	ctrl   Controller
	states <-chan mesh.State
	cancel func()

	input   textinput.Model
	spinner spinner.Model
	state   mesh.State
	notice  string
	showWho bool
	left    bool
	peak    int

	width  int
	height int
	now    func() time.Time
}

// NewRoomModel subscribes to ctrl. Call Close when done with the model.
func NewRoomModel(ctrl Controller) *RoomModel {
	states, cancel := ctrl.Subscribe()

	in := textinput.New()
	in.Placeholder = "Type a message, or /help"
	in.Prompt = IconChat + " "
	in.CharLimit = 2000
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &RoomModel{
		ctrl:    ctrl,
		states:  states,
		cancel:  cancel,
		input:   in,
		spinner: s,
		showWho: true,
		height:  24,
		now:     time.Now,
	}
}

func (m *RoomModel) waitForState() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-m.states
		if !ok {
			return stateClosedMsg{}
		}
		return stateMsg(st)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForState(), refresh())
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.left = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-4)
		return m, nil

	case stateMsg:
		m.state = mesh.State(msg)
		m.peak = max(m.peak, m.state.Participants.Len())
		if m.state.Status == mesh.StatusError {
			return m, tea.Quit
		}
		return m, m.waitForState()

	case stateClosedMsg:
		return m, tea.Quit

	case refreshMsg:
		return m, refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *RoomModel) submit() tea.Cmd {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return nil
	}

	if strings.HasPrefix(line, "/") {
		return m.command(line)
	}

	if err := m.ctrl.SendMessage(line); err != nil && !errors.Is(err, mesh.ErrEmptyMessage) {
		m.notice = ErrorStyle.Render(err.Error())
	}
	return nil
}

func (m *RoomModel) command(line string) tea.Cmd {
	switch strings.Fields(line)[0] {
	case "/mute":
		if m.ctrl.ToggleMute() {
			m.notice = IconMicOff + " Microphone muted"
		} else {
			m.notice = IconMic + " Microphone on"
		}
	case "/video":
		if m.ctrl.ToggleVideo() {
			m.notice = IconCameraOff + " Camera off"
		} else {
			m.notice = IconCamera + " Camera on"
		}
	case "/who":
		m.showWho = !m.showWho
		m.notice = ""
	case "/leave", "/quit":
		m.left = true
		return tea.Quit
	case "/help":
		m.notice = MutedStyle.Render("/mute  /video  /who  /leave")
	default:
		m.notice = WarningStyle.Render("Unknown command " + line)
	}
	return nil
}

func (m *RoomModel) View() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n\n")

	if m.state.Status == mesh.StatusConnecting {
		fmt.Fprintf(&b, "%s Connecting...\n\n", m.spinner.View())
	}

	if m.showWho {
		b.WriteString(ParticipantTable(ParticipantRows(m.state, m.now())))
		b.WriteString("\n\n")
	}

	for _, line := range m.chatLines() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(m.notice)
	}
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("Enter to send, /help for commands, Esc to leave"))
	return b.String()
}

func (m *RoomModel) header() string {
	mic, cam := IconMic, IconCamera
	if m.state.Muted {
		mic = IconMicOff
	}
	if m.state.VideoOff {
		cam = IconCameraOff
	}
	who := m.state.Identity.PeerName()
	if m.state.Identity.IsZero() {
		who = string(m.state.Status)
	}
	return fmt.Sprintf("%s %s %s %s",
		StatusStyle.Render("HUDDLE"),
		TitleStyle.Render(m.state.Identity.Room),
		MutedStyle.Render(who),
		mic+" "+cam,
	)
}

// chatLines renders the tail of the chat log that fits the window.
func (m *RoomModel) chatLines() []string {
	budget := m.height - 8
	if m.showWho {
		budget -= 2*m.state.Participants.Len() + 4
	}
	budget = max(budget, 3)

	msgs := m.state.Messages
	if len(msgs) > budget {
		msgs = msgs[len(msgs)-budget:]
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, FormatMessage(msg))
	}
	return lines
}

// FormatMessage renders one chat line.
func FormatMessage(msg chat.Message) string {
	who := SelfStyle.Render("you")
	if msg.Sender == chat.SenderRemote {
		who = RemoteStyle.Render(msg.From)
	}
	return fmt.Sprintf("%s %s %s", TimeStyle.Render(msg.Timestamp.Format("15:04")), who, msg.Text)
}

// Left reports whether the user asked to leave.
func (m *RoomModel) Left() bool { return m.left }

// State is the last snapshot the view received.
func (m *RoomModel) State() mesh.State { return m.state }

// PeakParticipants is the largest participant count seen.
func (m *RoomModel) PeakParticipants() int { return m.peak }

// Close cancels the state subscription.
func (m *RoomModel) Close() { m.cancel() }

// RunRoom shows the room until the user leaves or the session fails.
func RunRoom(ctrl Controller) (*RoomModel, error) {
	m := NewRoomModel(ctrl)
	defer m.Close()

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return m, err
	}
	return final.(*RoomModel), nil
}
