package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warpcall/cli/internal/session"
	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// maxLines bounds the chat scrollback kept on screen.
const maxLines = 12

// Messages the reporter feeds into the program.
type (
	stateMsg      session.State
	peerJoinedMsg string
	peerLeftMsg   string
	linkStateMsg  string
	trackMsg      string
	noticeMsg     string
	endMsg        struct{ err error }
)

type joinedMsg struct {
	self string
	room *protocol.RoomSnapshot
}

type chatMsg struct {
	from string
	text string
	at   time.Time
}

// CallUI is the live call screen. It reports call progress through a
// bubbletea program and forwards typed lines to the peer.
type CallUI struct {
	program *tea.Program
	model   *callModel
	send    func(tea.Msg)
}

// NewCallUI creates the call screen for room. say sends a chat line and
// hangup asks the call to end; the screen stays until End is called.
func NewCallUI(room string, say func(string) error, hangup func(), opts ...tea.ProgramOption) *CallUI {
	m := newCallModel(room, say, hangup)
	p := tea.NewProgram(m, opts...)
	return &CallUI{program: p, model: m, send: p.Send}
}

// Run shows the screen until the call ends.
func (ui *CallUI) Run() error {
	_, err := ui.program.Run()
	return err
}

// End closes the screen once the call is over. err is shown if not nil.
func (ui *CallUI) End(err error) {
	ui.send(endMsg{err: err})
}

func (ui *CallUI) State(s session.State) { ui.send(stateMsg(s)) }

func (ui *CallUI) Joined(self string, room *protocol.RoomSnapshot) {
	ui.send(joinedMsg{self: self, room: room})
}

func (ui *CallUI) PeerJoined(id string)    { ui.send(peerJoinedMsg(id)) }
func (ui *CallUI) PeerLeft(id string)      { ui.send(peerLeftMsg(id)) }
func (ui *CallUI) LinkState(state string)  { ui.send(linkStateMsg(state)) }
func (ui *CallUI) RemoteTrack(kind string) { ui.send(trackMsg(kind)) }
func (ui *CallUI) Notice(msg string)       { ui.send(noticeMsg(msg)) }

func (ui *CallUI) Chat(from, text string, at time.Time) {
	ui.send(chatMsg{from: from, text: text, at: at})
}

type chatLine struct {
	at     time.Time
	from   string
	text   string
	self   bool
	notice bool
}

// callModel is the bubbletea model behind CallUI.
type callModel struct {
	room   string
	self   string
	peers  []string
	state  session.State
	link   string
	tracks []string
	lines  []chatLine

	input   textinput.Model
	spinner spinner.Model

	say        func(string) error
	hangup     func()
	hangupOnce sync.Once

	leaving bool
	ended   bool
	err     error
}

func newCallModel(room string, say func(string) error, hangup func()) *callModel {
	ti := textinput.New()
	ti.Placeholder = "type a message, enter to send"
	ti.Prompt = IconChat + " "
	ti.CharLimit = 500
	ti.Width = 60
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &callModel{
		room:    room,
		state:   session.Init,
		input:   ti,
		spinner: s,
		say:     say,
		hangup:  hangup,
	}
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.leave()
			return m, nil
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}

	case stateMsg:
		m.state = session.State(msg)
		return m, nil

	case joinedMsg:
		m.self = msg.self
		m.peers = m.peers[:0]
		if msg.room != nil {
			for _, id := range msg.room.Members {
				if id != msg.self {
					m.peers = append(m.peers, id)
				}
			}
		}
		return m, nil

	case peerJoinedMsg:
		m.peers = append(m.peers, string(msg))
		m.addNotice(fmt.Sprintf("%s %s joined", IconPeer, shortID(string(msg))))
		return m, nil

	case peerLeftMsg:
		m.removePeer(string(msg))
		m.link = ""
		m.tracks = nil
		m.addNotice(fmt.Sprintf("%s %s left", IconPeer, shortID(string(msg))))
		return m, nil

	case linkStateMsg:
		m.link = string(msg)
		return m, nil

	case trackMsg:
		m.tracks = append(m.tracks, string(msg))
		return m, nil

	case noticeMsg:
		m.addNotice(string(msg))
		return m, nil

	case chatMsg:
		m.addLine(chatLine{at: msg.at, from: msg.from, text: msg.text})
		return m, nil

	case endMsg:
		m.ended = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *callModel) leave() {
	m.hangupOnce.Do(func() {
		m.leaving = true
		m.addNotice(IconHangup + " hanging up...")
		if m.hangup != nil {
			m.hangup()
		}
	})
}

func (m *callModel) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	m.input.SetValue("")

	if err := m.say(text); err != nil {
		m.addNotice("not sent: " + err.Error())
		return
	}
	m.addLine(chatLine{at: time.Now(), from: "you", text: text, self: true})
}

func (m *callModel) removePeer(id string) {
	for i, p := range m.peers {
		if p == id {
			m.peers = append(m.peers[:i], m.peers[i+1:]...)
			return
		}
	}
}

func (m *callModel) addNotice(text string) {
	m.addLine(chatLine{at: time.Now(), text: text, notice: true})
}

func (m *callModel) addLine(l chatLine) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

// status describes where the call stands in a few words.
func (m *callModel) status() (text string, busy bool) {
	switch m.state {
	case session.Init:
		return "Joining room...", true
	case session.Joined:
		return "Waiting for someone to join...", true
	case session.NegotiatingPeer:
		switch m.link {
		case "connected":
			return "In call", false
		case "failed":
			return "Connection failed", false
		case "":
			return "Negotiating...", true
		default:
			return "Peer link " + m.link, true
		}
	case session.Unbound:
		return "Peer left, waiting for someone new...", true
	default:
		return "Call ended", false
	}
}

func (m *callModel) roster() []RosterEntry {
	if m.self == "" {
		return nil
	}
	entries := []RosterEntry{{ID: m.self, Self: true, Status: m.state.String()}}
	for _, p := range m.peers {
		status := m.link
		if status == "" {
			status = "negotiating"
		}
		entries = append(entries, RosterEntry{ID: p, Status: status})
	}
	return entries
}

func trackLabel(kind string) string {
	switch kind {
	case "audio":
		return IconAudio + " audio"
	case "video":
		return IconVideo + " video"
	default:
		return kind
	}
}

func (m *callModel) View() string {
	if m.ended {
		// A failed call is reported by the command once the screen closes.
		if m.err != nil {
			return ""
		}
		return SuccessStyle.Render(IconHangup+" Call ended") + "\n"
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("\n%s %s %s\n\n", IconCall, TitleStyle.Render("Warpcall"), StatusStyle.Render(m.room)))

	text, busy := m.status()
	if busy {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), text))
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", IconConnect, BoldStyle.Render(text)))
	}
	if len(m.tracks) > 0 {
		labels := make([]string, len(m.tracks))
		for i, kind := range m.tracks {
			labels[i] = trackLabel(kind)
		}
		b.WriteString(MutedStyle.Render("receiving " + strings.Join(labels, ", ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(RosterView(m.roster()))
	b.WriteString("\n\n")

	for _, l := range m.lines {
		stamp := TimeStyle.Render(l.at.Format("15:04"))
		switch {
		case l.notice:
			b.WriteString(fmt.Sprintf("%s %s\n", stamp, MutedStyle.Render(l.text)))
		case l.self:
			b.WriteString(fmt.Sprintf("%s %s %s\n", stamp, SelfStyle.Render(l.from+":"), l.text))
		default:
			b.WriteString(fmt.Sprintf("%s %s %s\n", stamp, PeerStyle.Render(l.from+":"), l.text))
		}
	}

	b.WriteString("\n")
	if m.leaving {
		b.WriteString(MutedStyle.Render(IconWaiting + " leaving the room..."))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n" + FooterStyle.Render("enter send • esc/ctrl+c hang up"))

	return b.String()
}
