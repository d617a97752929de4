// ABOUTME: Bubbletea model for the walkie client TUI
// ABOUTME: Shows floor state, level meter and playback stats; maps keys to controls
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/floor"
	"github.com/Resonate-Protocol/walkie/pkg/playback"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const volumeStep = 5

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	onAirStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	lockedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected bool
	server    string
	clientID  string

	// Floor
	state     floor.State
	speaker   string
	remaining time.Duration

	// Audio
	level  float64
	volume int
	muted  bool

	// Stats
	stats playback.Stats
	sent  uint64

	notice string

	controls *Controls

	// Dimensions
	width  int
	height int
}

// StatusMsg is a snapshot of the client
type StatusMsg struct {
	Connected  bool
	Server     string
	ClientID   string
	State      floor.State
	Speaker    string
	Remaining  time.Duration
	Stats      playback.Stats
	FramesSent uint64
}

// LevelMsg carries the latest meter reading in [0, 1]
type LevelMsg float64

// NoticeMsg shows a one-line message, e.g. why a press was refused
type NoticeMsg string

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case LevelMsg:
		m.level = float64(msg)
	case NoticeMsg:
		m.notice = string(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Walkie"))
	b.WriteString("\n\n")
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderFloor())
	b.WriteString(m.renderAudio())
	b.WriteString(m.renderStats())
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(lockedStyle.Render(m.notice))
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String()) + "\n" + m.renderHelp()
}

func line(label, value string) string {
	return labelStyle.Render(label) + " " + value + "\n"
}

// renderHeader renders connection status
func (m Model) renderHeader() string {
	status := "Disconnected"
	if m.connected {
		status = "Connected to " + m.server
	}
	s := line("Status:", valueStyle.Render(status))
	if m.clientID != "" {
		s += line("You:   ", valueStyle.Render(m.clientID))
	}
	return s
}

// renderFloor renders who has the floor
func (m Model) renderFloor() string {
	var floorText string
	switch m.state {
	case floor.Granted:
		floorText = onAirStyle.Render(fmt.Sprintf("ON AIR (%s left)", m.remaining.Round(time.Second)))
	case floor.RequestPending:
		floorText = lockedStyle.Render("requesting...")
	case floor.Locked:
		floorText = lockedStyle.Render(m.speaker + " is talking")
	default:
		floorText = valueStyle.Render("free")
	}
	return line("Floor: ", floorText) + "\n"
}

// renderAudio renders the level meter and volume
func (m Model) renderAudio() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}
	level := int(m.level * 100)
	return line("Level: ", "["+renderBar(level, 100, 20)+"]") +
		line("Volume:", fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon))
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	return "\n" + line("Stats: ", valueStyle.Render(fmt.Sprintf("TX: %d  RX: %d  Played: %d  Gaps: %d  Errors: %d",
		m.sent, m.stats.Received, m.stats.Scheduled, m.stats.Gaps, m.stats.DecodeErrors+m.stats.RenderErrors)))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return helpStyle.Render("space:Talk  ↑/↓:Volume  m:Mute  q:Quit")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case " ", "t":
		m.notice = ""
		m.controls.talk()
	case "up":
		m.volume = min(m.volume+volumeStep, 100)
		m.controls.changeVolume(m.volume, m.muted)
	case "down":
		m.volume = max(m.volume-volumeStep, 0)
		m.controls.changeVolume(m.volume, m.muted)
	case "m":
		m.muted = !m.muted
		m.controls.changeVolume(m.volume, m.muted)
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	m.connected = msg.Connected
	if msg.Server != "" {
		m.server = msg.Server
	}
	if msg.ClientID != "" {
		m.clientID = msg.ClientID
	}
	m.state = msg.State
	m.speaker = msg.Speaker
	m.remaining = msg.Remaining
	m.stats = msg.Stats
	m.sent = msg.FramesSent
}

// Utility functions
func renderBar(value, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / total
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
