// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels carrying user intent
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg is a requested output volume
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// Controls carries user intent out of the TUI. Sends never block.
type Controls struct {
	Talk   chan struct{}
	Volume chan VolumeChangeMsg
	Quit   chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Talk:   make(chan struct{}, 1),
		Volume: make(chan VolumeChangeMsg, 10),
		Quit:   make(chan struct{}, 1),
	}
}

func (c *Controls) talk() {
	if c == nil {
		return
	}
	select {
	case c.Talk <- struct{}{}:
	default:
	}
}

func (c *Controls) changeVolume(volume int, muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Volume <- VolumeChangeMsg{Volume: volume, Muted: muted}:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(volume int, controls *Controls) Model {
	return Model{
		volume:   volume,
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(volume int, controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(volume, controls), tea.WithAltScreen())
	return p, nil
}
