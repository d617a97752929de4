// ABOUTME: TUI update helpers for server
// ABOUTME: Builds the status snapshot shown by the server TUI
package server

import (
	"sort"
	"time"
)

// Status returns the current server snapshot
func (s *Server) Status() ServerStatus {
	floor := s.arbiter.Status()

	s.clientsMu.RLock()
	clients := make([]ClientInfo, 0, len(s.clients))
	for _, p := range s.clients {
		clients = append(clients, ClientInfo{
			ID:        p.id,
			Remote:    p.remote,
			Connected: time.Since(p.connected),
			Speaking:  p.id == floor.Holder,
		})
	}
	s.clientsMu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })

	return ServerStatus{
		Name:    s.config.Name,
		Addr:    s.config.Addr,
		Floor:   floor,
		Clients: clients,
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.Status())
}
