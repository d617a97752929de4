// ABOUTME: Main server implementation for the walkie arbiter
// ABOUTME: Manages WebSocket connections, the HTTP API and server lifecycle
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/walkie/internal/discovery"
	"github.com/Resonate-Protocol/walkie/internal/metrics"
	"github.com/Resonate-Protocol/walkie/internal/version"
	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/Resonate-Protocol/walkie/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second

	clientIDParam = "client_id"
)

// Config holds server configuration
type Config struct {
	Addr       string
	Name       string
	EnableMDNS bool
	UseTUI     bool

	PTTEnabled bool
	MaxHold    time.Duration
	Relay      string
	SendQueue  int

	Clock    clock.Clock
	Registry *prometheus.Registry
}

// Server represents the walkie arbiter server
type Server struct {
	config Config

	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	arbiter  *Arbiter

	// Client management, keyed by client ID
	clients   map[string]*peer
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.SendQueue <= 0 {
		config.SendQueue = 256
	}
	if config.Name == "" {
		config.Name = "Walkie Server"
	}

	m := metrics.New(config.Registry)
	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			// Local network deployment; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		registry: config.Registry,
		metrics:  m,
		arbiter: NewArbiter(ArbiterConfig{
			Enabled: config.PTTEnabled,
			MaxHold: config.MaxHold,
			Relay:   config.Relay,
			Clock:   config.Clock,
			Metrics: m,
		}),
		clients:   make(map[string]*peer),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}

	s.mux.HandleFunc(transport.DefaultPath, s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/ptt", s.handlePTT)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.arbiter.OnChange(s.updateTUI)

	return s
}

// Handler returns the HTTP handler serving every endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Arbiter returns the floor arbiter
func (s *Server) Arbiter() *Arbiter {
	return s.arbiter
}

// Start runs the server until Stop, a TUI quit or a listener failure
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI(s.arbiter.SetEnabled)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.config.Name, s.config.Addr); err != nil {
				log.Error().Str("module", "server").Err(err).Msg("TUI error")
			}
		}()

		// Give TUI time to initialize
		time.Sleep(100 * time.Millisecond)
		s.updateTUI()
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.config.Addr)
	}

	log.Info().Str("module", "server").
		Str("name", s.config.Name).
		Str("addr", listener.Addr().String()).
		Str("relay", s.arbiter.Status().Relay).
		Bool("ptt_enabled", s.arbiter.Status().Enabled).
		Msg("server starting")

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        listener.Addr().(*net.TCPAddr).Port,
			Path:        transport.DefaultPath,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Warn().Str("module", "server").Err(err).Msg("failed to start mDNS advertisement")
		}
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Info().Str("module", "server").Msg("server shutting down")
	case <-tuiQuitChan:
		log.Info().Str("module", "server").Msg("TUI quit requested, shutting down")
	case err := <-errChan:
		log.Error().Str("module", "server").Err(err).Msg("HTTP server error")
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Str("module", "server").Err(err).Msg("HTTP server shutdown error")
	}

	// Hijacked websocket connections are not closed by Shutdown
	s.clientsMu.RLock()
	for _, p := range s.clients {
		p.close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	log.Info().Str("module", "server").Msg("server stopped cleanly")

	if serverErr != nil {
		return errors.Wrap(serverErr, "HTTP server failed")
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// clientID picks the query parameter, then the cookie, then a fresh UUID
func clientID(r *http.Request) string {
	if id := r.URL.Query().Get(clientIDParam); id != "" {
		return id
	}
	if cookie, err := r.Cookie(clientIDParam); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return uuid.New().String()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shutdown := s.isShutdown
	s.shutdownMu.RUnlock()
	if shutdown {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	id := clientID(r)
	header := http.Header{}
	header.Add("Set-Cookie", (&http.Cookie{Name: clientIDParam, Value: id, Path: "/"}).String())

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Warn().Str("module", "server").Err(err).Msg("WebSocket upgrade error")
		return
	}

	log.Info().Str("module", "server").
		Str("client", id).
		Str("remote", r.RemoteAddr).
		Msg("new WebSocket connection")

	s.handleConnection(newPeer(id, r.RemoteAddr, conn, s.config.SendQueue))
}

// handleConnection manages a client connection until it ends
func (s *Server) handleConnection(p *peer) {
	defer p.close()

	// The newest connection for an ID wins
	s.clientsMu.Lock()
	if existing, ok := s.clients[p.id]; ok {
		log.Warn().Str("module", "server").Str("client", p.id).Msg("client reconnected, closing previous connection")
		existing.close()
	}
	s.clients[p.id] = p
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		if s.clients[p.id] == p {
			delete(s.clients, p.id)
		}
		s.clientsMu.Unlock()
		s.arbiter.Leave(p)
		log.Info().Str("module", "server").Str("client", p.id).Msg("client disconnected")
	}()

	if err := p.SendMessage(protocol.YourID, protocol.Identity{ID: p.id}); err != nil {
		log.Warn().Str("module", "server").Err(err).Msg("failed to send identity")
		return
	}
	s.arbiter.Join(p)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p.writer()
	}()

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Str("module", "server").Str("client", p.id).Err(err).Msg("read ended")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleBinaryMessage(p, data)
		case websocket.TextMessage:
			s.handleClientMessage(p, data)
		}
	}
}

func (s *Server) handleBinaryMessage(p *peer, data []byte) {
	event, frame, err := protocol.DecodeBinary(data)
	if err != nil && !errors.Is(err, protocol.ErrEmptyFrame) {
		s.metrics.FramesDropped.WithLabelValues(metrics.DropMalformed).Inc()
		log.Warn().Str("module", "server").Str("client", p.id).Err(err).Msg("bad binary message")
		return
	}
	if event != protocol.AudioChunk {
		log.Warn().Str("module", "server").Str("client", p.id).Str("event", string(event)).Msg("unexpected binary event")
		return
	}
	s.arbiter.Audio(p, frame)
}

// handleClientMessage processes text messages from clients
func (s *Server) handleClientMessage(p *peer, data []byte) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		log.Warn().Str("module", "server").Str("client", p.id).Err(err).Msg("bad message")
		return
	}

	switch msg.Type {
	case protocol.StartSpeaking:
		s.arbiter.Start(p)
	case protocol.StopSpeaking:
		s.arbiter.Stop(p)
	case protocol.AudioChunk:
		frame, err := protocol.FrameFromPayload(msg.Payload)
		if err != nil && !errors.Is(err, protocol.ErrEmptyFrame) {
			s.metrics.FramesDropped.WithLabelValues(metrics.DropMalformed).Inc()
			log.Warn().Str("module", "server").Str("client", p.id).Err(err).Msg("bad audio payload")
			return
		}
		s.arbiter.Audio(p, frame)
	default:
		log.Warn().Str("module", "server").Str("client", p.id).Str("type", string(msg.Type)).Msg("unknown message type")
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.String(),
		Clients: s.arbiter.Status().Peers,
	})
}

type pttState struct {
	Enabled bool   `json:"enabled"`
	Holder  string `json:"holder,omitempty"`
}

func (s *Server) handlePTT(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			http.Error(w, `expected {"enabled": bool}`, http.StatusBadRequest)
			return
		}
		s.arbiter.SetEnabled(*req.Enabled)
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.arbiter.Status()
	writeJSON(w, http.StatusOK, pttState{Enabled: status.Enabled, Holder: status.Holder})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Str("module", "server").Err(err).Msg("failed to write response")
	}
}
