// ABOUTME: mDNS service discovery for walkie arbiters
// ABOUTME: Servers advertise _walkie._tcp, clients browse for the first one
package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// ServiceType is the mDNS service walkie arbiters advertise
const ServiceType = "_walkie._tcp"

const queryTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // websocket path announced in TXT
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
}

// ServerInfo describes a discovered arbiter
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port for dialing
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{config: config, ctx: ctx, cancel: cancel}
}

// Advertise announces the arbiter until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return errors.Wrap(err, "failed to get local IPs")
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return errors.Wrap(err, "failed to create service")
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return errors.Wrap(err, "failed to create mdns server")
	}

	log.Info().Str("module", "discovery").
		Str("name", m.config.ServiceName).
		Int("port", m.config.Port).
		Str("type", ServiceType).
		Msg("advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Find browses until an arbiter answers or ctx ends
func (m *Manager) Find(ctx context.Context) (ServerInfo, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ServerInfo{}, errors.Wrap(err, "no walkie server found")
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		found := make(chan ServerInfo, 1)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for entry := range entries {
				if info, ok := serverFromEntry(entry); ok {
					select {
					case found <- info:
					default:
					}
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = queryTimeout
		params.Entries = entries
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			log.Debug().Str("module", "discovery").Err(err).Msg("mdns query failed")
		}
		close(entries)
		<-drained

		select {
		case info := <-found:
			log.Info().Str("module", "discovery").
				Str("name", info.Name).
				Str("addr", info.Addr()).
				Msg("discovered server")
			return info, nil
		default:
		}
	}
}

// Stop stops advertising
func (m *Manager) Stop() {
	m.cancel()
}

func serverFromEntry(entry *mdns.ServiceEntry) (ServerInfo, bool) {
	if entry == nil || !strings.Contains(entry.Name, ServiceType) {
		return ServerInfo{}, false
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return ServerInfo{}, false
	}

	info := ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: host,
		Port: entry.Port,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok {
			info.Path = path
		}
	}
	return info, true
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
