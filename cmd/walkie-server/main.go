// ABOUTME: Entry point for the walkie arbiter server
// ABOUTME: Parses CLI flags, loads config and runs the server
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/walkie/internal/config"
	"github.com/Resonate-Protocol/walkie/internal/logger"
	"github.com/Resonate-Protocol/walkie/internal/server"
	"github.com/Resonate-Protocol/walkie/internal/version"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var (
	app        = kingpin.New("walkie-server", "Push-to-talk arbiter for walkie clients")
	configPath = app.Flag("config", "Path to config file").Default("walkie-server.yaml").String()
	addr       = app.Flag("addr", "Listen address (overrides config)").String()
	name       = app.Flag("name", "Server friendly name (default: hostname-walkie-server)").String()
	relay      = app.Flag("relay", "Audio relay mode (overrides config)").Enum(config.RelayStream, config.RelayBuffered)
	noMDNS     = app.Flag("no-mdns", "Disable mDNS advertisement").Bool()
	pttOff     = app.Flag("ptt-disabled", "Start with push-to-talk disabled").Bool()
	useTUI     = app.Flag("tui", "Show the status TUI").Bool()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logFile    = app.Flag("log-file", "Log file path (overrides config)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	app.Version(version.String())
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	closer, err := logger.Init(logger.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: !*useTUI,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	serverName := cfg.Server.Name
	if *name != "" {
		serverName = *name
	} else if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-walkie-server", hostname)
	}

	log.Info().Str("module", "main").
		Str("name", serverName).
		Str("addr", cfg.Server.Addr).
		Str("version", version.Version).
		Msg("starting walkie server")

	srv := server.New(server.Config{
		Addr:       cfg.Server.Addr,
		Name:       serverName,
		EnableMDNS: cfg.Server.MDNS,
		UseTUI:     *useTUI,
		PTTEnabled: cfg.PTT.Enabled,
		MaxHold:    cfg.PTT.MaxHold,
		Relay:      cfg.PTT.Relay,
		SendQueue:  cfg.PTT.SendQueue,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("module", "main").Stringer("signal", sig).Msg("shutting down gracefully")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Error().Str("module", "main").Err(err).Msg("server error")
		closer.Close()
		os.Exit(1)
	}
}

func applyFlags(cfg *config.ServerConfig) {
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *relay != "" {
		cfg.PTT.Relay = *relay
	}
	if *noMDNS {
		cfg.Server.MDNS = false
	}
	if *pttOff {
		cfg.PTT.Enabled = false
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
}
