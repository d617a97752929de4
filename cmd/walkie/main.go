// ABOUTME: Entry point for the walkie push-to-talk client
// ABOUTME: Parses CLI flags, picks audio devices and runs the client
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/walkie/internal/app"
	"github.com/Resonate-Protocol/walkie/internal/config"
	"github.com/Resonate-Protocol/walkie/internal/logger"
	"github.com/Resonate-Protocol/walkie/internal/version"
	"github.com/Resonate-Protocol/walkie/pkg/audio/output"
	"github.com/Resonate-Protocol/walkie/pkg/capture"
	"github.com/alecthomas/kingpin/v2"
	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var (
	cli        = kingpin.New("walkie", "Push-to-talk voice client")
	configPath = cli.Flag("config", "Path to config file").Default("walkie.yaml").String()
	serverAddr = cli.Flag("server", "Server address host:port (skip mDNS)").String()
	clientID   = cli.Flag("id", "Client ID announced to the server").String()
	mic        = cli.Flag("mic", "Microphone source").Enum(config.MicDevice, config.MicTone, config.MicFile)
	micFile    = cli.Flag("file", "MP3 file played as the microphone when --mic=file").String()
	volume     = cli.Flag("volume", "Playback volume 0-100").Default("-1").Int()
	noTUI      = cli.Flag("no-tui", "Disable TUI, use streaming logs instead").Bool()
	verbose    = cli.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logFile    = cli.Flag("log-file", "Log file path").Default("walkie.log").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cli.Version(version.String())
	kingpin.MustParse(cli.Parse(os.Args[1:]))

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	useTUI := cfg.UI.TUI && !*noTUI

	// TUI mode logs only to the file
	closer, err := logger.Init(logger.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: !useTUI,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	log.Info().Str("module", "main").
		Str("version", version.Version).
		Str("server", cfg.Client.ServerAddr).
		Str("mic", cfg.Audio.Microphone).
		Bool("tui", useTUI).
		Msg("starting walkie")

	clk := clock.New()
	walkie := app.New(app.Config{
		ServerAddr: cfg.Client.ServerAddr,
		ClientID:   cfg.Client.ClientID,
		Lead:       cfg.Audio.Lead,
		Interval:   cfg.Audio.Interval,
		MaxHold:    cfg.PTT.MaxHold,
		Volume:     cfg.Audio.Volume,
		UseTUI:     useTUI,
		Microphone: microphone(cfg.Audio),
		Sink:       output.NewOto(clk),
		Clock:      clk,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := walkie.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Str("module", "main").Err(err).Msg("walkie stopped")
		if !useTUI {
			fmt.Fprintf(os.Stderr, "walkie: %v\n", err)
		}
		stop()
		closer.Close()
		os.Exit(1)
	}
}

func microphone(cfg config.AudioConfig) capture.Microphone {
	switch cfg.Microphone {
	case config.MicTone:
		return capture.NewToneMicrophone(cfg.ToneHz)
	case config.MicFile:
		return capture.NewFileMicrophone(cfg.File, true)
	default:
		return capture.NewMalgoMicrophone()
	}
}

func applyFlags(cfg *config.ClientConfig) {
	if *serverAddr != "" {
		cfg.Client.ServerAddr = *serverAddr
	}
	if *clientID != "" {
		cfg.Client.ClientID = *clientID
	}
	if *mic != "" {
		cfg.Audio.Microphone = *mic
	}
	if *micFile != "" {
		cfg.Audio.File = *micFile
	}
	if *volume >= 0 {
		cfg.Audio.Volume = *volume
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFile != "" && cfg.Log.File == "" {
		cfg.Log.File = *logFile
	}
}
