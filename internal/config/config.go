// ABOUTME: Configuration loading for the walkie server and client
// ABOUTME: YAML files with struct-tag defaults, env overrides and validation
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Relay modes for forwarding the holder's audio.
const (
	RelayStream   = "stream"
	RelayBuffered = "buffered"
)

// Microphone sources for the client.
const (
	MicDevice = "device"
	MicTone   = "tone"
	MicFile   = "file"
)

// ServerConfig represents the arbiter server configuration.
type ServerConfig struct {
	Server ListenConfig `yaml:"server"`
	PTT    PTTConfig    `yaml:"ptt"`
	Log    LogConfig    `yaml:"log"`
}

// ListenConfig represents the server's network settings.
type ListenConfig struct {
	Addr string `yaml:"addr" default:":8928" validate:"required"`
	Name string `yaml:"name" default:"Walkie Server"`
	MDNS bool   `yaml:"mdns" default:"true"`
}

// PTTConfig represents floor-control settings on the server.
type PTTConfig struct {
	Enabled   bool          `yaml:"enabled" default:"true"`
	MaxHold   time.Duration `yaml:"max_hold" default:"30s" validate:"gt=0"`
	Relay     string        `yaml:"relay" default:"stream" validate:"oneof=stream buffered"`
	SendQueue int           `yaml:"send_queue" default:"256" validate:"gte=1,lte=65536"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File  string `yaml:"file"`
}

// ClientConfig represents the walkie client configuration.
type ClientConfig struct {
	Client ConnectConfig   `yaml:"client"`
	Audio  AudioConfig     `yaml:"audio"`
	PTT    ClientPTTConfig `yaml:"ptt"`
	Log    LogConfig       `yaml:"log"`
	UI     UIConfig        `yaml:"ui"`
}

// ConnectConfig represents how the client reaches the server.
type ConnectConfig struct {
	ServerAddr string `yaml:"server_addr"`
	ClientID   string `yaml:"client_id"`
	Name       string `yaml:"name" default:"Walkie"`
}

// AudioConfig represents capture and playback settings.
type AudioConfig struct {
	Lead       time.Duration `yaml:"lead" default:"50ms" validate:"gte=0,lte=1s"`
	Interval   time.Duration `yaml:"interval" default:"200ms" validate:"gte=100ms,lte=250ms"`
	Volume     int           `yaml:"volume" default:"100" validate:"gte=0,lte=100"`
	Microphone string        `yaml:"microphone" default:"device" validate:"oneof=device tone file"`
	File       string        `yaml:"file" validate:"required_if=Microphone file"`
	ToneHz     float64       `yaml:"tone_hz" default:"440" validate:"gt=0,lt=20000"`
}

// ClientPTTConfig represents the client's floor settings.
type ClientPTTConfig struct {
	MaxHold time.Duration `yaml:"max_hold" default:"30s" validate:"gt=0"`
}

// UIConfig represents terminal UI settings.
type UIConfig struct {
	TUI bool `yaml:"tui" default:"true"`
}

// LoadServer loads the server configuration. A missing file yields defaults.
func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.overrideFromEnv()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient loads the client configuration. A missing file yields defaults.
func LoadClient(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.overrideFromEnv()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct-tag constraints on a config root.
func Validate(cfg any) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	return nil
}

// Defaults are applied before parsing so that explicit zero values in the
// file (mdns: false) survive.
func load(path string, cfg any) error {
	if err := defaults.Set(cfg); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "failed to parse config file")
	}
	return nil
}

func (c *ServerConfig) overrideFromEnv() {
	if v := os.Getenv("WALKIE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v, ok := envBool("WALKIE_PTT_ENABLED"); ok {
		c.PTT.Enabled = v
	}
}

func (c *ClientConfig) overrideFromEnv() {
	if v := os.Getenv("WALKIE_SERVER_ADDR"); v != "" {
		c.Client.ServerAddr = v
	}
	if v := os.Getenv("WALKIE_CLIENT_ID"); v != "" {
		c.Client.ClientID = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
