package client

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CuBnIcK/warfacebot/pkg/crypto"
	"github.com/CuBnIcK/warfacebot/pkg/logging"
	"github.com/CuBnIcK/warfacebot/pkg/protocol"
	"github.com/CuBnIcK/warfacebot/pkg/stream"
)

// Config is the client configuration, persisted as YAML.
type Config struct {
	ServerAddr     string        `yaml:"server_addr"` // stanza relay host:port
	TLS            bool          `yaml:"tls,omitempty"`
	Domain         string        `yaml:"domain"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	GameVersion string `yaml:"game_version"`
	RegionID    string `yaml:"region_id"`
	HardwareID  int32  `yaml:"hw_id,omitempty"` // 0 = derived from the host name

	UserID    string `yaml:"user_id"`
	ProfileID string `yaml:"profile_id"`
	Token     string `yaml:"token,omitempty"`
	Nickname  string `yaml:"nickname,omitempty"`

	Channel      string `yaml:"channel,omitempty"`       // channel joined on start
	DirectoryDB  string `yaml:"directory_db,omitempty"`  // SQLite path, empty = in memory
	ChannelsFile string `yaml:"channels_file,omitempty"` // YAML server list imported on start
	MetricsAddr  string `yaml:"metrics_addr,omitempty"`  // HTTP bind address, empty = disabled

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

var (
	ErrMissingServer   = errors.New("client: server_addr is required")
	ErrMissingIdentity = errors.New("client: user_id and profile_id are required")
	ErrMissingToken    = errors.New("client: token is required")
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerAddr:     "127.0.0.1:5222",
		Domain:         protocol.DefaultDomain,
		RequestTimeout: stream.DefaultRequestTimeout,
		RegionID:       "global",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadConfig reads a YAML config on top of the defaults. A missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("client: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("client: parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("client: encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overrides secrets and logging from the environment:
// WB_TOKEN, WB_LOG_LEVEL and WB_LOG_FORMAT.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WB_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("WB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WB_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// Validate reports the first problem that prevents connecting.
func (c Config) Validate() error {
	if c.ServerAddr == "" {
		return ErrMissingServer
	}
	if c.UserID == "" || c.ProfileID == "" {
		return ErrMissingIdentity
	}
	if c.Token == "" {
		return ErrMissingToken
	}
	if err := logging.Validate(c.LogLevel); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// ResolveHardwareID returns the configured hw_id, deriving one from the
// host name when none is set.
func (c Config) ResolveHardwareID() int32 {
	if c.HardwareID != 0 {
		return c.HardwareID
	}
	return crypto.HardwareID("")
}
