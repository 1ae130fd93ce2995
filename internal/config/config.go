// Package config loads the TOML application config, the YAML/JSON data
// files (new-song titles and chart constant overrides) and builds the
// process logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables that supply the chunirec token.
const (
	EnvAPIKey   = "CHUNIREC_API_KEY"
	EnvAPIToken = "CHUNIREC_API_TOKEN"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Chunirec   ChunirecConfig   `toml:"chunirec"`
	Cache      CacheConfig      `toml:"cache"`
	Simulation SimulationConfig `toml:"simulation"`
	Data       DataConfig       `toml:"data"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout string   `toml:"request_timeout"` // e.g. "60s"
}

// ChunirecConfig contains upstream API settings.
type ChunirecConfig struct {
	BaseURL      string `toml:"base_url"`
	Token        string `toml:"token"`
	Region       string `toml:"region"`
	RateDelay    string `toml:"rate_delay"`    // Minimum gap between requests
	Timeout      string `toml:"timeout"`       // Per-request timeout
	ProxyTimeout string `toml:"proxy_timeout"` // Proxy endpoint timeout
	MaxRetries   int    `toml:"max_retries"`
}

// CacheConfig contains payload cache and database settings.
type CacheConfig struct {
	Enabled       bool   `toml:"enabled"`
	DBPath        string `toml:"db_path"`        // Empty = ~/.chuni-companion/data.db
	TTL           string `toml:"ttl"`            // Upstream payload TTL
	MusicTTL      string `toml:"music_ttl"`      // Music catalog TTL
	SweepInterval string `toml:"sweep_interval"` // Expired row sweep period
}

// SimulationConfig contains runner settings.
type SimulationConfig struct {
	Workers           int    `toml:"workers"`
	QueueSize         int    `toml:"queue_size"`
	ResultTTL         string `toml:"result_ttl"`
	DefaultMode       string `toml:"default_mode"`
	DefaultPreference string `toml:"default_preference"`
}

// DataConfig points at the editable data files.
type DataConfig struct {
	NewSongsFile  string `toml:"new_songs_file"`
	OverridesFile string `toml:"overrides_file"`
	Watch         bool   `toml:"watch"` // Reload on change
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level         string `toml:"level"`  // debug, info, warn, error
	Format        string `toml:"format"` // text or json
	VerboseEvents bool   `toml:"verbose_events"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			CORSOrigins:    []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RequestTimeout: "60s",
		},
		Chunirec: ChunirecConfig{
			BaseURL:      "https://api.chunirec.net/2.0",
			Region:       "jp2",
			RateDelay:    "250ms",
			Timeout:      "30s",
			ProxyTimeout: "25s",
			MaxRetries:   3,
		},
		Cache: CacheConfig{
			Enabled:       true,
			TTL:           "10m",
			MusicTTL:      "24h",
			SweepInterval: "1h",
		},
		Simulation: SimulationConfig{
			Workers:           4,
			QueueSize:         64,
			ResultTTL:         "24h",
			DefaultMode:       "hybrid",
			DefaultPreference: "floor",
		},
		Data: DataConfig{
			Watch: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dir returns ~/.chuni-companion, creating it if needed.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".chuni-companion")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the default config file. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path over the defaults, so keys missing from
// the file keep their default values. Environment token overrides are
// applied afterwards.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv replaces the configured token with CHUNIREC_API_KEY or
// CHUNIREC_API_TOKEN when either is set.
func (c *Config) ApplyEnv() {
	for _, name := range []string{EnvAPIKey, EnvAPIToken} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			c.Chunirec.Token = v
			return
		}
	}
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	// The file may hold the API token.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	durations := []struct {
		name, value string
	}{
		{"server request timeout", c.Server.RequestTimeout},
		{"chunirec rate delay", c.Chunirec.RateDelay},
		{"chunirec timeout", c.Chunirec.Timeout},
		{"chunirec proxy timeout", c.Chunirec.ProxyTimeout},
		{"cache TTL", c.Cache.TTL},
		{"music cache TTL", c.Cache.MusicTTL},
		{"cache sweep interval", c.Cache.SweepInterval},
		{"simulation result TTL", c.Simulation.ResultTTL},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		if v < 0 {
			return fmt.Errorf("%s cannot be negative: %s", d.name, d.value)
		}
	}

	if c.Chunirec.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %d", c.Chunirec.MaxRetries)
	}
	if c.Simulation.Workers < 1 {
		return fmt.Errorf("simulation workers must be at least 1: %d", c.Simulation.Workers)
	}
	if c.Simulation.QueueSize < 0 {
		return fmt.Errorf("simulation queue size cannot be negative: %d", c.Simulation.QueueSize)
	}

	switch c.Simulation.DefaultMode {
	case "b30_only", "n20_only", "hybrid":
	default:
		return fmt.Errorf("invalid default simulation mode %q", c.Simulation.DefaultMode)
	}
	switch c.Simulation.DefaultPreference {
	case "floor", "peak":
	default:
		return fmt.Errorf("invalid default algorithm preference %q", c.Simulation.DefaultPreference)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	return nil
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetRequestTimeout returns the HTTP request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return mustDuration(c.Server.RequestTimeout, 60*time.Second)
}

// GetRateDelay returns the minimum gap between upstream requests.
func (c *Config) GetRateDelay() time.Duration {
	return mustDuration(c.Chunirec.RateDelay, 250*time.Millisecond)
}

// GetChunirecTimeout returns the upstream request timeout.
func (c *Config) GetChunirecTimeout() time.Duration {
	return mustDuration(c.Chunirec.Timeout, 30*time.Second)
}

// GetProxyTimeout returns the proxy endpoint timeout.
func (c *Config) GetProxyTimeout() time.Duration {
	return mustDuration(c.Chunirec.ProxyTimeout, 25*time.Second)
}

// GetCacheTTL returns the payload cache TTL, or 0 when caching is disabled.
func (c *Config) GetCacheTTL() time.Duration {
	if !c.Cache.Enabled {
		return 0
	}
	return mustDuration(c.Cache.TTL, 10*time.Minute)
}

// GetMusicTTL returns the music catalog cache TTL, or 0 when caching is disabled.
func (c *Config) GetMusicTTL() time.Duration {
	if !c.Cache.Enabled {
		return 0
	}
	return mustDuration(c.Cache.MusicTTL, 24*time.Hour)
}

// GetSweepInterval returns the expired row sweep period.
func (c *Config) GetSweepInterval() time.Duration {
	return mustDuration(c.Cache.SweepInterval, time.Hour)
}

// GetResultTTL returns how long simulation results are kept.
func (c *Config) GetResultTTL() time.Duration {
	return mustDuration(c.Simulation.ResultTTL, 24*time.Hour)
}

// ResolveToken picks the token for an upstream call: the client-supplied
// token when non-blank, else the configured one.
func (c *Config) ResolveToken(clientToken string) string {
	if t := strings.TrimSpace(clientToken); t != "" {
		return t
	}
	return c.Chunirec.Token
}
