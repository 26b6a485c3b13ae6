package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort     = 19333
	DefaultPriority = 128
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	Boblight        BoblightConfig `yaml:"boblight"`
	API             APIConfig      `yaml:"api"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Script          string         `yaml:"script"`           // Optional Lua script, empty disables scripting
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops

	// Dir is the directory of the loaded config file. Relative script
	// paths are resolved against it.
	Dir string `yaml:"-"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // Plain JSON lines instead of console output
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BoblightConfig contains session settings shared by all servers
type BoblightConfig struct {
	DefaultColor      string         `yaml:"default_color"`
	SyncInterval      Duration       `yaml:"sync_interval"`
	ReconnectInterval Duration       `yaml:"reconnect_interval"`
	ConnectTimeout    Duration       `yaml:"connect_timeout"`
	Transition        Duration       `yaml:"transition"`
	Servers           []ServerConfig `yaml:"servers"`
}

// ServerConfig describes one boblight server
type ServerConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Channels int    `yaml:"channels"` // Channel devices to create while the server is unreachable
	Priority *int   `yaml:"priority"` // nil uses DefaultPriority, 0 is a valid priority
}

// GetPriority returns the priority with default
func (s *ServerConfig) GetPriority() int {
	if s.Priority == nil {
		return DefaultPriority
	}
	return *s.Priority
}

// APIConfig contains HTTP API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention window
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse expands environment variables, decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./boblightd.sqlite"
	}

	// Boblight defaults
	b := &cfg.Boblight
	if b.DefaultColor == "" {
		b.DefaultColor = "#ffed2b"
	}
	if b.SyncInterval == 0 {
		b.SyncInterval = Duration(50 * time.Millisecond)
	}
	if b.ReconnectInterval == 0 {
		b.ReconnectInterval = Duration(15 * time.Second)
	}
	if b.ConnectTimeout == 0 {
		b.ConnectTimeout = Duration(5 * time.Second)
	}
	if b.Transition == 0 {
		b.Transition = Duration(1500 * time.Millisecond)
	}
	for i := range b.Servers {
		if b.Servers[i].Port == 0 {
			b.Servers[i].Port = DefaultPort
		}
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (cfg *Config) validate() error {
	seen := make(map[string]bool)
	for i, s := range cfg.Boblight.Servers {
		if s.Host == "" {
			return fmt.Errorf("boblight.servers[%d]: host is required", i)
		}
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("boblight.servers[%d]: port %d out of range", i, s.Port)
		}
		if p := s.GetPriority(); p < 0 || p > 255 {
			return fmt.Errorf("boblight.servers[%d]: priority %d out of range 0..255", i, p)
		}
		if s.Channels < 0 {
			return fmt.Errorf("boblight.servers[%d]: channels must not be negative", i)
		}
		addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
		if seen[addr] {
			return fmt.Errorf("boblight.servers[%d]: duplicate server %s", i, addr)
		}
		seen[addr] = true
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
