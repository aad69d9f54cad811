package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/migadu/kiri/helpers"
)

const (
	DefaultAddr           = ":1337"
	DefaultGreeting       = "Welcome! Please log in."
	DefaultReadBufferSize = 1024
	DefaultMetricsAddr    = ":9137"
	DefaultMetricsPath    = "/metrics"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// ServerConfig holds the command server settings.
type ServerConfig struct {
	Name            string `toml:"name"`
	Addr            string `toml:"addr"`
	CredentialsFile string `toml:"credentials_file"` // username<TAB>password per line
	Greeting        string `toml:"greeting"`
	ReadBufferSize  int    `toml:"read_buffer_size"` // Upper bound of a single socket read
	WriteTimeout    string `toml:"write_timeout"`    // Deadline for writing one response (0 disables)
	ShutdownTimeout string `toml:"shutdown_timeout"` // How long shutdown waits for sessions to be closed
	Debug           bool   `toml:"debug"`            // Trace every line received and sent

	MaxConnections      int `toml:"max_connections"`        // 0 = unlimited
	MaxConnectionsPerIP int `toml:"max_connections_per_ip"` // 0 = unlimited
}

// GetWriteTimeout parses the write timeout.
func (s *ServerConfig) GetWriteTimeout() (time.Duration, error) {
	if s.WriteTimeout == "" || s.WriteTimeout == "0" {
		return 0, nil
	}
	return helpers.ParseDuration(s.WriteTimeout)
}

// GetShutdownTimeout parses the shutdown timeout.
func (s *ServerConfig) GetShutdownTimeout() (time.Duration, error) {
	if s.ShutdownTimeout == "" {
		return 5 * time.Second, nil
	}
	return helpers.ParseDuration(s.ShutdownTimeout)
}

// MetricsConfig holds the HTTP endpoint exposing metrics and health.
type MetricsConfig struct {
	Start bool   `toml:"start"`
	Addr  string `toml:"addr"`
	Path  string `toml:"path"`
}

// Config holds all configuration for the application.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Server  ServerConfig  `toml:"server"`
	Metrics MetricsConfig `toml:"metrics"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Server: ServerConfig{
			Name:            "kiri",
			Addr:            DefaultAddr,
			Greeting:        DefaultGreeting,
			ReadBufferSize:  DefaultReadBufferSize,
			WriteTimeout:    "10s",
			ShutdownTimeout: "5s",
		},
		Metrics: MetricsConfig{
			Start: false,
			Addr:  DefaultMetricsAddr,
			Path:  DefaultMetricsPath,
		},
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.CredentialsFile == "" {
		return fmt.Errorf("server.credentials_file is required")
	}
	if err := validateAddr(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if c.Server.ReadBufferSize <= 0 {
		return fmt.Errorf("server.read_buffer_size must be positive, got %d", c.Server.ReadBufferSize)
	}
	if c.Server.MaxConnections < 0 || c.Server.MaxConnectionsPerIP < 0 {
		return fmt.Errorf("server.max_connections and server.max_connections_per_ip cannot be negative")
	}
	if strings.ContainsAny(c.Server.Greeting, "\r\n") {
		return fmt.Errorf("server.greeting must be a single line")
	}
	if _, err := c.Server.GetWriteTimeout(); err != nil {
		return fmt.Errorf("server.write_timeout: %w", err)
	}
	if _, err := c.Server.GetShutdownTimeout(); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	if c.Metrics.Start {
		if err := validateAddr(c.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
		}
		if c.Metrics.Addr == c.Server.Addr {
			return fmt.Errorf("metrics.addr and server.addr cannot both be %q", c.Server.Addr)
		}
	}
	return nil
}

// ApplyArgs applies the positional command line arguments
// "[users_file] [port]" over the loaded configuration. The port replaces
// only the port of server.addr and keeps its host.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("too many arguments: %q", args[2:])
	}
	if len(args) >= 1 {
		c.Server.CredentialsFile = strings.TrimSpace(args[0])
	}
	if len(args) == 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid port %q", args[1])
		}
		host, _, err := net.SplitHostPort(c.Server.Addr)
		if err != nil {
			host = ""
		}
		c.Server.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return nil
}

func validateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return err
	}
	return nil
}

// LoadConfigFromFile decodes a TOML file over cfg. Keys missing from the
// file keep their current values; unknown keys are reported but ignored.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	metadata, err := toml.Decode(string(content), cfg)
	if err != nil {
		return enhanceConfigError(err)
	}

	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		log.Printf("WARNING: Configuration file '%s' contains unknown keys that will be ignored:", configPath)
		for _, key := range undecoded {
			log.Printf("WARNING:   - %s", key)
		}
	}

	trimStringFields(reflect.ValueOf(cfg).Elem())
	return nil
}

// enhanceConfigError adds the position of a TOML parse error when available.
func enhanceConfigError(err error) error {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("configuration syntax error at line %d: %s", perr.Position.Line, perr.Message)
	}
	return fmt.Errorf("configuration error: %w", err)
}

// trimStringFields trims surrounding whitespace from every string field.
func trimStringFields(v reflect.Value) {
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(strings.TrimSpace(v.String()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			trimStringFields(v.Field(i))
		}
	case reflect.Ptr:
		if !v.IsNil() {
			trimStringFields(v.Elem())
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			trimStringFields(v.Index(i))
		}
	}
}
