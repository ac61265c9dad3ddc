package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from "90s"-style strings in every
// supported format and in environment variables. A bare integer is taken as
// seconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AutoJoin joins members of Group to Channel when they send USER
type AutoJoin struct {
	Group   string `yaml:"group" toml:"group" json:"group" validate:"required"`
	Channel string `yaml:"channel" toml:"channel" json:"channel" validate:"required,startswith=#"`
}

// Config represents the daemon configuration
type Config struct {
	// Server identity and listener
	Server struct {
		Name    string   `yaml:"name" toml:"name" json:"name" env:"IRCD_SERVER_NAME" validate:"required"`
		Network string   `yaml:"network" toml:"network" json:"network" env:"IRCD_NETWORK"`
		Version string   `yaml:"version" toml:"version" json:"version" env:"IRCD_VERSION"`
		Host    string   `yaml:"host" toml:"host" json:"host" env:"IRCD_HOST"`
		Port    int      `yaml:"port" toml:"port" json:"port" env:"IRCD_PORT" validate:"min=0,max=65535"`
		Created string   `yaml:"created" toml:"created" json:"created" env:"IRCD_CREATED"`
		MOTD    []string `yaml:"motd" toml:"motd" json:"motd" env:"IRCD_MOTD" envSeparator:"|"`
	} `yaml:"server" toml:"server" json:"server"`

	// Idle session supervision
	Keepalive struct {
		Interval  Duration `yaml:"interval" toml:"interval" json:"interval" env:"IRCD_KEEPALIVE_INTERVAL" validate:"gt=0"`
		PingAfter Duration `yaml:"ping_after" toml:"ping_after" json:"ping_after" env:"IRCD_KEEPALIVE_PING_AFTER" validate:"gt=0"`
		Timeout   Duration `yaml:"timeout" toml:"timeout" json:"timeout" env:"IRCD_KEEPALIVE_TIMEOUT" validate:"gtfield=PingAfter"`
	} `yaml:"keepalive" toml:"keepalive" json:"keepalive"`

	// Resource limits
	Limits struct {
		SendQueue     int     `yaml:"send_queue" toml:"send_queue" json:"send_queue" env:"IRCD_SEND_QUEUE" validate:"min=1"`
		MaxLineLength int     `yaml:"max_line_length" toml:"max_line_length" json:"max_line_length" env:"IRCD_MAX_LINE_LENGTH" validate:"min=0"`
		AcceptRate    float64 `yaml:"accept_rate" toml:"accept_rate" json:"accept_rate" env:"IRCD_ACCEPT_RATE" validate:"min=0"`
		AcceptBurst   int     `yaml:"accept_burst" toml:"accept_burst" json:"accept_burst" env:"IRCD_ACCEPT_BURST" validate:"min=0"`
	} `yaml:"limits" toml:"limits" json:"limits"`

	// Channel registry behavior
	Channels struct {
		ReapEmpty bool       `yaml:"reap_empty" toml:"reap_empty" json:"reap_empty" env:"IRCD_CHANNELS_REAP_EMPTY"`
		AutoJoin  []AutoJoin `yaml:"auto_join" toml:"auto_join" json:"auto_join" validate:"dive"`
	} `yaml:"channels" toml:"channels" json:"channels"`

	// Identity store
	Identity struct {
		DSN            string   `yaml:"dsn" toml:"dsn" json:"dsn" env:"IRCD_IDENTITY_DSN" validate:"required"`
		SeedFile       string   `yaml:"seed_file" toml:"seed_file" json:"seed_file" env:"IRCD_IDENTITY_SEED_FILE"`
		ConnectTimeout Duration `yaml:"connect_timeout" toml:"connect_timeout" json:"connect_timeout" env:"IRCD_IDENTITY_CONNECT_TIMEOUT" validate:"gt=0"`
	} `yaml:"identity" toml:"identity" json:"identity"`

	// Status HTTP API
	HTTP struct {
		Enabled      bool     `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCD_HTTP_ENABLED"`
		Host         string   `yaml:"host" toml:"host" json:"host" env:"IRCD_HTTP_HOST"`
		Port         int      `yaml:"port" toml:"port" json:"port" env:"IRCD_HTTP_PORT" validate:"min=0,max=65535"`
		BearerTokens []string `yaml:"bearer_tokens" toml:"bearer_tokens" json:"bearer_tokens" env:"IRCD_HTTP_TOKENS" envSeparator:","`
	} `yaml:"http" toml:"http" json:"http"`

	// Logging
	Log struct {
		Level  string `yaml:"level" toml:"level" json:"level" env:"IRCD_LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
		Format string `yaml:"format" toml:"format" json:"format" env:"IRCD_LOG_FORMAT" validate:"omitempty,oneof=text json"`
	} `yaml:"log" toml:"log" json:"log"`

	// Configuration source for reloading
	Source string `yaml:"-" toml:"-" json:"-"`
}

var validate = validator.New()

// Default returns a configuration holding only built-in defaults
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	c.Server.Name = "outlauth"
	c.Server.Network = "outlauth"
	c.Server.Version = "0.0"
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 6667
	c.Server.Created = "today"
	c.Server.MOTD = []string{"This is the message of the day."}

	c.Keepalive.Interval = Duration(60 * time.Second)
	c.Keepalive.PingAfter = Duration(3 * time.Minute)
	c.Keepalive.Timeout = Duration(4 * time.Minute)

	c.Limits.SendQueue = 256
	c.Limits.MaxLineLength = 8192

	c.Identity.DSN = "sqlite://authircd.db"
	c.Identity.ConnectTimeout = Duration(30 * time.Second)

	c.HTTP.Host = "127.0.0.1"
	c.HTTP.Port = 8080

	c.Log.Level = "info"
	c.Log.Format = "text"
}

// Load loads configuration from a file or URL. An empty source yields the
// defaults with environment overrides applied.
func Load(source string) (*Config, error) {
	cfg := Default()

	if source != "" {
		if err := cfg.loadFromSource(source); err != nil {
			return nil, err
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reload re-reads the loaded source, or newSource when given. The receiver
// is left untouched if the new configuration fails to load or validate.
func (c *Config) Reload(newSource string) error {
	source := c.Source
	if newSource != "" {
		source = newSource
	}

	newCfg := Default()
	if source != "" {
		if err := newCfg.loadFromSource(source); err != nil {
			return err
		}
	}
	if err := newCfg.finish(); err != nil {
		return err
	}

	*c = *newCfg
	return nil
}

// finish applies environment overrides and validates the result
func (c *Config) finish() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return c.Validate()
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// loadFromSource loads configuration from a file or URL
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if isURL(source) {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Format follows the extension, YAML otherwise
	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.Source = source
	return nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// GetListenAddress returns the IRC listener address
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetHTTPListenAddress returns the status API listener address
func (c *Config) GetHTTPListenAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// AutoJoinChannels returns the channels configured for any of groups, in
// configuration order and without duplicates.
func (c *Config) AutoJoinChannels(groups []string) []string {
	member := make(map[string]bool, len(groups))
	for _, g := range groups {
		member[g] = true
	}

	var channels []string
	seen := make(map[string]bool)
	for _, rule := range c.Channels.AutoJoin {
		if member[rule.Group] && !seen[rule.Channel] {
			seen[rule.Channel] = true
			channels = append(channels, rule.Channel)
		}
	}
	return channels
}
