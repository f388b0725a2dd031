package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the server configuration, read from RPSCHAT_* variables
type Config struct {
	Addr string `env:"RPSCHAT_ADDR" envDefault:":8080"`

	// Connection supervision
	HeartbeatInterval time.Duration `env:"RPSCHAT_HEARTBEAT_INTERVAL" envDefault:"5s"`
	ClientTimeout     time.Duration `env:"RPSCHAT_CLIENT_TIMEOUT" envDefault:"10s"`
	MailboxSize       int           `env:"RPSCHAT_MAILBOX_SIZE" envDefault:"256"`
	AllowedOrigins    []string      `env:"RPSCHAT_ALLOWED_ORIGINS" envSeparator:","`

	// Persistence; empty means the XDG data directory
	DatabasePath string `env:"RPSCHAT_DATABASE_PATH"`
	WriteQueue   int    `env:"RPSCHAT_WRITE_QUEUE" envDefault:"1024"`

	// Identity
	JWTSecret string `env:"RPSCHAT_JWT_SECRET"`
	JWTIssuer string `env:"RPSCHAT_JWT_ISSUER" envDefault:"rpschat"`

	// Tournaments
	GameNames      []string `env:"RPSCHAT_GAME_NAMES" envSeparator:"," envDefault:"Deadly Dispute,Supreme Battle,Ultimate Showdown,Quest for Glory"`
	DefaultGGScore int      `env:"RPSCHAT_DEFAULT_GG_SCORE" envDefault:"3"`

	// Logging
	LogFormat string `env:"RPSCHAT_LOG_FORMAT" envDefault:"text"`
	Debug     bool   `env:"RPSCHAT_DEBUG"`

	Ngrok Ngrok
}

// Ngrok configures the optional public tunnel
type Ngrok struct {
	Enabled   bool   `env:"NGROK_ENABLED"`
	AuthToken string `env:"NGROK_AUTHTOKEN"`
	Domain    string `env:"NGROK_DOMAIN"`
}

// DefaultDatabasePath is where the database lives when none is configured
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "rpschat", "rpschat.sqlite")
}

// Load reads envFile (if it exists) into the environment, then parses the
// environment. Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultDatabasePath()
	}
	return &cfg, nil
}

// Validate checks the settings that depend on each other
func (c *Config) Validate() error {
	var problems []string

	if c.Addr == "" {
		problems = append(problems, "listen address is empty")
	}
	if c.HeartbeatInterval <= 0 {
		problems = append(problems, "heartbeat interval must be positive")
	}
	if c.ClientTimeout <= c.HeartbeatInterval {
		problems = append(problems, "client timeout must exceed the heartbeat interval")
	}
	if c.MailboxSize < 1 {
		problems = append(problems, "mailbox size must be at least 1")
	}
	if c.JWTSecret == "" {
		problems = append(problems, "RPSCHAT_JWT_SECRET is required")
	}
	if len(c.Names()) == 0 {
		problems = append(problems, "game name pool is empty")
	}
	if c.DefaultGGScore < 1 {
		problems = append(problems, "default gg score must be at least 1")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}
	if c.Ngrok.Enabled && c.Ngrok.AuthToken == "" {
		problems = append(problems, "NGROK_AUTHTOKEN is required when ngrok is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Names returns the configured game name pool without blanks
func (c *Config) Names() []string {
	var names []string
	for _, n := range c.GameNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
