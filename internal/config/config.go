package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Rep4RepKey        string  `env:"REP4REP_KEY"`
	Rep4RepURL        string  `env:"REP4REP_URL" envDefault:"https://rep4rep.com/pub-api"`
	Rep4RepRatePerSec float64 `env:"REP4REP_RATE_PER_SEC" envDefault:"2"`
	DatabaseURL       string  `env:"DATABASE_URL" envDefault:"steamprofiles.db"`
	EncryptionKey     string  `env:"ENCRYPTION_KEY"`
	CommentDelayMs    int     `env:"COMMENT_DELAY" envDefault:"15000"`
	LoginDelayMs      int     `env:"LOGIN_DELAY" envDefault:"30000"`
	RegisterDelayMs   int     `env:"REGISTER_DELAY" envDefault:"30000"`
	MaxComments       int     `env:"MAX_COMMENTS" envDefault:"10"`
	AccountsFile      string  `env:"ACCOUNTS_FILE" envDefault:"accounts.txt"`
	RedisURL          string  `env:"REDIS_URL"`
	RunLockTTLSeconds int     `env:"RUN_LOCK_TTL_SECONDS" envDefault:"21600"`
	DaemonIntervalMin int     `env:"DAEMON_INTERVAL_MINUTES" envDefault:"60"`
	Port              int     `env:"PORT" envDefault:"8080"`
	APIToken          string  `env:"API_TOKEN"`
	LogLevel          string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFile           string  `env:"LOG_FILE"`
	LogMaxSizeMB      int     `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	LogMaxBackups     int     `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays     int     `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

func (c *Config) CommentDelay() time.Duration {
	return time.Duration(c.CommentDelayMs) * time.Millisecond
}

func (c *Config) LoginDelay() time.Duration {
	return time.Duration(c.LoginDelayMs) * time.Millisecond
}

func (c *Config) RegisterDelay() time.Duration {
	return time.Duration(c.RegisterDelayMs) * time.Millisecond
}

func (c *Config) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLSeconds) * time.Second
}

func (c *Config) DaemonInterval() time.Duration {
	return time.Duration(c.DaemonIntervalMin) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// IsPostgres reports whether DATABASE_URL points at postgres rather than a
// sqlite file.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// Validate checks settings every command depends on. API access is checked
// separately by RequireAPIKey since list/remove work offline.
func (c *Config) Validate() error {
	if c.MaxComments <= 0 {
		return fmt.Errorf("MAX_COMMENTS must be positive, got %d", c.MaxComments)
	}
	if c.CommentDelayMs < 0 || c.LoginDelayMs < 0 || c.RegisterDelayMs < 0 {
		return fmt.Errorf("COMMENT_DELAY, LOGIN_DELAY and REGISTER_DELAY must not be negative")
	}
	if c.EncryptionKey != "" {
		key, err := hex.DecodeString(c.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 64 hex chars (generate with: openssl rand -hex 32)")
		}
	} else {
		log.Warn().Msg("ENCRYPTION_KEY is empty: passwords and shared secrets are stored in plaintext")
	}
	return nil
}

func (c *Config) RequireAPIKey() error {
	if c.Rep4RepKey == "" {
		return fmt.Errorf("REP4REP_KEY is required")
	}
	return nil
}

// Load reads an optional .env file from the working directory, then parses
// the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
