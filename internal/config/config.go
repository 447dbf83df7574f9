package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Redis      RedisConfig
	Sync       SyncConfig
	Attendance AttendanceConfig
	Auth       AuthConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds the shared document store configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/mealsync.db"`
}

// CacheConfig holds the device-local durable cache configuration.
type CacheConfig struct {
	Path string `env:"CACHE_PATH" envDefault:"data/mealsync-cache.db"`
}

// RedisConfig holds the push transport configuration. An empty Addr
// selects the polling fallback transport.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// SyncConfig holds sync behavior configuration.
type SyncConfig struct {
	MembersPollEvery    time.Duration `env:"SYNC_MEMBERS_POLL_EVERY" envDefault:"10s"`
	AttendancePollEvery time.Duration `env:"SYNC_ATTENDANCE_POLL_EVERY" envDefault:"5s"`
}

// AttendanceConfig holds deadline policy configuration. Meal times are
// "15:04" strings; leaving one empty puts that meal on the grace-period
// deadline instead of a scheduled one.
type AttendanceConfig struct {
	GraceMinutes        int    `env:"ATTENDANCE_GRACE_MINUTES" envDefault:"30"`
	DeadlineLeadMinutes int    `env:"ATTENDANCE_DEADLINE_LEAD_MINUTES" envDefault:"0"`
	BreakfastAt         string `env:"ATTENDANCE_BREAKFAST_AT"`
	LunchAt             string `env:"ATTENDANCE_LUNCH_AT"`
	DinnerAt            string `env:"ATTENDANCE_DINNER_AT"`
	AllowExpired        bool   `env:"ATTENDANCE_ALLOW_EXPIRED" envDefault:"false"`
}

// AuthConfig holds token signing configuration.
type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenDuration time.Duration `env:"JWT_TOKEN_DURATION" envDefault:"720h"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Cache); err != nil {
		return nil, fmt.Errorf("parsing cache config: %w", err)
	}
	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, fmt.Errorf("parsing redis config: %w", err)
	}
	if err := env.Parse(&cfg.Sync); err != nil {
		return nil, fmt.Errorf("parsing sync config: %w", err)
	}
	if err := env.Parse(&cfg.Attendance); err != nil {
		return nil, fmt.Errorf("parsing attendance config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsePush returns true when a redis backend is configured.
func (c *Config) UsePush() bool {
	return c.Redis.Addr != ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Attendance.GraceMinutes < 0 {
		return fmt.Errorf("ATTENDANCE_GRACE_MINUTES must not be negative")
	}
	if c.Attendance.DeadlineLeadMinutes < 0 {
		return fmt.Errorf("ATTENDANCE_DEADLINE_LEAD_MINUTES must not be negative")
	}
	for name, at := range map[string]string{
		"ATTENDANCE_BREAKFAST_AT": c.Attendance.BreakfastAt,
		"ATTENDANCE_LUNCH_AT":     c.Attendance.LunchAt,
		"ATTENDANCE_DINNER_AT":    c.Attendance.DinnerAt,
	} {
		if at == "" {
			continue
		}
		if _, err := time.Parse("15:04", at); err != nil {
			return fmt.Errorf("%s must be HH:MM, got %q", name, at)
		}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format)
	}
	return nil
}
