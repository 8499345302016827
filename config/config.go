package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

type Config struct {
	Marquee  MarqueeConfig
	Pushover PushoverConfig
	Update   UpdateConfig
}

type MarqueeConfig struct {
	ServerURL       string `env:"SIGNAGE_SERVER_URL"`
	DeviceID        string `env:"DEVICE_ID"`
	CheckinInterval int    `env:"CHECKIN_INTERVAL"` // seconds
	StartupDelay    int    `env:"STARTUP_DELAY"`    // seconds
	MediaDir        string `env:"MEDIA_DIR"`
	DbPath          string `env:"DB_PATH"`
	LogLevel        string `env:"LOG_LEVEL"`
	LogFile         string `env:"LOG_FILE"`
	HTTPAddr        string `env:"HTTP_ADDR"`
	ScreenIndex     int    `env:"SCREEN_INDEX"`
}

type PushoverConfig struct {
	Recipient string `env:"PUSHOVER_RECIPIENT"`
	Token     string `env:"PUSHOVER_TOKEN"`
}

type UpdateConfig struct {
	Secret string `env:"UPDATE_SECRET"`
}

// Load reads configuration from an optional .env file and the environment.
// Values absent from both keep the defaults below.
func Load() (*Config, error) {
	cfg := &Config{
		Marquee: MarqueeConfig{
			CheckinInterval: 60,
			MediaDir:        "/var/lib/marquee/media",
			DbPath:          "/var/lib/marquee/marquee.db",
			LogLevel:        "info",
			HTTPAddr:        "127.0.0.1:8666",
		},
	}

	c := config.New()
	if _, err := os.Stat(".env"); err == nil {
		c.AddFeeder(feeder.DotEnv{Path: ".env"})
	}
	c.AddFeeder(feeder.Env{})
	c.AddStruct(cfg)

	if err := c.Feed(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate separates fatal misconfiguration from everything else. A device
// without an identity or a server can never do useful work, so the process
// must exit before the first checkin rather than retry forever.
func (c *Config) Validate() error {
	if c.Marquee.DeviceID == "" {
		return errors.New("DEVICE_ID must be provided")
	}
	if c.Marquee.ServerURL == "" {
		return errors.New("SIGNAGE_SERVER_URL must be provided")
	}
	if c.Marquee.CheckinInterval < 1 {
		return errors.New("CHECKIN_INTERVAL must be at least one second")
	}
	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Marquee.CheckinInterval) * time.Second
}

func (c *Config) StartupDelay() time.Duration {
	return time.Duration(c.Marquee.StartupDelay) * time.Second
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Marquee.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
