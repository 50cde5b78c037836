package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Store selection. memory needs nothing, redis needs REDIS_ADDR,
	// postgres needs DATABASE_URL.
	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`

	// Streaming.
	TickInterval   time.Duration `mapstructure:"TICK_INTERVAL"`
	SendBufferSize int           `mapstructure:"SEND_BUFFER"`

	// Notification delivery.
	PushEndpoint   string        `mapstructure:"PUSH_ENDPOINT"`
	PushAPIKey     string        `mapstructure:"PUSH_API_KEY"`
	SMTPAddr       string        `mapstructure:"SMTP_ADDR"`
	SMTPFrom       string        `mapstructure:"SMTP_FROM"`
	SMTPUsername   string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword   string        `mapstructure:"SMTP_PASSWORD"`
	NotifyTimeout  time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	SoundThreshold float64       `mapstructure:"SOUND_THRESHOLD"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORE_DRIVER", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TICK_INTERVAL", "3s")
	v.SetDefault("SEND_BUFFER", 256)
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("SOUND_THRESHOLD", 70)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("STORE_DRIVER")
	v.BindEnv("REDIS_ADDR")
	v.BindEnv("REDIS_PASSWORD")
	v.BindEnv("REDIS_DB")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("TICK_INTERVAL")
	v.BindEnv("SEND_BUFFER")
	v.BindEnv("PUSH_ENDPOINT")
	v.BindEnv("PUSH_API_KEY")
	v.BindEnv("SMTP_ADDR")
	v.BindEnv("SMTP_FROM")
	v.BindEnv("SMTP_USERNAME")
	v.BindEnv("SMTP_PASSWORD")
	v.BindEnv("NOTIFY_TIMEOUT")
	v.BindEnv("SOUND_THRESHOLD")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The chosen store
// driver must have its connection settings present, and the streaming knobs
// must be positive.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STORE_DRIVER is \"redis\"")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is \"postgres\"")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be \"memory\", \"redis\", or \"postgres\", got %q", c.StoreDriver)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBufferSize)
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive, got %s", c.NotifyTimeout)
	}
	if c.SoundThreshold <= 0 {
		return fmt.Errorf("SOUND_THRESHOLD must be positive, got %v", c.SoundThreshold)
	}

	// SMTP is optional; when configured, a sender address is required.
	if c.SMTPAddr != "" && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_ADDR is set")
	}

	return nil
}
