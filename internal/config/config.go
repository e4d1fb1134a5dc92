// Package config loads runtime settings from the environment and an
// optional config.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port     int
	LogLevel slog.Level

	// Storage
	DBPath string

	// Auth
	SessionSecret string
	SessionTTL    time.Duration
	APITokenTTL   time.Duration
	BcryptCost    int
	SecureCookie  bool

	// Activity stream; no brokers means events are discarded.
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaWriteTimeout time.Duration

	// Maintenance
	TokenSweepSchedule string
}

// Load reads configuration through v. Pass viper.New() in production; tests
// pass a viper they have primed with Set.
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_PATH", "data/microblog.db")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("API_TOKEN_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SECURE_COOKIE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "microblog-activity")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")
	v.SetDefault("TOKEN_SWEEP_SCHEDULE", "@every 10m")

	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:               v.GetInt("PORT"),
		DBPath:             v.GetString("DB_PATH"),
		SessionSecret:      v.GetString("SESSION_SECRET"),
		SessionTTL:         v.GetDuration("SESSION_TTL"),
		APITokenTTL:        v.GetDuration("API_TOKEN_TTL"),
		BcryptCost:         v.GetInt("BCRYPT_COST"),
		SecureCookie:       v.GetBool("SECURE_COOKIE"),
		KafkaBrokers:       splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:         v.GetString("KAFKA_TOPIC"),
		KafkaWriteTimeout:  v.GetDuration("KAFKA_WRITE_TIMEOUT"),
		TokenSweepSchedule: v.GetString("TOKEN_SWEEP_SCHEDULE"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("config: DB_PATH must not be empty")
	}
	if len(c.SessionSecret) < 16 {
		return errors.New("config: SESSION_SECRET must be set to at least 16 characters")
	}
	if c.SessionTTL <= 0 || c.APITokenTTL <= 0 {
		return errors.New("config: SESSION_TTL and API_TOKEN_TTL must be positive durations")
	}
	// Tokens are reused only when they outlive the next minute, so a TTL at or
	// under a minute would mint a new token on every request.
	if c.APITokenTTL <= time.Minute {
		return fmt.Errorf("config: API_TOKEN_TTL %s must be longer than 1m", c.APITokenTTL)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("config: KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// splitList turns "a:9092, b:9092" into ["a:9092" "b:9092"].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
