package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// ClientConfig настройки CLI клиента звонка. Флаги cobra перекрывают значения из окружения.
type ClientConfig struct {
	ServerURL string `env:"PAIRCALL_SERVER" envDefault:"http://localhost:3000"`
	Identity  string `env:"PAIRCALL_IDENTITY"`
	Token     string `env:"PAIRCALL_TOKEN"`

	STUNServers []string `env:"STUN_SERVERS" envSeparator:"," envDefault:"stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302"`
	FetchICE    bool     `env:"PAIRCALL_FETCH_ICE" envDefault:"true"`

	VideoFile string `env:"PAIRCALL_VIDEO"`
	AudioFile string `env:"PAIRCALL_AUDIO"`
	Silence   bool   `env:"PAIRCALL_SILENCE" envDefault:"false"`

	RetryAttempts uint64        `env:"PAIRCALL_RETRY_ATTEMPTS" envDefault:"5"`
	RetryBase     time.Duration `env:"PAIRCALL_RETRY_BASE" envDefault:"200ms"`
	IdleTimeout   time.Duration `env:"PAIRCALL_IDLE_TIMEOUT" envDefault:"0s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"error"`
}

func NewClient() (*ClientConfig, error) {
	c, err := env.ParseAs[ClientConfig]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &c, nil
}

func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}

	if c.Identity == "" && c.Token == "" {
		return fmt.Errorf("either identity or token is required")
	}

	if c.RetryBase <= 0 {
		return fmt.Errorf("retry base must be positive, got %s", c.RetryBase)
	}

	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout)
	}

	return nil
}

// SlogLevel переводит LOG_LEVEL в уровень slog. По умолчанию показываем только ошибки.
func (c *ClientConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
