package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`

	// JWTSecret - если пустой, идентификатор участника берётся из X-Participant-ID
	JWTSecret string `env:"JWT_SECRET"`

	Store       string        `env:"STORE" envDefault:"memory"`
	AutoMigrate bool          `env:"AUTO_MIGRATE" envDefault:"false"`
	PollEvery   time.Duration `env:"STORE_POLL_INTERVAL" envDefault:"250ms"`

	STUNServers []string `env:"STUN_SERVERS" envSeparator:"," envDefault:"stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302"`

	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	CoturnServer CoturnConfig
	TurnServer   TurnServerConfig
	Postgres     PostgresConfig
}

// TurnServerConfig - встроенный TURN. Креды те же, что выдаёт /ice по COTURN_SECRET.
type TurnServerConfig struct {
	Enabled  bool   `env:"TURN_ENABLED" envDefault:"false"`
	PublicIP string `env:"TURN_PUBLIC_IP"`
	Port     int    `env:"TURN_PORT" envDefault:"3478"`
	Realm    string `env:"TURN_REALM" envDefault:"paircall"`
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"paircall"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

type CoturnConfig struct {
	// Host - пустой хост отключает TURN, остаётся только STUN
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret - нужен для генерации временных кредов для клиентов
	Secret string `env:"COTURN_SECRET"`
	TTL    time.Duration `env:"COTURN_CREDENTIALS_TTL" envDefault:"1h"`
}

func (c *CoturnConfig) Enabled() bool {
	return c.Host != ""
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// встроенный TURN объявляется клиентам так же, как внешний coturn
	if c.TurnServer.Enabled && c.CoturnServer.Host == "" {
		c.CoturnServer.Host = fmt.Sprintf("%s:%d", c.TurnServer.PublicIP, c.TurnServer.Port)
	}

	if err = c.validate(); err != nil {
		return nil, err
	}

	if c.CoturnServer.Enabled() {
		c.TurnUDPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}

		c.TurnTCPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}
	}

	return &c, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q: expected %q or %q", c.Store, StoreMemory, StorePostgres)
	}

	if c.PollEvery <= 0 {
		return fmt.Errorf("store poll interval must be positive, got %s", c.PollEvery)
	}

	if c.TurnServer.Enabled && c.TurnServer.PublicIP == "" {
		return fmt.Errorf("TURN_PUBLIC_IP is required when TURN_ENABLED is set")
	}

	if c.CoturnServer.Enabled() && c.CoturnServer.Secret == "" {
		return fmt.Errorf("COTURN_SECRET is required when COTURN_HOST is set")
	}

	return nil
}

// STUN возвращает STUN сервера в виде webrtc.ICEServer
func (c *Config) STUN() webrtc.ICEServer {
	return webrtc.ICEServer{URLs: c.STUNServers}
}
