package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level struct that holds all configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Trade       TradeConfig       `mapstructure:"trade"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Mongo       MongoConfig       `mapstructure:"mongo"`
	Seed        SeedConfig        `mapstructure:"seed"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // debug | release | test
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig selects and configures the store. Driver is "postgres" or "memory".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	AccessTTL   time.Duration `mapstructure:"access_ttl"`
	RefreshTTL  time.Duration `mapstructure:"refresh_ttl"`
	DevLogin    bool          `mapstructure:"dev_login"`
	AdminEmails []string      `mapstructure:"admin_emails"`
}

// TradeConfig holds execution rules. PriceTolerance is the allowed relative
// distance between the order price and the registry price; a negative value
// accepts any client-supplied price.
type TradeConfig struct {
	PriceTolerance float64 `mapstructure:"price_tolerance"`
}

type LeaderboardConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PublicLimit int           `mapstructure:"public_limit"`
}

type SimulationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	MaxChange float64       `mapstructure:"max_change"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type SeedConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.request_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5433)
	v.SetDefault("database.user", "trader")
	v.SetDefault("database.password", "trading123")
	v.SetDefault("database.name", "trading_db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", 2*time.Hour)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.dev_login", false)
	v.SetDefault("auth.admin_emails", []string{})

	v.SetDefault("trade.price_tolerance", 0.05)

	v.SetDefault("leaderboard.interval", 5*time.Minute)
	v.SetDefault("leaderboard.public_limit", 100)

	v.SetDefault("simulation.enabled", false)
	v.SetDefault("simulation.interval", time.Minute)
	v.SetDefault("simulation.max_change", 0.05)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "stockgame-events")

	v.SetDefault("mongo.enabled", false)
	v.SetDefault("mongo.url", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "stockgame")
	v.SetDefault("mongo.collection", "leaderboard_snapshots")

	v.SetDefault("seed.path", "config/seed.yml")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// legacyEnv keeps the short variable names working next to the derived ones.
var legacyEnv = map[string][]string{
	"server.port":       {"SERVER_PORT", "PORT"},
	"server.mode":       {"SERVER_MODE", "GIN_MODE"},
	"database.host":     {"DATABASE_HOST", "DB_HOST"},
	"database.port":     {"DATABASE_PORT", "DB_PORT"},
	"database.user":     {"DATABASE_USER", "DB_USER"},
	"database.password": {"DATABASE_PASSWORD", "DB_PASSWORD"},
	"database.name":     {"DATABASE_NAME", "DB_NAME"},
	"auth.jwt_secret":   {"AUTH_JWT_SECRET", "JWT_SECRET"},
}

// LoadConfig reads defaults, then the optional YAML file at path, then the
// environment. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Mode == "release" && c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required in release mode")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Leaderboard.Interval <= 0 {
		return errors.New("config: leaderboard.interval must be positive")
	}
	if c.Leaderboard.PublicLimit < 0 {
		return errors.New("config: leaderboard.public_limit must not be negative")
	}
	if c.Simulation.Enabled && c.Simulation.Interval <= 0 {
		return errors.New("config: simulation.interval must be positive")
	}
	if c.Simulation.MaxChange < 0 || c.Simulation.MaxChange >= 1 {
		return errors.New("config: simulation.max_change must be in [0, 1)")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("config: auth token lifetimes must be positive")
	}
	return nil
}
