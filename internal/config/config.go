package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Event drivers.
const (
	EventsNone  = "none"
	EventsRedis = "redis"
	EventsKafka = "kafka"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Database DBConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Events   EventsConfig
	Market   MarketConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type StorageConfig struct {
	Driver string
}

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Queue    string
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type EventsConfig struct {
	Driver string
}

type MarketConfig struct {
	SweepInterval time.Duration
}

// Load reads configuration from an optional .env file and the environment.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] Config file not found, using environment and defaults: %v", err)
	} else {
		applyFileValues(v)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  splitList(v.GetString("server.allowed_origins")),
		},
		Storage: StorageConfig{Driver: strings.ToLower(v.GetString("storage.driver"))},
		Database: DBConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Queue:    v.GetString("redis.queue"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Events: EventsConfig{Driver: strings.ToLower(v.GetString("events.driver"))},
		Market: MarketConfig{SweepInterval: v.GetDuration("market.sweep_interval")},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Events.Driver {
	case EventsNone, EventsRedis:
	case EventsKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("events driver kafka needs KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	if c.Market.SweepInterval < 0 {
		return fmt.Errorf("market sweep interval must not be negative, got %s", c.Market.SweepInterval)
	}
	return nil
}

var envBindings = map[string]string{
	"server.port":                "PORT",
	"server.read_timeout":        "SERVER_READ_TIMEOUT",
	"server.write_timeout":       "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":        "SERVER_IDLE_TIMEOUT",
	"server.shutdown_timeout":    "SERVER_SHUTDOWN_TIMEOUT",
	"server.allowed_origins":     "CORS_ALLOWED_ORIGINS",
	"storage.driver":             "STORAGE_DRIVER",
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",
	"redis.host":                 "REDIS_HOST",
	"redis.port":                 "REDIS_PORT",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"redis.queue":                "REDIS_QUEUE",
	"kafka.brokers":              "KAFKA_BROKERS",
	"kafka.topic":                "KAFKA_TOPIC",
	"events.driver":              "EVENTS_DRIVER",
	"market.sweep_interval":      "MARKET_SWEEP_INTERVAL",
}

func bindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		v.BindEnv(key, env)
	}
}

// applyFileValues lifts the flat keys of the .env file (storage_driver) onto
// the dotted keys (storage.driver). They sit below the environment and above
// the built-in defaults.
func applyFileValues(v *viper.Viper) {
	for key, env := range envBindings {
		fileKey := strings.ToLower(env)
		if v.InConfig(fileKey) {
			v.SetDefault(key, v.Get(fileKey))
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", "https://*,http://*")

	v.SetDefault("storage.driver", StorageMemory)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "tab_market")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "market:purchases")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "purchase_completed")

	v.SetDefault("events.driver", EventsNone)
	v.SetDefault("market.sweep_interval", time.Minute)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
