package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"pulsewire/internal/apps"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Replication ReplicationConfig
	Webhooks    WebhooksConfig
	Statistics  StatisticsConfig
	Apps        []apps.App
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the optional Postgres backing for the app
// registry and the statistics store. An empty URI keeps both in memory.
type DatabaseConfig struct {
	URI string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// ReplicationConfig selects the replication driver: "local" for a single
// process, "redis" for clustered deployments.
type ReplicationConfig struct {
	Driver string
}

type WebhooksConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type StatisticsConfig struct {
	Enabled  bool
	Interval time.Duration
}

// appDefinition is the JSON shape of one entry in PULSEWIRE_APPS.
type appDefinition struct {
	ID                    string   `json:"id"`
	Key                   string   `json:"key"`
	Secret                string   `json:"secret"`
	Name                  string   `json:"name"`
	Host                  string   `json:"host"`
	AllowedOrigins        []string `json:"allowed_origins"`
	ClientMessagesEnabled bool     `json:"enable_client_messages"`
	StatisticsEnabled     bool     `json:"enable_statistics"`
	Capacity              int      `json:"capacity"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("PULSEWIRE_HOST", "")
	viper.SetDefault("PULSEWIRE_PORT", "6001")
	viper.SetDefault("PULSEWIRE_READ_TIMEOUT", 30*time.Second)
	viper.SetDefault("PULSEWIRE_WRITE_TIMEOUT", 30*time.Second)
	viper.SetDefault("PULSEWIRE_IDLE_TIMEOUT", 60*time.Second)
	viper.SetDefault("PULSEWIRE_REPLICATION_DRIVER", "local")
	viper.SetDefault("PULSEWIRE_WEBHOOKS_ENABLED", false)
	viper.SetDefault("PULSEWIRE_WEBHOOKS_BROKERS", []string{"localhost:9092"})
	viper.SetDefault("PULSEWIRE_WEBHOOKS_TOPIC", "pulsewire.webhooks")
	viper.SetDefault("PULSEWIRE_STATISTICS_ENABLED", false)
	viper.SetDefault("PULSEWIRE_STATISTICS_INTERVAL", time.Minute)
	viper.SetDefault("PULSEWIRE_APPS", `[{"id":"1","key":"app-key","secret":"app-secret","name":"default","enable_client_messages":true}]`)
	viper.SetDefault("POSTGRES_URI", "")
	viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_MAX_RETRIES", 3)
	viper.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	viper.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	viper.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	viper.SetDefault("REDIS_POOL_SIZE", 100)
	viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	viper.AutomaticEnv()

	var defs []appDefinition
	if raw := viper.GetString("PULSEWIRE_APPS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &defs); err != nil {
			return nil, fmt.Errorf("parse PULSEWIRE_APPS: %w", err)
		}
	}
	appList := make([]apps.App, 0, len(defs))
	for _, def := range defs {
		appList = append(appList, apps.App{
			ID:                    def.ID,
			Key:                   def.Key,
			Secret:                def.Secret,
			Name:                  def.Name,
			Host:                  def.Host,
			AllowedOrigins:        def.AllowedOrigins,
			ClientMessagesEnabled: def.ClientMessagesEnabled,
			StatisticsEnabled:     def.StatisticsEnabled,
			Capacity:              def.Capacity,
		})
	}

	driver := viper.GetString("PULSEWIRE_REPLICATION_DRIVER")
	if driver != "local" && driver != "redis" {
		return nil, fmt.Errorf("unknown replication driver %q", driver)
	}

	return &Config{
		Server: ServerConfig{
			Host:         viper.GetString("PULSEWIRE_HOST"),
			Port:         viper.GetString("PULSEWIRE_PORT"),
			ReadTimeout:  viper.GetDuration("PULSEWIRE_READ_TIMEOUT"),
			WriteTimeout: viper.GetDuration("PULSEWIRE_WRITE_TIMEOUT"),
			IdleTimeout:  viper.GetDuration("PULSEWIRE_IDLE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URI: viper.GetString("POSTGRES_URI"),
		},
		Redis: RedisConfig{
			Addr:         viper.GetString("REDIS_ADDR"),
			Password:     viper.GetString("REDIS_PASSWORD"),
			DB:           viper.GetInt("REDIS_DB"),
			MaxRetries:   viper.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Replication: ReplicationConfig{
			Driver: driver,
		},
		Webhooks: WebhooksConfig{
			Enabled: viper.GetBool("PULSEWIRE_WEBHOOKS_ENABLED"),
			Brokers: viper.GetStringSlice("PULSEWIRE_WEBHOOKS_BROKERS"),
			Topic:   viper.GetString("PULSEWIRE_WEBHOOKS_TOPIC"),
		},
		Statistics: StatisticsConfig{
			Enabled:  viper.GetBool("PULSEWIRE_STATISTICS_ENABLED"),
			Interval: viper.GetDuration("PULSEWIRE_STATISTICS_INTERVAL"),
		},
		Apps: appList,
	}, nil
}
