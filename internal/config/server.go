package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/BioHazard786/Huddle/internal/logging"
)

// Registry drivers.
const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// ServerConfig configures the directory server.
type ServerConfig struct {
	Addr       string          `mapstructure:"addr"`
	InstanceID string          `mapstructure:"instance_id"`
	Registry   RegistryConfig  `mapstructure:"registry"`
	Redis      RedisConfig     `mapstructure:"redis"`
	WebSocket  WebSocketConfig `mapstructure:"websocket"`
	Log        logging.Config  `mapstructure:"log"`
}

type RegistryConfig struct {
	Driver string `mapstructure:"driver"`

	// TTL bounds how long a claim outlives a crashed instance. Live
	// instances refresh their claims at a third of it.
	TTL time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WebSocketConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// PingPeriod must be shorter than PongWait.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return w.PongWait * 9 / 10
}

// LoadServer reads the server configuration from path (or huddle.yaml in
// the working directory or ./config) and HUDDLE_ prefixed environment
// variables, e.g. HUDDLE_REDIS_ADDRESS.
func LoadServer(path string) (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("huddle")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("instance_id", "")
	v.SetDefault("registry.driver", RegistryMemory)
	v.SetDefault("registry.ttl", "30s")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.max_message_size", 64*1024)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.service", "huddle-directory")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	switch c.Registry.Driver {
	case RegistryMemory, RegistryRedis:
	default:
		return fmt.Errorf("unknown registry driver %q", c.Registry.Driver)
	}
	if c.Registry.TTL < time.Second {
		return fmt.Errorf("registry ttl %s is too short", c.Registry.TTL)
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return errors.New("websocket send buffer must be positive")
	}
	return nil
}
