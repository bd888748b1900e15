package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "ROOMBOARD"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "roomboard.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = LogFormatJSON
	defaultRedisChannelPrefix = "roomboard:changes:"
	defaultCollection         = "hotels"
	defaultHeartbeatInterval  = 25 * time.Second
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// AppConfig captures runtime configuration for the server and the CLI tools.
type AppConfig struct {
	HTTPAddress        string
	AllowedOrigins     []string
	HeartbeatInterval  time.Duration
	DatabasePath       string
	LogLevel           string
	LogFormat          string
	RedisAddress       string
	RedisChannelPrefix string
	Collection         string
}

// LoadEnvFile exports the variables of a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("http.heartbeat", defaultHeartbeatInterval)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.channel_prefix", defaultRedisChannelPrefix)
	configViper.SetDefault("collection", defaultCollection)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		AllowedOrigins:     configViper.GetStringSlice("http.allowed_origins"),
		HeartbeatInterval:  configViper.GetDuration("http.heartbeat"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		RedisAddress:       strings.TrimSpace(configViper.GetString("redis.address")),
		RedisChannelPrefix: configViper.GetString("redis.channel_prefix"),
		Collection:         strings.TrimSpace(configViper.GetString("collection")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatConsole {
		return fmt.Errorf("log.format must be %q or %q, got %q", LogFormatJSON, LogFormatConsole, c.LogFormat)
	}
	if c.RedisAddress != "" && strings.TrimSpace(c.RedisChannelPrefix) == "" {
		return fmt.Errorf("redis.channel_prefix is required when redis.address is set")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("http.heartbeat must be positive")
	}
	return nil
}
