package config

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"

	ChangefeedSourceStore = "store"
	ChangefeedSourceNATS  = "nats"

	DefaultBuildID = "dev"
)

// Config is the server configuration, read from the environment and an
// optional YAML file.
type Config struct {
	Port             string
	StoreDriver      string
	BadgerPath       string
	ChangefeedSource string
	NATSURL          string
	StaticDir        string
	BundleFile       string
	BuildID          string
	LogLevel         string
	ConfigFile       string

	Live LiveConfig
	CORS CORSConfig
}

// LiveConfig tunes the WebSocket layer and the car/track debounce.
type LiveConfig struct {
	DebounceWindow time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// fileConfig mirrors the YAML layout. Durations are strings such as "500ms".
type fileConfig struct {
	Live struct {
		DebounceWindow string `yaml:"debounce_window"`
		WriteTimeout   string `yaml:"write_timeout"`
		ReadTimeout    string `yaml:"read_timeout"`
		PingInterval   string `yaml:"ping_interval"`
		MaxMessageSize int64  `yaml:"max_message_size"`
		SendBuffer     int    `yaml:"send_buffer"`
	} `yaml:"live"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		StoreDriver:      StoreDriverPostgres,
		BadgerPath:       "data/badger",
		ChangefeedSource: ChangefeedSourceStore,
		StaticDir:        "static",
		BundleFile:       "static/bundle.js",
		LogLevel:         "info",
		Live: LiveConfig{
			DebounceWindow: 500 * time.Millisecond,
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 4096,
			SendBuffer:     256,
		},
		CORS: CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Load reads the environment, then CONFIG_FILE if one is named.
func Load() (*Config, error) {
	cfg := Default()
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.BadgerPath = getEnv("BADGER_PATH", cfg.BadgerPath)
	cfg.ChangefeedSource = getEnv("CHANGEFEED_SOURCE", cfg.ChangefeedSource)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.BundleFile = getEnv("BUNDLE_FILE", cfg.BundleFile)
	cfg.BuildID = getEnv("BUILD_ID", cfg.BuildID)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ConfigFile = getEnv("CONFIG_FILE", cfg.ConfigFile)
	cfg.Live.DebounceWindow = getEnvAsDuration("DEBOUNCE_WINDOW", cfg.Live.DebounceWindow)
	cfg.Live.SendBuffer = getEnvAsInt("LIVE_SEND_BUFFER", cfg.Live.SendBuffer)

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"live.debounce_window", fc.Live.DebounceWindow, &c.Live.DebounceWindow},
		{"live.write_timeout", fc.Live.WriteTimeout, &c.Live.WriteTimeout},
		{"live.read_timeout", fc.Live.ReadTimeout, &c.Live.ReadTimeout},
		{"live.ping_interval", fc.Live.PingInterval, &c.Live.PingInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if fc.Live.MaxMessageSize > 0 {
		c.Live.MaxMessageSize = fc.Live.MaxMessageSize
	}
	if fc.Live.SendBuffer > 0 {
		c.Live.SendBuffer = fc.Live.SendBuffer
	}
	if len(fc.CORS.AllowedOrigins) > 0 {
		c.CORS.AllowedOrigins = fc.CORS.AllowedOrigins
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverBadger:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.ChangefeedSource {
	case ChangefeedSourceStore, ChangefeedSourceNATS:
	default:
		return fmt.Errorf("unknown CHANGEFEED_SOURCE %q", c.ChangefeedSource)
	}
	if c.ChangefeedSource == ChangefeedSourceNATS && c.NATSURL == "" {
		return errors.New("NATS_URL is required when CHANGEFEED_SOURCE is nats")
	}
	if c.Live.DebounceWindow <= 0 {
		return errors.New("debounce window must be positive")
	}
	return nil
}

// ResolveBuildID returns BUILD_ID when set, else the md5 of the client bundle so
// clients notice a redeploy, else "dev".
func (c *Config) ResolveBuildID() string {
	if c.BuildID != "" {
		return c.BuildID
	}
	data, err := os.ReadFile(c.BundleFile)
	if err != nil {
		return DefaultBuildID
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsInt reads an integer variable, falling back on a missing or bad value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
