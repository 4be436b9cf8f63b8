package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session storage drivers.
const (
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config aggregates all runtime settings required by the client.
type Config struct {
	AppName     string
	Environment string
	Locale      string
	API         APIConfig
	Session     SessionConfig
	Redis       RedisConfig
	Context     ContextConfig
	Logger      LoggerConfig
}

type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type SessionConfig struct {
	Driver  string
	Path    string
	Profile string
}

type RedisConfig struct {
	URL         string
	Password    string
	DB          int
	Prefix      string
	PingTimeout time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the client works without any setup.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "magiclink"),
		Environment: getString("APP_ENV", "development"),
		Locale:      getString("LOCALE", "en"),
		API: APIConfig{
			BaseURL:   strings.TrimRight(getString("API_URL", "http://localhost:3000"), "/"),
			Timeout:   getDuration("API_TIMEOUT", 10*time.Second),
			UserAgent: getString("API_USER_AGENT", "magiclink-client"),
		},
		Session: SessionConfig{
			Driver:  strings.ToLower(getString("SESSION_DRIVER", DriverBolt)),
			Path:    getString("SESSION_PATH", defaultSessionPath()),
			Profile: getString("SESSION_PROFILE", "default"),
		},
		Redis: RedisConfig{
			URL:         getString("REDIS_URL", "redis://localhost:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          getInt("REDIS_DB", 0),
			Prefix:      getString("REDIS_PREFIX", "magiclink:session:"),
			PingTimeout: getDuration("REDIS_PING_TIMEOUT", 2*time.Second),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 30*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 5*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "console"),
		},
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".magiclink", "session.db")
	}
	return filepath.Join(home, ".magiclink", "session.db")
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
