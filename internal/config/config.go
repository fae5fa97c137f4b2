package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime settings, sourced from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	DatabaseURL    string
	DatabaseSchema string

	WhatsAppAPIURL  string
	WhatsAppTimeout time.Duration

	AppSyncAPIURL  string
	AppSyncAPIKey  string
	AppSyncTimeout time.Duration

	FileStorageURL     string
	FileStorageTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	BotTokenTTL   time.Duration
}

// Load reads configuration from environment variables and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   os.Getenv("PUBLIC_BASE_PATH"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "wa_bridge"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: os.Getenv("DATABASE_SCHEMA"),

		WhatsAppAPIURL:  os.Getenv("WHATSAPP_API_URL"),
		WhatsAppTimeout: getDuration("WHATSAPP_TIMEOUT", 15*time.Second),

		AppSyncAPIURL:  os.Getenv("APPSYNC_CORE_API_URL"),
		AppSyncAPIKey:  os.Getenv("APPSYNC_CORE_API_KEY"),
		AppSyncTimeout: getDuration("APPSYNC_TIMEOUT", 15*time.Second),

		FileStorageURL:     os.Getenv("FILE_STORAGE_SERVICE_URL"),
		FileStorageTimeout: getDuration("FILE_STORAGE_TIMEOUT", 30*time.Second),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		RedisTLS:      getBool("REDIS_TLS", false),
		BotTokenTTL:   getDuration("BOT_TOKEN_CACHE_TTL", 10*time.Minute),
	}

	var missing []string
	for _, required := range []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"WHATSAPP_API_URL", cfg.WhatsAppAPIURL},
		{"APPSYNC_CORE_API_URL", cfg.AppSyncAPIURL},
		{"APPSYNC_CORE_API_KEY", cfg.AppSyncAPIKey},
	} {
		if strings.TrimSpace(required.value) == "" {
			missing = append(missing, required.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
