package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Email providers understood by EmailConfig.Provider.
const (
	EmailProviderLog      = "log"
	EmailProviderResend   = "resend"
	EmailProviderSendgrid = "sendgrid"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Lists      ListConfig
	Filters    FilterConfig
	Broadcasts BroadcastConfig
	Email      EmailConfig
	Client     ClientConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ListConfig tunes the cache in front of list endpoints.
type ListConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// FilterConfig controls server-side persistence of list filter state.
type FilterConfig struct {
	PersistenceEnabled bool
	TTL                time.Duration
}

// BroadcastConfig tunes the delivery worker pool and the schedule dispatcher.
type BroadcastConfig struct {
	Workers      int
	Retries      int
	BatchSize    int
	PollInterval time.Duration
}

// EmailConfig selects the outbound email provider.
type EmailConfig struct {
	Provider       string
	FromName       string
	FromAddress    string
	ResendAPIKey   string
	SendgridAPIKey string
}

// ClientConfig holds defaults shared with the portal SDK.
type ClientConfig struct {
	Timeout        time.Duration
	SearchDebounce time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("TIMEZONE")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lists = ListConfig{
		CacheEnabled: v.GetBool("ENABLE_LIST_CACHE"),
		CacheTTL:     parseDuration(v.GetString("LIST_CACHE_TTL"), time.Minute),
	}

	cfg.Filters = FilterConfig{
		PersistenceEnabled: v.GetBool("ENABLE_FILTER_PERSISTENCE"),
		TTL:                parseDuration(v.GetString("FILTER_TTL"), 30*24*time.Hour),
	}

	cfg.Broadcasts = BroadcastConfig{
		Workers:      v.GetInt("BROADCAST_WORKERS"),
		Retries:      v.GetInt("BROADCAST_RETRIES"),
		BatchSize:    v.GetInt("BROADCAST_BATCH_SIZE"),
		PollInterval: parseDuration(v.GetString("BROADCAST_POLL_INTERVAL"), time.Minute),
	}

	cfg.Email = EmailConfig{
		Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		FromAddress:    v.GetString("EMAIL_FROM"),
		ResendAPIKey:   v.GetString("RESEND_API_KEY"),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
	}

	cfg.Client = ClientConfig{
		Timeout:        parseDuration(v.GetString("CLIENT_TIMEOUT"), 8*time.Second),
		SearchDebounce: parseDuration(v.GetString("SEARCH_DEBOUNCE"), 300*time.Millisecond),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("TIMEZONE", "Europe/London")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bookon")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_LIST_CACHE", false)
	v.SetDefault("LIST_CACHE_TTL", "1m")
	v.SetDefault("ENABLE_FILTER_PERSISTENCE", true)
	v.SetDefault("FILTER_TTL", "720h")

	v.SetDefault("BROADCAST_WORKERS", 2)
	v.SetDefault("BROADCAST_RETRIES", 3)
	v.SetDefault("BROADCAST_BATCH_SIZE", 50)
	v.SetDefault("BROADCAST_POLL_INTERVAL", "1m")

	v.SetDefault("EMAIL_PROVIDER", EmailProviderLog)
	v.SetDefault("EMAIL_FROM_NAME", "BookOn")
	v.SetDefault("EMAIL_FROM", "noreply@bookon.local")
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("SENDGRID_API_KEY", "")

	v.SetDefault("CLIENT_TIMEOUT", "8s")
	v.SetDefault("SEARCH_DEBOUNCE", "300ms")
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
