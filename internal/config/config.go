package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                   = "MOVIEBOT"
	defaultHTTPAddress          = "0.0.0.0:8080"
	defaultDatabasePath         = "moviebot.db"
	defaultLogLevel             = "info"
	defaultTelegramMode         = ModePolling
	defaultPollTimeoutSeconds   = 30
	defaultTMDBBaseURL          = "https://api.themoviedb.org/3"
	defaultTMDBCacheSize        = 512
	defaultTMDBCacheTTLMinutes  = 60
	defaultShortenerAPIURL      = "https://gplinks.com/api"
	defaultCleanupIntervalMin   = 10
	defaultAdminTokenTTLMinutes = 60
	defaultMaxConcurrency       = 16

	// ModePolling receives updates through getUpdates.
	ModePolling = "polling"
	// ModeWebhook receives updates on the HTTP webhook route.
	ModeWebhook = "webhook"
)

// AppConfig captures runtime configuration for the bot and its HTTP surface.
type AppConfig struct {
	BotToken           string
	AdminID            int64
	TelegramMode       string
	WebhookURL         string
	WebhookSecret      string
	PollTimeoutSeconds int

	ChannelID   int64
	ChannelLink string

	DatabasePath string

	TMDBAPIKey    string
	TMDBBaseURL   string
	TMDBCacheSize int
	TMDBCacheTTL  time.Duration

	ShortenerAPIKey string
	ShortenerAPIURL string

	TokenCleanupInterval time.Duration

	HTTPAddress        string
	AdminSigningSecret string
	AdminTokenTTL      time.Duration

	MaxConcurrency int
	LogLevel       string
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

	configViper.SetDefault("telegram.mode", defaultTelegramMode)
	configViper.SetDefault("telegram.poll_timeout_seconds", defaultPollTimeoutSeconds)
	configViper.SetDefault("channel.id", 0)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("tmdb.base_url", defaultTMDBBaseURL)
	configViper.SetDefault("tmdb.cache_size", defaultTMDBCacheSize)
	configViper.SetDefault("tmdb.cache_ttl_minutes", defaultTMDBCacheTTLMinutes)
	configViper.SetDefault("shortener.api_url", defaultShortenerAPIURL)
	configViper.SetDefault("tokens.cleanup_interval_minutes", defaultCleanupIntervalMin)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("admin.token_ttl_minutes", defaultAdminTokenTTLMinutes)
	configViper.SetDefault("workers.max_concurrency", defaultMaxConcurrency)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		BotToken:             strings.TrimSpace(configViper.GetString("telegram.bot_token")),
		AdminID:              configViper.GetInt64("telegram.admin_id"),
		TelegramMode:         strings.ToLower(strings.TrimSpace(configViper.GetString("telegram.mode"))),
		WebhookURL:           strings.TrimSpace(configViper.GetString("telegram.webhook_url")),
		WebhookSecret:        configViper.GetString("telegram.webhook_secret"),
		PollTimeoutSeconds:   configViper.GetInt("telegram.poll_timeout_seconds"),
		ChannelID:            configViper.GetInt64("channel.id"),
		ChannelLink:          strings.TrimSpace(configViper.GetString("channel.link")),
		DatabasePath:         configViper.GetString("database.path"),
		TMDBAPIKey:           strings.TrimSpace(configViper.GetString("tmdb.api_key")),
		TMDBBaseURL:          configViper.GetString("tmdb.base_url"),
		TMDBCacheSize:        configViper.GetInt("tmdb.cache_size"),
		TMDBCacheTTL:         time.Duration(configViper.GetInt("tmdb.cache_ttl_minutes")) * time.Minute,
		ShortenerAPIKey:      strings.TrimSpace(configViper.GetString("shortener.api_key")),
		ShortenerAPIURL:      configViper.GetString("shortener.api_url"),
		TokenCleanupInterval: time.Duration(configViper.GetInt("tokens.cleanup_interval_minutes")) * time.Minute,
		HTTPAddress:          configViper.GetString("http.address"),
		AdminSigningSecret:   configViper.GetString("admin.signing_secret"),
		AdminTokenTTL:        time.Duration(configViper.GetInt("admin.token_ttl_minutes")) * time.Minute,
		MaxConcurrency:       configViper.GetInt("workers.max_concurrency"),
		LogLevel:             configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// AdminAPIEnabled reports whether the bearer-protected admin routes should be mounted.
func (c AppConfig) AdminAPIEnabled() bool {
	return strings.TrimSpace(c.AdminSigningSecret) != ""
}

func (c AppConfig) validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}
	switch c.TelegramMode {
	case ModePolling:
	case ModeWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("telegram.webhook_url is required in webhook mode")
		}
	default:
		return fmt.Errorf("telegram.mode must be %q or %q", ModePolling, ModeWebhook)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenCleanupInterval <= 0 {
		return fmt.Errorf("tokens.cleanup_interval_minutes must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("workers.max_concurrency must be positive")
	}
	return nil
}
