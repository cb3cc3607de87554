// Package config handles application configuration from environment variables
// and the YAML source list.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"alerts_ingestor/internal/model"
)

// Supported store backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

const (
	defaultSourcesPath  = "alerts_sources.yaml"
	defaultFeedlyURL    = "https://feedly.com/v3/streams/contents"
	defaultArticleCount = 100
	defaultDatabasePath = "./data/alerts.db"
	defaultMongoHost    = "localhost"
	defaultMongoPort    = 27017
	defaultInterval     = 30 * time.Minute
	defaultHTTPTimeout  = 30 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Feedly      FeedlyConfig
	Sources     []model.SourceDescriptor
	Store       StoreConfig
	Interval    time.Duration
	HTTPTimeout time.Duration
	Telegram    TelegramConfig
	LogLevel    string
}

// FeedlyConfig holds fetch parameters shared by every configured source.
type FeedlyConfig struct {
	AccessToken  string
	BaseURL      string
	ArticleCount int
	FetchAll     bool
	HoursAgo     int
}

// StoreConfig selects and configures the persistent alert store.
type StoreConfig struct {
	Backend    string
	SQLitePath string
	Mongo      MongoConfig
}

// MongoConfig describes the MongoDB collection holding alerts.
type MongoConfig struct {
	Host       string
	Port       int
	Database   string
	Collection string
}

// URI returns the connection string for the configured host and port.
func (m MongoConfig) URI() string {
	return "mongodb://" + net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// TelegramConfig enables run summaries in a Telegram chat when both fields are set.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Enabled reports whether run summaries should be sent.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// sourcesFile is the layout of the YAML source list.
type sourcesFile struct {
	FeedlySources []model.SourceDescriptor `yaml:"feedly_sources"`
	RSSSources    []model.SourceDescriptor `yaml:"rss_sources"`
}

// Load reads configuration from environment variables and the source list
// referenced by ALERTS_CONFIG_PATH.
func Load() (*Config, error) {
	sources, err := loadSources(envOrDefault("ALERTS_CONFIG_PATH", defaultSourcesPath))
	if err != nil {
		return nil, err
	}

	articleCount, err := intEnv("FEEDLY_ARTICLE_COUNT", defaultArticleCount)
	if err != nil {
		return nil, err
	}
	if articleCount <= 0 {
		return nil, fmt.Errorf("FEEDLY_ARTICLE_COUNT must be positive, got %d", articleCount)
	}

	hoursAgo, err := intEnv("FEEDLY_HOURS_AGO", 0)
	if err != nil {
		return nil, err
	}
	if hoursAgo < 0 {
		return nil, fmt.Errorf("FEEDLY_HOURS_AGO must not be negative, got %d", hoursAgo)
	}

	fetchAll, err := boolEnv("FEEDLY_FETCH_ALL", false)
	if err != nil {
		return nil, err
	}

	token := os.Getenv("FEEDLY_ACCESS_TOKEN")
	if token == "" && hasPlatform(sources, model.PlatformFeedly) {
		return nil, fmt.Errorf("FEEDLY_ACCESS_TOKEN is required")
	}

	store, err := loadStore()
	if err != nil {
		return nil, err
	}

	interval, err := durationEnv("INGEST_INTERVAL", defaultInterval)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := durationEnv("HTTP_TIMEOUT", defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}

	telegram, err := loadTelegram()
	if err != nil {
		return nil, err
	}

	return &Config{
		Feedly: FeedlyConfig{
			AccessToken:  token,
			BaseURL:      envOrDefault("FEEDLY_BASE_URL", defaultFeedlyURL),
			ArticleCount: articleCount,
			FetchAll:     fetchAll,
			HoursAgo:     hoursAgo,
		},
		Sources:     sources,
		Store:       store,
		Interval:    interval,
		HTTPTimeout: httpTimeout,
		Telegram:    telegram,
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
	}, nil
}

func loadSources(path string) ([]model.SourceDescriptor, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}

	var sources []model.SourceDescriptor
	for _, group := range []struct {
		key      string
		platform model.AggregatorPlatform
		entries  []model.SourceDescriptor
	}{
		{"feedly_sources", model.PlatformFeedly, file.FeedlySources},
		{"rss_sources", model.PlatformRSS, file.RSSSources},
	} {
		for i, src := range group.entries {
			src.FeedName = strings.TrimSpace(src.FeedName)
			src.StreamID = strings.TrimSpace(src.StreamID)
			if src.FeedName == "" || src.StreamID == "" {
				return nil, fmt.Errorf("%s[%d]: feed_name and stream_id are required", group.key, i)
			}
			src.Platform = group.platform
			sources = append(sources, src)
		}
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources configured in %s", path)
	}
	return sources, nil
}

func loadStore() (StoreConfig, error) {
	backend := strings.ToLower(envOrDefault("STORE_BACKEND", BackendSQLite))

	port, err := intEnv("MONGO_PORT", defaultMongoPort)
	if err != nil {
		return StoreConfig{}, err
	}

	sc := StoreConfig{
		Backend:    backend,
		SQLitePath: envOrDefault("DATABASE_PATH", defaultDatabasePath),
		Mongo: MongoConfig{
			Host:       envOrDefault("MONGO_HOST", defaultMongoHost),
			Port:       port,
			Database:   os.Getenv("MONGO_ALERTS_DATABASE_ID"),
			Collection: os.Getenv("MONGO_ALERTS_COLLECTION_ID"),
		},
	}

	switch backend {
	case BackendSQLite:
	case BackendMongo:
		if sc.Mongo.Database == "" || sc.Mongo.Collection == "" {
			return StoreConfig{}, fmt.Errorf("MONGO_ALERTS_DATABASE_ID and MONGO_ALERTS_COLLECTION_ID are required for the mongo backend")
		}
	default:
		return StoreConfig{}, fmt.Errorf("unsupported STORE_BACKEND %q", backend)
	}
	return sc, nil
}

func loadTelegram() (TelegramConfig, error) {
	tc := TelegramConfig{BotToken: os.Getenv("TELEGRAM_BOT_TOKEN")}
	raw := os.Getenv("TELEGRAM_CHAT_ID")
	if raw == "" {
		if tc.BotToken != "" {
			return TelegramConfig{}, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
		}
		return tc, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return TelegramConfig{}, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
	}
	tc.ChatID = id
	return tc, nil
}

func hasPlatform(sources []model.SourceDescriptor, p model.AggregatorPlatform) bool {
	for _, s := range sources {
		if s.Platform == p {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return v, nil
}
