package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	TelegramToken   string
	AllowedUserIDs  []int64 // empty means everyone may use the bot
	OperatorUserIDs []int64 // may delete records created by other users
	AdminChatID     int64   // operator notification channel, 0 disables it

	// Bot mode configuration
	WebhookMode   bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL    string // URL for webhook (required if WebhookMode is true)
	WebhookSecret string // compared with X-Telegram-Bot-Api-Secret-Token
	Port          string

	// Shared secret for the admin API (x-api-key header)
	APIKey string
	// Remote admin API used by the wizard instead of the in-process service
	CatalogAPIURL string

	// GitHub repository holding data.json and the images
	GitHubToken   string
	GitHubOwner   string
	GitHubRepo    string
	GitHubBranch  string
	DataPath      string
	DataWrapped   bool
	AssetsDir     string
	AssetsBaseURL string

	MaxUploadBytes int64
	UseMockStore   bool

	// Session store
	RedisURL      string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	LockTimeout   time.Duration
	LockTTL       time.Duration

	// ClickHouse audit journal (optional)
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	LogLevel    string
	LogEncoding string

	OptionsFile string
	Options     Options

	missing []string
}

// LoadFromEnv loads configuration from environment variables.
// Missing integration settings are not an error: they are reported by Missing
// and the dependent components fail their calls with a configuration error.
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	config.TelegramToken = firstEnv("TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	if config.TelegramToken == "" {
		config.missing = append(config.missing, "TELEGRAM_BOT_TOKEN")
	}

	var err error
	if config.AllowedUserIDs, err = parseIDList("ALLOWED_USER_IDS"); err != nil {
		return nil, err
	}
	if config.OperatorUserIDs, err = parseIDList("OPERATOR_USER_IDS"); err != nil {
		return nil, err
	}

	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		config.AdminChatID, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_CHAT_ID: %w", err)
		}
	} else {
		config.missing = append(config.missing, "ADMIN_CHAT_ID")
	}

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}
	config.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	config.Port = getEnv("PORT", "8080")

	config.APIKey = firstEnv("API_KEY", "ADMIN_API_KEY")
	if config.APIKey == "" {
		config.missing = append(config.missing, "API_KEY")
	}
	config.CatalogAPIURL = strings.TrimRight(os.Getenv("CATALOG_API_URL"), "/")

	// Use Mock store (default: false)
	config.UseMockStore = os.Getenv("USE_MOCK_STORE") == "true"

	config.GitHubToken = os.Getenv("GITHUB_TOKEN")
	config.GitHubOwner = os.Getenv("GITHUB_OWNER")
	config.GitHubRepo = os.Getenv("GITHUB_REPO")
	// GITHUB_REPO may carry the owner as "owner/repo"
	if owner, repo, ok := strings.Cut(config.GitHubRepo, "/"); ok {
		config.GitHubOwner, config.GitHubRepo = owner, repo
	}
	config.GitHubBranch = getEnv("GITHUB_BRANCH", "main")
	if !config.UseMockStore {
		required := []struct{ name, value string }{
			{"GITHUB_TOKEN", config.GitHubToken},
			{"GITHUB_OWNER", config.GitHubOwner},
			{"GITHUB_REPO", config.GitHubRepo},
		}
		for _, r := range required {
			if r.value == "" {
				config.missing = append(config.missing, r.name)
			}
		}
	}

	config.DataPath = getEnv("DATA_PATH", "data.json")
	config.DataWrapped = os.Getenv("DATA_WRAPPED") == "true"
	config.AssetsDir = strings.Trim(getEnv("ASSETS_DIR", "images"), "/")
	config.AssetsBaseURL = os.Getenv("ASSETS_BASE_URL")

	if config.MaxUploadBytes, err = getInt64("MAX_UPLOAD_BYTES", 10*1024*1024); err != nil {
		return nil, err
	}

	config.RedisURL = os.Getenv("REDIS_URL")
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")
	redisDB, err := getInt64("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	config.RedisDB = int(redisDB)
	if config.SessionTTL, err = getDuration("SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}
	if config.LockTimeout, err = getDuration("LOCK_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if config.LockTTL, err = getDuration("LOCK_TTL", 30*time.Second); err != nil {
		return nil, err
	}

	// ClickHouse configuration (optional, in-memory journal otherwise)
	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost != "" {
		port, err := getInt64("CLICKHOUSE_PORT", 9000) // Default ClickHouse native port
		if err != nil {
			return nil, err
		}
		config.ClickHousePort = int(port)
		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	config.LogLevel = getEnv("LOG_LEVEL", "info")
	config.LogEncoding = getEnv("LOG_ENCODING", "json")

	config.OptionsFile = os.Getenv("CATALOG_OPTIONS_FILE")
	config.Options = DefaultOptions()
	if config.OptionsFile != "" {
		opts, err := LoadOptions(config.OptionsFile)
		if err != nil {
			return nil, err
		}
		config.Options = opts
	}

	return config, nil
}

// RequiredSettings are the settings reported by Missing when absent.
var RequiredSettings = []string{
	"TELEGRAM_BOT_TOKEN", "ADMIN_CHAT_ID", "API_KEY",
	"GITHUB_TOKEN", "GITHUB_OWNER", "GITHUB_REPO",
}

// Missing lists the settings that were not provided, in the order they were checked.
func (c *Config) Missing() []string {
	return append([]string(nil), c.missing...)
}

// GitHubConfigured reports whether the repository coordinates are complete.
func (c *Config) GitHubConfigured() bool {
	return c.GitHubToken != "" && c.GitHubOwner != "" && c.GitHubRepo != ""
}

func parseIDList(key string) ([]int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}

	var ids []int64
	for _, idStr := range strings.Split(raw, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in %s: %s", key, idStr)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
