package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"TrendsCollector/internal/domain"
)

const (
	configPathEnv = "TRENDS_COLLECTOR_CONFIG"

	databaseDSNEnv        = "DATABASE_DSN"
	modeEnv               = "TRENDS_MODE"
	batchSizeEnv          = "TRENDS_BATCH_SIZE"
	exclusionDaysEnv      = "TRENDS_WINDOW_EXCLUSION_DAYS"
	includeLowVolumeEnv   = "TRENDS_INCLUDE_LOW_VOLUME_REGIONS"
	maxRetriesEnv         = "TRENDS_MAX_RETRIES"
	retryDelaySecondsEnv  = "TRENDS_RETRY_DELAY_SECONDS"
	rateLimitDelaySecsEnv = "TRENDS_RATE_LIMIT_DELAY_SECONDS"
	logLevelEnv           = "TRENDS_LOG_LEVEL"
	telegramTokenEnv      = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv     = "TELEGRAM_CHAT_ID"
)

// providerBatchLimit is the provider-imposed cap on terms per query.
const providerBatchLimit = 5

// defaultTerms is the tracked-disease catalog: a fixed, ordered, unique
// sequence, never mutated at runtime.
var defaultTerms = []string{
	"influenza", "covid", "measles", "cholera", "ebola",
	"marburg virus", "dengue fever", "yellow fever", "zika virus",
	"plague", "mpox", "meningitis", "norovirus", "RSV virus",
	"SARS", "MERS", "bird flu", "hand foot mouth disease",
	"polio", "hepatitis A",
}

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Collection    CollectionConfig   `yaml:"collection"`
	Retry         RetryConfig        `yaml:"retry"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// CollectionConfig shapes how the term catalog is queried.
type CollectionConfig struct {
	Mode                    string   `yaml:"mode"`
	BatchSize               int      `yaml:"batchSize"`
	WindowDays              int      `yaml:"windowDays"`
	WindowExclusionDays     int      `yaml:"windowExclusionDays"`
	IncludeLowVolumeRegions bool     `yaml:"includeLowVolumeRegions"`
	RequestDelaySeconds     int      `yaml:"requestDelaySeconds"`
	Terms                   []string `yaml:"terms"`
}

// CollectionMode resolves the configured mode string.
func (c CollectionConfig) CollectionMode() domain.CollectionMode {
	if c.Mode == string(domain.ModeIndependent) {
		return domain.ModeIndependent
	}
	return domain.ModeBatch
}

// RetryConfig bounds the per-unit attempt loop.
type RetryConfig struct {
	MaxRetries            int `yaml:"maxRetries"`
	RetryDelaySeconds     int `yaml:"retryDelaySeconds"`
	RateLimitDelaySeconds int `yaml:"rateLimitDelaySeconds"`
}

// SchedulerConfig defines daemon mode; one-shot runs ignore it.
type SchedulerConfig struct {
	Enabled       bool `yaml:"enabled"`
	IntervalHours int  `yaml:"intervalHours"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send run reports.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Collection.Terms) == 0 {
		cfg.Collection.Terms = defaultTerms
	}

	return cfg
}

// Validate rejects configurations the pipeline cannot run with. These are
// the only errors that abort before any query unit runs.
func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is not configured (set %s)", databaseDSNEnv)
	}

	mode := c.Collection.Mode
	if mode != string(domain.ModeIndependent) && mode != string(domain.ModeBatch) {
		return fmt.Errorf("unknown collection mode %q", mode)
	}

	if c.Collection.BatchSize < 1 || c.Collection.BatchSize > providerBatchLimit {
		return fmt.Errorf("batch size %d outside provider limit [1,%d]", c.Collection.BatchSize, providerBatchLimit)
	}

	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.Retry.MaxRetries)
	}

	seen := map[string]struct{}{}
	for _, term := range c.Collection.Terms {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("term catalog contains an empty term")
		}
		if _, dup := seen[term]; dup {
			return fmt.Errorf("term catalog contains duplicate %q", term)
		}
		seen[term] = struct{}{}
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(modeEnv); v != "" {
		c.Collection.Mode = v
	}
	if v, ok := envInt(batchSizeEnv); ok {
		c.Collection.BatchSize = v
	}
	if v, ok := envInt(exclusionDaysEnv); ok {
		c.Collection.WindowExclusionDays = v
	}
	if v, ok := envBool(includeLowVolumeEnv); ok {
		c.Collection.IncludeLowVolumeRegions = v
	}

	if v, ok := envInt(maxRetriesEnv); ok {
		c.Retry.MaxRetries = v
	}
	if v, ok := envInt(retryDelaySecondsEnv); ok {
		c.Retry.RetryDelaySeconds = v
	}
	if v, ok := envInt(rateLimitDelaySecsEnv); ok {
		c.Retry.RateLimitDelaySeconds = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, ignoring", key, v)
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: %s=%q is not a boolean, ignoring", key, v)
		return false, false
	}
	return b, true
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Collection.Mode != "" {
		base.Collection.Mode = override.Collection.Mode
	}
	if override.Collection.BatchSize != 0 {
		base.Collection.BatchSize = override.Collection.BatchSize
	}
	if override.Collection.WindowDays != 0 {
		base.Collection.WindowDays = override.Collection.WindowDays
	}
	if override.Collection.WindowExclusionDays != 0 {
		base.Collection.WindowExclusionDays = override.Collection.WindowExclusionDays
	}
	if override.Collection.IncludeLowVolumeRegions {
		base.Collection.IncludeLowVolumeRegions = true
	}
	if override.Collection.RequestDelaySeconds != 0 {
		base.Collection.RequestDelaySeconds = override.Collection.RequestDelaySeconds
	}
	if len(override.Collection.Terms) > 0 {
		base.Collection.Terms = override.Collection.Terms
	}

	if override.Retry.MaxRetries != 0 {
		base.Retry.MaxRetries = override.Retry.MaxRetries
	}
	if override.Retry.RetryDelaySeconds != 0 {
		base.Retry.RetryDelaySeconds = override.Retry.RetryDelaySeconds
	}
	if override.Retry.RateLimitDelaySeconds != 0 {
		base.Retry.RateLimitDelaySeconds = override.Retry.RateLimitDelaySeconds
	}

	if override.Scheduler.Enabled {
		base.Scheduler.Enabled = true
	}
	if override.Scheduler.IntervalHours != 0 {
		base.Scheduler.IntervalHours = override.Scheduler.IntervalHours
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{DSN: ""},
		Collection: CollectionConfig{
			Mode:                    string(domain.ModeBatch),
			BatchSize:               providerBatchLimit,
			WindowDays:              30,
			WindowExclusionDays:     2,
			IncludeLowVolumeRegions: true,
			RequestDelaySeconds:     2,
			Terms:                   defaultTerms,
		},
		Retry: RetryConfig{
			MaxRetries:            3,
			RetryDelaySeconds:     15,
			RateLimitDelaySeconds: 60,
		},
		Scheduler: SchedulerConfig{Enabled: false, IntervalHours: 24},
		Logging:   LoggingConfig{Level: "info"},
	}
}
