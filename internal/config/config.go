package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "SITBRIEF_CONFIG"

	databaseDriverEnv     = "DATABASE_DRIVER"
	databaseDSNEnv        = "DATABASE_DSN"
	classifierProviderEnv = "CLASSIFIER_PROVIDER"
	classifierAPIKeyEnv   = "CLASSIFIER_API_KEY"
	classifierModelEnv    = "CLASSIFIER_MODEL"
	objectStoreAccessEnv  = "CLOUDFLARE_ACCESSKEY_ID"
	objectStoreSecretEnv  = "CLOUDFLARE_SECRET_ACCESSKEY"
	objectStoreEndpoint   = "OBJECT_STORE_ENDPOINT"
	adminUsernameEnv      = "ADMIN_USERNAME"
	adminPasswordHashEnv  = "ADMIN_PASSWORD_HASH"
	gatewayTokenEnv       = "ACCESS_TOKEN"
	telegramTokenEnv      = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv       = "TELEGRAM_CHAT_ID"
	logLevelEnv           = "LOG_LEVEL"
)

// providerKeyEnvs maps each provider to its conventional credential variable.
var providerKeyEnvs = map[string]string{
	ProviderClaude: "ANTHROPIC_API_KEY",
	ProviderOpenAI: "OPENAI_API_KEY",
	ProviderGemini: "GEMINI_API_KEY",
}

const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Export      ExportConfig      `yaml:"export"`
	ObjectStore ObjectStoreConfig `yaml:"objectStore"`
	Admin       AdminConfig       `yaml:"admin"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Logging     LoggingConfig     `yaml:"logging"`
	Notify      NotifyConfig      `yaml:"notify"`
	Sources     []SourceConfig    `yaml:"sources"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ClassifierConfig defines how to contact the text generation service.
type ClassifierConfig struct {
	Provider           string        `yaml:"provider"`
	Endpoint           string        `yaml:"endpoint"`
	Model              string        `yaml:"model"`
	APIKey             string        `yaml:"apiKey"`
	MaxTokens          int           `yaml:"maxTokens"`
	Temperature        float64       `yaml:"temperature"`
	Timeout            time.Duration `yaml:"timeout"`
	UnknownTopicPolicy string        `yaml:"unknownTopicPolicy"`
}

// ExportConfig controls where and how static JSON pages are produced.
type ExportConfig struct {
	OutputDir string `yaml:"outputDir"`
	PageSize  int    `yaml:"pageSize"`
	Prefix    string `yaml:"prefix"`
}

// ObjectStoreConfig describes the S3-compatible bucket exports are synced to.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Enabled reports whether enough settings exist to open the bucket.
func (o ObjectStoreConfig) Enabled() bool {
	return o.Endpoint != "" && o.AccessKey != "" && o.SecretKey != "" && o.Bucket != ""
}

// AdminConfig secures the administrative API.
type AdminConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"passwordHash"`
	SessionTTL   time.Duration `yaml:"sessionTTL"`
}

// GatewayConfig configures the public read-only API.
type GatewayConfig struct {
	Addr        string        `yaml:"addr"`
	AccessToken string        `yaml:"accessToken"`
	CacheTTL    time.Duration `yaml:"cacheTTL"`
	CacheSize   int           `yaml:"cacheSize"`
}

// SchedulerConfig defines when exports are published automatically.
type SchedulerConfig struct {
	PublishCron string         `yaml:"publishCron"`
	Timezone    string         `yaml:"timezone"`
	location    *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig points publish reports at a Telegram chat.
type NotifyConfig struct {
	TelegramBotToken string `yaml:"telegramBotToken"`
	TelegramChatID   string `yaml:"telegramChatId"`
}

// Enabled reports whether both bot token and chat are set.
func (n NotifyConfig) Enabled() bool {
	return strings.TrimSpace(n.TelegramBotToken) != "" && strings.TrimSpace(n.TelegramChatID) != ""
}

// SourceConfig describes a single headline source with its scanner strategy.
type SourceConfig struct {
	Name     string   `yaml:"name"`
	Strategy string   `yaml:"strategy"`
	Feeds    []string `yaml:"feeds"`
	URL      string   `yaml:"url"`
	Selector string   `yaml:"selector"`
	Exclude  []string `yaml:"exclude"`
	Limit    int      `yaml:"limit"`
}

// Error reports an invalid configuration value.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// Load reads .env and YAML configuration (if present), applies environment
// overrides and validates the result. An explicit path wins over SITBRIEF_CONFIG.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyProviderDefaults()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(classifierProviderEnv); v != "" {
		c.Classifier.Provider = v
	}
	if v := os.Getenv(classifierModelEnv); v != "" {
		c.Classifier.Model = v
	}
	if v := os.Getenv(classifierAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	} else if c.Classifier.APIKey == "" {
		if name, ok := providerKeyEnvs[strings.ToLower(c.Classifier.Provider)]; ok {
			c.Classifier.APIKey = os.Getenv(name)
		}
	}

	if v := os.Getenv(objectStoreEndpoint); v != "" {
		c.ObjectStore.Endpoint = v
	}
	if v := os.Getenv(objectStoreAccessEnv); v != "" {
		c.ObjectStore.AccessKey = v
	}
	if v := os.Getenv(objectStoreSecretEnv); v != "" {
		c.ObjectStore.SecretKey = v
	}

	if v := os.Getenv(adminUsernameEnv); v != "" {
		c.Admin.Username = v
	}
	if v := os.Getenv(adminPasswordHashEnv); v != "" {
		c.Admin.PasswordHash = v
	}
	if v := os.Getenv(gatewayTokenEnv); v != "" {
		c.Gateway.AccessToken = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notify.TelegramBotToken = v
	}
	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Notify.TelegramChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EXPORT_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Export.PageSize = n
		}
	}
}

// providerDefaults holds endpoint and model used when neither file nor env sets them.
var providerDefaults = map[string][2]string{
	ProviderClaude: {"https://api.anthropic.com/v1/messages", "claude-3-5-sonnet-20241022"},
	ProviderOpenAI: {"", "gpt-4o-mini"},
	ProviderGemini: {"", "gemini-2.5-flash"},
}

func (c *Config) applyProviderDefaults() {
	c.Classifier.Provider = strings.ToLower(strings.TrimSpace(c.Classifier.Provider))
	defaults, ok := providerDefaults[c.Classifier.Provider]
	if !ok {
		return
	}
	if c.Classifier.Endpoint == "" {
		c.Classifier.Endpoint = defaults[0]
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = defaults[1]
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// Validate checks values that would otherwise fail deep inside a component.
// Missing classifier credentials are reported when the classifier is used.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return &Error{Field: "database.driver", Message: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return &Error{Field: "database.dsn", Message: "is required"}
	}

	switch strings.ToLower(c.Classifier.Provider) {
	case ProviderClaude, ProviderOpenAI, ProviderGemini:
	default:
		return &Error{Field: "classifier.provider", Message: fmt.Sprintf("unsupported provider %q", c.Classifier.Provider)}
	}
	if c.Classifier.MaxTokens <= 0 {
		return &Error{Field: "classifier.maxTokens", Message: "must be positive"}
	}
	if c.Classifier.Temperature < 0 || c.Classifier.Temperature > 2 {
		return &Error{Field: "classifier.temperature", Message: "must be within [0,2]"}
	}
	switch strings.ToLower(strings.TrimSpace(c.Classifier.UnknownTopicPolicy)) {
	case "", "reclassify", "drop", "trust":
	default:
		return &Error{Field: "classifier.unknownTopicPolicy", Message: fmt.Sprintf("unsupported policy %q", c.Classifier.UnknownTopicPolicy)}
	}

	if c.Export.PageSize < 1 {
		return &Error{Field: "export.pageSize", Message: "must be at least 1"}
	}

	if spec := strings.TrimSpace(c.Scheduler.PublishCron); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return &Error{Field: "scheduler.publishCron", Message: err.Error()}
		}
	}

	for i, src := range c.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return &Error{Field: fmt.Sprintf("sources[%d].name", i), Message: "is required"}
		}
	}

	return nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "sitbrief.db"},
		Classifier: ClassifierConfig{
			Provider:           ProviderClaude,
			MaxTokens:          2000,
			Temperature:        0.3,
			Timeout:            60 * time.Second,
			UnknownTopicPolicy: "reclassify",
		},
		Export: ExportConfig{OutputDir: "output", PageSize: 20, Prefix: "Brief"},
		ObjectStore: ObjectStoreConfig{
			Region: "auto",
			Bucket: "statbrief",
			UseSSL: true,
		},
		Admin:     AdminConfig{Addr: ":8080", SessionTTL: 12 * time.Hour},
		Gateway:   GatewayConfig{Addr: ":8081", CacheTTL: 5 * time.Minute, CacheSize: 256},
		Scheduler: SchedulerConfig{Timezone: defaultTimezone, location: tz},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}
