// Package config loads deployment settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-bot/internal/extract"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP server
	Port     string
	APIToken string

	// Telegram
	TelegramBotToken      string
	TelegramWebhookSecret string

	// Gemini
	GeminiAPIKey  string
	GeminiModel   string
	AIMaxAttempts int
	AIBaseDelay   time.Duration
	AIMaxInput    int

	// Document store
	DocumentBackend          string
	GCSBucket                string
	GCSPrefix                string
	GCSBackups               bool
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Ledger
	Currency string
	Timezone string

	// Processing
	DedupCapacity  int
	RequestTimeout time.Duration
	Workers        int

	// Mirrors
	BigQueryProject  string
	BigQueryDataset  string
	NotionToken      string
	NotionDatabaseID string

	// Diagnostics
	Debug     bool
	LogLevel  string
	LogFormat string

	// loadErrors holds variables that were set but did not parse.
	loadErrors []string
}

// Load reads a .env file when present, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	var env envLoader
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		APIToken: getEnv("API_TOKEN", ""),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", extract.DefaultModelName),
		AIMaxAttempts: env.getEnvInt("AI_MAX_ATTEMPTS", 3),
		AIBaseDelay:   env.getEnvDuration("AI_BASE_DELAY", time.Second),
		AIMaxInput:    env.getEnvInt("AI_MAX_INPUT", extract.DefaultMaxInputRunes),

		DocumentBackend:          getEnv("DOCUMENT_BACKEND", store.BackendGCS),
		GCSBucket:                getEnv("GCS_BUCKET", ""),
		GCSPrefix:                getEnv("GCS_PREFIX", ""),
		GCSBackups:               env.getEnvBool("GCS_BACKUPS", true),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", store.DefaultSheetName),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		Currency: strings.ToUpper(getEnv("CURRENCY", ledger.DefaultCurrency)),
		Timezone: getEnv("TIMEZONE", "Asia/Manila"),

		DedupCapacity:  env.getEnvInt("DEDUP_CAPACITY", 1000),
		RequestTimeout: env.getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		Workers:        env.getEnvInt("WORKERS", 2),

		BigQueryProject:  getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset:  getEnv("BIGQUERY_DATASET", ""),
		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),

		Debug:     env.getEnvBool("DEBUG", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", logger.FormatConsole),
	}
	cfg.loadErrors = env.problems
	return cfg
}

// Validate checks every setting and reports all problems at once.
// Telegram and Gemini credentials are checked by the binaries that need them.
func (c *Config) Validate() error {
	errors := append([]string(nil), c.loadErrors...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DocumentBackend {
	case store.BackendGCS:
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using the gcs backend")
		}
		if c.GCSPrefix != "" && !strings.HasSuffix(c.GCSPrefix, "/") {
			errors = append(errors, fmt.Sprintf("invalid GCS prefix '%s': must end with '/'", c.GCSPrefix))
		}
	case store.BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "GOOGLE_SPREADSHEET_ID is required when using the sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "GOOGLE_SHEET_NAME cannot be empty when using the sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); err != nil {
				errors = append(errors, fmt.Sprintf("service account file is not readable: %s", c.GoogleServiceAccountFile))
			}
		}
	case store.BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid document backend '%s': must be one of %v", c.DocumentBackend,
			[]string{store.BackendGCS, store.BackendSheets, store.BackendMemory}))
	}

	if len(c.Currency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid currency '%s': must be a 3-letter ISO code", c.Currency))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.AIMaxAttempts < 1 || c.AIMaxAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid AI max attempts %d: must be between 1 and 10", c.AIMaxAttempts))
	}
	if c.AIBaseDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid AI base delay %v: must not be negative", c.AIBaseDelay))
	}
	if c.AIMaxInput < 1 {
		errors = append(errors, fmt.Sprintf("invalid AI max input %d: must be at least 1", c.AIMaxInput))
	}

	if c.DedupCapacity < 1 {
		errors = append(errors, fmt.Sprintf("invalid dedup capacity %d: must be at least 1", c.DedupCapacity))
	}
	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.Workers < 1 || c.Workers > 64 {
		errors = append(errors, fmt.Sprintf("invalid worker count %d: must be between 1 and 64", c.Workers))
	}

	if (c.BigQueryProject == "") != (c.BigQueryDataset == "") {
		errors = append(errors, "BIGQUERY_PROJECT and BIGQUERY_DATASET must be set together")
	}
	if (c.NotionToken == "") != (c.NotionDatabaseID == "") {
		errors = append(errors, "NOTION_TOKEN and NOTION_DATABASE_ID must be set together")
	}

	if _, err := logger.Configure(logger.Options{Level: c.LogLevel, Format: c.LogFormat, Out: os.Stdout}); err != nil {
		errors = append(errors, fmt.Sprintf("invalid logging settings: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Location is the time zone records are dated in. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RetryPolicy is the AI retry policy with the configured overrides.
func (c *Config) RetryPolicy() extract.RetryPolicy {
	p := extract.DefaultRetryPolicy()
	p.MaxAttempts = c.AIMaxAttempts
	p.BaseDelay = c.AIBaseDelay
	return p
}

// StoreConfig maps the settings onto the document store factory.
func (c *Config) StoreConfig() (store.Config, error) {
	creds := []byte(c.GoogleServiceAccountJSON)
	if len(creds) == 0 && c.GoogleServiceAccountFile != "" {
		data, err := os.ReadFile(c.GoogleServiceAccountFile)
		if err != nil {
			return store.Config{}, fmt.Errorf("StoreConfig: reading service account file: %w", err)
		}
		creds = data
	}
	return store.Config{
		Backend:         c.DocumentBackend,
		Bucket:          c.GCSBucket,
		Prefix:          c.GCSPrefix,
		Backups:         c.GCSBackups,
		SpreadsheetID:   c.GoogleSpreadsheetID,
		SheetName:       c.GoogleSheetName,
		CredentialsJSON: creds,
		InitialDocument: ledger.InitialDocument(c.Currency),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envLoader reads typed variables and remembers the ones that are set but
// malformed, so Validate can report them instead of silently using defaults.
type envLoader struct {
	problems []string
}

func (l *envLoader) getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("invalid %s '%s': must be an integer", key, value))
		return defaultValue
	}
	return i
}

func (l *envLoader) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("invalid %s '%s': must be a duration like 500ms or 2s", key, value))
		return defaultValue
	}
	return d
}

func (l *envLoader) getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("invalid %s '%s': must be true or false", key, value))
		return defaultValue
	}
	return b
}
