package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/air-quality-collector/internal/common"
	"github.com/i474232898/air-quality-collector/internal/dataset"
)

var validate = validator.New()

type AppConfig struct {
	AppEnv   string     `validate:"oneof=dev prod"`
	LogLevel slog.Level

	APIKey  string `validate:"required"`
	BaseURL string `validate:"required,url"`

	// Fetch run shape.
	DaysToFetch    int    `validate:"gt=0"`
	OutputDir      string `validate:"required"`
	StationsPerDay int    `validate:"gt=0"`
	PageLimit      int    `validate:"gte=1,lte=1000"`

	// Pacing and failure handling of the page walk.
	PageDelay              time.Duration `validate:"gte=0"`
	ErrorDelay             time.Duration `validate:"gte=0"`
	MaxConsecutiveFailures int           `validate:"gte=0"`
	RetryMax               int           `validate:"gte=0"`
	HTTPTimeout            time.Duration `validate:"gt=0"`

	// Post-processing after a fetch.
	PostProcess  bool
	CleanColumns []string `validate:"min=1"`

	// FetchSchedule is a cron expression (UTC); empty disables scheduling.
	FetchSchedule string
	RunTimeout    time.Duration `validate:"gt=0"`

	// In-memory run history retention.
	StoreMaxHistory int           // max number of reports kept (0 = unlimited)
	StoreMaxAge     time.Duration // max age of reports (0 = unlimited)

	Port string

	Archive ArchiveConfig
}

// ArchiveConfig points at S3-compatible storage. An empty Endpoint disables archiving.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string `validate:"required_with=Endpoint"`
	SecretKey string `validate:"required_with=Endpoint"`
	Bucket    string `validate:"required_with=Endpoint"`
	Prefix    string
	UseSSL    bool
	Region    string
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &AppConfig{
		AppEnv:        getenvDefault("APP_ENV", "dev"),
		APIKey:        os.Getenv("AQ_API_KEY"),
		BaseURL:       getenvDefault("AQ_BASE_URL", "https://data.moenv.gov.tw/api/v2/aqx_p_488"),
		OutputDir:     getenvDefault("AQ_OUTPUT_DIR", "air_quality_data"),
		FetchSchedule: "30 1 * * *",
		Port:          getenvDefault("PORT", "8080"),
	}
	// An explicitly empty FETCH_SCHEDULE disables the scheduler.
	if v, ok := os.LookupEnv("FETCH_SCHEDULE"); ok {
		cfg.FetchSchedule = strings.TrimSpace(v)
	}

	level, err := parseLogLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"AQ_DAYS_TO_FETCH", 7, &cfg.DaysToFetch},
		{"AQ_STATIONS_PER_DAY", 87, &cfg.StationsPerDay},
		{"AQ_PAGE_LIMIT", 1000, &cfg.PageLimit},
		{"AQ_MAX_CONSECUTIVE_FAILURES", 5, &cfg.MaxConsecutiveFailures},
		{"AQ_RETRY_MAX", 2, &cfg.RetryMax},
		{"STORE_MAX_HISTORY", 30, &cfg.StoreMaxHistory},
	}
	for _, it := range ints {
		if *it.dst, err = getenvInt(it.key, it.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"AQ_PAGE_DELAY", "500ms", &cfg.PageDelay},
		{"AQ_ERROR_DELAY", "2s", &cfg.ErrorDelay},
		{"HTTP_TIMEOUT", "30s", &cfg.HTTPTimeout},
		{"RUN_TIMEOUT", "30m", &cfg.RunTimeout},
		{"STORE_MAX_AGE", "720h", &cfg.StoreMaxAge},
	}
	for _, d := range durations {
		if *d.dst, err = getenvDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.PostProcess, err = getenvBool("AQ_POSTPROCESS", true); err != nil {
		return nil, err
	}
	cfg.CleanColumns = dataset.DefaultCleanColumns
	if v := os.Getenv("AQ_CLEAN_COLUMNS"); v != "" {
		cfg.CleanColumns = common.SplitList(v)
	}

	cfg.Archive = ArchiveConfig{
		Endpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
		AccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
		SecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
		Bucket:    os.Getenv("ARCHIVE_BUCKET"),
		Prefix:    getenvDefault("ARCHIVE_PREFIX", "aqx_p_488"),
		Region:    os.Getenv("ARCHIVE_REGION"),
	}
	if cfg.Archive.UseSSL, err = getenvBool("ARCHIVE_USE_SSL", true); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
