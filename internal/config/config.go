package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Content format values accepted for web article content.
const (
	ContentFormatHTML     = "html"
	ContentFormatMarkdown = "markdown"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	FetchProxies        []string      `mapstructure:"fetch_proxies"`
	FetchTimeoutSeconds int64         `mapstructure:"fetch_timeout_seconds"`
	FetchTimeout        time.Duration `mapstructure:"-"`
	FetchUserAgent      string        `mapstructure:"fetch_user_agent"`

	ContentFormat   string `mapstructure:"content_format"`
	ExcerptMaxChars int    `mapstructure:"excerpt_max_chars"`
	WordsPerMinute  int    `mapstructure:"words_per_minute"`

	// PDF escalation tunables.
	PDFMinTextChars int      `mapstructure:"pdf_min_text_chars"`
	PDFOCRScale     float64  `mapstructure:"pdf_ocr_scale"`
	OCREnabled      bool     `mapstructure:"ocr_enabled"`
	OCRLanguages    []string `mapstructure:"ocr_languages"`

	PublishersFile string `mapstructure:"publishers_file"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	SourceTTLSeconds       int64         `mapstructure:"source_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	SourceTTL              time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "boipoka-ingest")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("fetch_proxies", []string{
		"https://api.allorigins.win/raw?url=",
		"https://corsproxy.io/?",
	})
	v.SetDefault("fetch_timeout_seconds", 30)
	v.SetDefault("fetch_user_agent", "Mozilla/5.0 (compatible; BoipokaIngest/1.0; +https://github.com/boipoka-app/boipoka-ingest)")
	v.SetDefault("content_format", ContentFormatHTML)
	v.SetDefault("excerpt_max_chars", 280)
	v.SetDefault("words_per_minute", 200)
	v.SetDefault("pdf_min_text_chars", 10)
	v.SetDefault("pdf_ocr_scale", 2.0)
	v.SetDefault("ocr_enabled", true)
	v.SetDefault("ocr_languages", []string{"eng"})
	v.SetDefault("publishers_file", "")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/library.db")
	v.SetDefault("source_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.FetchTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid fetch_timeout_seconds (must be positive seconds)")
	}
	cfg.FetchTimeout = time.Duration(cfg.FetchTimeoutSeconds) * time.Second

	switch strings.ToLower(strings.TrimSpace(cfg.ContentFormat)) {
	case ContentFormatHTML:
		cfg.ContentFormat = ContentFormatHTML
	case ContentFormatMarkdown:
		cfg.ContentFormat = ContentFormatMarkdown
	default:
		return nil, fmt.Errorf("invalid content_format %q (must be html or markdown)", cfg.ContentFormat)
	}

	if cfg.ExcerptMaxChars <= 0 {
		return nil, fmt.Errorf("invalid excerpt_max_chars (must be positive)")
	}
	if cfg.WordsPerMinute <= 0 {
		return nil, fmt.Errorf("invalid words_per_minute (must be positive)")
	}
	if cfg.PDFMinTextChars < 0 {
		return nil, fmt.Errorf("invalid pdf_min_text_chars (must not be negative)")
	}
	if cfg.PDFOCRScale <= 0 {
		return nil, fmt.Errorf("invalid pdf_ocr_scale (must be positive)")
	}

	if cfg.SourceTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid source_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.SourceTTL = time.Duration(cfg.SourceTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return &cfg, nil
}
