// Package config centralizes how the auditing service reads environment
// variables and exposes them as strongly typed Go values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingFlowCredentials is returned when a payment operation is attempted
// without the Flow API key, secret key or public base URL.
var ErrMissingFlowCredentials = errors.New("flow credentials or base url not configured")

// DefaultPublicURL is where browsers are sent back to when no public base URL
// is configured.
const DefaultPublicURL = "https://auditoria.nexusai.cl"

// Config represents runtime configuration for the service.
type Config struct {
	Address string `yaml:"address"`

	Flow     FlowConfig     `yaml:"flow"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Checkout CheckoutConfig `yaml:"checkout"`

	MaxFileSize  int64    `yaml:"max_file_bytes"`
	AllowedTypes []string `yaml:"allowed_types"`

	CacheBackend string        `yaml:"cache_backend"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	DatabaseURL string `yaml:"database_url"`

	S3Endpoint   string        `yaml:"s3_endpoint"`
	S3AccessKey  string        `yaml:"s3_access_key"`
	S3SecretKey  string        `yaml:"s3_secret_key"`
	S3Region     string        `yaml:"s3_region"`
	S3UseSSL     bool          `yaml:"s3_use_ssl"`
	ReportBucket string        `yaml:"report_bucket"`
	ReportURLTTL time.Duration `yaml:"report_url_ttl"`

	Workers        int           `yaml:"workers"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	// TrustProxy makes the rate limiter key clients by X-Forwarded-For.
	// Only enable it behind a proxy that overwrites the header.
	TrustProxy bool `yaml:"trust_proxy"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// FlowConfig holds the payment provider credentials.
type FlowConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
	// BaseURL is the public URL of this service, used to build the
	// confirmation and return callbacks.
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds the document analysis credentials.
type GeminiConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
}

// CheckoutConfig describes the fixed-price product being sold.
type CheckoutConfig struct {
	Amount       int64  `yaml:"amount"`
	Currency     string `yaml:"currency"`
	Subject      string `yaml:"subject"`
	DefaultEmail string `yaml:"default_email"`
}

const (
	defaultAddress      = ":8080"
	defaultFlowEndpoint = "https://sandbox.flow.cl"
	defaultGeminiModel  = "gemini-3-flash-preview"
	defaultGeminiURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultAmount       = 5990
	defaultCurrency     = "CLP"
	defaultSubject      = "Auditoria Legal AI"
	defaultEmail        = "contacto@nexusai.cl"
	defaultMaxFileSize  = 20 << 20 // 20 MiB
	defaultAllowedTypes = "application/pdf,image/png,image/jpeg,image/webp,text/plain"
	defaultCacheBackend = "memory"
	defaultReportTTL    = 24 * time.Hour
	defaultWorkerCount  = 2
	defaultHTTPTimeout  = 90 * time.Second
	defaultRateRPS      = 2
	defaultRateBurst    = 10
)

// Load reads configuration from an optional YAML file named by
// AUDITORIA_CONFIG, then lets environment variables override it.
func Load() (*Config, error) {
	cfg := &Config{}
	if path := os.Getenv("AUDITORIA_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Address = readEnv("AUDITORIA_ADDRESS", cfg.Address)

	cfg.Flow.APIKey = strings.TrimSpace(readEnv("FLOW_API_KEY", cfg.Flow.APIKey))
	cfg.Flow.SecretKey = strings.TrimSpace(readEnv("FLOW_SECRET_KEY", cfg.Flow.SecretKey))
	cfg.Flow.Endpoint = readEnv("FLOW_ENDPOINT", cfg.Flow.Endpoint)
	cfg.Flow.BaseURL = firstEnv([]string{"APP_URL", "NEXT_PUBLIC_APP_URL", "NEXT_PUBLIC_URL"}, cfg.Flow.BaseURL)

	cfg.Gemini.APIKey = firstEnv([]string{"GEMINI_API_KEY", "NEXT_PUBLIC_GEMINI_API_KEY"}, cfg.Gemini.APIKey)
	cfg.Gemini.Model = readEnv("GEMINI_MODEL", cfg.Gemini.Model)
	cfg.Gemini.Endpoint = readEnv("GEMINI_ENDPOINT", cfg.Gemini.Endpoint)

	cfg.Checkout.Amount = parseInt64("AUDIT_AMOUNT", cfg.Checkout.Amount)
	cfg.Checkout.Currency = readEnv("AUDIT_CURRENCY", cfg.Checkout.Currency)
	cfg.Checkout.Subject = readEnv("AUDIT_SUBJECT", cfg.Checkout.Subject)
	cfg.Checkout.DefaultEmail = readEnv("AUDIT_DEFAULT_EMAIL", cfg.Checkout.DefaultEmail)

	cfg.MaxFileSize = parseInt64("MAX_FILE_BYTES", cfg.MaxFileSize)
	if v, ok := os.LookupEnv("ALLOWED_TYPES"); ok && v != "" {
		cfg.AllowedTypes = parseList(v)
	}

	cfg.CacheBackend = strings.ToLower(readEnv("CACHE_BACKEND", cfg.CacheBackend))
	cfg.CacheTTL = parseDuration("CACHE_TTL", cfg.CacheTTL)

	cfg.RedisAddr = readEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = readEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = parseInt("REDIS_DB", cfg.RedisDB)

	cfg.DatabaseURL = readEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.S3Endpoint = readEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = readEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = readEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Region = readEnv("S3_REGION", cfg.S3Region)
	cfg.S3UseSSL = parseBool("S3_USE_SSL", cfg.S3UseSSL)
	cfg.ReportBucket = readEnv("REPORT_BUCKET", cfg.ReportBucket)
	cfg.ReportURLTTL = parseDuration("REPORT_URL_TTL", cfg.ReportURLTTL)

	cfg.Workers = parseInt("WORKERS", cfg.Workers)
	cfg.HTTPTimeout = parseDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.RateLimitRPS = parseFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = parseInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.TrustProxy = parseBool("TRUST_PROXY", cfg.TrustProxy)

	cfg.LogLevel = readEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = readEnv("LOG_FORMAT", cfg.LogFormat)
}

func applyDefaults(cfg *Config) {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.Flow.Endpoint == "" {
		cfg.Flow.Endpoint = defaultFlowEndpoint
	}
	cfg.Flow.Endpoint = strings.TrimSuffix(cfg.Flow.Endpoint, "/")
	cfg.Flow.BaseURL = strings.TrimSuffix(cfg.Flow.BaseURL, "/")
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = defaultGeminiModel
	}
	if cfg.Gemini.Endpoint == "" {
		cfg.Gemini.Endpoint = defaultGeminiURL
	}
	if cfg.Checkout.Amount <= 0 {
		cfg.Checkout.Amount = defaultAmount
	}
	if cfg.Checkout.Currency == "" {
		cfg.Checkout.Currency = defaultCurrency
	}
	if cfg.Checkout.Subject == "" {
		cfg.Checkout.Subject = defaultSubject
	}
	if cfg.Checkout.DefaultEmail == "" {
		cfg.Checkout.DefaultEmail = defaultEmail
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = parseList(defaultAllowedTypes)
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = defaultCacheBackend
	}
	if cfg.ReportURLTTL <= 0 {
		cfg.ReportURLTTL = defaultReportTTL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = defaultRateRPS
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = defaultRateBurst
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
}

// validate only rejects settings that make the process unusable. Missing Flow
// credentials are reported per request so the free preview keeps working.
func (c *Config) validate() error {
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("CACHE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.CacheTTL < 0 {
		return errors.New("CACHE_TTL must not be negative")
	}
	return nil
}

// FlowReady reports ErrMissingFlowCredentials unless the API key, secret key
// and public base URL are all set.
func (c *Config) FlowReady() error {
	if c.Flow.APIKey == "" || c.Flow.SecretKey == "" || c.Flow.BaseURL == "" {
		return ErrMissingFlowCredentials
	}
	return nil
}

// PublicURL is the browser-facing base URL, falling back to DefaultPublicURL.
func (c *Config) PublicURL() string {
	if c.Flow.BaseURL != "" {
		return c.Flow.BaseURL
	}
	return DefaultPublicURL
}

// FlowKeysReady is FlowReady without the base URL, for status lookups.
func (c *Config) FlowKeysReady() error {
	if c.Flow.APIKey == "" || c.Flow.SecretKey == "" {
		return ErrMissingFlowCredentials
	}
	return nil
}

// QueueEnabled reports whether Redis is configured for background tasks.
func (c *Config) QueueEnabled() bool {
	return c.RedisAddr != ""
}

// ArchiveEnabled reports whether delivered reports go to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Endpoint != "" && c.ReportBucket != ""
}

// AllowsType reports whether uploads of the given MIME type are accepted.
func (c *Config) AllowsType(mimeType string) bool {
	for _, allowed := range c.AllowedTypes {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func firstEnv(keys []string, def string) string {
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
	}
	return def
}

func parseList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
