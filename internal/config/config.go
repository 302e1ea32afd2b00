package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Gateway    GatewayConfig
	Poll       PollConfig
	S3         S3Config
	Resilience ResilienceConfig
	Export     ExportConfig
	Session    SessionConfig
	Upload     UploadConfig
	Log        LogConfig
	CORS       CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// Gateway transport modes.
const (
	GatewayModeHTTP = "http"
	GatewayModeS3   = "s3"
)

// GatewayConfig holds the storage gateway API settings.
type GatewayConfig struct {
	Mode         string `mapstructure:"mode"`
	BaseURL      string `mapstructure:"base_url"`
	BucketPrefix string `mapstructure:"bucket_prefix"`
	ResultsPath  string `mapstructure:"results_path"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// PollConfig holds the result polling budget.
type PollConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	PostUploadDelay time.Duration `mapstructure:"post_upload_delay"`
}

// S3Config holds AWS S3 settings for direct bucket access.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	ResultsPrefix string `mapstructure:"results_prefix"`

	// ForbiddenAsNotReady reads 403 on a result object as "not ready yet".
	// S3 answers 403 instead of 404 for missing keys when the role lacks s3:ListBucket.
	ForbiddenAsNotReady bool `mapstructure:"forbidden_as_not_ready"`
}

// ResilienceConfig holds circuit breaker and rate limit settings for gateway calls.
type ResilienceConfig struct {
	BreakerEnabled      bool          `mapstructure:"breaker_enabled"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `mapstructure:"breaker_open_timeout"`
	RatePerSecond       float64       `mapstructure:"rate_per_second"`
	Burst               int           `mapstructure:"burst"`
}

// ExportConfig holds normalization and export settings.
type ExportConfig struct {
	Timezone         string   `mapstructure:"timezone"`
	DateLayout       string   `mapstructure:"date_layout"`
	TimestampLayout  string   `mapstructure:"timestamp_layout"`
	DateFields       []string `mapstructure:"date_fields"`
	PreferMonthFirst bool     `mapstructure:"prefer_month_first"`
	ProfilePath      string   `mapstructure:"profile_path"`
}

// SessionConfig holds in-memory session limits.
type SessionConfig struct {
	MaxSessions int           `mapstructure:"max_sessions"`
	MaxAge      time.Duration `mapstructure:"max_age"`
}

// UploadConfig holds limits applied to incoming files.
type UploadConfig struct {
	MaxFileSizeMB int64 `mapstructure:"max_file_size_mb"`
	MaxFiles      int   `mapstructure:"max_files"`
}

// MaxFileSizeBytes returns the per-file limit in bytes.
func (u *UploadConfig) MaxFileSizeBytes() int64 {
	return u.MaxFileSizeMB * 1024 * 1024
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Validate checks settings the pipeline cannot run without.
func (c *Config) Validate() error {
	switch c.Gateway.Mode {
	case GatewayModeHTTP:
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("gateway.base_url is required in %s mode", GatewayModeHTTP)
		}
	case GatewayModeS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required in %s mode", GatewayModeS3)
		}
	default:
		return fmt.Errorf("unknown gateway.mode %q", c.Gateway.Mode)
	}
	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("poll.max_attempts must be positive")
	}
	if c.Poll.RetryDelay < 0 || c.Poll.PostUploadDelay < 0 {
		return fmt.Errorf("poll delays must not be negative")
	}
	if _, err := time.LoadLocation(c.Export.Timezone); err != nil {
		return fmt.Errorf("export.timezone: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables with the DOCDASH_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.environment", "development")

	// Gateway defaults
	v.SetDefault("gateway.mode", GatewayModeHTTP)
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.bucket_prefix", "")
	v.SetDefault("gateway.results_path", "results")
	v.SetDefault("gateway.timeout_secs", 60)

	// Poll defaults
	v.SetDefault("poll.max_attempts", 20)
	v.SetDefault("poll.retry_delay", "10s")
	v.SetDefault("poll.post_upload_delay", "12s")

	// S3 defaults
	v.SetDefault("s3.region", "ap-southeast-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.results_prefix", "results/")
	v.SetDefault("s3.forbidden_as_not_ready", false)

	// Resilience defaults
	v.SetDefault("resilience.breaker_enabled", true)
	v.SetDefault("resilience.breaker_min_requests", 10)
	v.SetDefault("resilience.breaker_failure_ratio", 0.5)
	v.SetDefault("resilience.breaker_open_timeout", "30s")
	v.SetDefault("resilience.rate_per_second", 10)
	v.SetDefault("resilience.burst", 5)

	// Export defaults
	v.SetDefault("export.timezone", "Asia/Jakarta")
	v.SetDefault("export.date_layout", "2006-01-02")
	v.SetDefault("export.timestamp_layout", "2006-01-02 15:04:05 MST")
	v.SetDefault("export.date_fields", "delivery_date,order_date")
	v.SetDefault("export.prefer_month_first", false)
	v.SetDefault("export.profile_path", "")

	// Session defaults
	v.SetDefault("session.max_sessions", 50)
	v.SetDefault("session.max_age", "2h")

	// Upload defaults
	v.SetDefault("upload.max_file_size_mb", 10)
	v.SetDefault("upload.max_files", 20)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:8501")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                      "DOCDASH_SERVER_PORT",
		"server.read_timeout":              "DOCDASH_SERVER_READ_TIMEOUT",
		"server.write_timeout":             "DOCDASH_SERVER_WRITE_TIMEOUT",
		"server.environment":               "DOCDASH_SERVER_ENVIRONMENT",
		"gateway.mode":                     "DOCDASH_GATEWAY_MODE",
		"gateway.base_url":                 "DOCDASH_GATEWAY_BASE_URL",
		"gateway.bucket_prefix":            "DOCDASH_GATEWAY_BUCKET_PREFIX",
		"gateway.results_path":             "DOCDASH_GATEWAY_RESULTS_PATH",
		"gateway.timeout_secs":             "DOCDASH_GATEWAY_TIMEOUT_SECS",
		"poll.max_attempts":                "DOCDASH_POLL_MAX_ATTEMPTS",
		"poll.retry_delay":                 "DOCDASH_POLL_RETRY_DELAY",
		"poll.post_upload_delay":           "DOCDASH_POLL_POST_UPLOAD_DELAY",
		"s3.region":                        "DOCDASH_S3_REGION",
		"s3.bucket":                        "DOCDASH_S3_BUCKET",
		"s3.endpoint":                      "DOCDASH_S3_ENDPOINT",
		"s3.access_key":                    "DOCDASH_S3_ACCESS_KEY",
		"s3.secret_key":                    "DOCDASH_S3_SECRET_KEY",
		"s3.results_prefix":                "DOCDASH_S3_RESULTS_PREFIX",
		"s3.forbidden_as_not_ready":        "DOCDASH_S3_FORBIDDEN_AS_NOT_READY",
		"resilience.breaker_enabled":       "DOCDASH_RESILIENCE_BREAKER_ENABLED",
		"resilience.breaker_min_requests":  "DOCDASH_RESILIENCE_BREAKER_MIN_REQUESTS",
		"resilience.breaker_failure_ratio": "DOCDASH_RESILIENCE_BREAKER_FAILURE_RATIO",
		"resilience.breaker_open_timeout":  "DOCDASH_RESILIENCE_BREAKER_OPEN_TIMEOUT",
		"resilience.rate_per_second":       "DOCDASH_RESILIENCE_RATE_PER_SECOND",
		"resilience.burst":                 "DOCDASH_RESILIENCE_BURST",
		"export.timezone":                  "DOCDASH_EXPORT_TIMEZONE",
		"export.date_layout":               "DOCDASH_EXPORT_DATE_LAYOUT",
		"export.timestamp_layout":          "DOCDASH_EXPORT_TIMESTAMP_LAYOUT",
		"export.date_fields":               "DOCDASH_EXPORT_DATE_FIELDS",
		"export.prefer_month_first":        "DOCDASH_EXPORT_PREFER_MONTH_FIRST",
		"export.profile_path":              "DOCDASH_EXPORT_PROFILE_PATH",
		"session.max_sessions":             "DOCDASH_SESSION_MAX_SESSIONS",
		"session.max_age":                  "DOCDASH_SESSION_MAX_AGE",
		"upload.max_file_size_mb":          "DOCDASH_UPLOAD_MAX_FILE_SIZE_MB",
		"upload.max_files":                 "DOCDASH_UPLOAD_MAX_FILES",
		"log.level":                        "DOCDASH_LOG_LEVEL",
		"log.format":                       "DOCDASH_LOG_FORMAT",
		"cors.allowed_origins":             "DOCDASH_CORS_ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if DOCDASH_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DOCDASH_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.Gateway = GatewayConfig{
		Mode:         strings.ToLower(v.GetString("gateway.mode")),
		BaseURL:      v.GetString("gateway.base_url"),
		BucketPrefix: v.GetString("gateway.bucket_prefix"),
		ResultsPath:  v.GetString("gateway.results_path"),
		TimeoutSecs:  v.GetInt("gateway.timeout_secs"),
	}
	cfg.Poll = PollConfig{
		MaxAttempts:     v.GetInt("poll.max_attempts"),
		RetryDelay:      v.GetDuration("poll.retry_delay"),
		PostUploadDelay: v.GetDuration("poll.post_upload_delay"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		ResultsPrefix: v.GetString("s3.results_prefix"),

		ForbiddenAsNotReady: v.GetBool("s3.forbidden_as_not_ready"),
	}
	cfg.Resilience = ResilienceConfig{
		BreakerEnabled:      v.GetBool("resilience.breaker_enabled"),
		BreakerMinRequests:  v.GetUint32("resilience.breaker_min_requests"),
		BreakerFailureRatio: v.GetFloat64("resilience.breaker_failure_ratio"),
		BreakerOpenTimeout:  v.GetDuration("resilience.breaker_open_timeout"),
		RatePerSecond:       v.GetFloat64("resilience.rate_per_second"),
		Burst:               v.GetInt("resilience.burst"),
	}
	cfg.Export = ExportConfig{
		Timezone:         v.GetString("export.timezone"),
		DateLayout:       v.GetString("export.date_layout"),
		TimestampLayout:  v.GetString("export.timestamp_layout"),
		DateFields:       splitList(v.GetString("export.date_fields")),
		PreferMonthFirst: v.GetBool("export.prefer_month_first"),
		ProfilePath:      v.GetString("export.profile_path"),
	}
	cfg.Session = SessionConfig{
		MaxSessions: v.GetInt("session.max_sessions"),
		MaxAge:      v.GetDuration("session.max_age"),
	}
	cfg.Upload = UploadConfig{
		MaxFileSizeMB: v.GetInt64("upload.max_file_size_mb"),
		MaxFiles:      v.GetInt("upload.max_files"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}

	return cfg, nil
}

// splitList parses a comma-separated setting, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
