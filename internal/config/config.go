package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// MinJWTSecretLength is the shortest HS256 secret accepted.
const MinJWTSecretLength = 32

type Config struct {
	// HTTP Server
	Port          string
	PublicBaseURL string
	MaxUploadSize int64

	// Backend selection
	DataBackend  string
	SQLiteDBPath string
	UploadDir    string

	// Auth
	JWTSecret string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Rate limiting; Redis is optional
	RedisURL           string
	RateLimitPerMinute int

	// TrustedProxies are CIDRs, beyond the private ranges, allowed to set
	// X-Forwarded-For.
	TrustedProxies []string

	// Sessions
	SessionTTL         time.Duration
	SessionSnapshotDir string

	// Worker
	ReconcileSchedule string

	// Google Sheets mirror, optional
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	LogLevel string
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8081")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8081")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("DATA_BACKEND", "memory")
	v.SetDefault("SQLITE_DB_PATH", "./data/metas.db")
	v.SetDefault("UPLOAD_DIR", "./data/uploads")
	v.SetDefault("AMQP_EXCHANGE", "metas")
	v.SetDefault("AMQP_QUEUE", "ledger_events")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	v.SetDefault("SESSION_TTL", 30*time.Minute)
	v.SetDefault("SESSION_SNAPSHOT_DIR", "./data/sessions")
	v.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	v.SetDefault("GOOGLE_SHEET_NAME", "Deposits")
	v.SetDefault("LOG_LEVEL", "info")

	return &Config{
		Port:          v.GetString("PORT"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		MaxUploadSize: v.GetInt64("MAX_UPLOAD_BYTES"),

		DataBackend:  v.GetString("DATA_BACKEND"),
		SQLiteDBPath: v.GetString("SQLITE_DB_PATH"),
		UploadDir:    v.GetString("UPLOAD_DIR"),

		JWTSecret: v.GetString("AUTH_JWT_SECRET"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),
		AMQPQueue:    v.GetString("AMQP_QUEUE"),

		RedisURL:           v.GetString("REDIS_URL"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),

		TrustedProxies: splitList(v.GetString("TRUSTED_PROXIES")),

		SessionTTL:         v.GetDuration("SESSION_TTL"),
		SessionSnapshotDir: v.GetString("SESSION_SNAPSHOT_DIR"),

		ReconcileSchedule: v.GetString("RECONCILE_SCHEDULE"),

		GoogleSpreadsheetID:      v.GetString("GOOGLE_SPREADSHEET_ID"),
		GoogleSheetName:          v.GetString("GOOGLE_SHEET_NAME"),
		GoogleServiceAccountJSON: v.GetString("GOOGLE_SERVICE_ACCOUNT_JSON"),
		GoogleServiceAccountFile: v.GetString("GOOGLE_SERVICE_ACCOUNT_FILE"),

		LogLevel: v.GetString("LOG_LEVEL"),
	}
}

// MirrorEnabled reports whether approved deposits go to a spreadsheet.
func (c *Config) MirrorEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if u, err := url.Parse(c.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid public base URL '%s': must be an absolute http(s) URL", c.PublicBaseURL))
	}

	if c.MaxUploadSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be positive", c.MaxUploadSize))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(filepath.Dir(c.SQLiteDBPath)); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
		}
		if c.UploadDir == "" {
			errors = append(errors, "upload directory cannot be empty when using sqlite backend")
		}
	}

	if len(c.JWTSecret) < MinJWTSecretLength {
		errors = append(errors, fmt.Sprintf("AUTH_JWT_SECRET must be at least %d characters", MinJWTSecretLength))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': must use redis:// or rediss://", c.RedisURL))
		}
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	} else if c.SessionTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at most 7 days", c.SessionTTL))
	}

	if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid reconcile schedule '%s': %v", c.ReconcileSchedule, err))
	}

	if c.MirrorEnabled() {
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "Google service account credentials are required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
