package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pratik-mahalle/secwatch/internal/detector"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Security SecurityConfig
	GCP      GCPConfig
	Email    EmailConfig
	Timeouts SinkTimeouts
	Dispatch DispatchConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Environment     string
	Instance        string
	UpstreamURL     string // receives every request no route matches
	TrustedProxies  []string
}

// DatabaseConfig contains alert history database configuration. Driver
// "none" disables the history sink and API.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// AuthConfig contains the settings used to recognise authenticated actors
type AuthConfig struct {
	JWTSecret   string
	TokenCookie string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string
	Format     string // json or console
	OutputPath string
}

// SecurityConfig controls request classification and the rate tracker
type SecurityConfig struct {
	AdminPrefix     string
	LoginPath       string
	RateWindow      time.Duration
	TrackerMaxKeys  int
	SweepSchedule   string
	APIRateLimit    float64
	APIRateBurst    int
	MonitorRequests bool
}

// GCPConfig contains Google Cloud settings. A sink is enabled only when its
// own setting is present.
type GCPConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
	PubSubTopic     string
	StoreBackend    string // bigquery or gcs
	BigQueryDataset string
	BigQueryTable   string
	ArchiveBucket   string
	ArchivePrefix   string
	FirewallRule    string
	MitigateEnabled bool
}

// EmailConfig contains notification settings
type EmailConfig struct {
	SMTPHost         string
	SMTPPort         int
	Username         string
	Password         string
	From             string
	Recipients       []string
	NotifySeverities []string
	TLSSkipVerify    bool
}

// SinkTimeouts bounds each sink invocation
type SinkTimeouts struct {
	Log      time.Duration
	Metrics  time.Duration
	Publish  time.Duration
	Store    time.Duration
	History  time.Duration
	Notify   time.Duration
	Mitigate time.Duration
}

// DispatchConfig tunes the alert fan-out
type DispatchConfig struct {
	// MaxConcurrentSinks caps parallel deliveries per alert; 0 is unlimited
	MaxConcurrentSinks int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES", []string{"*"}),
			Environment:     getEnv("ENVIRONMENT", "development"),
			Instance:        getEnv("INSTANCE_NAME", hostname),
			UpstreamURL:     getEnv("UPSTREAM_URL", ""),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "secwatch"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./secwatch.db"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", "supersecretkey"),
			TokenCookie: getEnv("AUTH_TOKEN_COOKIE", "accessToken"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Security: SecurityConfig{
			AdminPrefix:     getEnv("ADMIN_PATH_PREFIX", "/admin/"),
			LoginPath:       getEnv("ADMIN_LOGIN_PATH", "/admin/login/"),
			RateWindow:      getEnvAsDuration("FAILED_LOGIN_WINDOW", 300*time.Second),
			TrackerMaxKeys:  getEnvAsInt("TRACKER_MAX_KEYS", 10000),
			SweepSchedule:   getEnv("TRACKER_SWEEP_SCHEDULE", "@every 1m"),
			APIRateLimit:    getEnvAsFloat("API_RATE_LIMIT", 20),
			APIRateBurst:    getEnvAsInt("API_RATE_BURST", 40),
			MonitorRequests: getEnvAsBool("MONITOR_REQUESTS", true),
		},
		GCP: GCPConfig{
			ProjectID:       getEnv("GOOGLE_CLOUD_PROJECT", getEnv("PROJECT_ID", "")),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			CredentialsJSON: getEnv("GCP_CREDENTIALS_JSON", ""),
			PubSubTopic:     getEnv("PUBSUB_TOPIC", "prometheus-alerts"),
			StoreBackend:    getEnv("STORE_BACKEND", "bigquery"),
			BigQueryDataset: getEnv("BIGQUERY_DATASET", "security_logs"),
			BigQueryTable:   getEnv("BIGQUERY_TABLE", "alerts"),
			ArchiveBucket:   getEnv("ARCHIVE_BUCKET", ""),
			ArchivePrefix:   getEnv("ARCHIVE_PREFIX", "alerts"),
			FirewallRule:    getEnv("FIREWALL_RULE", "blocked-ips"),
			MitigateEnabled: getEnvAsBool("MITIGATE_ENABLED", true),
		},
		Email: EmailConfig{
			SMTPHost:         getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:         getEnvAsInt("SMTP_PORT", 587),
			Username:         getEnv("SMTP_USERNAME", getEnv("NOTIFICATION_EMAIL", "")),
			Password:         getEnv("EMAIL_APP_PASSWORD", ""),
			From:             getEnv("NOTIFICATION_EMAIL", ""),
			Recipients:       ParseRecipients(os.Getenv("ALERT_EMAIL_RECIPIENTS")),
			NotifySeverities: getEnvAsList("NOTIFY_SEVERITIES", []string{"critical", "high", "error"}),
			TLSSkipVerify:    getEnvAsBool("SMTP_TLS_SKIP_VERIFY", false),
		},
		Timeouts: SinkTimeouts{
			Log:      getEnvAsDuration("SINK_TIMEOUT_LOG", 1*time.Second),
			Metrics:  getEnvAsDuration("SINK_TIMEOUT_METRICS", 1*time.Second),
			Publish:  getEnvAsDuration("SINK_TIMEOUT_PUBLISH", 10*time.Second),
			Store:    getEnvAsDuration("SINK_TIMEOUT_STORE", 10*time.Second),
			History:  getEnvAsDuration("SINK_TIMEOUT_HISTORY", 5*time.Second),
			Notify:   getEnvAsDuration("SINK_TIMEOUT_NOTIFY", 15*time.Second),
			Mitigate: getEnvAsDuration("SINK_TIMEOUT_MITIGATE", 30*time.Second),
		},
		Dispatch: DispatchConfig{
			MaxConcurrentSinks: getEnvAsInt("DISPATCH_MAX_CONCURRENT_SINKS", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Server.Environment == "production" && c.Auth.JWTSecret == "supersecretkey" {
		return fmt.Errorf("JWT_SECRET should not use default value in production")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.UpstreamURL != "" {
		u, err := url.Parse(c.Server.UpstreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid UPSTREAM_URL: %s", c.Server.UpstreamURL)
		}
	}

	if _, err := detector.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	switch c.Database.Driver {
	case "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.GCP.StoreBackend {
	case "bigquery", "gcs":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.GCP.StoreBackend)
	}

	if c.Dispatch.MaxConcurrentSinks < 0 {
		return fmt.Errorf("DISPATCH_MAX_CONCURRENT_SINKS must not be negative")
	}

	if c.Security.RateWindow <= 0 {
		return fmt.Errorf("FAILED_LOGIN_WINDOW must be positive")
	}
	if !strings.HasPrefix(c.Security.AdminPrefix, "/") || !strings.HasPrefix(c.Security.LoginPath, "/") {
		return fmt.Errorf("admin paths must start with /")
	}

	return nil
}

// HistoryEnabled reports whether alert history is persisted
func (c *Config) HistoryEnabled() bool {
	return c.Database.Driver != "none"
}

// EmailEnabled reports whether the notify sink has everything it needs
func (c *Config) EmailEnabled() bool {
	return c.Email.SMTPHost != "" && c.Email.From != "" && len(c.Email.Recipients) > 0
}

// ParseRecipients accepts a JSON array or a comma separated list
func ParseRecipients(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var list []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil
		}
	} else {
		list = strings.Split(raw, ",")
	}

	out := make([]string, 0, len(list))
	for _, r := range list {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
