package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	Storage    StorageConfig
	Sync       SyncConfig
	Connector  ConnectorConfig
	Webhook    WebhookConfig
	Encryption EncryptionConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds Hub database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	// OperationTimeout bounds pull, push and process requests
	OperationTimeout time.Duration
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
	LogsEnabled       bool
}

// StorageConfig holds object storage settings for imported document files
type StorageConfig struct {
	Type         string // s3, memory
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	MaxFileSize  int64

	PresignExpiration time.Duration
}

// SyncConfig holds ERP dispatch settings
type SyncConfig struct {
	ProcessorEnabled bool
	PollInterval     time.Duration
	BatchSize        int
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	// ProcessingLease is how long a claimed record stays hidden before
	// another worker may take it over
	ProcessingLease time.Duration
}

// ConnectorConfig holds defaults for external API connectors
type ConnectorConfig struct {
	RequestsPerMinute      int
	Timeout                time.Duration
	MaxRetries             int
	RetryDelay             time.Duration
	PageDelay              time.Duration
	AllowCustomExpressions bool
}

// WebhookConfig holds webhook delivery settings
type WebhookConfig struct {
	Timeout           time.Duration
	UserAgent         string
	RetryEnabled      bool
	RetryPollInterval time.Duration
	RetryBatchSize    int
	RetryRetention    time.Duration
	RetryLease        time.Duration
	DeliveryGuardTTL  time.Duration
}

// EncryptionConfig holds the key protecting ERP credentials at rest
type EncryptionConfig struct {
	PasswordKey string // 64 hex characters
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g., SYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
//
// The credential key is read from SYNC_PASSWORD_KEY.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("encryption.password_key", "SYNC_PASSWORD_KEY")

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			OperationTimeout: v.GetDuration("http.operation_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
		Storage: StorageConfig{
			Type:         v.GetString("storage.type"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			MaxFileSize:  v.GetInt64("storage.max_file_size"),

			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Sync: SyncConfig{
			ProcessorEnabled: v.GetBool("sync.processor_enabled"),
			PollInterval:     v.GetDuration("sync.poll_interval"),
			BatchSize:        v.GetInt("sync.batch_size"),
			ConnectTimeout:   v.GetDuration("sync.connect_timeout"),
			StatementTimeout: v.GetDuration("sync.statement_timeout"),
			ProcessingLease:  v.GetDuration("sync.processing_lease"),
		},
		Connector: ConnectorConfig{
			RequestsPerMinute:      v.GetInt("connector.requests_per_minute"),
			Timeout:                v.GetDuration("connector.timeout"),
			MaxRetries:             v.GetInt("connector.max_retries"),
			RetryDelay:             v.GetDuration("connector.retry_delay"),
			PageDelay:              v.GetDuration("connector.page_delay"),
			AllowCustomExpressions: v.GetBool("connector.allow_custom_expressions"),
		},
		Webhook: WebhookConfig{
			Timeout:           v.GetDuration("webhook.timeout"),
			UserAgent:         v.GetString("webhook.user_agent"),
			RetryEnabled:      v.GetBool("webhook.retry_enabled"),
			RetryPollInterval: v.GetDuration("webhook.retry_poll_interval"),
			RetryBatchSize:    v.GetInt("webhook.retry_batch_size"),
			RetryRetention:    v.GetDuration("webhook.retry_retention"),
			RetryLease:        v.GetDuration("webhook.retry_lease"),
			DeliveryGuardTTL:  v.GetDuration("webhook.delivery_guard_ttl"),
		},
		Encryption: EncryptionConfig{
			PasswordKey: v.GetString("encryption.password_key"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sync-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "hub"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "sync.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// pulls run inside the request
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.OperationTimeout == 0 {
		cfg.HTTP.OperationTimeout = cfg.HTTP.WriteTimeout * 9 / 10
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID", "X-User-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "sync-engine"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "hub-documents"
	}
	if cfg.Storage.MaxFileSize == 0 {
		cfg.Storage.MaxFileSize = 20 << 20
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = 30 * time.Second
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 10
	}
	if cfg.Sync.ConnectTimeout == 0 {
		cfg.Sync.ConnectTimeout = 30 * time.Second
	}
	if cfg.Sync.StatementTimeout == 0 {
		cfg.Sync.StatementTimeout = 60 * time.Second
	}
	if cfg.Sync.ProcessingLease == 0 {
		cfg.Sync.ProcessingLease = 5 * time.Minute
	}
	if cfg.Connector.RequestsPerMinute == 0 {
		cfg.Connector.RequestsPerMinute = 10
	}
	if cfg.Connector.Timeout == 0 {
		cfg.Connector.Timeout = 30 * time.Second
	}
	if cfg.Connector.MaxRetries == 0 {
		cfg.Connector.MaxRetries = 3
	}
	if cfg.Connector.RetryDelay == 0 {
		cfg.Connector.RetryDelay = time.Second
	}
	if cfg.Connector.PageDelay == 0 {
		cfg.Connector.PageDelay = 100 * time.Millisecond
	}
	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 10 * time.Second
	}
	if cfg.Webhook.UserAgent == "" {
		cfg.Webhook.UserAgent = "SyncHub-Webhook/1.0"
	}
	if cfg.Webhook.RetryPollInterval == 0 {
		cfg.Webhook.RetryPollInterval = time.Second
	}
	if cfg.Webhook.RetryBatchSize == 0 {
		cfg.Webhook.RetryBatchSize = 50
	}
	if cfg.Webhook.RetryRetention == 0 {
		cfg.Webhook.RetryRetention = 168 * time.Hour
	}
	if cfg.Webhook.RetryLease == 0 {
		cfg.Webhook.RetryLease = 2 * time.Minute
	}
	if cfg.Webhook.DeliveryGuardTTL == 0 {
		cfg.Webhook.DeliveryGuardTTL = 24 * time.Hour
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Storage.Type {
	case "memory", "s3":
	default:
		return fmt.Errorf("storage.type must be memory or s3, got %q", c.Storage.Type)
	}

	if c.Encryption.PasswordKey != "" {
		if err := validateKey(c.Encryption.PasswordKey); err != nil {
			return err
		}
	}

	if c.App.Env == "production" {
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Encryption.PasswordKey == "" {
			return fmt.Errorf("SYNC_PASSWORD_KEY is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Connector.RequestsPerMinute < 0 {
		return fmt.Errorf("connector.requests_per_minute cannot be negative")
	}
	if c.HTTP.OperationTimeout >= c.HTTP.WriteTimeout {
		return fmt.Errorf("http.operation_timeout (%s) must be shorter than http.write_timeout (%s)",
			c.HTTP.OperationTimeout, c.HTTP.WriteTimeout)
	}
	if c.Sync.ProcessingLease <= c.Sync.ConnectTimeout+c.Sync.StatementTimeout {
		return fmt.Errorf("sync.processing_lease (%s) must exceed connect_timeout + statement_timeout (%s)",
			c.Sync.ProcessingLease, c.Sync.ConnectTimeout+c.Sync.StatementTimeout)
	}
	if c.Webhook.RetryLease <= c.Webhook.Timeout {
		return fmt.Errorf("webhook.retry_lease (%s) must exceed webhook.timeout (%s)",
			c.Webhook.RetryLease, c.Webhook.Timeout)
	}

	return nil
}

func validateKey(key string) error {
	if len(key) != 64 {
		return fmt.Errorf("SYNC_PASSWORD_KEY must be 64 hex characters, got %d", len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("SYNC_PASSWORD_KEY is not valid hex: %w", err)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
