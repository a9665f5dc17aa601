package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	BaseURL   string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	SMTP         SMTPConfig
	Clearance    ClearanceConfig
	Certificates CertificatesConfig
	StatusCache  StatusCacheConfig
	Workers      WorkersConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SMTPConfig configures the outbound mail collaborator.
type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	SkipTLSVerify bool
}

// ClearanceConfig governs the workflow engine rules. The department list is
// snapshotted into each form at submission time; changing it later never
// touches in-flight forms.
type ClearanceConfig struct {
	Departments          []string
	MaxDeptReapply       int
	MaxGlobalReapply     int
	ReapplyCooldown      time.Duration
	MinReapplyMessageLen int
}

// CertificatesConfig controls certificate artifact storage & signing.
type CertificatesConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	Issuer          string
}

// StatusCacheConfig tunes the Redis-backed status lookup cache.
type StatusCacheConfig struct {
	TTL time.Duration
}

// WorkersConfig tunes the background job queues.
type WorkersConfig struct {
	NotificationConcurrency int
	NotificationRetries     int
	CertificateConcurrency  int
	CertificateRetries      int
	RetryDelay              time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.BaseURL = v.GetString("BASE_URL")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SMTP = SMTPConfig{
		Host:          v.GetString("SMTP_HOST"),
		Port:          v.GetInt("SMTP_PORT"),
		User:          v.GetString("SMTP_USER"),
		Password:      v.GetString("SMTP_PASS"),
		From:          v.GetString("SMTP_FROM"),
		SkipTLSVerify: v.GetBool("SMTP_SKIP_TLS_VERIFY"),
	}

	cfg.Clearance = ClearanceConfig{
		Departments:          splitAndTrim(v.GetString("CLEARANCE_DEPARTMENTS")),
		MaxDeptReapply:       v.GetInt("CLEARANCE_MAX_DEPT_REAPPLY"),
		MaxGlobalReapply:     v.GetInt("CLEARANCE_MAX_GLOBAL_REAPPLY"),
		ReapplyCooldown:      parseDuration(v.GetString("CLEARANCE_REAPPLY_COOLDOWN"), 0),
		MinReapplyMessageLen: v.GetInt("CLEARANCE_MIN_REAPPLY_MESSAGE_LEN"),
	}

	cfg.Certificates = CertificatesConfig{
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 0),
		Issuer:          v.GetString("CERTIFICATES_ISSUER"),
	}

	cfg.StatusCache = StatusCacheConfig{
		TTL: parseDuration(v.GetString("STATUS_CACHE_TTL"), time.Minute),
	}

	cfg.Workers = WorkersConfig{
		NotificationConcurrency: v.GetInt("NOTIFICATION_WORKER_CONCURRENCY"),
		NotificationRetries:     v.GetInt("NOTIFICATION_WORKER_RETRIES"),
		CertificateConcurrency:  v.GetInt("CERTIFICATE_WORKER_CONCURRENCY"),
		CertificateRetries:      v.GetInt("CERTIFICATE_WORKER_RETRIES"),
		RetryDelay:              parseDuration(v.GetString("WORKER_RETRY_DELAY"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "nodues_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "nodues-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM", "No Dues Portal <no-reply@localhost>")
	v.SetDefault("SMTP_SKIP_TLS_VERIFY", false)

	v.SetDefault("CLEARANCE_DEPARTMENTS", "library,hostel,accounts_department,examination,school_hod")
	v.SetDefault("CLEARANCE_MAX_DEPT_REAPPLY", 5)
	v.SetDefault("CLEARANCE_MAX_GLOBAL_REAPPLY", 5)
	v.SetDefault("CLEARANCE_REAPPLY_COOLDOWN", "0s")
	v.SetDefault("CLEARANCE_MIN_REAPPLY_MESSAGE_LEN", 5)

	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "720h")
	v.SetDefault("CERTIFICATES_ISSUER", "University No Dues Portal")

	v.SetDefault("STATUS_CACHE_TTL", "1m")

	v.SetDefault("NOTIFICATION_WORKER_CONCURRENCY", 2)
	v.SetDefault("NOTIFICATION_WORKER_RETRIES", 3)
	v.SetDefault("CERTIFICATE_WORKER_CONCURRENCY", 1)
	v.SetDefault("CERTIFICATE_WORKER_RETRIES", 5)
	v.SetDefault("WORKER_RETRY_DELAY", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
