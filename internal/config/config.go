package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	RateLimit  RateLimitConfig
	TOTP       TOTPConfig
	Audit      AuditConfig
	Revocation RevocationConfig
	Tokens     TokenConfig
	Notify     NotifyConfig
	MinIO      MinIOConfig
	Log        LogConfig
	Admin      AdminConfig
}

type DBConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig with an empty Addr leaves the rate limiter on in-process
// counters only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
	BaseURL        string
}

type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	Login             RateLimitPolicy
	Registration      RateLimitPolicy
	PasswordReset     RateLimitPolicy
	EmailVerification RateLimitPolicy
	StoreTimeout      time.Duration
	PruneInterval     time.Duration
}

type TOTPConfig struct {
	Issuer           string
	EncryptionSecret string
}

type AuditConfig struct {
	QueueSize         int
	Workers           int
	FailedLoginLimit  int
	DistinctIPLimit   int
	Lookback          time.Duration
	Retention         time.Duration
	PurgeInterval     time.Duration
	ArchiveOnPurge    bool
	BlockSuspicious   bool
	HealthCheckEvery  time.Duration
	TokenCleanupEvery time.Duration
}

type RevocationConfig struct {
	StoreTimeout  time.Duration
	FailOpen      bool
	SweepInterval time.Duration
}

type TokenConfig struct {
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
}

type NotifyConfig struct {
	QueueSize int
	Workers   int
	FromEmail string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AdminConfig seeds a first administrator into an empty user table when
// Password is set.
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Path:     getEnv("DB_PATH", "authcore.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "moneymapper"),
			Password: getEnv("DB_PASSWORD", "moneymapper_secret"),
			Name:     getEnv("DB_NAME", "moneymapper"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-me-in-production"),
			Expiration: getEnvAsDuration("JWT_EXPIRATION", 24*time.Hour),
			Issuer:     getEnv("JWT_ISSUER", "moneymapper"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			BaseURL:        getEnv("APP_BASE_URL", "http://localhost:3000"),
		},
		RateLimit: RateLimitConfig{
			Login: RateLimitPolicy{
				Limit:  getEnvAsInt("RATE_LIMIT_LOGIN_LIMIT", 5),
				Window: getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			},
			Registration: RateLimitPolicy{
				Limit:  getEnvAsInt("RATE_LIMIT_REGISTRATION_LIMIT", 3),
				Window: getEnvAsDuration("RATE_LIMIT_REGISTRATION_WINDOW", time.Hour),
			},
			PasswordReset: RateLimitPolicy{
				Limit:  getEnvAsInt("RATE_LIMIT_PASSWORD_RESET_LIMIT", 3),
				Window: getEnvAsDuration("RATE_LIMIT_PASSWORD_RESET_WINDOW", time.Hour),
			},
			EmailVerification: RateLimitPolicy{
				Limit:  getEnvAsInt("RATE_LIMIT_EMAIL_VERIFICATION_LIMIT", 5),
				Window: getEnvAsDuration("RATE_LIMIT_EMAIL_VERIFICATION_WINDOW", time.Hour),
			},
			StoreTimeout:  getEnvAsDuration("RATE_LIMIT_STORE_TIMEOUT", 250*time.Millisecond),
			PruneInterval: getEnvAsDuration("RATE_LIMIT_PRUNE_INTERVAL", 10*time.Minute),
		},
		TOTP: TOTPConfig{
			Issuer:           getEnv("TOTP_ISSUER", "MoneyMapper"),
			EncryptionSecret: getEnv("TOTP_ENCRYPTION_SECRET", getEnv("JWT_SECRET", "")),
		},
		Audit: AuditConfig{
			QueueSize:         getEnvAsInt("AUDIT_QUEUE_SIZE", 1000),
			Workers:           getEnvAsInt("AUDIT_WORKERS", 4),
			FailedLoginLimit:  getEnvAsInt("AUDIT_SUSPICIOUS_FAILED_LOGINS", 5),
			DistinctIPLimit:   getEnvAsInt("AUDIT_SUSPICIOUS_DISTINCT_IPS", 3),
			Lookback:          getEnvAsDuration("AUDIT_SUSPICIOUS_LOOKBACK", time.Hour),
			Retention:         getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
			PurgeInterval:     getEnvAsDuration("AUDIT_PURGE_INTERVAL", 7*24*time.Hour),
			ArchiveOnPurge:    getEnvAsBool("AUDIT_ARCHIVE_ON_PURGE", false),
			BlockSuspicious:   getEnvAsBool("AUDIT_BLOCK_SUSPICIOUS_LOGINS", false),
			HealthCheckEvery:  getEnvAsDuration("SECURITY_HEALTH_CHECK_INTERVAL", time.Hour),
			TokenCleanupEvery: getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 24*time.Hour),
		},
		Revocation: RevocationConfig{
			StoreTimeout:  getEnvAsDuration("REVOCATION_STORE_TIMEOUT", 500*time.Millisecond),
			FailOpen:      getEnvAsBool("REVOCATION_FAIL_OPEN", true),
			SweepInterval: getEnvAsDuration("REVOCATION_SWEEP_INTERVAL", 24*time.Hour),
		},
		Tokens: TokenConfig{
			VerificationTTL:  getEnvAsDuration("EMAIL_VERIFICATION_TTL", 24*time.Hour),
			PasswordResetTTL: time.Duration(getEnvAsInt("PASSWORD_RESET_EXPIRATION_MINUTES", 60)) * time.Minute,
		},
		Notify: NotifyConfig{
			QueueSize: getEnvAsInt("NOTIFY_QUEUE_SIZE", 200),
			Workers:   getEnvAsInt("NOTIFY_WORKERS", 2),
			FromEmail: getEnv("MAIL_FROM", "noreply@moneymapper.local"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "moneymapper"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "moneymapper_secret"),
			Bucket:    getEnv("MINIO_AUDIT_BUCKET", "security-audit-archive"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Email:    getEnv("ADMIN_EMAIL", "admin@moneymapper.local"),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
