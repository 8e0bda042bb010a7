package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	AuthCookieSecure bool
	AuthJWTSecret    string
	AccessTokenTTL   time.Duration

	OTLPEndpoint string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	QueueDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookBaseURL    string
	ProviderKeySecret string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	GuestStarterCredits   int64
	GuestJobTTL           time.Duration
	AccountDeletionWindow time.Duration

	WorkerConcurrency int
	DispatchAttempts  int
	DispatchBackoff   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "artline"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		AuthCookieSecure: authCookieSecure,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AccessTokenTTL:   getenvDuration("ACCESS_TOKEN_TTL", 72*time.Hour),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "artline"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		QueueDriver:   getenv("QUEUE_DRIVER", "redis"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		WebhookBaseURL:    strings.TrimRight(getenv("WEBHOOK_BASE_URL", ""), "/"),
		ProviderKeySecret: strings.TrimSpace(getenv("PROVIDER_KEY_SECRET", "")),

		S3Bucket:          getenv("S3_BUCKET", ""),
		S3Region:          getenv("S3_REGION", "us-east-1"),
		S3Endpoint:        getenv("S3_ENDPOINT", ""),
		S3AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
		S3PublicBaseURL:   strings.TrimRight(getenv("S3_PUBLIC_BASE_URL", ""), "/"),

		GuestStarterCredits:   getenvInt64("GUEST_STARTER_CREDITS", 30),
		GuestJobTTL:           getenvDuration("GUEST_JOB_TTL", 15*24*time.Hour),
		AccountDeletionWindow: getenvDuration("ACCOUNT_DELETION_WINDOW", 30*24*time.Hour),

		WorkerConcurrency: int(getenvInt64("WORKER_CONCURRENCY", 4)),
		DispatchAttempts:  int(getenvInt64("DISPATCH_ATTEMPTS", 3)),
		DispatchBackoff:   getenvDuration("DISPATCH_BACKOFF", 10*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
