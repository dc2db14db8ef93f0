package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURI   string
	GoogleProjectID     string
	GooglePubSubTopic   string
	GoogleCredentials   string
	FirebaseCredentials string

	OutlookClientID     string
	OutlookClientSecret string
	OutlookTenantID     string
	OutlookRedirectURI  string

	PollInterval       time.Duration
	PollBackoffMax     time.Duration
	PollPageSize       int
	CycleTimeout       time.Duration
	TokenRefreshMargin time.Duration

	DispatchWorkers  int
	DispatchAttempts int
	ActionTimeout    time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "emailtrigger"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:   getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/oauth/gmail/callback"),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GoogleCredentials:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		OutlookClientID:     getEnv("OUTLOOK_CLIENT_ID", ""),
		OutlookClientSecret: getEnv("OUTLOOK_CLIENT_SECRET", ""),
		OutlookTenantID:     getEnv("OUTLOOK_TENANT_ID", "common"),
		OutlookRedirectURI:  getEnv("OUTLOOK_REDIRECT_URI", "http://localhost:8080/api/oauth/outlook/callback"),

		PollInterval:       getDuration("POLL_INTERVAL", 1*time.Minute),
		PollBackoffMax:     getDuration("POLL_BACKOFF_MAX", 16*time.Minute),
		PollPageSize:       getInt("POLL_PAGE_SIZE", 50),
		CycleTimeout:       getDuration("CYCLE_TIMEOUT", 2*time.Minute),
		TokenRefreshMargin: getDuration("TOKEN_REFRESH_MARGIN", 60*time.Second),

		DispatchWorkers:  getInt("DISPATCH_WORKERS", 4),
		DispatchAttempts: getInt("DISPATCH_ATTEMPTS", 3),
		ActionTimeout:    getDuration("ACTION_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
