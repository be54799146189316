package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort string
	MySQLDSN   string
	RedisAddr  string
	RedisDB    int
	RedisPass  string

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string

	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration

	Currency   string
	ReceiptDir string

	WebhookMaxRetries int
	WebhookSweepBatch int
	WebhookSweepSpec  string

	SwaggerHost string
}

// Load builds Config from environment with sensible defaults.
func Load() *Config {
	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		MySQLDSN:   getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/schoolpay?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:    getEnvInt("REDIS_DB", 0),
		RedisPass:  os.Getenv("REDIS_PASSWORD"),

		JWTSecret:         getEnv("JWT_SECRET", "change-me"),
		AdminEmail:        getEnv("ADMIN_EMAIL", "admin@school.local"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://api.gateway.test"),
		GatewayKeyID:         os.Getenv("GATEWAY_KEY_ID"),
		GatewayKeySecret:     os.Getenv("GATEWAY_KEY_SECRET"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		GatewayTimeout:       time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,

		Currency:   getEnv("CURRENCY", "INR"),
		ReceiptDir: getEnv("RECEIPT_DIR", "./receipts"),

		WebhookMaxRetries: getEnvInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookSweepBatch: getEnvInt("WEBHOOK_SWEEP_BATCH", 10),
		WebhookSweepSpec:  getEnv("WEBHOOK_SWEEP_SPEC", "@every 1m"),

		SwaggerHost: os.Getenv("SWAGGER_HOST"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
