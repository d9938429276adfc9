package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	DynamoDB DynamoDBConfig
	JWT      JWTConfig
	OTP      OTPConfig
	SMS      SMSConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig selects the ephemeral store backend. "redis" is the
// production backend; "memory" keeps everything in-process.
type StoreConfig struct {
	Backend  string
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type JWTConfig struct {
	SecretKey     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type OTPConfig struct {
	CodeLength  int
	Expiry      time.Duration
	TokenExpiry time.Duration
	// TokenSingleUse consumes a verification token on its first successful
	// check. The legacy behavior (false) lets multi-step forms redeem the
	// same token more than once within its TTL.
	TokenSingleUse bool
	MaxAttempts    int
	RateWindow     time.Duration
}

type SMSConfig struct {
	GatewayURL  string
	Username    string
	Password    string
	ClientID    string
	ServiceID   string
	CountryCode string
	Timeout     time.Duration
}

type NotifyConfig struct {
	Enabled    bool
	AdminEmail string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend:  getEnv("STORE_BACKEND", "redis"),
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "ClubMembers"),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			CodeLength:     getEnvAsInt("OTP_CODE_LENGTH", 6),
			Expiry:         getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			TokenExpiry:    getEnvAsDuration("OTP_TOKEN_EXPIRY", 5*time.Minute),
			TokenSingleUse: getEnvAsBool("OTP_TOKEN_SINGLE_USE", false),
			MaxAttempts:    getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
			RateWindow:     getEnvAsDuration("OTP_RATE_WINDOW", 10*time.Minute),
		},
		SMS: SMSConfig{
			GatewayURL:  getEnv("SMS_GATEWAY_URL", "http://bi.msg.ge/sendsms.php"),
			Username:    getEnv("SMS_USERNAME", ""),
			Password:    getEnv("SMS_PASSWORD", ""),
			ClientID:    getEnv("SMS_CLIENT_ID", ""),
			ServiceID:   getEnv("SMS_SERVICE_ID", ""),
			CountryCode: getEnv("SMS_COUNTRY_CODE", "995"),
			Timeout:     getEnvAsDuration("SMS_TIMEOUT", 30*time.Second),
		},
		Notify: NotifyConfig{
			Enabled:    getEnvAsBool("CONSENT_NOTIFY_ENABLED", false),
			AdminEmail: getEnv("CONSENT_NOTIFY_EMAIL", ""),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if cfg.Store.Backend != "redis" && cfg.Store.Backend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be \"redis\" or \"memory\", got %q", cfg.Store.Backend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
