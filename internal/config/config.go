package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	SMS       SMSConfig
	Passcode  PasscodeConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
	Storage   StorageConfig
	Vision    VisionConfig
	Upload    UploadConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds the intake session cache configuration.
// An empty URL selects the in-process store.
type RedisConfig struct {
	URL        string
	SessionTTL time.Duration
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret        string
	SessionExpiry time.Duration
}

// SMSConfig holds passcode delivery configuration
type SMSConfig struct {
	Mode          string // "dev" or "production" - dev returns the passcode in the response
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	TemplateName  string
	Language      string
}

// PasscodeConfig holds passcode-related configuration
type PasscodeConfig struct {
	Length        int
	ExpiryMinutes int
}

// RateLimitConfig holds passcode request rate limiting configuration
type RateLimitConfig struct {
	MaxPhoneRequests   int
	PhoneWindowMinutes int
	MaxIPRequests      int
	IPWindowMinutes    int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	BcryptCost     int
	EnableAuditLog bool
}

// StorageConfig holds document file storage configuration
type StorageConfig struct {
	BasePath      string
	MaxUploadSize string
	maxUploadSize int64
}

// MaxUploadSizeBytes returns the parsed upload limit.
func (c StorageConfig) MaxUploadSizeBytes() int64 {
	return c.maxUploadSize
}

// VisionConfig holds the extraction service configuration
type VisionConfig struct {
	Provider    string
	APIURL      string
	APIKey      string
	Model       string
	Timeout     time.Duration
	AgentConfig string
}

// UploadConfig holds per-upload limits
type UploadConfig struct {
	StorageTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			URL:        getEnv("REDIS_URL", ""),
			SessionTTL: getEnvAsDuration("INTAKE_SESSION_TTL", 2*time.Hour),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", ""),
			SessionExpiry: time.Duration(getEnvAsInt("JWT_SESSION_EXPIRY", 86400)) * time.Second,
		},
		SMS: SMSConfig{
			Mode:          getEnv("SMS_MODE", "dev"),
			APIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v17.0"),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			TemplateName:  getEnv("WHATSAPP_TEMPLATE_NAME", "otp_verification"),
			Language:      getEnv("WHATSAPP_TEMPLATE_LANGUAGE", "en"),
		},
		Passcode: PasscodeConfig{
			Length:        getEnvAsInt("PASSCODE_LENGTH", 6),
			ExpiryMinutes: getEnvAsInt("PASSCODE_EXPIRY_MINUTES", 10),
		},
		RateLimit: RateLimitConfig{
			MaxPhoneRequests:   getEnvAsInt("PASSCODE_RATE_LIMIT_PHONE", 3),
			PhoneWindowMinutes: getEnvAsInt("PASSCODE_RATE_WINDOW_PHONE_MINUTES", 10),
			MaxIPRequests:      getEnvAsInt("PASSCODE_RATE_LIMIT_IP", 10),
			IPWindowMinutes:    getEnvAsInt("PASSCODE_RATE_WINDOW_IP_MINUTES", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			BcryptCost:     getEnvAsInt("BCRYPT_COST", 10),
			EnableAuditLog: getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
		Storage: StorageConfig{
			BasePath:      getEnv("STORAGE_BASE_PATH", ".data/uploads"),
			MaxUploadSize: getEnv("MAX_UPLOAD_SIZE", "10MB"),
		},
		Vision: VisionConfig{
			Provider:    getEnv("VISION_PROVIDER", "ollama"),
			APIURL:      getEnv("VISION_API_URL", ""),
			APIKey:      getEnv("VISION_API_KEY", ""),
			Model:       getEnv("VISION_MODEL", "gemma3:4b"),
			Timeout:     getEnvAsDuration("VISION_TIMEOUT", 45*time.Second),
			AgentConfig: getEnv("VISION_AGENT_CONFIG", ""),
		},
		Upload: UploadConfig{
			StorageTimeout: getEnvAsDuration("UPLOAD_STORAGE_TIMEOUT", 15*time.Second),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration and resolves derived values
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	size, err := units.FromHumanSize(c.Storage.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE %q: %w", c.Storage.MaxUploadSize, err)
	}
	if size <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	c.Storage.maxUploadSize = size

	if c.Passcode.Length < 4 || c.Passcode.Length > 10 {
		return fmt.Errorf("PASSCODE_LENGTH must be between 4 and 10")
	}

	if c.Vision.Timeout <= 0 || c.Upload.StorageTimeout <= 0 {
		return fmt.Errorf("VISION_TIMEOUT and UPLOAD_STORAGE_TIMEOUT must be positive")
	}

	// Delivery and extraction credentials are only required in production mode
	if c.SMS.Mode == "production" {
		if c.SMS.PhoneNumberID == "" {
			return fmt.Errorf("WHATSAPP_PHONE_NUMBER_ID is required in production mode")
		}
		if c.SMS.AccessToken == "" {
			return fmt.Errorf("WHATSAPP_ACCESS_TOKEN is required in production mode")
		}
	}

	if c.Server.Environment == "production" && c.Vision.APIURL == "" {
		return fmt.Errorf("VISION_API_URL is required in production")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
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
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("30s", "2h").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
