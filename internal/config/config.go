package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// minSecretLen is the minimum accepted length for JWT signing secrets.
const minSecretLen = 16

type Config struct {
	Env        string
	ServerAddr string
	LogLevel   string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Distinct secrets for the two token kinds; a leaked access secret must
	// not allow forging refresh tokens.
	JWTAccessSecret  string
	JWTRefreshSecret string

	RedisAddr string

	CORSOrigins []string

	SendGridAPIKey    string
	SendGridFromEmail string

	// S3/MinIO configuration for item images
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
}

// Load reads configuration from the environment. It returns an error listing
// every invalid or missing variable, mirroring a fail-fast boot.
func Load() (*Config, error) {
	cfg := &Config{
		Env:               getEnvOrDefault("APP_ENV", EnvDevelopment),
		ServerAddr:        getEnvOrDefault("SERVER_ADDR", ":8080"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		DBHost:            getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:            getEnvOrDefault("DB_PORT", "5432"),
		DBUser:            getEnvOrDefault("DB_USER", "laviou"),
		DBPassword:        getEnvOrDefault("DB_PASSWORD", "laviou_dev_password"),
		DBName:            getEnvOrDefault("DB_NAME", "laviou"),
		JWTAccessSecret:   os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:  os.Getenv("JWT_REFRESH_SECRET"),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		CORSOrigins:       splitOrigins(getEnvOrDefault("CORS_ORIGIN", "*")),
		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: os.Getenv("SENDGRID_FROM_EMAIL"),
		S3Endpoint:        getEnvOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3Region:          getEnvOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey:       getEnvOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       getEnvOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:          getEnvOrDefault("S3_BUCKET", "item-images"),
		S3UseSSL:          getEnvOrDefault("S3_USE_SSL", "false") == "true",
	}

	// Development convenience: generate throwaway secrets so a bare checkout
	// boots. Production must configure real ones.
	if cfg.Env != EnvProduction {
		if cfg.JWTAccessSecret == "" {
			cfg.JWTAccessSecret = generateDevSecret()
		}
		if cfg.JWTRefreshSecret == "" {
			cfg.JWTRefreshSecret = generateDevSecret()
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		problems = append(problems, fmt.Sprintf("APP_ENV: unknown environment %q", c.Env))
	}

	if len(c.JWTAccessSecret) < minSecretLen {
		problems = append(problems, fmt.Sprintf("JWT_ACCESS_SECRET: must be at least %d characters", minSecretLen))
	}
	if len(c.JWTRefreshSecret) < minSecretLen {
		problems = append(problems, fmt.Sprintf("JWT_REFRESH_SECRET: must be at least %d characters", minSecretLen))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		problems = append(problems, "JWT_REFRESH_SECRET: must differ from JWT_ACCESS_SECRET")
	}

	if c.DBHost == "" {
		problems = append(problems, "DB_HOST: is required")
	}
	if c.DBName == "" {
		problems = append(problems, "DB_NAME: is required")
	}

	if c.IsProduction() && (c.SendGridAPIKey == "" || c.SendGridFromEmail == "") {
		problems = append(problems, "SENDGRID_API_KEY/SENDGRID_FROM_EMAIL: required in production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid environment variables:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func generateDevSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(bytes)
}
