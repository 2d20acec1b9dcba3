package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Backend   BackendConfig
	R2        R2Config
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	Auth      AuthConfig
	Session   SessionConfig
	Mock      MockConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	GeneratePerHour int
	AnimatePerHour  int
	ProjectPerHour  int
}

// BackendConfig points at the story generation backend
type BackendConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

// AuthConfig controls identity fallbacks
type AuthConfig struct {
	AllowGuests bool
}

// SessionConfig controls per-user orchestrator lifetime
type SessionConfig struct {
	IdleTTL time.Duration
}

// MockConfig configures cmd/mockbackend
type MockConfig struct {
	Port      string
	PublicURL string
	LatencyMs int
	FailRate  float64
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("BACKEND_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.animate_per_hour", "RATELIMIT_ANIMATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.project_per_hour", "RATELIMIT_PROJECT_PER_HOUR")
	_ = viper.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	_ = viper.BindEnv("backend.api_key", "BACKEND_API_KEY")
	_ = viper.BindEnv("backend.timeout", "BACKEND_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("auth.allow_guests", "AUTH_ALLOW_GUESTS")
	_ = viper.BindEnv("session.idle_ttl", "SESSION_IDLE_TTL")
	_ = viper.BindEnv("mock.port", "MOCK_PORT")
	_ = viper.BindEnv("mock.public_url", "MOCK_PUBLIC_URL")
	_ = viper.BindEnv("mock.latency_ms", "MOCK_LATENCY_MS")
	_ = viper.BindEnv("mock.fail_rate", "MOCK_FAIL_RATE")

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.generate_per_hour", 20)
	viper.SetDefault("ratelimit.animate_per_hour", 60)
	viper.SetDefault("ratelimit.project_per_hour", 30)

	// Story backend defaults
	viper.SetDefault("backend.base_url", "http://localhost:8000")
	viper.SetDefault("backend.timeout", 300)

	// Identity and session defaults
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("auth.allow_guests", false)
	viper.SetDefault("session.idle_ttl", "30m")

	// Mock backend defaults
	viper.SetDefault("mock.port", "8000")
	viper.SetDefault("mock.latency_ms", 0)
	viper.SetDefault("mock.fail_rate", 0.0)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			AnimatePerHour:  viper.GetInt("ratelimit.animate_per_hour"),
			ProjectPerHour:  viper.GetInt("ratelimit.project_per_hour"),
		},
		Backend: BackendConfig{
			BaseURL: viper.GetString("backend.base_url"),
			APIKey:  viper.GetString("backend.api_key"),
			Timeout: viper.GetInt("backend.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Auth: AuthConfig{
			AllowGuests: viper.GetBool("auth.allow_guests"),
		},
		Session: SessionConfig{
			IdleTTL: viper.GetDuration("session.idle_ttl"),
		},
		Mock: MockConfig{
			Port:      viper.GetString("mock.port"),
			PublicURL: viper.GetString("mock.public_url"),
			LatencyMs: viper.GetInt("mock.latency_ms"),
			FailRate:  viper.GetFloat64("mock.fail_rate"),
		},
	}

	return cfg, nil
}
