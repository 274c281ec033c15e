package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration. It is built once at start and
// never mutated afterwards.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Index     IndexConfig
	Patch     PatchConfig
	Reconcile ReconcileConfig
	MinIO     MinIOConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowOrigins lists CORS origins; empty allows any.
	AllowOrigins []string
}

type LogConfig struct {
	Level string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type IndexConfig struct {
	Prefix  string
	Timeout time.Duration
}

type PatchConfig struct {
	// WaitForIndex makes every index write synchronous.
	WaitForIndex bool
	// MaxAttempts bounds the fetch/validate/write loop on revision conflicts.
	MaxAttempts int
}

type ReconcileConfig struct {
	Interval time.Duration
	Batch    int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled  bool
	RPS      float64
	Burst    int
	Window   time.Duration
	UseRedis bool
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MONGODB_DATABASE", "mailcore")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("INDEX_PREFIX", "index:")
	viper.SetDefault("INDEX_TIMEOUT", 5)
	viper.SetDefault("PATCH_WAIT_FOR_INDEX", false)
	viper.SetDefault("PATCH_MAX_ATTEMPTS", 3)
	viper.SetDefault("RECONCILE_INTERVAL", 30)
	viper.SetDefault("RECONCILE_BATCH", 100)
	viper.SetDefault("MINIO_BUCKET", "mailcore-attachments")
	viper.SetDefault("JWT_ISSUER", "mailcore")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 20.0)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_WINDOW", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			AllowOrigins: splitList(viper.GetString("CORS_ALLOW_ORIGINS")),
		},
		Log: LogConfig{Level: viper.GetString("LOG_LEVEL")},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Index: IndexConfig{
			Prefix:  viper.GetString("INDEX_PREFIX"),
			Timeout: time.Duration(viper.GetInt("INDEX_TIMEOUT")) * time.Second,
		},
		Patch: PatchConfig{
			WaitForIndex: viper.GetBool("PATCH_WAIT_FOR_INDEX"),
			MaxAttempts:  viper.GetInt("PATCH_MAX_ATTEMPTS"),
		},
		Reconcile: ReconcileConfig{
			Interval: time.Duration(viper.GetInt("RECONCILE_INTERVAL")) * time.Second,
			Batch:    viper.GetInt("RECONCILE_BATCH"),
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		Keycloak: KeycloakConfig{
			URL:          viper.GetString("KEYCLOAK_URL"),
			Realm:        viper.GetString("KEYCLOAK_REALM"),
			ClientID:     viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: viper.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			Issuer:         viper.GetString("JWT_ISSUER"),
			AccessTokenTTL: time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:      viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:    viper.GetInt("RATE_LIMIT_BURST"),
			Window:   time.Duration(viper.GetInt("RATE_LIMIT_WINDOW")) * time.Second,
			UseRedis: viper.GetBool("RATE_LIMIT_USE_REDIS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList parses a comma separated env value.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Patch.MaxAttempts < 1 {
		return fmt.Errorf("PATCH_MAX_ATTEMPTS must be at least 1, got %d", c.Patch.MaxAttempts)
	}
	if c.Server.Environment == "production" {
		if c.MongoDB.URI == "" {
			return fmt.Errorf("environment variable MONGODB_URI is required in production")
		}
		if c.JWT.Secret == "" && c.Keycloak.URL == "" {
			return fmt.Errorf("either JWT_SECRET or KEYCLOAK_URL is required in production")
		}
	}
	return nil
}
