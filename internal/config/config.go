package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tijuri/cafe24-gateway/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Cafe24    Cafe24Config
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Upload    UploadConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Cafe24Config identifies the mall and OAuth app this deployment is bound to.
type Cafe24Config struct {
	MallID       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	APIVersion   string
	// AppURL is the user-facing page the auth callback redirects back to.
	AppURL string
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

type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration
	LogInterval   time.Duration
}

// UploadConfig configures the /external/upload relay target used when no
// object storage backend is available.
type UploadConfig struct {
	FunctionURL string
}

type AdminConfig struct {
	// JWTSecret guards the mutating /token endpoints when set.
	JWTSecret string
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file.
// In production all Cafe24 credentials and the Mongo URI are required and a
// missing value is a hard error; in development absence is only warned so the
// service can still boot for UI work (store operations then degrade to
// "not configured").
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "cafe24_gateway")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("CAFE24_SCOPE", "mall.read_category mall.read_product mall.read_community mall.write_community")
	viper.SetDefault("CAFE24_API_VERSION", "2025-06-01")
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("SCHEDULER_CHECK_HOURS", 6)
	viper.SetDefault("SCHEDULER_LOG_HOURS", 24)
	viper.SetDefault("RATE_LIMIT_RPS", 5.0)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Cafe24: Cafe24Config{
			MallID:       viper.GetString("CAFE24_MALL_ID"),
			ClientID:     viper.GetString("CAFE24_CLIENT_ID"),
			ClientSecret: viper.GetString("CAFE24_CLIENT_SECRET"),
			RedirectURI:  viper.GetString("CAFE24_REDIRECT_URI"),
			Scope:        viper.GetString("CAFE24_SCOPE"),
			APIVersion:   viper.GetString("CAFE24_API_VERSION"),
			AppURL:       viper.GetString("APP_URL"),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       0,
		},
		Scheduler: SchedulerConfig{
			Enabled:       viper.GetBool("SCHEDULER_ENABLED"),
			CheckInterval: time.Duration(viper.GetInt("SCHEDULER_CHECK_HOURS")) * time.Hour,
			LogInterval:   time.Duration(viper.GetInt("SCHEDULER_LOG_HOURS")) * time.Hour,
		},
		Upload: UploadConfig{
			FunctionURL: viper.GetString("UPLOAD_FUNCTION_URL"),
		},
		Admin: AdminConfig{
			JWTSecret: viper.GetString("ADMIN_JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	required := map[string]string{
		"CAFE24_MALL_ID":       cfg.Cafe24.MallID,
		"CAFE24_CLIENT_ID":     cfg.Cafe24.ClientID,
		"CAFE24_CLIENT_SECRET": cfg.Cafe24.ClientSecret,
		"CAFE24_REDIRECT_URI":  cfg.Cafe24.RedirectURI,
		"MONGODB_URI":          cfg.MongoDB.URI,
	}
	for key, val := range required {
		if val != "" {
			continue
		}
		if cfg.Server.Environment == "production" {
			return nil, fmt.Errorf("environment variable %s is required in production", key)
		}
		logger.Warnf("environment variable %s is not set", key)
	}

	return cfg, nil
}

// Cafe24Configured reports whether the vendor OAuth credentials are complete.
func (c *Config) Cafe24Configured() bool {
	return c.Cafe24.MallID != "" && c.Cafe24.ClientID != "" && c.Cafe24.ClientSecret != ""
}
