package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSUrl          string
	JWTSecret        string
	JWTTokenTTL      time.Duration
	S3Endpoint       string
	S3Region         string
	S3AccessKeyID    string
	S3SecretKey      string
	S3Bucket         string
	SendgridAPIKey   string
	EmailFromName    string
	EmailFromAddress string
	FrontendBaseURL  string
	CORSOrigins      string
	RosterCacheTTL   time.Duration
	AutoGradeWorkers int
	AutoGradeTimeout time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("METASTUDY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "MetaStudy API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("jwt.token_ttl", "24h")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "metastudy-files")
	v.SetDefault("email.from_name", "MetaStudy")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("roster.cache_ttl", "5m")
	v.SetDefault("autograde.workers", 2)
	v.SetDefault("autograde.timeout", "30s")

	tokenTTL, err := time.ParseDuration(v.GetString("jwt.token_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid jwt token ttl: %w", err)
	}

	rosterTTL, err := time.ParseDuration(v.GetString("roster.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid roster cache ttl: %w", err)
	}

	gradeTimeout, err := time.ParseDuration(v.GetString("autograde.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid autograde timeout: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSUrl:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		JWTTokenTTL:      tokenTTL,
		S3Endpoint:       v.GetString("s3.endpoint"),
		S3Region:         v.GetString("s3.region"),
		S3AccessKeyID:    v.GetString("s3.access_key_id"),
		S3SecretKey:      v.GetString("s3.secret_access_key"),
		S3Bucket:         v.GetString("s3.bucket"),
		SendgridAPIKey:   v.GetString("sendgrid.api_key"),
		EmailFromName:    v.GetString("email.from_name"),
		EmailFromAddress: v.GetString("email.from_address"),
		FrontendBaseURL:  v.GetString("frontend.base_url"),
		CORSOrigins:      v.GetString("cors.origins"),
		RosterCacheTTL:   rosterTTL,
		AutoGradeWorkers: v.GetInt("autograde.workers"),
		AutoGradeTimeout: gradeTimeout,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AutoGradeWorkers <= 0 {
		cfg.AutoGradeWorkers = 2
	}

	return cfg, nil
}
