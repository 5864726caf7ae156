package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// TrustedProxies: CIDRs or addresses of load balancers allowed to set
	// X-Forwarded-For. Empty means the TCP peer is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type GRPCConfig struct {
	Addr           string        `mapstructure:"addr"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type IdentityConfig struct {
	// Mode selects the identity provider: "gotrue" (remote) or "local" (Postgres).
	Mode       string        `mapstructure:"mode"`
	URL        string        `mapstructure:"url"`
	AnonKey    string        `mapstructure:"anon_key"`
	ServiceKey string        `mapstructure:"service_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Bucket               string        `mapstructure:"bucket"`
	Region               string        `mapstructure:"region"`
	Endpoint             string        `mapstructure:"endpoint"`
	CloudFrontDomain     string        `mapstructure:"cloudfront_domain"`
	CloudFrontKeyPairID  string        `mapstructure:"cloudfront_key_pair_id"`
	CloudFrontPrivateKey string        `mapstructure:"cloudfront_private_key"`
	SignedURLTTL         time.Duration `mapstructure:"signed_url_ttl"`
	UploadMaxBytes       int64         `mapstructure:"upload_max_bytes"`
}

type RateLimitConfig struct {
	Burst         int           `mapstructure:"burst"`
	PerSecond     float64       `mapstructure:"per_second"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Window        time.Duration `mapstructure:"window"`
}

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

const envPrefix = "COURSEDESK"

var defaults = map[string]any{
	"http.addr":                      ":8080",
	"http.max_body_bytes":            int64(1 << 20),
	"http.read_timeout":              15 * time.Second,
	"http.write_timeout":             30 * time.Second,
	"http.shutdown_timeout":          10 * time.Second,
	"http.allowed_origins":           []string{},
	"http.trusted_proxies":           []string{},
	"grpc.addr":                      ":9090",
	"grpc.health_interval":           10 * time.Second,
	"database.dsn":                   "",
	"auth.jwt_secret":                "",
	"identity.mode":                  "gotrue",
	"identity.url":                   "",
	"identity.anon_key":              "",
	"identity.service_key":           "",
	"identity.timeout":               10 * time.Second,
	"storage.bucket":                 "",
	"storage.region":                 "ap-south-1",
	"storage.endpoint":               "",
	"storage.cloudfront_domain":      "",
	"storage.cloudfront_key_pair_id": "",
	"storage.cloudfront_private_key": "",
	"storage.signed_url_ttl":         5 * time.Minute,
	"storage.upload_max_bytes":       int64(50 << 20),
	"ratelimit.burst":                10,
	"ratelimit.per_second":           1.0,
	"ratelimit.redis_addr":           "",
	"ratelimit.redis_password":       "",
	"ratelimit.redis_db":             0,
	"ratelimit.window":               time.Minute,
}

// Load reads configuration from an optional YAML file and COURSEDESK_*
// environment variables (e.g. COURSEDESK_AUTH_JWT_SECRET). Environment wins.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("config: auth.jwt_secret must be at least 32 bytes")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database.dsn is required")
	}
	switch c.Identity.Mode {
	case "gotrue":
		if c.Identity.URL == "" || c.Identity.AnonKey == "" || c.Identity.ServiceKey == "" {
			return errors.New("config: identity.url, identity.anon_key and identity.service_key are required in gotrue mode")
		}
	case "local":
		// пароли хранятся в той же базе
	default:
		return fmt.Errorf("config: unknown identity.mode %q", c.Identity.Mode)
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		return errors.New("config: ratelimit.burst and ratelimit.per_second must be positive")
	}
	return nil
}

// StorageEnabled reports whether object storage is configured.
func (c Config) StorageEnabled() bool {
	return c.Storage.Bucket != "" && c.Storage.CloudFrontDomain != ""
}
