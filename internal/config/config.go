package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DevSessionSecret is only ever used outside production, see ResolveSessionSecret.
const DevSessionSecret = "rdychk-dev-session-secret-change-me"

var ErrMissingSessionSecret = errors.New("session secret is required in production (set SESSION_SECRET)")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Policy    PolicyConfig    `yaml:"policy"`
	Preview   PreviewConfig   `yaml:"preview"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	Env  string `yaml:"env"`  // development, production
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type SessionConfig struct {
	Secret     string `yaml:"secret"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AuthConfig describes the external auth provider whose HS256 access tokens
// identify signed-in users.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RedisConfig for change notifications and the async preview queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type PolicyConfig struct {
	// LocationUpdate is "member" (any member may move the meeting point) or "admin".
	LocationUpdate string `yaml:"location_update"`
}

type PreviewConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Retention    time.Duration `yaml:"retention"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxRedirects int           `yaml:"max_redirects"`
	UserAgent    string        `yaml:"user_agent"`
	CleanupSpec  string        `yaml:"cleanup_spec"`
}

// CORSConfig lists the browser origins allowed to send credentialed requests.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
			Env:  "development",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "rdychk.db",
		},
		Session: SessionConfig{
			MaxAgeDays: 30,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 20,
		},
		Policy: PolicyConfig{
			LocationUpdate: "member",
		},
		Preview: PreviewConfig{
			Timeout:      5 * time.Second,
			CacheTTL:     time.Hour,
			Retention:    7 * 24 * time.Hour,
			MaxBodyBytes: 1 << 20,
			MaxRedirects: 5,
			UserAgent:    "rdychk-preview/1.0",
			CleanupSpec:  "@daily",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// IsProduction reports whether the process runs with production semantics
// (secure cookies, mandatory session secret).
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// ResolveSessionSecret walks the secret fallback chain: the session secret,
// then the auth provider's JWT secret, then DevSessionSecret. The last step is
// refused in production. insecure is true when the default was used.
func (c *Config) ResolveSessionSecret() (secret string, insecure bool, err error) {
	if c.Session.Secret != "" {
		return c.Session.Secret, false, nil
	}
	if c.Auth.JWTSecret != "" {
		return c.Auth.JWTSecret, false, nil
	}
	if c.IsProduction() {
		return "", false, ErrMissingSessionSecret
	}
	return DevSessionSecret, true, nil
}

func (c *Config) Validate() error {
	if _, _, err := c.ResolveSessionSecret(); err != nil {
		return err
	}
	switch c.Policy.LocationUpdate {
	case "member", "admin":
	default:
		return fmt.Errorf("invalid policy.location_update %q (want member or admin)", c.Policy.LocationUpdate)
	}
	if c.Session.MaxAgeDays <= 0 {
		return fmt.Errorf("session.max_age_days must be positive")
	}
	if c.Preview.MaxRedirects < 0 {
		return fmt.Errorf("preview.max_redirects must not be negative")
	}
	return nil
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		c.Server.Env = env
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		c.Session.Secret = secret
	}
	if secret := os.Getenv("AUTH_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if policy := os.Getenv("LOCATION_UPDATE_POLICY"); policy != "" {
		c.Policy.LocationUpdate = policy
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORS.AllowedOrigins = append(c.CORS.AllowedOrigins, o)
			}
		}
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}
