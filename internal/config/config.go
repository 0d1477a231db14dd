package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config.yaml"

// Server modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// AppConfig holds process-level inputs resolved from flags.
type AppConfig struct {
	ConfigPath string
}

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	LINE      LINEConfig      `yaml:"line"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Log       LogConfig       `yaml:"log"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Settings  SettingsConfig  `yaml:"settings"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int    `yaml:"port" env:"PORT"`
	Mode        string `yaml:"mode" env:"APP_ENV"`
	FrontendURL string `yaml:"frontend-url" env:"FRONTEND_URL"`
	WebDir      string `yaml:"web-dir" env:"WEB_DIR"`
	// BodyLimitBytes caps JSON request bodies.
	BodyLimitBytes int64 `yaml:"body-limit-bytes" env:"BODY_LIMIT_BYTES"`
}

// DatabaseConfig configures the relational store. URL wins over the parts.
type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	Host            string        `yaml:"host" env:"DB_POSTGRESDB_HOST"`
	Port            int           `yaml:"port" env:"DB_POSTGRESDB_PORT"`
	Name            string        `yaml:"name" env:"DB_POSTGRESDB_DATABASE"`
	User            string        `yaml:"user" env:"DB_POSTGRESDB_USER"`
	Password        string        `yaml:"password" env:"DB_POSTGRESDB_PASSWORD"`
	SSLMode         string        `yaml:"sslmode" env:"DB_POSTGRESDB_SSLMODE"`
	ConnectTimeout  time.Duration `yaml:"connect-timeout" env:"DB_CONNECT_TIMEOUT"`
	MaxOpenConns    int           `yaml:"max-open-conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max-idle-conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxIdleTime time.Duration `yaml:"conn-max-idle-time" env:"DB_CONN_MAX_IDLE_TIME"`
}

// SessionConfig configures admin sessions and their cookie.
type SessionConfig struct {
	CookieName    string        `yaml:"cookie-name" env:"SESSION_COOKIE_NAME"`
	TTL           time.Duration `yaml:"ttl" env:"SESSION_TTL"`
	Secure        *bool         `yaml:"secure" env:"SESSION_COOKIE_SECURE"`
	SameSite      string        `yaml:"same-site" env:"SESSION_COOKIE_SAMESITE"`
	Domain        string        `yaml:"domain" env:"SESSION_COOKIE_DOMAIN"`
	LoginStateTTL time.Duration `yaml:"login-state-ttl" env:"LOGIN_STATE_TTL"`
}

// LINEConfig configures LINE Login and the Messaging API.
type LINEConfig struct {
	ChannelID     string `yaml:"channel-id" env:"LINE_LOGIN_CHANNEL_ID"`
	ChannelSecret string `yaml:"channel-secret" env:"LINE_LOGIN_CHANNEL_SECRET"`
	RedirectURL   string `yaml:"redirect-url" env:"LINE_LOGIN_REDIRECT_URL"`
	// AllowedUserIDs restricts who may sign in. Empty allows any LINE account.
	AllowedUserIDs []string `yaml:"allowed-user-ids" env:"LINE_ALLOWED_USER_IDS" envSeparator:","`
	AuthURL        string   `yaml:"auth-url" env:"LINE_AUTH_URL"`
	TokenURL       string   `yaml:"token-url" env:"LINE_TOKEN_URL"`
	JWKSURL        string   `yaml:"jwks-url" env:"LINE_JWKS_URL"`
	Issuer         string   `yaml:"issuer" env:"LINE_ISSUER"`
	APIBaseURL     string   `yaml:"api-base-url" env:"LINE_API_BASE_URL"`
}

// RedisConfig enables the Redis session store when URL is set.
type RedisConfig struct {
	URL    string `yaml:"url" env:"REDIS_URL"`
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX"`
}

// RateLimitConfig bounds requests per client address on /api.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	Max    int           `yaml:"max" env:"RATE_LIMIT_MAX"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max-size-mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max-backups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max-age-days" env:"LOG_MAX_AGE_DAYS"`
}

// JobsConfig enables periodic housekeeping. A zero interval leaves the job off.
type JobsConfig struct {
	SessionPurgeInterval time.Duration `yaml:"session-purge-interval" env:"SESSION_PURGE_INTERVAL"`
	SnapshotInterval     time.Duration `yaml:"snapshot-interval" env:"SNAPSHOT_INTERVAL"`
}

// SettingsConfig controls the in-memory copy of system_settings.
type SettingsConfig struct {
	// CacheTTL bounds how long a setting written by another instance can go unseen.
	CacheTTL time.Duration `yaml:"cache-ttl" env:"SETTINGS_CACHE_TTL"`
}

// legacyEnvAliases maps older variable names onto the canonical ones.
// The canonical name wins when both are set.
var legacyEnvAliases = map[string][]string{
	"DB_POSTGRESDB_HOST":     {"POSTGRES_HOST"},
	"DB_POSTGRESDB_PORT":     {"POSTGRES_PORT"},
	"DB_POSTGRESDB_DATABASE": {"POSTGRES_DATABASE", "POSTGRES_DB"},
	"DB_POSTGRESDB_USER":     {"POSTGRES_USERNAME", "POSTGRES_USER"},
	"DB_POSTGRESDB_PASSWORD": {"POSTGRES_PASSWORD"},
	"APP_ENV":                {"NODE_ENV"},
}

// Default returns the configuration used before the file and env overlays.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           3000,
			Mode:           ModeDevelopment,
			FrontendURL:    "http://localhost:3000",
			BodyLimitBytes: 10 << 20,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "line_crm",
			User:            "postgres",
			SSLMode:         "disable",
			ConnectTimeout:  10 * time.Second,
			MaxOpenConns:    20,
			MaxIdleConns:    20,
			ConnMaxIdleTime: 30 * time.Second,
		},
		Session: SessionConfig{
			CookieName:    "sessionId",
			TTL:           24 * time.Hour,
			SameSite:      "lax",
			LoginStateTTL: 10 * time.Minute,
		},
		LINE: LINEConfig{
			AuthURL:    "https://access.line.me/oauth2/v2.1/authorize",
			TokenURL:   "https://api.line.me/oauth2/v2.1/token",
			JWKSURL:    "https://api.line.me/oauth2/v2.1/certs",
			Issuer:     "https://access.line.me",
			APIBaseURL: "https://api.line.me",
		},
		Redis: RedisConfig{Prefix: "linecrm:"},
		RateLimit: RateLimitConfig{
			Window: 15 * time.Minute,
			Max:    1000,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		Settings: SettingsConfig{CacheTTL: 5 * time.Second},
	}
}

// ResolveConfigPath returns the given path or the default when empty.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return DefaultConfigPath
	}
	return trimmed
}

// Load reads the optional YAML file at path and overlays environment variables.
// A missing file is not an error; the defaults and environment still apply.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, errRead := os.ReadFile(path)
		switch {
		case errRead == nil:
			if errYAML := yaml.Unmarshal(data, &cfg); errYAML != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, errYAML)
			}
		case errors.Is(errRead, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
		}
	}

	if errEnv := env.ParseWithOptions(&cfg, env.Options{Environment: environWithAliases()}); errEnv != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", errEnv)
	}
	cfg.normalize()
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// environWithAliases snapshots the process environment and fills unset
// canonical names from their legacy aliases.
func environWithAliases() map[string]string {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			environ[key] = value
		}
	}
	for canonical, aliases := range legacyEnvAliases {
		if _, ok := environ[canonical]; ok {
			continue
		}
		for _, alias := range aliases {
			if v, ok := environ[alias]; ok && strings.TrimSpace(v) != "" {
				environ[canonical] = v
				break
			}
		}
	}
	return environ
}

func (c *Config) normalize() {
	c.Server.Mode = strings.ToLower(strings.TrimSpace(c.Server.Mode))
	if c.Server.Mode != ModeProduction {
		c.Server.Mode = ModeDevelopment
	}
	c.Server.FrontendURL = strings.TrimRight(strings.TrimSpace(c.Server.FrontendURL), "/")
	c.Session.SameSite = strings.ToLower(strings.TrimSpace(c.Session.SameSite))
	ids := make([]string, 0, len(c.LINE.AllowedUserIDs))
	for _, id := range c.LINE.AllowedUserIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	c.LINE.AllowedUserIDs = ids
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session ttl must be positive")
	}
	if c.Session.LoginStateTTL <= 0 {
		return fmt.Errorf("config: login state ttl must be positive")
	}
	if c.RateLimit.Max < 0 {
		return fmt.Errorf("config: rate limit max must not be negative")
	}
	if c.Settings.CacheTTL < 0 {
		return fmt.Errorf("config: settings cache ttl must not be negative")
	}
	if c.Jobs.SessionPurgeInterval < 0 || c.Jobs.SnapshotInterval < 0 {
		return fmt.Errorf("config: job intervals must not be negative")
	}
	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("config: rate limit window must be positive")
	}
	switch c.Session.SameSite {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("config: invalid session same-site %q", c.Session.SameSite)
	}
	return nil
}

// IsDevelopment reports whether detailed errors may be returned to clients.
func (c Config) IsDevelopment() bool {
	return c.Server.Mode != ModeProduction
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// CookieSecure resolves the session cookie Secure flag, defaulting to production mode.
func (c Config) CookieSecure() bool {
	if c.Session.Secure != nil {
		return *c.Session.Secure
	}
	return c.Server.Mode == ModeProduction
}

// DatabaseDSN returns the connection string for db.Open.
func (c Config) DatabaseDSN() string {
	if u := strings.TrimSpace(c.Database.URL); u != "" {
		return u
	}
	d := c.Database
	query := url.Values{}
	if d.SSLMode != "" {
		query.Set("sslmode", d.SSLMode)
	}
	if d.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: query.Encode(),
	}
	return dsn.String()
}

// LINELoginEnabled reports whether LINE Login credentials are configured.
func (c Config) LINELoginEnabled() bool {
	return c.LINE.ChannelID != "" && c.LINE.ChannelSecret != "" && c.LINE.RedirectURL != ""
}
