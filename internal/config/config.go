package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minSecretLength is the minimum accepted length for signing and hashing keys.
const minSecretLength = 32

// AppConfig holds process-level options resolved from flags.
type AppConfig struct {
	ConfigPath string
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Admin     AdminConfig     `yaml:"admin"`
	Session   SessionConfig   `yaml:"session"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen-addr"`
	TrustedProxies  []string      `yaml:"trusted-proxies"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
	Debug           bool          `yaml:"debug"`
}

// DatabaseConfig holds the store DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AdminConfig is the single administrative principal for the deployment.
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password-hash"`
	TOTPSecret   string `yaml:"totp-secret"`
}

// SessionConfig controls admin session cookies.
type SessionConfig struct {
	Secret         string        `yaml:"secret"`
	CookieName     string        `yaml:"cookie-name"`
	CSRFCookieName string        `yaml:"csrf-cookie-name"`
	MaxAge         time.Duration `yaml:"max-age"`
	CookieSecure   bool          `yaml:"cookie-secure"`
	CookieSameSite string        `yaml:"cookie-samesite"`
	PruneInterval  time.Duration `yaml:"prune-interval"`
}

// SecurityConfig holds secret-hashing material.
type SecurityConfig struct {
	TokenHashKey string `yaml:"token-hash-key"`
}

// RateLimitConfig configures request throttling. Throttling is always on;
// only the backend and the per-class rules are configurable.
type RateLimitConfig struct {
	Backend        string      `yaml:"backend"`
	Redis          RedisConfig `yaml:"redis"`
	AdminLogin     LimitRule   `yaml:"admin-login"`
	InstanceStatus LimitRule   `yaml:"instance-status"`
	ClaimToken     LimitRule   `yaml:"claim-token"`
	Register       LimitRule   `yaml:"register"`
	PortalLogin    LimitRule   `yaml:"portal-login"`
}

// RedisConfig points at a shared limiter store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LimitRule allows Limit requests per Window.
type LimitRule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// LoggingConfig configures logrus and file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration populated with defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:8101",
			ShutdownTimeout: 15 * time.Second,
		},
		Session: SessionConfig{
			CookieName:     "timecard_admin_session",
			CSRFCookieName: "csrf_token",
			MaxAge:         12 * time.Hour,
			CookieSecure:   true,
			CookieSameSite: "lax",
			PruneInterval:  30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Backend:        "memory",
			AdminLogin:     LimitRule{Limit: 10, Window: time.Minute},
			InstanceStatus: LimitRule{Limit: 60, Window: time.Minute},
			ClaimToken:     LimitRule{Limit: 30, Window: time.Minute},
			Register:       LimitRule{Limit: 10, Window: time.Minute},
			PortalLogin:    LimitRule{Limit: 10, Window: time.Minute},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ResolveConfigPath picks the config file from the flag, TIMECARD_CONFIG, or ./config.yaml.
func ResolveConfigPath(flagPath string) string {
	if trimmed := strings.TrimSpace(flagPath); trimmed != "" {
		return filepath.Clean(trimmed)
	}
	if env := strings.TrimSpace(os.Getenv("TIMECARD_CONFIG")); env != "" {
		return filepath.Clean(env)
	}
	return "config.yaml"
}

// Load reads the YAML file (optional when every required value comes from env),
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	if errEnv := applyEnv(&cfg); errEnv != nil {
		return Config{}, errEnv
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// LoadDatabaseDSN loads only what is needed to reach the database.
func LoadDatabaseDSN(path string) (string, error) {
	cfg := Default()
	data, errRead := os.ReadFile(path)
	if errRead != nil && !errors.Is(errRead, os.ErrNotExist) {
		return "", fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return "", fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}
	if errEnv := applyEnv(&cfg); errEnv != nil {
		return "", errEnv
	}
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		return "", errors.New("config: database.dsn is required")
	}
	return dsn, nil
}

// envOverrides maps environment variables to string fields.
func envOverrides(cfg *Config) map[string]*string {
	return map[string]*string{
		"TIMECARD_LISTEN_ADDR":         &cfg.Server.ListenAddr,
		"TIMECARD_DATABASE_DSN":        &cfg.Database.DSN,
		"TIMECARD_ADMIN_USERNAME":      &cfg.Admin.Username,
		"TIMECARD_ADMIN_PASSWORD_HASH": &cfg.Admin.PasswordHash,
		"TIMECARD_ADMIN_TOTP_SECRET":   &cfg.Admin.TOTPSecret,
		"TIMECARD_SESSION_SECRET":      &cfg.Session.Secret,
		"TIMECARD_TOKEN_HASH_KEY":      &cfg.Security.TokenHashKey,
		"TIMECARD_RATE_LIMIT_BACKEND":  &cfg.RateLimit.Backend,
		"TIMECARD_REDIS_ADDR":          &cfg.RateLimit.Redis.Addr,
		"TIMECARD_REDIS_PASSWORD":      &cfg.RateLimit.Redis.Password,
		"TIMECARD_LOG_LEVEL":           &cfg.Logging.Level,
		"TIMECARD_LOG_FILE":            &cfg.Logging.File,
	}
}

func applyEnv(cfg *Config) error {
	for key, target := range envOverrides(cfg) {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	if value, ok := os.LookupEnv("TIMECARD_COOKIE_SECURE"); ok && strings.TrimSpace(value) != "" {
		parsed, errParse := strconv.ParseBool(strings.TrimSpace(value))
		if errParse != nil {
			return fmt.Errorf("config: TIMECARD_COOKIE_SECURE: %w", errParse)
		}
		cfg.Session.CookieSecure = parsed
	}
	cfg.Admin.Username = strings.ToLower(strings.TrimSpace(cfg.Admin.Username))
	return nil
}

// Validate rejects configurations the service cannot run safely with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.Admin.Username == "" {
		problems = append(problems, "admin.username is required")
	}
	if strings.TrimSpace(c.Admin.PasswordHash) == "" {
		problems = append(problems, "admin.password-hash is required")
	}
	if len(c.Session.Secret) < minSecretLength {
		problems = append(problems, fmt.Sprintf("session.secret must be at least %d bytes", minSecretLength))
	}
	if len(c.Security.TokenHashKey) < minSecretLength {
		problems = append(problems, fmt.Sprintf("security.token-hash-key must be at least %d bytes", minSecretLength))
	}
	if c.Session.MaxAge <= 0 {
		problems = append(problems, "session.max-age must be positive")
	}
	switch strings.ToLower(c.Session.CookieSameSite) {
	case "lax", "strict":
	default:
		problems = append(problems, "session.cookie-samesite must be lax or strict")
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RateLimit.Redis.Addr) == "" {
			problems = append(problems, "rate-limit.redis.addr is required for the redis backend")
		}
	default:
		problems = append(problems, "rate-limit.backend must be memory or redis")
	}
	rules := map[string]LimitRule{
		"admin-login":     c.RateLimit.AdminLogin,
		"instance-status": c.RateLimit.InstanceStatus,
		"claim-token":     c.RateLimit.ClaimToken,
		"register":        c.RateLimit.Register,
		"portal-login":    c.RateLimit.PortalLogin,
	}
	for name, rule := range rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			problems = append(problems, fmt.Sprintf("rate-limit.%s needs a positive limit and window", name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", strings.Join(problems, "; "))
}
