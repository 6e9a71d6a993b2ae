package infra

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sessionguard/platform/internal/policy"
)

const insecureAdminSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL   string `env:"DATABASE_URL"`
	PGHost        string `env:"PGHOST" envDefault:"localhost"`
	PGPort        int    `env:"PGPORT" envDefault:"5432"`
	PGUser        string `env:"PGUSER" envDefault:"sessionguard"`
	PGPassword    string `env:"PGPASSWORD" envDefault:"sessionguard"`
	PGDatabase    string `env:"PGDATABASE" envDefault:"sessionguard"`
	PGMaxConns    int32  `env:"PG_MAX_CONNS" envDefault:"20"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`

	// Redis; empty keeps the per-user lock in-process.
	RedisURL string `env:"REDIS_URL"`

	// Admin JWT
	AdminJWTSecret string        `env:"ADMIN_JWT_SECRET" envDefault:"change-me-in-production"`
	AdminJWTExpiry time.Duration `env:"ADMIN_JWT_EXPIRY" envDefault:"8h"`

	// Server
	APIPort  int    `env:"API_PORT" envDefault:"3100"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Identity provider
	IdentityProvider    string        `env:"IDENTITY_PROVIDER" envDefault:"local"`
	GoTrueURL           string        `env:"GOTRUE_URL"`
	GoTrueAnonKey       string        `env:"GOTRUE_ANON_KEY"`
	GoTrueJWTSecret     string        `env:"GOTRUE_JWT_SECRET"`
	GoTrueTimeout       time.Duration `env:"GOTRUE_TIMEOUT" envDefault:"5s"`
	IdentityEmailDomain string        `env:"IDENTITY_EMAIL_DOMAIN" envDefault:"internal.local"`

	// Login policy
	ActivityWindow      time.Duration `env:"ACTIVITY_WINDOW" envDefault:"15m"`
	SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD" envDefault:"0.5"`
	AnomalyRiskDelta    int           `env:"ANOMALY_RISK_DELTA" envDefault:"15"`
	LimitedThreshold    int           `env:"LIMITED_THRESHOLD" envDefault:"40"`
	BannedThreshold     int           `env:"BANNED_THRESHOLD" envDefault:"70"`

	// Login throttling per client IP; 0 disables it.
	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT" envDefault:"20"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`
	// Proxies (IPs or CIDRs) whose X-Forwarded-For is believed for throttling.
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	// GeoIP; empty disables country enrichment.
	GeoIPCityDB string `env:"GEOIP_CITY_DB"`

	// Kafka
	KafkaBrokers     string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string        `env:"KAFKA_TOPIC_PREFIX" envDefault:"sessionguard"`
	OutboxInterval   time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize  int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the login policy and rejects insecure configuration that
// must not run in production. ALLOW_INSECURE_DEFAULTS=true bypasses only the
// secret checks (local dev).
func (c *Config) Validate() error {
	if err := c.PolicyConfig().Validate(); err != nil {
		return fmt.Errorf("login policy: %w", err)
	}
	switch c.IdentityProvider {
	case "local":
	case "gotrue":
		if c.GoTrueURL == "" {
			return fmt.Errorf("GOTRUE_URL is required when IDENTITY_PROVIDER=gotrue")
		}
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be local or gotrue, got %q", c.IdentityProvider)
	}
	if c.LoginRateLimit < 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must not be negative, got %d", c.LoginRateLimit)
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if c.AllowInsecureDefaults {
		return nil
	}
	if c.AdminJWTSecret == insecureAdminSecret {
		return fmt.Errorf("ADMIN_JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.AdminJWTSecret))
	}
	if c.IdentityProvider == "gotrue" && c.GoTrueJWTSecret == "" {
		return fmt.Errorf("GOTRUE_JWT_SECRET is required to verify provider tokens")
	}
	return nil
}

// PolicyConfig returns the login policy tunables, on top of the default
// fingerprint weights.
func (c *Config) PolicyConfig() policy.Config {
	cfg := policy.DefaultConfig()
	cfg.ActivityWindow = c.ActivityWindow
	cfg.SimilarityThreshold = c.SimilarityThreshold
	cfg.AnomalyRiskDelta = c.AnomalyRiskDelta
	cfg.Thresholds = policy.Thresholds{Limited: c.LimitedThreshold, Banned: c.BannedThreshold}
	return cfg
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// CORSOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address is taken as a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range splitList(c.TrustedProxies) {
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
