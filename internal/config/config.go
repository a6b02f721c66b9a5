// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

// Package config loads Neighborly configuration. Sources are applied in
// order, later ones winning: built-in defaults, the YAML config file,
// environment variables for secrets, and command-line flags.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/logging"
	"github.com/neighborly/neighborly/internal/mail"
	"github.com/neighborly/neighborly/internal/store"
	"github.com/neighborly/neighborly/internal/web"
	"github.com/neighborly/neighborly/internal/xdg"
)

// Environment variables read by Load.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvSessionSecret = "NEIGHBORLY_SESSION_SECRET"
	EnvSMTPPassword  = "NEIGHBORLY_SMTP_PASSWORD"
)

// Config is the full runtime configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Session  SessionConfig  `koanf:"session"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Mail     MailConfig     `koanf:"mail"`
	Log      LogConfig      `koanf:"log"`
	Hashing  HashingConfig  `koanf:"hashing"`
	Limits   LimitsConfig   `koanf:"limits"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// ServerConfig configures the API and metrics listeners.
type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	MetricsAddr    string        `koanf:"metrics_addr"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// SessionConfig configures issued session tokens.
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	Issuer string        `koanf:"issuer"`
	TTL    time.Duration `koanf:"ttl"`
}

// TokensConfig holds security token lifetimes in whole days.
type TokensConfig struct {
	ResetTTLDays        int `koanf:"reset_ttl_days"`
	EmailConfirmTTLDays int `koanf:"email_confirm_ttl_days"`
}

// MailConfig configures outbound mail. An empty SMTP host logs messages
// instead of sending them.
type MailConfig struct {
	SiteName string     `koanf:"site_name"`
	BaseURL  string     `koanf:"base_url"`
	SMTP     SMTPConfig `koanf:"smtp"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Username   string        `koanf:"username"`
	Password   string        `koanf:"password"`
	From       string        `koanf:"from"`
	SenderName string        `koanf:"sender_name"`
	Timeout    time.Duration `koanf:"timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// HashingConfig tunes argon2id. Zero values keep the defaults.
type HashingConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// LimitsConfig bounds abuse of the public endpoints. RateLimitTokens of
// zero disables per-IP limiting.
type LimitsConfig struct {
	RateLimitTokens   uint64        `koanf:"rate_limit_tokens"`
	RateLimitInterval time.Duration `koanf:"rate_limit_interval"`
	LoginThrottle     bool          `koanf:"login_throttle"`
}

// defaults are loaded before any other source.
func defaults() map[string]any {
	return map[string]any{
		"database.connect_attempts":     uint64(store.DefaultConnectAttempts),
		"database.connect_backoff":      store.DefaultConnectBackoff.String(),
		"database.auto_migrate":         false,
		"server.addr":                   "127.0.0.1:8080",
		"server.metrics_addr":           "127.0.0.1:9100",
		"server.request_timeout":        web.DefaultRequestTimeout.String(),
		"session.issuer":                "neighborly",
		"session.ttl":                   auth.DefaultSessionTTL.String(),
		"tokens.reset_ttl_days":         auth.DefaultTokenTTLs.ResetDays,
		"tokens.email_confirm_ttl_days": auth.DefaultTokenTTLs.EmailConfirmDays,
		"mail.site_name":                "Neighborly",
		"mail.base_url":                 "http://localhost:8080",
		"mail.smtp.port":                587,
		"mail.smtp.timeout":             mail.DefaultSMTPTimeout.String(),
		"log.format":                    logging.FormatJSON,
		"log.level":                     "info",
		"limits.rate_limit_tokens":      uint64(30),
		"limits.rate_limit_interval":    time.Minute.String(),
		"limits.login_throttle":         true,
	}
}

// flagKeys maps command-line flag names to config keys. Flags missing here
// are ignored by Load.
var flagKeys = map[string]string{
	"database-url":    "database.url",
	"auto-migrate":    "database.auto_migrate",
	"addr":            "server.addr",
	"metrics-addr":    "server.metrics_addr",
	"request-timeout": "server.request_timeout",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"base-url":        "mail.base_url",
	"smtp-host":       "mail.smtp.host",
	"smtp-port":       "mail.smtp.port",
}

// RegisterFlags adds the flags understood by Load. Their defaults are
// left empty so an unset flag never shadows the config file.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("database-url", "", "PostgreSQL connection URL (env "+EnvDatabaseURL+")")
	flags.Bool("auto-migrate", false, "apply pending migrations on startup")
	flags.String("addr", "", "API listen address")
	flags.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	flags.Duration("request-timeout", 0, "per-request timeout")
	flags.String("log-format", "", "log format (json or text)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("base-url", "", "public base URL used in mailed links")
	flags.String("smtp-host", "", "SMTP relay host (empty = log mail instead of sending)")
	flags.Int("smtp-port", 0, "SMTP relay port")
}

// Load builds a Config. path names the YAML file; when empty the XDG
// default is used and silently skipped if it does not exist. flags may be
// nil. The result is not validated; commands call Validate or
// RequireDatabase for what they need.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// loadEnv applies secrets from the environment. Empty variables are ignored.
func loadEnv(k *koanf.Koanf) error {
	envKeys := []struct {
		env string
		key string
	}{
		{EnvDatabaseURL, "database.url"},
		{EnvSessionSecret, "session.secret"},
		{EnvSMTPPassword, "mail.smtp.password"},
	}
	for _, e := range envKeys {
		value := os.Getenv(e.env)
		if value == "" {
			continue
		}
		if err := k.Set(e.key, value); err != nil {
			return oops.Code("CONFIG_ENV_FAILED").With("env", e.env).Wrap(err)
		}
	}
	return nil
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	if len(c.Session.Secret) == 0 {
		return invalid.With("key", "session.secret").
			Errorf("session secret is required (set %s)", EnvSessionSecret)
	}
	if len(c.Session.Secret) < auth.MinSessionSecretLength {
		return invalid.With("key", "session.secret").
			Errorf("session secret must be at least %d bytes", auth.MinSessionSecretLength)
	}
	if c.Session.TTL <= 0 {
		return invalid.With("key", "session.ttl").Errorf("session ttl must be positive")
	}
	if c.Tokens.ResetTTLDays <= 0 {
		return invalid.With("key", "tokens.reset_ttl_days").
			Errorf("reset token ttl must be a positive number of days")
	}
	if c.Tokens.EmailConfirmTTLDays <= 0 {
		return invalid.With("key", "tokens.email_confirm_ttl_days").
			Errorf("email confirmation token ttl must be a positive number of days")
	}
	if !logging.ValidFormat(c.Log.Format) {
		return invalid.With("key", "log.format").
			Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid.With("key", "log.level").Wrap(err)
	}
	if c.Server.Addr == "" {
		return invalid.With("key", "server.addr").Errorf("api listen address is required")
	}
	if c.Limits.RateLimitTokens > 0 && c.Limits.RateLimitInterval <= 0 {
		return invalid.With("key", "limits.rate_limit_interval").
			Errorf("rate limit interval must be positive when rate limiting is enabled")
	}
	if c.Mail.SMTP.Host != "" && c.Mail.SMTP.From == "" {
		return invalid.With("key", "mail.smtp.from").Errorf("sender address is required when smtp is enabled")
	}
	return nil
}

// RequireDatabase reports a missing database URL. Commands that never touch
// the database skip it.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database url is required (set %s)", EnvDatabaseURL)
	}
	return nil
}

// TokenTTLs returns the security token lifetimes.
func (c *Config) TokenTTLs() auth.TokenTTLs {
	return auth.TokenTTLs{
		EmailConfirmDays: c.Tokens.EmailConfirmTTLDays,
		ResetDays:        c.Tokens.ResetTTLDays,
	}
}

// Argon2Params overlays the configured hashing costs on the defaults.
func (c *Config) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params
	if c.Hashing.Time > 0 {
		p.Time = c.Hashing.Time
	}
	if c.Hashing.MemoryKiB > 0 {
		p.Memory = c.Hashing.MemoryKiB
	}
	if c.Hashing.Threads > 0 {
		p.Threads = c.Hashing.Threads
	}
	return p
}

// SMTP returns the relay settings for mail.NewSMTPTransport.
func (c *Config) SMTP() mail.SMTPConfig {
	s := c.Mail.SMTP
	return mail.SMTPConfig{
		Host:       s.Host,
		Port:       s.Port,
		Username:   s.Username,
		Password:   s.Password,
		From:       s.From,
		SenderName: s.SenderName,
		Timeout:    s.Timeout,
	}
}

// RateLimit returns the per-IP limit for web.WithRateLimit.
func (c *Config) RateLimit() web.RateLimit {
	return web.RateLimit{
		Tokens:   c.Limits.RateLimitTokens,
		Interval: c.Limits.RateLimitInterval,
	}
}

// LoggingOptions returns the logger settings for service and version.
func (c *Config) LoggingOptions(service, version string) logging.Options {
	return logging.Options{
		Service: service,
		Version: version,
		Format:  c.Log.Format,
		Level:   c.Log.Level,
	}
}

// Redacted returns a copy safe to print, with secrets masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Session.Secret != "" {
		out.Session.Secret = logging.Redacted
	}
	if out.Mail.SMTP.Password != "" {
		out.Mail.SMTP.Password = logging.Redacted
	}
	if out.Database.URL != "" {
		out.Database.URL = redactURL(out.Database.URL)
	}
	return out
}

// YAML renders the config as a YAML document.
func (c Config) YAML() ([]byte, error) {
	k := koanf.New(".")
	values := map[string]any{
		"database.url":                  c.Database.URL,
		"database.connect_attempts":     c.Database.ConnectAttempts,
		"database.connect_backoff":      c.Database.ConnectBackoff.String(),
		"database.auto_migrate":         c.Database.AutoMigrate,
		"server.addr":                   c.Server.Addr,
		"server.metrics_addr":           c.Server.MetricsAddr,
		"server.request_timeout":        c.Server.RequestTimeout.String(),
		"session.secret":                c.Session.Secret,
		"session.issuer":                c.Session.Issuer,
		"session.ttl":                   c.Session.TTL.String(),
		"tokens.reset_ttl_days":         c.Tokens.ResetTTLDays,
		"tokens.email_confirm_ttl_days": c.Tokens.EmailConfirmTTLDays,
		"mail.site_name":                c.Mail.SiteName,
		"mail.base_url":                 c.Mail.BaseURL,
		"mail.smtp.host":                c.Mail.SMTP.Host,
		"mail.smtp.port":                c.Mail.SMTP.Port,
		"mail.smtp.username":            c.Mail.SMTP.Username,
		"mail.smtp.password":            c.Mail.SMTP.Password,
		"mail.smtp.from":                c.Mail.SMTP.From,
		"mail.smtp.sender_name":         c.Mail.SMTP.SenderName,
		"mail.smtp.timeout":             c.Mail.SMTP.Timeout.String(),
		"log.format":                    c.Log.Format,
		"log.level":                     c.Log.Level,
		"hashing.time":                  c.Hashing.Time,
		"hashing.memory_kib":            c.Hashing.MemoryKiB,
		"hashing.threads":               c.Hashing.Threads,
		"limits.rate_limit_tokens":      c.Limits.RateLimitTokens,
		"limits.rate_limit_interval":    c.Limits.RateLimitInterval.String(),
		"limits.login_throttle":         c.Limits.LoginThrottle,
	}
	for key, value := range values {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_ENCODE_FAILED").With("key", key).Wrap(err)
		}
	}
	out, err := k.Marshal(yaml.Parser())
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return logging.Redacted
	}
	return u.Redacted()
}
