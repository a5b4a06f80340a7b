package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultEnvFile = ".env"
	defaultPort    = "8080"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Commerce  CommerceConfig
	Cache     CacheConfig
	Live      LiveConfig
	Analytics AnalyticsConfig
	Session   SessionConfig
	LogLevel  string `env:"STOREFRONT_LOG_LEVEL" envDefault:"info"`
}

// ServerConfig configures the HTTP listener and on-disk assets.
type ServerConfig struct {
	Addr           string        `env:"STOREFRONT_ADDR"`
	Port           string        `env:"STOREFRONT_PORT"`
	ReadTimeout    time.Duration `env:"STOREFRONT_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"STOREFRONT_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout    time.Duration `env:"STOREFRONT_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT" envDefault:"30s"`
	Dev            bool          `env:"STOREFRONT_DEV"`
	TemplatesDir   string        `env:"STOREFRONT_TEMPLATES_DIR" envDefault:"templates"`
	PublicDir      string        `env:"STOREFRONT_PUBLIC_DIR" envDefault:"public"`
	LocalesDir     string        `env:"STOREFRONT_LOCALES_DIR" envDefault:"locales"`
	ContentDir     string        `env:"STOREFRONT_CONTENT_DIR" envDefault:"content"`
	ContentBaseURL string        `env:"STOREFRONT_CONTENT_BASE_URL"`
	DefaultLocale  string        `env:"STOREFRONT_DEFAULT_LOCALE" envDefault:"en"`
	Locales        []string      `env:"STOREFRONT_LOCALES" envDefault:"en,ja" envSeparator:","`
}

// ListenAddr returns the address the server binds to.
func (s ServerConfig) ListenAddr() string {
	if strings.TrimSpace(s.Addr) != "" {
		return s.Addr
	}
	return ":" + s.Port
}

// CommerceConfig points at the commerce platform APIs.
type CommerceConfig struct {
	StoreDomain        string        `env:"STOREFRONT_STORE_DOMAIN"`
	APIVersion         string        `env:"STOREFRONT_API_VERSION" envDefault:"2024-04"`
	PublicToken        string        `env:"STOREFRONT_PUBLIC_TOKEN"`
	CustomerAccountURL string        `env:"STOREFRONT_CUSTOMER_ACCOUNT_URL"`
	FixturesPath       string        `env:"STOREFRONT_FIXTURES"`
	Timeout            time.Duration `env:"STOREFRONT_API_TIMEOUT" envDefault:"8s"`
	HeaderMenu         string        `env:"STOREFRONT_HEADER_MENU" envDefault:"main-menu"`
	FooterMenu         string        `env:"STOREFRONT_FOOTER_MENU" envDefault:"footer"`
	SupportMenu        string        `env:"STOREFRONT_SUPPORT_MENU" envDefault:"support-menu"`
	MobileMenu         string        `env:"STOREFRONT_MOBILE_MENU" envDefault:"mobile-menu"`
	FooterImageURL     string        `env:"STOREFRONT_FOOTER_IMAGE"`
}

// UsesFixtures reports whether the storefront serves the bundled catalog.
func (c CommerceConfig) UsesFixtures() bool {
	return strings.TrimSpace(c.StoreDomain) == ""
}

// CacheConfig controls catalog query caching.
type CacheConfig struct {
	TTL      time.Duration `env:"STOREFRONT_CACHE_TTL" envDefault:"5m"`
	RedisURL string        `env:"STOREFRONT_REDIS_URL"`
}

// LiveConfig tunes the live page channel.
type LiveConfig struct {
	Enabled      bool          `env:"STOREFRONT_LIVE" envDefault:"true"`
	HeroInterval time.Duration `env:"STOREFRONT_HERO_INTERVAL" envDefault:"2s"`
}

// AnalyticsConfig holds client instrumentation keys surfaced to templates.
type AnalyticsConfig struct {
	GA4MeasurementID string `env:"STOREFRONT_GA_MEASUREMENT_ID"`
	GTMContainerID   string `env:"STOREFRONT_GTM_CONTAINER_ID"`
	SegmentWriteKey  string `env:"STOREFRONT_SEGMENT_WRITE_KEY"`
	Debug            bool   `env:"STOREFRONT_ANALYTICS_DEBUG"`
}

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	SigningKey  string `env:"STOREFRONT_SESSION_SIGNING_KEY"`
	Environment string `env:"STOREFRONT_ENV" envDefault:"dev"`
}

// Production reports whether cookies must be marked secure.
func (s SessionConfig) Production() bool {
	return strings.EqualFold(strings.TrimSpace(s.Environment), "prod")
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles configuration from defaults, an optional .env file, the process
// environment and explicit overrides, in increasing order of precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: values}); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	// Cloud Run injects PORT; an explicit STOREFRONT_PORT wins.
	if cfg.Server.Port == "" {
		cfg.Server.Port = strings.TrimSpace(values["PORT"])
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	cfg.Server.DefaultLocale = strings.ToLower(strings.TrimSpace(cfg.Server.DefaultLocale))
	cfg.Server.Locales = normalizeLocales(cfg.Server.Locales)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	values := map[string]string{}
	if path := strings.TrimSpace(options.envFile); path != "" {
		dotEnv, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		for k, v := range dotEnv {
			values[k] = v
		}
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			k, v, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(k) == "" {
				continue
			}
			values[k] = v
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

func normalizeLocales(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, l := range in {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.ReadTimeout <= 0 {
		invalid = append(invalid, "Server.ReadTimeout")
	}
	if cfg.Server.RequestTimeout <= 0 {
		invalid = append(invalid, "Server.RequestTimeout")
	}
	if cfg.Server.DefaultLocale == "" || !contains(cfg.Server.Locales, cfg.Server.DefaultLocale) {
		invalid = append(invalid, "Server.DefaultLocale")
	}
	if cfg.Commerce.Timeout <= 0 {
		invalid = append(invalid, "Commerce.Timeout")
	}
	if !cfg.Commerce.UsesFixtures() && strings.TrimSpace(cfg.Commerce.PublicToken) == "" {
		invalid = append(invalid, "Commerce.PublicToken")
	}
	if cfg.Cache.TTL < 0 {
		invalid = append(invalid, "Cache.TTL")
	}
	if raw := strings.TrimSpace(cfg.Cache.RedisURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") || u.Host == "" {
			invalid = append(invalid, "Cache.RedisURL")
		}
	}
	if cfg.Live.HeroInterval <= 0 {
		invalid = append(invalid, "Live.HeroInterval")
	}
	if cfg.Session.Production() && strings.TrimSpace(cfg.Session.SigningKey) == "" {
		invalid = append(invalid, "Session.SigningKey")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
