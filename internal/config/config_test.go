package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "en", cfg.Server.DefaultLocale)
	assert.Equal(t, []string{"en", "ja"}, cfg.Server.Locales)
	assert.True(t, cfg.Commerce.UsesFixtures())
	assert.Equal(t, "main-menu", cfg.Commerce.HeaderMenu)
	assert.Equal(t, "support-menu", cfg.Commerce.SupportMenu)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2*time.Second, cfg.Live.HeroInterval)
	assert.True(t, cfg.Live.Enabled)
	assert.False(t, cfg.Session.Production())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadPortPrecedence(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvMap(map[string]string{"PORT": "9090"}),
		WithoutSystemEnv(), WithEnvFile(""))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)

	cfg, err = Load(context.Background(),
		WithEnvMap(map[string]string{"PORT": "9090", "STOREFRONT_PORT": "7070"}),
		WithoutSystemEnv(), WithEnvFile(""))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)

	cfg, err = Load(context.Background(),
		WithEnvMap(map[string]string{"STOREFRONT_ADDR": "127.0.0.1:3000"}),
		WithoutSystemEnv(), WithEnvFile(""))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.ListenAddr())
}

func TestLoadDotEnvOverriddenByMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("STOREFRONT_CACHE_TTL=30s\nSTOREFRONT_LOCALES=ja, EN\nSTOREFRONT_DEFAULT_LOCALE=ja\n"), 0o600))

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"STOREFRONT_CACHE_TTL": "1m"}),
	)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"ja", "en"}, cfg.Server.Locales)
	assert.Equal(t, "ja", cfg.Server.DefaultLocale)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env")), WithoutSystemEnv())
	require.NoError(t, err)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{
			"STOREFRONT_STORE_DOMAIN":  "shop.example.com",
			"STOREFRONT_REDIS_URL":     "http://cache:6379",
			"STOREFRONT_HERO_INTERVAL": "0s",
			"STOREFRONT_ENV":           "prod",
			"STOREFRONT_CACHE_TTL":     "-1s",
		}),
		WithoutSystemEnv(), WithEnvFile(""))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{
		"Commerce.PublicToken",
		"Cache.TTL",
		"Cache.RedisURL",
		"Live.HeroInterval",
		"Session.SigningKey",
	}, verr.Fields())
}

func TestLoadRejectsUnsupportedDefaultLocale(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{"STOREFRONT_DEFAULT_LOCALE": "fr"}),
		WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Server.DefaultLocale"}, verr.Fields())
}

func TestLoadParseError(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{"STOREFRONT_CACHE_TTL": "soon"}),
		WithoutSystemEnv(), WithEnvFile(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse environment")
}
