package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/pagecheck/internal/errs"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "https://www.google.com", cfg.Site.BaseURL)
	assert.Equal(t, "Dogs", cfg.Site.SearchKeyword)
	assert.Equal(t, ModeLaunch, cfg.Browser.Mode)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser.Page.WaitTimeout)
	assert.Equal(t, 1280, cfg.Browser.Page.ViewportWidth)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "pagecheck.runs", cfg.NATS.Subject)
	assert.Equal(t, 24*time.Hour, cfg.API.ResultTTL)
	assert.Equal(t, 100, cfg.API.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.API.RateLimit.Window)
	assert.False(t, cfg.NATS.Managed)
	assert.Equal(t, 10, cfg.Fixture.ResultsPerPage)
	assert.Equal(t, "127.0.0.1:8080", cfg.Fixture.Addr())

	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Site.BaseURL = "/search" }, "site.base_url"},
		{"ftp base url", func(c *Config) { c.Site.BaseURL = "ftp://example.com" }, "site.base_url"},
		{"blank keyword", func(c *Config) { c.Site.SearchKeyword = "  " }, "site.search_keyword"},
		{"unknown mode", func(c *Config) { c.Browser.Mode = "headful" }, "browser.mode"},
		{"remote without url", func(c *Config) { c.Browser.Mode = ModeRemote }, "browser.control_url"},
		{"zero wait", func(c *Config) { c.Browser.Page.WaitTimeout = 0 }, "browser.wait_timeout"},
		{"zero scenario timeout", func(c *Config) { c.Browser.ScenarioTimeout = 0 }, "browser.scenario_timeout"},
		{"nats without subject", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.Subject = ""
		}, "nats.subject"},
		{"api bad port", func(c *Config) {
			c.API.Enabled = true
			c.API.Port = 70000
		}, "api.port"},
		{"managed nats without bin", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.Managed = true
			c.NATS.Bin = ""
		}, "nats.bin"},
		{"rate limit without window", func(c *Config) {
			c.API.Enabled = true
			c.API.RateLimit.Window = 0
		}, "api.rate_limit"},
		{"no results", func(c *Config) { c.Fixture.ResultsPerPage = 0 }, "fixture.results_per_page"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.InvalidArgument))
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("remote with url", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Browser.Mode = ModeRemote
		cfg.Browser.ControlURL = "ws://127.0.0.1:9222"
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad_FileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pagecheck.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
site:
  base_url: http://localhost:9000
  scenarios: [search-shows-results]
browser:
  wait_timeout: 3s
  headers:
    X-Test: "1"
  cookies:
    - name: CONSENT
      value: YES+
      http_only: true
fixture:
  results_per_page: 4
`), 0o644))

	t.Setenv("PAGECHECK_SITE_SEARCH_KEYWORD", "Cats")
	t.Setenv("PAGECHECK_BROWSER_HEADLESS", "false")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Site.BaseURL)
	assert.Equal(t, []string{"search-shows-results"}, cfg.Site.Scenarios)
	assert.Equal(t, "Cats", cfg.Site.SearchKeyword)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Browser.Page.WaitTimeout)
	assert.Equal(t, "1", cfg.Browser.Page.Headers["x-test"])
	require.Len(t, cfg.Browser.Page.Cookies, 1)
	assert.Equal(t, "CONSENT", cfg.Browser.Page.Cookies[0].Name)
	assert.True(t, cfg.Browser.Page.Cookies[0].HTTPOnly)
	assert.Equal(t, 4, cfg.Fixture.ResultsPerPage)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errs.Is(err, errs.InvalidArgument))
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "Dogs", cfg.Site.SearchKeyword)
}

func TestLoad_InvalidEnvFailsValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PAGECHECK_BROWSER_MODE", "remote")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.control_url")
}
