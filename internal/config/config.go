package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ahrdadan/pagecheck/internal/browser"
	"github.com/ahrdadan/pagecheck/internal/errs"
)

const (
	// AppName is the application name
	AppName = "pagecheck"
	// EnvPrefix prefixes every environment override, e.g. PAGECHECK_SITE_BASE_URL.
	EnvPrefix = "PAGECHECK"
)

// Version is set at build time.
var Version = "dev"

// Browser modes.
const (
	ModeLaunch = "launch"
	ModeRemote = "remote"
)

// Config holds all configuration for a pagecheck run.
type Config struct {
	Site    SiteConfig    `mapstructure:"site" yaml:"site"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Fixture FixtureConfig `mapstructure:"fixture" yaml:"fixture"`
}

// SiteConfig is the site under test.
type SiteConfig struct {
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	SearchKeyword string `mapstructure:"search_keyword" yaml:"search_keyword"`
	// Scenarios restricts a run to the named scenarios; empty runs all.
	Scenarios []string `mapstructure:"scenarios" yaml:"scenarios"`
}

// BrowserConfig selects and tunes the browser.
type BrowserConfig struct {
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	Bin         string        `mapstructure:"bin" yaml:"bin"`
	ControlURL  string        `mapstructure:"control_url" yaml:"control_url"`
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	Revision    int           `mapstructure:"revision" yaml:"revision"`
	AutoInstall bool          `mapstructure:"auto_install" yaml:"auto_install"`
	InstallDeps bool          `mapstructure:"install_deps" yaml:"install_deps"`
	SlowMotion  time.Duration `mapstructure:"slow_motion" yaml:"slow_motion"`
	Proxy       string        `mapstructure:"proxy" yaml:"proxy"`
	// ScenarioTimeout bounds a whole scenario, waits included.
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`

	Page browser.PageOptions `mapstructure:",squash" yaml:",inline"`
}

// LoggerConfig configures zap and the optional rotating log file.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// NATSConfig configures publishing run events to JetStream.
type NATSConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Stream  string        `mapstructure:"stream" yaml:"stream"`
	Subject string        `mapstructure:"subject" yaml:"subject"`
	MaxAge  time.Duration `mapstructure:"max_age" yaml:"max_age"`

	// Managed starts a local nats-server at URL unless one already answers.
	Managed      bool   `mapstructure:"managed" yaml:"managed"`
	Bin          string `mapstructure:"bin" yaml:"bin"`
	StoreDir     string `mapstructure:"store_dir" yaml:"store_dir"`
	AutoDownload bool   `mapstructure:"auto_download" yaml:"auto_download"`
}

// APIConfig configures the run status API.
type APIConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Host      string        `mapstructure:"host" yaml:"host"`
	Port      int           `mapstructure:"port" yaml:"port"`
	ResultTTL time.Duration `mapstructure:"result_ttl" yaml:"result_ttl"`
	// Linger keeps the API up after the run finishes.
	Linger time.Duration `mapstructure:"linger" yaml:"linger"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	// AllowedIPs restricts clients; empty allows everyone.
	AllowedIPs []string `mapstructure:"allowed_ips" yaml:"allowed_ips"`
}

// RateLimitConfig bounds requests per client. Zero Requests disables it.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
	Burst    int           `mapstructure:"burst" yaml:"burst"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// FixtureConfig configures the local imitation search site.
type FixtureConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	ResultsPerPage int    `mapstructure:"results_per_page" yaml:"results_per_page"`
}

// Addr returns host:port.
func (c FixtureConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SetDefaults initializes default values for every key, which also makes
// every key visible to environment overrides.
func SetDefaults(v *viper.Viper) {
	// -- Site --
	v.SetDefault("site.base_url", "https://www.google.com")
	v.SetDefault("site.search_keyword", "Dogs")
	v.SetDefault("site.scenarios", []string{})

	// -- Browser --
	v.SetDefault("browser.mode", ModeLaunch)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.revision", 0)
	v.SetDefault("browser.auto_install", true)
	v.SetDefault("browser.install_deps", false)
	v.SetDefault("browser.slow_motion", "0s")
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.scenario_timeout", "2m")
	v.SetDefault("browser.wait_timeout", "10s")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", AppName)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- NATS --
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "PAGECHECK")
	v.SetDefault("nats.subject", "pagecheck.runs")
	v.SetDefault("nats.max_age", "168h")
	v.SetDefault("nats.managed", false)
	v.SetDefault("nats.bin", "./bin/nats-server")
	v.SetDefault("nats.store_dir", "./data/jetstream")
	v.SetDefault("nats.auto_download", true)

	// -- API --
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8000)
	v.SetDefault("api.result_ttl", "24h")
	v.SetDefault("api.linger", "0s")
	v.SetDefault("api.rate_limit.requests", 100)
	v.SetDefault("api.rate_limit.window", "1m")
	v.SetDefault("api.rate_limit.burst", 20)
	v.SetDefault("api.allowed_ips", []string{})

	// -- Fixture --
	v.SetDefault("fixture.host", "127.0.0.1")
	v.SetDefault("fixture.port", 8080)
	v.SetDefault("fixture.results_per_page", 10)
}

// NewDefaultConfig returns the configuration with only defaults applied.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads cfgFile (or ./pagecheck.yaml when empty and present), applies
// PAGECHECK_ environment overrides and validates the result. Flags bound to v
// by the caller take precedence over both.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, errs.Wrap(errs.InvalidArgument, "error reading config file", err)
		}
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "error unmarshaling config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validateHTTPURL("site.base_url", c.Site.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Site.SearchKeyword) == "" {
		return invalid("site.search_keyword is required")
	}

	switch c.Browser.Mode {
	case ModeLaunch:
	case ModeRemote:
		if c.Browser.ControlURL == "" {
			return invalid("browser.control_url is required when browser.mode is remote")
		}
	default:
		return invalid(fmt.Sprintf("browser.mode must be %q or %q, got %q", ModeLaunch, ModeRemote, c.Browser.Mode))
	}
	if c.Browser.Page.WaitTimeout <= 0 {
		return invalid("browser.wait_timeout must be positive")
	}
	if c.Browser.ScenarioTimeout <= 0 {
		return invalid("browser.scenario_timeout must be positive")
	}
	if c.Browser.SlowMotion < 0 {
		return invalid("browser.slow_motion must not be negative")
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" || c.NATS.Stream == "" || c.NATS.Subject == "" {
			return invalid("nats.url, nats.stream and nats.subject are required when nats is enabled")
		}
		if c.NATS.Managed && c.NATS.Bin == "" {
			return invalid("nats.bin is required when nats.managed is set")
		}
	}

	if c.API.Enabled {
		if err := validatePort("api.port", c.API.Port); err != nil {
			return err
		}
		if c.API.ResultTTL <= 0 {
			return invalid("api.result_ttl must be positive")
		}
		if rl := c.API.RateLimit; rl.Requests > 0 && (rl.Window <= 0 || rl.Burst < 1) {
			return invalid("api.rate_limit.window and api.rate_limit.burst must be positive when rate limiting")
		}
	}

	if err := validatePort("fixture.port", c.Fixture.Port); err != nil {
		return err
	}
	if c.Fixture.ResultsPerPage < 1 {
		return invalid("fixture.results_per_page must be a positive integer")
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fmt.Sprintf("%s must be an absolute http(s) url, got %q", key, raw))
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 0 || port > 65535 {
		return invalid(fmt.Sprintf("%s must be between 0 and 65535, got %d", key, port))
	}
	return nil
}

func invalid(msg string) error {
	return errs.New(errs.InvalidArgument, msg)
}
